package navigation

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Side names a chunk boundary edge
type Side uint8

const (
	SideBottom Side = iota // ly == 0
	SideRight              // lx == ChunkWidth-1
	SideTop                // ly == ChunkHeight-1
	SideLeft               // lx == 0
	SideCount
)

var sideNames = [SideCount]string{"bottom", "right", "top", "left"}

func (s Side) String() string {
	if s < SideCount {
		return sideNames[s]
	}
	return "invalid"
}

// Opposite returns the facing side of the adjacent chunk
func (s Side) Opposite() Side {
	return (s + 2) % SideCount
}

// Offset returns the chunk-coordinate step toward the adjacent chunk
func (s Side) Offset() (int, int) {
	switch s {
	case SideBottom:
		return 0, -1
	case SideRight:
		return 1, 0
	case SideTop:
		return 0, 1
	default:
		return -1, 0
	}
}

// Horizontal reports whether the side runs along the x axis
func (s Side) Horizontal() bool {
	return s == SideBottom || s == SideTop
}

// PortalInfo identifies a portal across the whole graph
type PortalInfo struct {
	Chunk  ChunkIndex
	Portal PortalIndex
}

// InvalidPortal marks "no portal"; both halves at their max value
var InvalidPortal = PortalInfo{Chunk: math.MaxInt32, Portal: math.MaxInt32}

// Valid reports whether p is not InvalidPortal
func (p PortalInfo) Valid() bool {
	return p != InvalidPortal
}

// Pack folds p into a 64-bit key: chunk in the high half, portal in the low half
func (p PortalInfo) Pack() uint64 {
	return uint64(uint32(p.Chunk))<<32 | uint64(uint32(p.Portal))
}

// UnpackPortalInfo reverses Pack
func UnpackPortalInfo(k uint64) PortalInfo {
	return PortalInfo{Chunk: ChunkIndex(int32(k >> 32)), Portal: PortalIndex(int32(uint32(k)))}
}

// Connection is a directed edge of the portal graph
type Connection struct {
	Target PortalInfo
	Length float32
}

// Portal is a maximal walkable run of cells along one chunk edge
type Portal struct {
	Side     Side
	Start    int        // First cell along the side's axis, chunk-local
	Size     int        // Cell count
	Position mgl32.Vec2 // World-space midpoint of the run
	Area     int32      // Same value within a chunk iff mutually reachable inside the chunk

	Local  []Connection // Same-chunk portals, length is the intra-chunk path cost
	Remote []Connection // Adjacent-chunk portals across Side, unit length
}

// End returns one past the last cell of the run
func (p *Portal) End() int { return p.Start + p.Size }

// Overlaps reports whether two ranges on a shared boundary touch at least one cell pair
func (p *Portal) Overlaps(q *Portal) bool {
	return q.End() > p.Start && q.Start < p.End()
}

// Contains reports whether a chunk-local cell lies on the portal's run
func (p *Portal) Contains(cw, ch, lx, ly int) bool {
	along, ok := sideCell(p.Side, cw, ch, lx, ly)
	return ok && along >= p.Start && along < p.End()
}

// sideCell returns the axis coordinate of (lx, ly) if it lies on side s
func sideCell(s Side, cw, ch, lx, ly int) (int, bool) {
	switch s {
	case SideBottom:
		return lx, ly == 0
	case SideTop:
		return lx, ly == ch-1
	case SideRight:
		return ly, lx == cw-1
	default:
		return ly, lx == 0
	}
}

// sideLocal maps an axis coordinate on side s back to chunk-local cell coordinates
func sideLocal(s Side, cw, ch, along int) (int, int) {
	switch s {
	case SideBottom:
		return along, 0
	case SideTop:
		return along, ch - 1
	case SideRight:
		return cw - 1, along
	default:
		return 0, along
	}
}

// sideLength returns the cell count along side s
func sideLength(s Side, cw, ch int) int {
	if s.Horizontal() {
		return cw
	}
	return ch
}

// Cells appends the chunk-local node indices covered by the portal
func (p *Portal) Cells(cw, ch int, dst []NodeIndex) []NodeIndex {
	for a := p.Start; a < p.End(); a++ {
		lx, ly := sideLocal(p.Side, cw, ch, a)
		dst = append(dst, NodeIndex(ly*cw+lx))
	}
	return dst
}

// Midpoint returns the chunk-local node index at the middle of the run
func (p *Portal) Midpoint(cw, ch int) NodeIndex {
	lx, ly := sideLocal(p.Side, cw, ch, p.Start+(p.Size-1)/2)
	return NodeIndex(ly*cw + lx)
}

// --- Invalidate then rebuild ---

// DirtyChunk is proof that a chunk's inbound remote links were cut
// Only InvalidatePortals mints one; RebuildPortals consumes it
type DirtyChunk struct {
	chunk ChunkIndex
	valid bool
}

// Chunk returns the chunk the token was minted for
func (d DirtyChunk) Chunk() ChunkIndex { return d.chunk }

// InvalidatePortals clears every remote list pointing into ci and flags those chunks Changed
// Mutates neighbour chunks: call from a single goroutine
func (g *Graph) InvalidatePortals(ci ChunkIndex) DirtyChunk {
	if !g.ValidChunk(ci) {
		return DirtyChunk{}
	}
	c := &g.chunks[ci]
	for pi := range c.Portals {
		for _, r := range c.Portals[pi].Remote {
			if !g.ValidChunk(r.Target.Chunk) {
				continue
			}
			rc := &g.chunks[r.Target.Chunk]
			if int(r.Target.Portal) < len(rc.Portals) {
				rc.Portals[r.Target.Portal].Remote = rc.Portals[r.Target.Portal].Remote[:0]
			}
			rc.Changed = true
		}
	}
	return DirtyChunk{chunk: ci, valid: true}
}

// RebuildPortals discards the chunk's portals and extracts new ones from its nodes
// Touches only the token's chunk; safe to run concurrently for distinct chunks
func (g *Graph) RebuildPortals(d DirtyChunk) int {
	if !d.valid {
		return 0
	}
	c := &g.chunks[d.chunk]
	c.Portals = c.Portals[:0]
	for s := SideBottom; s < SideCount; s++ {
		g.calculatePortalsAlongSide(c, s)
	}
	return len(c.Portals)
}

// calculatePortalsAlongSide opens a portal on the first walkable cell of a run and closes it
// on the first blocked cell or at the edge end; sides facing the map edge yield nothing
func (g *Graph) calculatePortalsAlongSide(c *Chunk, s Side) {
	dx, dy := s.Offset()
	if _, ok := g.ChunkAt(c.X+dx, c.Y+dy); !ok {
		return
	}

	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	n := sideLength(s, cw, ch)
	start := -1
	for a := 0; a <= n; a++ {
		open := false
		if a < n {
			lx, ly := sideLocal(s, cw, ch, a)
			open = c.nodes[ly*cw+lx].Walkable()
		}
		switch {
		case open && start < 0:
			start = a
		case !open && start >= 0:
			c.Portals = append(c.Portals, g.newPortal(c, s, start, a-start))
			start = -1
		}
	}
}

func (g *Graph) newPortal(c *Chunk, s Side, start, size int) Portal {
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	ns := g.Props.NodeSize
	lo, _ := g.ChunkBounds(c.Index)

	lx, ly := sideLocal(s, cw, ch, start)
	center := lo.Add(mgl32.Vec2{(float32(lx) + 0.5) * ns, (float32(ly) + 0.5) * ns})
	half := float32(size-1) * 0.5 * ns
	if s.Horizontal() {
		center[0] += half
	} else {
		center[1] += half
	}

	return Portal{
		Side:     s,
		Start:    start,
		Size:     size,
		Position: center,
		Area:     g.nextArea.Add(1),
	}
}

// PortalCount returns the total number of portals in the graph
func (g *Graph) PortalCount() int {
	n := 0
	for i := range g.chunks {
		n += len(g.chunks[i].Portals)
	}
	return n
}

// Portal resolves a PortalInfo
func (g *Graph) Portal(p PortalInfo) (*Portal, bool) {
	if !g.ValidChunk(p.Chunk) {
		return nil, false
	}
	c := &g.chunks[p.Chunk]
	if p.Portal < 0 || int(p.Portal) >= len(c.Portals) {
		return nil, false
	}
	return &c.Portals[p.Portal], true
}

// AdjacentChunk returns the chunk across side s of ci
func (g *Graph) AdjacentChunk(ci ChunkIndex, s Side) (ChunkIndex, bool) {
	c := &g.chunks[ci]
	dx, dy := s.Offset()
	return g.ChunkAt(c.X+dx, c.Y+dy)
}
