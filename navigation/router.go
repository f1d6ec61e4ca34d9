package navigation

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// PathState is the outcome of the last route or repath
type PathState uint8

const (
	PathNotCalculated PathState = iota
	PathSuccess
	PathFailed
)

func (s PathState) String() string {
	switch s {
	case PathSuccess:
		return "success"
	case PathFailed:
		return "failed"
	default:
		return "not_calculated"
	}
}

// RouterOptions tunes the portal search
type RouterOptions struct {
	// Strict disables the same-area shortcut: only the exact target portal ends the search
	Strict bool
}

// Route is an ordered portal sequence from the target back to the start
type Route struct {
	Portals []PortalInfo
	State   PathState
	Length  float32
}

// NearestPortal returns the portal of chunk ci geometrically closest to pos
func (g *Graph) NearestPortal(ci ChunkIndex, pos mgl32.Vec2) (PortalIndex, bool) {
	if !g.ValidChunk(ci) {
		return 0, false
	}
	c := &g.chunks[ci]
	best := PortalIndex(-1)
	bestD := float32(math.MaxFloat32)
	for pi := range c.Portals {
		d := c.Portals[pi].Position.Sub(pos).LenSqr()
		if d < bestD {
			bestD = d
			best = PortalIndex(pi)
		}
	}
	return best, best >= 0
}

// portalIndex flattens every chunk's portal list into one id space
type portalIndex struct {
	offsets []int32 // First flat id of each chunk
	infos   []PortalInfo
}

func (g *Graph) buildPortalIndex() portalIndex {
	idx := portalIndex{offsets: make([]int32, len(g.chunks))}
	total := int32(0)
	for i := range g.chunks {
		idx.offsets[i] = total
		total += int32(len(g.chunks[i].Portals))
	}
	idx.infos = make([]PortalInfo, 0, total)
	for i := range g.chunks {
		for pi := range g.chunks[i].Portals {
			idx.infos = append(idx.infos, PortalInfo{Chunk: ChunkIndex(i), Portal: PortalIndex(pi)})
		}
	}
	return idx
}

func (idx *portalIndex) id(p PortalInfo) int32 {
	return idx.offsets[p.Chunk] + int32(p.Portal)
}

// NearestReachablePortal returns the closest portal of pos's chunk that pos can walk to inside the chunk
// Falls back to NearestPortal when pos is blocked or no portal is connected to it
func (g *Graph) NearestReachablePortal(pos mgl32.Vec2) (PortalInfo, bool) {
	ci, _ := g.GetChunkIndex(pos, true)
	ni, _ := g.GetNodeIndex(ci, pos, true)
	c := &g.chunks[ci]
	if c.nodes[ni].Walkable() && len(c.Portals) > 0 {
		seen := g.floodChunk(ci, ni)
		cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
		best := PortalIndex(-1)
		bestD := float32(math.MaxFloat32)
		for pi := range c.Portals {
			p := &c.Portals[pi]
			if !seen[p.Midpoint(cw, ch)] {
				continue
			}
			if d := p.Position.Sub(pos).LenSqr(); d < bestD {
				bestD, best = d, PortalIndex(pi)
			}
		}
		if best >= 0 {
			return PortalInfo{Chunk: ci, Portal: best}, true
		}
	}
	pi, ok := g.NearestPortal(ci, pos)
	return PortalInfo{Chunk: ci, Portal: pi}, ok
}

// floodChunk marks the walkable cells of chunk ci 4-connected to start
func (g *Graph) floodChunk(ci ChunkIndex, start NodeIndex) []bool {
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	c := &g.chunks[ci]
	seen := make([]bool, len(c.nodes))
	seen[start] = true
	stack := []NodeIndex{start}
	for len(stack) > 0 {
		ni := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := int(ni)%cw, int(ni)/cw
		for _, d := range cardinalDirs {
			nx, ny := x+DirVectors[d][0], y+DirVectors[d][1]
			if nx < 0 || ny < 0 || nx >= cw || ny >= ch {
				continue
			}
			nn := NodeIndex(ny*cw + nx)
			if !seen[nn] && c.nodes[nn].Walkable() {
				seen[nn] = true
				stack = append(stack, nn)
			}
		}
	}
	return seen
}

// FindRoute runs a uniform-cost search over the portal graph from the portal nearest
// to from toward the portal nearest to to
// Without opts.Strict, any portal in the target chunk sharing the target portal's area ends the search
func (g *Graph) FindRoute(from, to mgl32.Vec2, opts RouterOptions) Route {
	fromChunk, _ := g.GetChunkIndex(from, true)
	toChunk, _ := g.GetChunkIndex(to, true)

	startPortal, ok := g.NearestPortal(fromChunk, from)
	if !ok {
		return Route{State: PathFailed}
	}
	targetPortal, ok := g.NearestPortal(toChunk, to)
	if !ok {
		return Route{State: PathFailed}
	}
	return g.SearchPortals(PortalInfo{fromChunk, startPortal}, PortalInfo{toChunk, targetPortal}, opts)
}

// SearchPortals runs the uniform-cost portal search between two known portals
func (g *Graph) SearchPortals(from, to PortalInfo, opts RouterOptions) Route {
	if _, ok := g.Portal(from); !ok {
		return Route{State: PathFailed}
	}
	if _, ok := g.Portal(to); !ok {
		return Route{State: PathFailed}
	}
	toChunk := to.Chunk

	idx := g.buildPortalIndex()
	n := len(idx.infos)
	start := idx.id(from)
	target := idx.id(to)
	targetArea := g.chunks[toChunk].Portals[to.Portal].Area

	inf := float32(math.Inf(1))
	dist := make([]float32, n)
	for i := range dist {
		dist[i] = inf
	}
	parent := make([]int32, n) // 1-based; 0 means none
	closed := make([]bool, n)

	var q frontier
	q.init(n)
	dist[start] = 0
	q.push(start, 0)

	for q.len() > 0 {
		cur, length := q.pop()
		if closed[cur] {
			continue
		}
		closed[cur] = true

		info := idx.infos[cur]
		p := &g.chunks[info.Chunk].Portals[info.Portal]

		if cur == target || (!opts.Strict && info.Chunk == toChunk && p.Area == targetArea) {
			return Route{
				Portals: reconstruct(&idx, parent, cur),
				State:   PathSuccess,
				Length:  length,
			}
		}

		relax := func(conns []Connection) {
			for _, c := range conns {
				if !g.ValidChunk(c.Target.Chunk) || int(c.Target.Portal) >= len(g.chunks[c.Target.Chunk].Portals) {
					continue
				}
				nid := idx.id(c.Target)
				if closed[nid] {
					continue
				}
				nd := length + c.Length
				if nd < dist[nid] {
					dist[nid] = nd
					parent[nid] = cur + 1
					q.push(nid, nd)
				}
			}
		}
		relax(p.Local)
		relax(p.Remote)
	}

	return Route{State: PathFailed}
}

// reconstruct walks parent links from end, yielding target-first order
func reconstruct(idx *portalIndex, parent []int32, end int32) []PortalInfo {
	var out []PortalInfo
	for cur := end + 1; cur != 0; cur = parent[cur-1] {
		out = append(out, idx.infos[cur-1])
	}
	return out
}
