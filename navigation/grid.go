package navigation

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/lixenwraith/chunknav/parameter"
	"github.com/lixenwraith/chunknav/vmath"
)

// ErrInvalidProperties is returned by NewGraph for non-positive dimensions
var ErrInvalidProperties = errors.New("navigation: invalid graph properties")

// ChunkIndex addresses a chunk in row-major order (cy*Width + cx)
type ChunkIndex int32

// NodeIndex addresses a node inside its chunk (ly*ChunkWidth + lx)
type NodeIndex int32

// PortalIndex addresses a portal inside its chunk's portal list
type PortalIndex int32

// Direction constants for 8-neighbour traversal, y grows upward
// Order: N, NE, E, SE, S, SW, W, NW
const (
	DirN     int8 = 0
	DirNE    int8 = 1
	DirE     int8 = 2
	DirSE    int8 = 3
	DirS     int8 = 4
	DirSW    int8 = 5
	DirW     int8 = 6
	DirNW    int8 = 7
	DirCount int8 = 8
)

// DirVectors matches DirN..DirNW
var DirVectors = [8][2]int{
	{0, 1}, {1, 1}, {1, 0}, {1, -1},
	{0, -1}, {-1, -1}, {-1, 0}, {-1, 1},
}

// Cardinal directions used by 4-neighbour relaxation
var cardinalDirs = [4]int8{DirN, DirE, DirS, DirW}

// Properties describes the chunk layout of a graph
type Properties struct {
	Width, Height           int        // Chunk count per axis
	ChunkWidth, ChunkHeight int        // Nodes per chunk per axis
	NodeSize                float32    // World units per node edge
	Origin                  mgl32.Vec2 // World position of the grid's min corner
	MaxSlope                float32    // Degrees; 0 disables slope checks
}

// Validate checks dimensions are usable
func (p Properties) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return errors.Wrapf(ErrInvalidProperties, "chunk count %dx%d", p.Width, p.Height)
	}
	if p.ChunkWidth <= 0 || p.ChunkHeight <= 0 {
		return errors.Wrapf(ErrInvalidProperties, "chunk size %dx%d", p.ChunkWidth, p.ChunkHeight)
	}
	if p.NodeSize <= 0 {
		return errors.Wrapf(ErrInvalidProperties, "node size %v", p.NodeSize)
	}
	return nil
}

// ChunkCount returns Width*Height
func (p Properties) ChunkCount() int { return p.Width * p.Height }

// NodesPerChunk returns ChunkWidth*ChunkHeight
func (p Properties) NodesPerChunk() int { return p.ChunkWidth * p.ChunkHeight }

// GridWidth returns the global node count along x
func (p Properties) GridWidth() int { return p.Width * p.ChunkWidth }

// GridHeight returns the global node count along y
func (p Properties) GridHeight() int { return p.Height * p.ChunkHeight }

// AgentConfig describes the agent class the graph is built for
type AgentConfig struct {
	Radius   float32 // Obstacles are inflated by this amount on every side
	MaxSlope float32 // Degrees; overrides Properties.MaxSlope when non-zero
}

// HeightSampler supplies terrain height at a world position
type HeightSampler interface {
	SampleHeight(pos mgl32.Vec2) float32
}

// HeightFunc adapts a function to HeightSampler
type HeightFunc func(pos mgl32.Vec2) float32

// SampleHeight implements HeightSampler
func (f HeightFunc) SampleHeight(pos mgl32.Vec2) float32 { return f(pos) }

// Chunk is one rectangular block of nodes and the portals on its boundary
type Chunk struct {
	Index   ChunkIndex
	X, Y    int
	Portals []Portal

	// Changed is set when a neighbour's rebuild cut this chunk's remote links
	// Cleared by AddConnections once links are re-established
	Changed bool

	// Version increments on every node rebuild
	Version uint32

	nodes []Node // View into Graph.nodes
}

// Nodes returns the chunk's node slice, row-major
func (c *Chunk) Nodes() []Node { return c.nodes }

// Graph owns the node arena, chunk table and portal graph
// Chunk-local passes may run concurrently on distinct chunks; merges must be serialized by the caller
type Graph struct {
	Props Properties
	Agent AgentConfig

	chunks  []Chunk
	nodes   []Node // Arena: chunk-major, NodesPerChunk per chunk
	heights HeightSampler

	nextArea  atomic.Int32
	maxPasses int
}

// NewGraph allocates the node arena and chunk table
// Nodes start at CostDefault; call Update with a full mask to stamp and build portals
func NewGraph(props Properties, heights HeightSampler, agent AgentConfig) (*Graph, error) {
	if err := props.Validate(); err != nil {
		return nil, err
	}

	perChunk := props.NodesPerChunk()
	g := &Graph{
		Props:   props,
		Agent:   agent,
		chunks:  make([]Chunk, props.ChunkCount()),
		nodes:   make([]Node, props.ChunkCount()*perChunk),
		heights: heights,

		maxPasses: parameter.NavMaxUpdatePasses,
	}

	for i := range g.chunks {
		c := &g.chunks[i]
		c.Index = ChunkIndex(i)
		c.X = i % props.Width
		c.Y = i / props.Width
		c.nodes = g.nodes[i*perChunk : (i+1)*perChunk : (i+1)*perChunk]
		for n := range c.nodes {
			c.nodes[n].Cost = CostDefault
		}
	}

	return g, nil
}

// ChunkCount returns the number of chunks
func (g *Graph) ChunkCount() int { return len(g.chunks) }

// Chunk returns the chunk at ci; ci must be valid
func (g *Graph) Chunk(ci ChunkIndex) *Chunk { return &g.chunks[ci] }

// ValidChunk reports whether ci addresses a chunk
func (g *Graph) ValidChunk(ci ChunkIndex) bool {
	return ci >= 0 && int(ci) < len(g.chunks)
}

// ChunkAt returns the chunk index for chunk coordinates
func (g *Graph) ChunkAt(cx, cy int) (ChunkIndex, bool) {
	if cx < 0 || cy < 0 || cx >= g.Props.Width || cy >= g.Props.Height {
		return 0, false
	}
	return ChunkIndex(cy*g.Props.Width + cx), true
}

// Node returns the node at (ci, ni); both must be valid
func (g *Graph) Node(ci ChunkIndex, ni NodeIndex) *Node {
	return &g.chunks[ci].nodes[ni]
}

// --- Coordinate transforms ---

// GlobalCoords maps a world position to global node coordinates
// With clamp, out-of-range positions snap to the nearest edge node
func (g *Graph) GlobalCoords(pos mgl32.Vec2, clamp bool) (int, int, bool) {
	gx := vmath.FloorDiv(pos.X()-g.Props.Origin.X(), g.Props.NodeSize)
	gy := vmath.FloorDiv(pos.Y()-g.Props.Origin.Y(), g.Props.NodeSize)
	w, h := g.Props.GridWidth(), g.Props.GridHeight()

	if gx < 0 || gy < 0 || gx >= w || gy >= h {
		if !clamp {
			return 0, 0, false
		}
		gx = vmath.Clamp(gx, 0, w-1)
		gy = vmath.Clamp(gy, 0, h-1)
	}
	return gx, gy, true
}

// GetChunkIndex maps a world position to its chunk
func (g *Graph) GetChunkIndex(pos mgl32.Vec2, clamp bool) (ChunkIndex, bool) {
	gx, gy, ok := g.GlobalCoords(pos, clamp)
	if !ok {
		return 0, false
	}
	ci, _ := g.FromGlobal(gx, gy)
	return ci, true
}

// GetNodeIndex maps a world position to a node inside chunk ci
// With clamp, positions outside the chunk snap to its nearest node
func (g *Graph) GetNodeIndex(ci ChunkIndex, pos mgl32.Vec2, clamp bool) (NodeIndex, bool) {
	if !g.ValidChunk(ci) {
		return 0, false
	}
	c := &g.chunks[ci]
	lx := vmath.FloorDiv(pos.X()-g.Props.Origin.X(), g.Props.NodeSize) - c.X*g.Props.ChunkWidth
	ly := vmath.FloorDiv(pos.Y()-g.Props.Origin.Y(), g.Props.NodeSize) - c.Y*g.Props.ChunkHeight

	if lx < 0 || ly < 0 || lx >= g.Props.ChunkWidth || ly >= g.Props.ChunkHeight {
		if !clamp {
			return 0, false
		}
		lx = vmath.Clamp(lx, 0, g.Props.ChunkWidth-1)
		ly = vmath.Clamp(ly, 0, g.Props.ChunkHeight-1)
	}
	return NodeIndex(ly*g.Props.ChunkWidth + lx), true
}

// FromGlobal splits global node coordinates into (chunk, node); coordinates must be in range
func (g *Graph) FromGlobal(gx, gy int) (ChunkIndex, NodeIndex) {
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	cx, cy := gx/cw, gy/ch
	return ChunkIndex(cy*g.Props.Width + cx), NodeIndex((gy-cy*ch)*cw + (gx - cx*cw))
}

// ToGlobal joins (chunk, node) into global node coordinates
func (g *Graph) ToGlobal(ci ChunkIndex, ni NodeIndex) (int, int) {
	c := &g.chunks[ci]
	cw := g.Props.ChunkWidth
	return c.X*cw + int(ni)%cw, c.Y*g.Props.ChunkHeight + int(ni)/cw
}

// InGrid reports whether global node coordinates are inside the map
func (g *Graph) InGrid(gx, gy int) bool {
	return gx >= 0 && gy >= 0 && gx < g.Props.GridWidth() && gy < g.Props.GridHeight()
}

// NodeAt returns the node at global coordinates
func (g *Graph) NodeAt(gx, gy int) (*Node, bool) {
	if !g.InGrid(gx, gy) {
		return nil, false
	}
	ci, ni := g.FromGlobal(gx, gy)
	return &g.chunks[ci].nodes[ni], true
}

// GlobalCenter returns the world-space center of a global node
func (g *Graph) GlobalCenter(gx, gy int) mgl32.Vec2 {
	ns := g.Props.NodeSize
	return mgl32.Vec2{
		g.Props.Origin.X() + (float32(gx)+0.5)*ns,
		g.Props.Origin.Y() + (float32(gy)+0.5)*ns,
	}
}

// NodePosition returns the world-space center of (ci, ni)
func (g *Graph) NodePosition(ci ChunkIndex, ni NodeIndex) mgl32.Vec2 {
	return g.GlobalCenter(g.ToGlobal(ci, ni))
}

// ChunkBounds returns the world-space AABB of a chunk
func (g *Graph) ChunkBounds(ci ChunkIndex) (mgl32.Vec2, mgl32.Vec2) {
	c := &g.chunks[ci]
	ns := g.Props.NodeSize
	w := float32(g.Props.ChunkWidth) * ns
	h := float32(g.Props.ChunkHeight) * ns
	lo := g.Props.Origin.Add(mgl32.Vec2{float32(c.X) * w, float32(c.Y) * h})
	return lo, lo.Add(mgl32.Vec2{w, h})
}

// MapBounds returns the world-space AABB of the whole grid
func (g *Graph) MapBounds() (mgl32.Vec2, mgl32.Vec2) {
	ns := g.Props.NodeSize
	size := mgl32.Vec2{float32(g.Props.GridWidth()) * ns, float32(g.Props.GridHeight()) * ns}
	return g.Props.Origin, g.Props.Origin.Add(size)
}

// ClampToMap clamps a world position into the map, keeping it inside the outermost nodes
func (g *Graph) ClampToMap(pos mgl32.Vec2) mgl32.Vec2 {
	lo, hi := g.MapBounds()
	eps := g.Props.NodeSize * 1e-3
	return mgl32.Vec2{
		vmath.Clamp(pos.X(), lo.X(), hi.X()-eps),
		vmath.Clamp(pos.Y(), lo.Y(), hi.Y()-eps),
	}
}

// --- Neighbours ---

// Neighbour steps one node in dir, hopping across chunk boundaries
// Returns false outside the map
func (g *Graph) Neighbour(ci ChunkIndex, ni NodeIndex, dir int8) (ChunkIndex, NodeIndex, bool) {
	gx, gy := g.ToGlobal(ci, ni)
	gx += DirVectors[dir][0]
	gy += DirVectors[dir][1]
	if !g.InGrid(gx, gy) {
		return 0, 0, false
	}
	nci, nni := g.FromGlobal(gx, gy)
	return nci, nni, true
}

// Neighbours4 appends the in-map cardinal neighbours of (ci, ni)
func (g *Graph) Neighbours4(ci ChunkIndex, ni NodeIndex, dst [][2]int32) [][2]int32 {
	for _, d := range cardinalDirs {
		if nci, nni, ok := g.Neighbour(ci, ni, d); ok {
			dst = append(dst, [2]int32{int32(nci), int32(nni)})
		}
	}
	return dst
}

// Neighbours8 appends the in-map 8-neighbours of (ci, ni)
func (g *Graph) Neighbours8(ci ChunkIndex, ni NodeIndex, dst [][2]int32) [][2]int32 {
	for d := int8(0); d < DirCount; d++ {
		if nci, nni, ok := g.Neighbour(ci, ni, d); ok {
			dst = append(dst, [2]int32{int32(nci), int32(nni)})
		}
	}
	return dst
}

// walkableAt treats out-of-map cells as blocked
func (g *Graph) walkableAt(gx, gy int) bool {
	n, ok := g.NodeAt(gx, gy)
	return ok && n.Walkable()
}

// slopeAngle converts a height delta between adjacent nodes into degrees (45° per node-size rise)
func (g *Graph) slopeAngle(dh float32) float32 {
	return float32(math.Abs(float64(dh))) / g.Props.NodeSize * 45
}

// maxSlope resolves the effective slope limit
func (g *Graph) maxSlope() float32 {
	if g.Agent.MaxSlope > 0 {
		return g.Agent.MaxSlope
	}
	return g.Props.MaxSlope
}
