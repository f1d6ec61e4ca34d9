package navigation

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/lixenwraith/chunknav/parameter"
)

// Obstacle is an oriented rectangle that raises node cost
type Obstacle struct {
	Position mgl32.Vec2 // Center, world space
	Rotation float32    // Radians, counter-clockwise
	Size     mgl32.Vec2 // Full extents before rotation
	Cost     uint8      // Stamped with max(current, Cost)
	Flags    NodeFlag   // ORed into every covered node
}

// Bounds returns the world-space AABB of the rotated rectangle
func (o Obstacle) Bounds() (mgl32.Vec2, mgl32.Vec2) {
	half := o.Size.Mul(0.5)
	rot := mgl32.Rotate2D(o.Rotation)
	ex := rot.Mul2x1(mgl32.Vec2{half.X(), 0})
	ey := rot.Mul2x1(mgl32.Vec2{0, half.Y()})
	w := float32(math.Abs(float64(ex.X())) + math.Abs(float64(ey.X())))
	h := float32(math.Abs(float64(ex.Y())) + math.Abs(float64(ey.Y())))
	return o.Position.Sub(mgl32.Vec2{w, h}), o.Position.Add(mgl32.Vec2{w, h})
}

// Contains tests p against the closed rectangle
func (o Obstacle) Contains(p mgl32.Vec2) bool {
	local := mgl32.Rotate2D(-o.Rotation).Mul2x1(p.Sub(o.Position))
	half := o.Size.Mul(0.5)
	const eps = 1e-5
	return float32(math.Abs(float64(local.X()))) <= half.X()+eps &&
		float32(math.Abs(float64(local.Y()))) <= half.Y()+eps
}

// Inflate grows the rectangle by r on every side
func (o Obstacle) Inflate(r float32) Obstacle {
	if r <= 0 {
		return o
	}
	o.Size = o.Size.Add(mgl32.Vec2{2 * r, 2 * r})
	return o
}

// ObstacleSource enumerates obstacles overlapping a world-space AABB
type ObstacleSource interface {
	ObstaclesIn(min, max mgl32.Vec2) []Obstacle
}

// ObstacleList is a slice-backed ObstacleSource
type ObstacleList []Obstacle

// ObstaclesIn implements ObstacleSource with an AABB overlap test
func (l ObstacleList) ObstaclesIn(min, max mgl32.Vec2) []Obstacle {
	var out []Obstacle
	for _, o := range l {
		lo, hi := o.Bounds()
		if hi.X() < min.X() || lo.X() > max.X() || hi.Y() < min.Y() || lo.Y() > max.Y() {
			continue
		}
		out = append(out, o)
	}
	return out
}

// --- Stamping ---

// StampObstacle raises the cost of every node of chunk ci covered by o
// Node centers inside o are stamped, and o is additionally sampled on a half-node grid
// anchored at its own AABB so thin rectangles between centers are not missed
func (g *Graph) StampObstacle(ci ChunkIndex, o Obstacle) {
	c := &g.chunks[ci]
	cmin, cmax := g.ChunkBounds(ci)
	omin, omax := o.Bounds()

	lo := mgl32.Vec2{max(cmin.X(), omin.X()), max(cmin.Y(), omin.Y())}
	hi := mgl32.Vec2{min(cmax.X(), omax.X()), min(cmax.Y(), omax.Y())}
	if lo.X() > hi.X() || lo.Y() > hi.Y() {
		return
	}

	ns := g.Props.NodeSize
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	baseX, baseY := c.X*cw, c.Y*ch

	stampAt := func(p mgl32.Vec2) {
		gx, gy, ok := g.GlobalCoords(p, false)
		if !ok {
			return
		}
		lx, ly := gx-baseX, gy-baseY
		if lx < 0 || ly < 0 || lx >= cw || ly >= ch {
			return
		}
		c.nodes[ly*cw+lx].stamp(o.Cost, o.Flags)
	}

	// Node centers
	gx0, gy0, _ := g.GlobalCoords(lo, true)
	gx1, gy1, _ := g.GlobalCoords(hi, true)
	for gy := gy0; gy <= gy1; gy++ {
		for gx := gx0; gx <= gx1; gx++ {
			center := g.GlobalCenter(gx, gy)
			if o.Contains(center) {
				stampAt(center)
			}
		}
	}

	// Half-node sample lattice, endpoints included; start at the first lattice row inside the chunk
	step := ns * 0.5
	startX := omin.X() + float32(math.Floor(float64((lo.X()-omin.X())/step)))*step
	startY := omin.Y() + float32(math.Floor(float64((lo.Y()-omin.Y())/step)))*step
	// Max edges are treated as open so an edge-aligned rectangle does not bleed into the next node
	endX := omax.X() - ns*1e-4
	endY := omax.Y() - ns*1e-4
	for sy := startY; ; sy += step {
		if sy > endY {
			sy = endY
		}
		if sy >= lo.Y() && sy <= hi.Y() {
			for sx := startX; ; sx += step {
				if sx > endX {
					sx = endX
				}
				if sx >= lo.X() && sx <= hi.X() {
					p := mgl32.Vec2{sx, sy}
					if o.Contains(p) {
						stampAt(p)
					}
				}
				if sx >= endX || sx > hi.X() {
					break
				}
			}
		}
		if sy >= endY || sy > hi.Y() {
			break
		}
	}
}

// RebuildChunk resets chunk ci from scratch: default costs, sampled heights,
// forced map-border blocking, slope blocking, then obstacles from src
// Only chunk ci's nodes are written; neighbour heights are sampled, not read
func (g *Graph) RebuildChunk(ci ChunkIndex, src ObstacleSource) {
	c := &g.chunks[ci]
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	gw, gh := g.Props.GridWidth(), g.Props.GridHeight()

	for ni := range c.nodes {
		n := &c.nodes[ni]
		gx, gy := c.X*cw+ni%cw, c.Y*ch+ni/cw
		n.Cost = CostDefault
		n.Flags = 0
		n.Height = g.sampleHeight(gx, gy)
		n.Normal = g.sampleNormal(gx, gy)
	}

	// Map border
	for ni := range c.nodes {
		gx, gy := c.X*cw+ni%cw, c.Y*ch+ni/cw
		if gx == 0 || gy == 0 || gx == gw-1 || gy == gh-1 {
			c.nodes[ni].Cost = CostUnwalkable
		}
	}

	g.stampSlopes(ci)

	if src != nil {
		lo, hi := g.ChunkBounds(ci)
		pad := mgl32.Vec2{g.Agent.Radius, g.Agent.Radius}
		for _, o := range src.ObstaclesIn(lo.Sub(pad), hi.Add(pad)) {
			g.StampObstacle(ci, o.Inflate(g.Agent.Radius))
		}
	}

	c.Version++
}

// stampSlopes places a tiny blocking obstacle inside each node whose step to a cardinal neighbour is too steep
// Each side of a steep pair is blocked by its own chunk, keeping the pass chunk-local
func (g *Graph) stampSlopes(ci ChunkIndex) {
	limit := g.maxSlope()
	if limit <= 0 || g.heights == nil {
		return
	}

	c := &g.chunks[ci]
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	size := g.Props.NodeSize * parameter.NavSlopeObstacleScale

	for ni := range c.nodes {
		gx, gy := c.X*cw+ni%cw, c.Y*ch+ni/cw
		h := c.nodes[ni].Height
		for _, d := range cardinalDirs {
			nx, ny := gx+DirVectors[d][0], gy+DirVectors[d][1]
			if !g.InGrid(nx, ny) {
				continue
			}
			if g.slopeAngle(g.sampleHeight(nx, ny)-h) <= limit {
				continue
			}
			from := g.GlobalCenter(gx, gy)
			to := g.GlobalCenter(nx, ny)
			g.StampObstacle(ci, Obstacle{
				Position: from.Add(to.Sub(from).Mul(0.25)),
				Size:     mgl32.Vec2{size, size},
				Cost:     CostUnwalkable,
			})
		}
	}
}

func (g *Graph) sampleHeight(gx, gy int) float32 {
	if g.heights == nil {
		return 0
	}
	return g.heights.SampleHeight(g.GlobalCenter(gx, gy))
}

// sampleNormal estimates the surface normal from central height differences
func (g *Graph) sampleNormal(gx, gy int) mgl32.Vec3 {
	if g.heights == nil {
		return mgl32.Vec3{0, 0, 1}
	}
	ns := g.Props.NodeSize
	p := g.GlobalCenter(gx, gy)
	dx := g.heights.SampleHeight(p.Add(mgl32.Vec2{ns * 0.5, 0})) - g.heights.SampleHeight(p.Sub(mgl32.Vec2{ns * 0.5, 0}))
	dy := g.heights.SampleHeight(p.Add(mgl32.Vec2{0, ns * 0.5})) - g.heights.SampleHeight(p.Sub(mgl32.Vec2{0, ns * 0.5}))
	return mgl32.Vec3{-dx / ns, -dy / ns, 1}.Normalize()
}

// ChunksTouching marks every chunk whose nodes an obstacle in obs can stamp
func (g *Graph) ChunksTouching(obs []Obstacle) ChunkMask {
	m := NewChunkMask(len(g.chunks))
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	for _, o := range obs {
		lo, hi := o.Inflate(g.Agent.Radius).Bounds()
		gx0, gy0, _ := g.GlobalCoords(lo, true)
		gx1, gy1, _ := g.GlobalCoords(hi, true)
		for cy := gy0 / ch; cy <= gy1/ch; cy++ {
			for cx := gx0 / cw; cx <= gx1/cw; cx++ {
				if ci, ok := g.ChunkAt(cx, cy); ok {
					m.Set(ci)
				}
			}
		}
	}
	return m
}
