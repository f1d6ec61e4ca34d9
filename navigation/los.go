package navigation

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/lixenwraith/chunknav/vmath"
)

// calculateLOS propagates line-of-sight outward from the root cell in rings of growing Chebyshev radius
// A cell qualifies when it is reached, has default cost, all 8 neighbours are walkable,
// and its step cell toward the root is the root or already has LOS inside an active chunk
// Target cells keep their arrival byte
func (s *Solver) calculateLOS(f *Field) {
	if !f.HasRoot {
		return
	}
	g := s.graph
	rx, ry := g.ToGlobal(f.RootChunk, f.RootNode)

	// Ring radius needed to cover every active chunk
	maxR := 0
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	f.Active.ForEach(func(ci ChunkIndex) {
		c := &g.chunks[ci]
		x0, y0 := c.X*cw, c.Y*ch
		x1, y1 := x0+cw-1, y0+ch-1
		maxR = max(maxR, vmath.Abs(rx-x0), vmath.Abs(rx-x1), vmath.Abs(ry-y0), vmath.Abs(ry-y1))
	})

	for r := 1; r <= maxR; r++ {
		forRing(rx, ry, r, func(x, y int) {
			it, ok := f.ItemAt(g, x, y)
			if !ok || !it.Reached() || (it.Direction == DirectionTargetByte && it.BestCost == 0) {
				return
			}
			if n, _ := g.NodeAt(x, y); n.Cost != CostDefault {
				return
			}
			for d := int8(0); d < DirCount; d++ {
				if !g.walkableAt(x+DirVectors[d][0], y+DirVectors[d][1]) {
					return
				}
			}
			sx, sy := losStep(rx-x, ry-y)
			tx, ty := x+sx, y+sy
			if tx != rx || ty != ry {
				step, ok := f.ItemAt(g, tx, ty)
				if !ok || !step.HasLineOfSight {
					return
				}
			}
			it.HasLineOfSight = true
			it.Direction = DirectionLOSByte
		})
	}
}

// losStep picks the neighbour offset toward (dx, dy), dropping the minor axis
// when it is at most half the major axis
func losStep(dx, dy int) (int, int) {
	sx, sy := vmath.Sign(dx), vmath.Sign(dy)
	ax, ay := vmath.Abs(dx), vmath.Abs(dy)
	switch {
	case ax > ay && 2*ay <= ax:
		sy = 0
	case ay > ax && 2*ax <= ay:
		sx = 0
	}
	return sx, sy
}

// Raycast walks every node the segment from..to touches and reports whether all pass filter
// Positions outside the map are clamped first
func (g *Graph) Raycast(from, to mgl32.Vec2, filter Filter) bool {
	from, to = g.ClampToMap(from), g.ClampToMap(to)
	ns := g.Props.NodeSize
	o := g.Props.Origin
	return vmath.Traverse(
		(from.X()-o.X())/ns, (from.Y()-o.Y())/ns,
		(to.X()-o.X())/ns, (to.Y()-o.Y())/ns,
		func(x, y int) bool {
			n, ok := g.NodeAt(x, y)
			return ok && filter.IsValid(n)
		},
	)
}
