package navigation

import (
	"github.com/go-gl/mathgl/mgl32"
)

// TargetKind selects the target region shape
type TargetKind uint8

const (
	TargetPoint TargetKind = iota
	TargetRect
	TargetRadius
)

func (k TargetKind) String() string {
	switch k {
	case TargetRect:
		return "rect"
	case TargetRadius:
		return "radius"
	default:
		return "point"
	}
}

// Target describes where a path leads
// Position is the anchor used for routing, LOS and distance bias; for regions it is the snapped center
type Target struct {
	Kind     TargetKind
	Position mgl32.Vec2
	Min, Max mgl32.Vec2 // TargetRect
	Radius   float32    // TargetRadius
}

// PointTarget targets the node containing pos
func PointTarget(pos mgl32.Vec2) Target {
	return Target{Kind: TargetPoint, Position: pos}
}

// RectTarget targets every node whose center lies in [min, max]
func RectTarget(min, max mgl32.Vec2) Target {
	return Target{Kind: TargetRect, Position: min.Add(max).Mul(0.5), Min: min, Max: max}
}

// RadiusTarget targets every node whose center lies within r of center
func RadiusTarget(center mgl32.Vec2, r float32) Target {
	return Target{Kind: TargetRadius, Position: center, Radius: r}
}

// Contains reports whether a node center lies inside the region
// Point targets contain nothing; their single cell is seeded directly
func (t Target) Contains(p mgl32.Vec2) bool {
	switch t.Kind {
	case TargetRect:
		return p.X() >= t.Min.X() && p.X() <= t.Max.X() && p.Y() >= t.Min.Y() && p.Y() <= t.Max.Y()
	case TargetRadius:
		return p.Sub(t.Position).LenSqr() <= t.Radius*t.Radius
	}
	return false
}

// Bounds returns the region AABB
func (t Target) Bounds() (mgl32.Vec2, mgl32.Vec2) {
	switch t.Kind {
	case TargetRect:
		return t.Min, t.Max
	case TargetRadius:
		r := mgl32.Vec2{t.Radius, t.Radius}
		return t.Position.Sub(r), t.Position.Add(r)
	}
	return t.Position, t.Position
}

// Overlaps reports whether the region AABB touches chunk ci
func (t Target) Overlaps(g *Graph, ci ChunkIndex) bool {
	lo, hi := t.Bounds()
	clo, chi := g.ChunkBounds(ci)
	return hi.X() >= clo.X() && lo.X() < chi.X() && hi.Y() >= clo.Y() && lo.Y() < chi.Y()
}

// SnapTarget clamps t into the map and moves its anchor to the center of the nearest node f accepts
// Region extents are clamped; the region itself is not moved
func (g *Graph) SnapTarget(t Target, f Filter) Target {
	switch t.Kind {
	case TargetRect:
		t.Min = g.ClampToMap(t.Min)
		t.Max = g.ClampToMap(t.Max)
		t.Position = t.Min.Add(t.Max).Mul(0.5)
	case TargetRadius:
		if t.Radius < 0 {
			t.Radius = 0
		}
	}
	t.Position = g.SnapPosition(t.Position, f)
	return t
}

// SnapPosition returns the center of the node nearest pos that passes f
// Rings of growing Chebyshev radius are searched; the clamped position is returned if nothing passes
func (g *Graph) SnapPosition(pos mgl32.Vec2, f Filter) mgl32.Vec2 {
	pos = g.ClampToMap(pos)
	gx, gy, _ := g.GlobalCoords(pos, true)
	if n, ok := g.NodeAt(gx, gy); ok && f.IsValid(n) {
		return g.GlobalCenter(gx, gy)
	}

	maxR := max(g.Props.GridWidth(), g.Props.GridHeight())
	for r := 1; r <= maxR; r++ {
		found := false
		var best mgl32.Vec2
		bestD := float32(0)
		forRing(gx, gy, r, func(x, y int) {
			n, ok := g.NodeAt(x, y)
			if !ok || !f.IsValid(n) {
				return
			}
			c := g.GlobalCenter(x, y)
			d := c.Sub(pos).LenSqr()
			if !found || d < bestD {
				found, best, bestD = true, c, d
			}
		})
		if found {
			return best
		}
	}
	return pos
}

// forRing visits the cells at Chebyshev distance exactly r from (cx, cy)
func forRing(cx, cy, r int, fn func(x, y int)) {
	if r == 0 {
		fn(cx, cy)
		return
	}
	for x := cx - r; x <= cx+r; x++ {
		fn(x, cy-r)
		fn(x, cy+r)
	}
	for y := cy - r + 1; y <= cy+r-1; y++ {
		fn(cx-r, y)
		fn(cx+r, y)
	}
}
