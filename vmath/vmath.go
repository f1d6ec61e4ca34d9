// Package vmath holds scalar and grid helpers shared by navigation and tooling
package vmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Number covers the scalar types used for grid and world math
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Clamp limits v to [lo, hi]
func Clamp[T Number](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Abs returns |v|
func Abs[T Number](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// Sign returns -1, 0 or 1
func Sign[T Number](v T) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Chebyshev returns max(|dx|, |dy|)
func Chebyshev(dx, dy int) int {
	return max(Abs(dx), Abs(dy))
}

// FloorDiv returns floor(v / size) as int, used for world to grid conversion
func FloorDiv(v, size float32) int {
	return int(math.Floor(float64(v / size)))
}

// Normalize returns the unit vector of v, zero-safe
func Normalize(v mgl32.Vec2) mgl32.Vec2 {
	l := v.Len()
	if l == 0 {
		return mgl32.Vec2{}
	}
	return v.Mul(1 / l)
}

// Angle returns the heading of v in radians in [0, 2π)
func Angle(v mgl32.Vec2) float32 {
	a := math.Atan2(float64(v.Y()), float64(v.X()))
	if a < 0 {
		a += 2 * math.Pi
	}
	return float32(a)
}

// FromAngle returns the unit vector for a heading in radians
func FromAngle(a float32) mgl32.Vec2 {
	s, c := math.Sincos(float64(a))
	return mgl32.Vec2{float32(c), float32(s)}
}
