package navigation

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/lixenwraith/chunknav/vmath"
)

// Direction byte layout: 0..253 are headings on a circle, two codes are reserved
const (
	DirectionTargetByte uint8 = 255 // Cell is the destination
	DirectionLOSByte    uint8 = 254 // Use the straight vector to the target
	DirectionSteps            = 254 // Heading codes per full turn
)

// DirectionKind discriminates Direction
type DirectionKind uint8

const (
	DirectionNone        DirectionKind = iota // Cell not reached
	DirectionHeading                          // Quantized heading in Code
	DirectionLineOfSight                      // Steer straight at the target
	DirectionArrived                          // Cell is part of the target
)

func (k DirectionKind) String() string {
	switch k {
	case DirectionHeading:
		return "heading"
	case DirectionLineOfSight:
		return "line_of_sight"
	case DirectionArrived:
		return "arrived"
	default:
		return "none"
	}
}

// Direction is the decoded form of a cell's direction byte
type Direction struct {
	Kind DirectionKind
	Code uint8 // Valid for DirectionHeading
}

// DecodeDirection interprets a raw byte; reached is false for cells the solver never touched
func DecodeDirection(b uint8, reached bool) Direction {
	switch {
	case !reached:
		return Direction{Kind: DirectionNone}
	case b == DirectionTargetByte:
		return Direction{Kind: DirectionArrived}
	case b == DirectionLOSByte:
		return Direction{Kind: DirectionLineOfSight}
	}
	return Direction{Kind: DirectionHeading, Code: b}
}

// Vector returns the unit heading; zero for other kinds
func (d Direction) Vector() mgl32.Vec2 {
	if d.Kind != DirectionHeading {
		return mgl32.Vec2{}
	}
	return DecodeHeading(d.Code)
}

// EncodeHeading quantizes a vector's angle onto the 254-step circle
func EncodeHeading(v mgl32.Vec2) uint8 {
	a := vmath.Angle(v)
	code := int(math.Round(float64(a) / (2 * math.Pi) * DirectionSteps))
	return uint8(code % DirectionSteps)
}

// DecodeHeading maps a heading code back to a unit vector
func DecodeHeading(code uint8) mgl32.Vec2 {
	return vmath.FromAngle(float32(code) * 2 * math.Pi / DirectionSteps)
}

// HeadingNeighbour snaps a heading code to the nearest of the 8 grid directions
func HeadingNeighbour(code uint8) int8 {
	v := DecodeHeading(code)
	best, bestDot := int8(0), float32(-2)
	for d := int8(0); d < DirCount; d++ {
		u := vmath.Normalize(mgl32.Vec2{float32(DirVectors[d][0]), float32(DirVectors[d][1])})
		if dot := u.Dot(v); dot > bestDot {
			best, bestDot = d, dot
		}
	}
	return best
}

// Heading codes for DirN..DirNW
var dirCodes = func() [8]uint8 {
	var out [8]uint8
	for d := range out {
		out[d] = EncodeHeading(mgl32.Vec2{float32(DirVectors[d][0]), float32(DirVectors[d][1])})
	}
	return out
}()

// sideCode is the heading pointing out of a chunk across side s
func sideCode(s Side) uint8 {
	dx, dy := s.Offset()
	return EncodeHeading(mgl32.Vec2{float32(dx), float32(dy)})
}
