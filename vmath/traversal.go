package vmath

import (
	"math"
)

// GridTraverser implements a zero-allocation iterator for Supercover DDA grid traversal
// Coordinates are in grid units (cell (x,y) spans [x,x+1) × [y,y+1))
type GridTraverser struct {
	currX, currY     int
	targetX, targetY int
	stepX, stepY     int

	tMaxX, tMaxY     float64
	tDeltaX, tDeltaY float64

	started bool
	done    bool
}

// NewGridTraverser creates a new iterator from (x1, y1) to (x2, y2)
func NewGridTraverser(x1, y1, x2, y2 float32) GridTraverser {
	fx1, fy1 := float64(x1), float64(y1)
	fx2, fy2 := float64(x2), float64(y2)

	t := GridTraverser{
		currX: int(math.Floor(fx1)), currY: int(math.Floor(fy1)),
		targetX: int(math.Floor(fx2)), targetY: int(math.Floor(fy2)),
	}

	dx := fx2 - fx1
	dy := fy2 - fy1

	t.stepX, t.stepY = 1, 1
	if dx < 0 {
		t.stepX = -1
		dx = -dx
	}
	if dy < 0 {
		t.stepY = -1
		dy = -dy
	}

	fracX := fx1 - math.Floor(fx1)
	fracY := fy1 - math.Floor(fy1)

	if dx == 0 {
		t.tMaxX = math.Inf(1)
	} else {
		t.tDeltaX = 1 / dx
		if t.stepX > 0 {
			t.tMaxX = (1 - fracX) * t.tDeltaX
		} else {
			t.tMaxX = fracX * t.tDeltaX
		}
	}

	if dy == 0 {
		t.tMaxY = math.Inf(1)
	} else {
		t.tDeltaY = 1 / dy
		if t.stepY > 0 {
			t.tMaxY = (1 - fracY) * t.tDeltaY
		} else {
			t.tMaxY = fracY * t.tDeltaY
		}
	}

	return t
}

// Next advances the traverser to the next cell
// Returns true if a valid cell is available via Pos()
func (t *GridTraverser) Next() bool {
	if t.done {
		return false
	}
	if !t.started {
		t.started = true
		return true
	}

	if t.currX == t.targetX && t.currY == t.targetY {
		t.done = true
		return false
	}

	if t.tMaxX < t.tMaxY {
		if t.currX != t.targetX {
			t.currX += t.stepX
			t.tMaxX += t.tDeltaX
		} else {
			t.currY += t.stepY
			t.tMaxY += t.tDeltaY
		}
	} else if t.tMaxX > t.tMaxY {
		if t.currY != t.targetY {
			t.currY += t.stepY
			t.tMaxY += t.tDeltaY
		} else {
			t.currX += t.stepX
			t.tMaxX += t.tDeltaX
		}
	} else {
		// Exact corner crossing steps both axes
		if t.currX != t.targetX {
			t.currX += t.stepX
			t.tMaxX += t.tDeltaX
		}
		if t.currY != t.targetY {
			t.currY += t.stepY
			t.tMaxY += t.tDeltaY
		}
	}

	return true
}

// Pos returns the current grid coordinates
func (t *GridTraverser) Pos() (int, int) {
	return t.currX, t.currY
}

// Traverse visits every grid cell intersected by the segment, stopping early when callback returns false
// Returns false if the callback aborted the walk
func Traverse(x1, y1, x2, y2 float32, callback func(x, y int) bool) bool {
	t := NewGridTraverser(x1, y1, x2, y2)
	for t.Next() {
		if !callback(t.Pos()) {
			return false
		}
	}
	return true
}
