package navigation

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Node costs. Stamping only raises cost; a chunk rebuild resets it to CostDefault
const (
	CostDefault    uint8 = 1
	CostUnwalkable uint8 = 255
)

// NodeFlag is a caller-defined bitmask carried by nodes and matched by Filter
// Nodes get flags from the obstacles stamped over them; a chunk rebuild clears them
type NodeFlag uint32

// Node is a single grid cell
type Node struct {
	Cost   uint8
	Flags  NodeFlag
	Height float32
	Normal mgl32.Vec3
}

// Walkable reports cost below the unwalkable sentinel
func (n *Node) Walkable() bool {
	return n.Cost < CostUnwalkable
}

// stamp applies max(current, cost) and adds flags
func (n *Node) stamp(cost uint8, flags NodeFlag) {
	if cost > n.Cost {
		n.Cost = cost
	}
	n.Flags |= flags
}

// Filter selects nodes by walkability and flags
type Filter struct {
	IgnoreNonWalkable bool
	Flags             NodeFlag
}

// DefaultFilter accepts any walkable node
var DefaultFilter = Filter{}

// IsValid returns true if the node passes walkability and flag checks
func (f Filter) IsValid(n *Node) bool {
	if !f.IgnoreNonWalkable && !n.Walkable() {
		return false
	}
	return f.Flags == 0 || n.Flags&f.Flags != 0
}
