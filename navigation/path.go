package navigation

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/lixenwraith/chunknav/vmath"
)

// UnwalkableCost marks unreached cells; half of MaxFloat32 so sums cannot overflow
const UnwalkableCost = math.MaxFloat32 * 0.5

// Item is one cell of a flow-field chunk
type Item struct {
	BestCost       float32 // Integration cost toward the chunk's goal
	Direction      uint8   // Heading code or a reserved byte
	HasLineOfSight bool
}

// Reached reports whether the solver assigned a cost
func (it *Item) Reached() bool {
	return it.BestCost < UnwalkableCost
}

// Dir decodes the direction byte
func (it *Item) Dir() Direction {
	return DecodeDirection(it.Direction, it.Reached())
}

// FieldChunk is the flow field of one chunk
type FieldChunk struct {
	Index ChunkIndex
	Items []Item

	Entry, Exit PortalInfo   // First route traversal that activated the chunk
	Via         PortalInfo   // Portal across the boundary from Exit
	Exits       []PortalInfo // Every exit seeded, Exit first
	Target      bool         // Seeded from the target region
	Cached      bool         // Filled from ChunkCache
	cacheable   bool
}

// Field is an immutable solved flow field; replaced whole on each successful repath
type Field struct {
	Chunks []*FieldChunk // Indexed by ChunkIndex; nil when inactive
	Active ChunkMask
	Target Target
	Routes []Route

	RootChunk    ChunkIndex // Effective target cell, origin of LOS propagation
	RootNode     NodeIndex
	RootPosition mgl32.Vec2
	HasRoot      bool
}

func newField(g *Graph, t Target) *Field {
	return &Field{
		Chunks: make([]*FieldChunk, g.ChunkCount()),
		Active: NewChunkMask(g.ChunkCount()),
		Target: t,
	}
}

// Chunk returns the field chunk for ci, or nil if inactive
func (f *Field) Chunk(ci ChunkIndex) *FieldChunk {
	if ci < 0 || int(ci) >= len(f.Chunks) {
		return nil
	}
	return f.Chunks[ci]
}

// ItemAt returns the cell at global node coordinates; false outside the map or in an inactive chunk
func (f *Field) ItemAt(g *Graph, gx, gy int) (*Item, bool) {
	if !g.InGrid(gx, gy) {
		return nil, false
	}
	ci, ni := g.FromGlobal(gx, gy)
	fc := f.Chunks[ci]
	if fc == nil {
		return nil, false
	}
	return &fc.Items[ni], true
}

// Lookup returns the cell containing a world position
func (f *Field) Lookup(g *Graph, pos mgl32.Vec2) (*Item, bool) {
	gx, gy, ok := g.GlobalCoords(pos, true)
	if !ok {
		return nil, false
	}
	return f.ItemAt(g, gx, gy)
}

func (f *Field) release(a Allocator) {
	for _, fc := range f.Chunks {
		if fc != nil {
			a.Release(fc.Items)
			fc.Items = nil
		}
	}
}

// Path is an agent route: a target, source positions and the last good flow field
// Owned by one writer; GetDirection may be called concurrently with Update
type Path struct {
	mu     sync.RWMutex
	target Target
	filter Filter
	from   []mgl32.Vec2
	field  *Field
	state  PathState

	needToRepath atomic.Bool
}

// NewPath creates a path that repaths on its first Update
func NewPath(t Target, f Filter) *Path {
	p := &Path{target: t, filter: f}
	p.needToRepath.Store(true)
	return p
}

// Target returns the current target
func (p *Path) Target() Target {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target
}

// Filter returns the node filter used for target snapping
func (p *Path) Filter() Filter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filter
}

// SetTarget snaps t onto g with f and schedules a repath
func (p *Path) SetTarget(g *Graph, t Target, f Filter) {
	snapped := g.SnapTarget(t, f)
	p.mu.Lock()
	p.target = snapped
	p.filter = f
	p.mu.Unlock()
	p.needToRepath.Store(true)
}

// SetFrom replaces the source positions and schedules a repath
func (p *Path) SetFrom(from ...mgl32.Vec2) {
	p.mu.Lock()
	p.from = append(p.from[:0], from...)
	p.mu.Unlock()
	p.needToRepath.Store(true)
}

// AddFrom appends a source position and schedules a repath
func (p *Path) AddFrom(pos mgl32.Vec2) {
	p.mu.Lock()
	p.from = append(p.from, pos)
	p.mu.Unlock()
	p.needToRepath.Store(true)
}

// From returns a copy of the source positions
func (p *Path) From() []mgl32.Vec2 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]mgl32.Vec2, len(p.from))
	copy(out, p.from)
	return out
}

// MarkRepath schedules a repath on the next Update
func (p *Path) MarkRepath() { p.needToRepath.Store(true) }

// NeedsRepath reports the pending repath latch
func (p *Path) NeedsRepath() bool { return p.needToRepath.Load() }

// State returns the outcome of the last repath
func (p *Path) State() PathState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Field returns the current field; valid until the next successful Update or Release
func (p *Path) Field() *Field {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.field
}

// ActiveChunks returns a copy of the current field's chunk mask, empty if unsolved
func (p *Path) ActiveChunks() (ChunkMask, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.field == nil {
		return ChunkMask{}, false
	}
	return p.field.Active.Clone(), true
}

// GetDirection returns the steering vector at pos and whether pos is on the target
// The zero vector is returned for unsolved paths, inactive chunks and unreached cells
func (p *Path) GetDirection(g *Graph, pos mgl32.Vec2) (mgl32.Vec2, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.field == nil {
		return mgl32.Vec2{}, false
	}
	it, ok := p.field.Lookup(g, pos)
	if !ok {
		return mgl32.Vec2{}, false
	}
	d := it.Dir()
	switch d.Kind {
	case DirectionArrived:
		return mgl32.Vec2{}, true
	case DirectionLineOfSight:
		return vmath.Normalize(p.field.RootPosition.Sub(pos)), false
	case DirectionHeading:
		if it.HasLineOfSight {
			return vmath.Normalize(p.field.RootPosition.Sub(pos)), false
		}
		return d.Vector(), false
	}
	return mgl32.Vec2{}, false
}

// LineOfSight reports the LOS flag of the cell at pos
func (p *Path) LineOfSight(g *Graph, pos mgl32.Vec2) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.field == nil {
		return false
	}
	it, ok := p.field.Lookup(g, pos)
	return ok && it.HasLineOfSight
}

// swap installs a new field and returns the previous one
func (p *Path) swap(f *Field, state PathState) *Field {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.field
	if f != nil {
		p.field = f
	}
	p.state = state
	return old
}

// Release returns the path's field buffers to a
func (p *Path) Release(a Allocator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.field != nil {
		p.field.release(a)
		p.field = nil
	}
	p.state = PathNotCalculated
}

// snapshot copies the inputs of a repath
func (p *Path) snapshot() (Target, []mgl32.Vec2) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	from := make([]mgl32.Vec2, len(p.from))
	copy(from, p.from)
	return p.target, from
}
