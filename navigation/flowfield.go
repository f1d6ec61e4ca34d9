package navigation

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/lixenwraith/chunknav/parameter"
)

// SolveStats summarizes one repath
type SolveStats struct {
	Sources      int // Source positions considered
	Routed       int // Sources that needed and found a portal route
	Failed       int // Sources with no route
	ChunksSolved int // Chunks integrated from scratch
	CacheHits    int // Chunks filled from the cache
	Revisits     int // Extra exits seeded into an already active chunk
}

// Solver turns portal routes into per-cell flow fields
// A Solver reads the graph; callers must not run Graph.Update concurrently with Solve
type Solver struct {
	graph *Graph
	cache *ChunkCache
	alloc Allocator
	opts  RouterOptions
}

// NewSolver binds a solver to a graph; cache may be nil
func NewSolver(g *Graph, cache *ChunkCache, alloc Allocator, opts RouterOptions) *Solver {
	if alloc == nil {
		alloc = NewPoolAllocator()
	}
	return &Solver{graph: g, cache: cache, alloc: alloc, opts: opts}
}

// Allocator returns the buffer source used for field chunks
func (s *Solver) Allocator() Allocator { return s.alloc }

// Update repaths p when its repath latch is set, returning false when skipped
// A failed repath keeps the previous field
func (s *Solver) Update(p *Path) (SolveStats, bool) {
	if !p.needToRepath.CompareAndSwap(true, false) {
		return SolveStats{}, false
	}

	target, from := p.snapshot()
	f, state, stats := s.Solve(target, from)
	old := p.swap(f, state)
	if f != nil && old != nil {
		old.release(s.alloc)
	}
	return stats, true
}

// Solve builds a new field for target and sources
// Returns a nil field with PathFailed when every source fails to route
func (s *Solver) Solve(target Target, from []mgl32.Vec2) (*Field, PathState, SolveStats) {
	var stats SolveStats
	g := s.graph
	f := newField(g, target)

	s.solveTarget(f)
	stats.ChunksSolved++

	goal := target.Position
	if f.HasRoot {
		goal = f.RootPosition
	}
	targetPortal, targetOK := g.NearestReachablePortal(goal)

	reached := 0
	for _, src := range from {
		stats.Sources++

		if it, ok := f.Lookup(g, src); ok && it.Reached() {
			reached++
			continue
		}

		start, ok := g.NearestReachablePortal(src)
		if !ok || !targetOK {
			stats.Failed++
			continue
		}
		route := g.SearchPortals(start, targetPortal, s.opts)
		if route.State != PathSuccess {
			stats.Failed++
			continue
		}
		reached++
		stats.Routed++
		f.Routes = append(f.Routes, route)
		s.applyRoute(f, route, &stats)
	}

	if len(from) > 0 && reached == 0 {
		f.release(s.alloc)
		return nil, PathFailed, stats
	}

	for _, fc := range f.Chunks {
		if fc == nil {
			continue
		}
		s.deriveDirections(fc)
		if fc.cacheable && s.cache != nil {
			s.cache.Put(fc.Entry, fc.Exit, fc.Via, fc.Items)
		}
	}

	s.calculateLOS(f)
	return f, PathSuccess, stats
}

// applyRoute activates every chunk group along a target-first portal sequence
// The group holding the route's first portal is the target chunk and is already solved
func (s *Solver) applyRoute(f *Field, route Route, stats *SolveStats) {
	ps := route.Portals
	for i := 0; i < len(ps); {
		ci := ps[i].Chunk
		j := i
		for j+1 < len(ps) && ps[j+1].Chunk == ci {
			j++
		}
		if i > 0 {
			s.activate(f, ci, ps[j], ps[i], ps[i-1], stats)
		}
		i = j + 1
	}
}

// activate solves chunk ci toward exit, or seeds an extra exit into an already active chunk
// via is the portal across the boundary that the route continues through
func (s *Solver) activate(f *Field, ci ChunkIndex, entry, exit, via PortalInfo, stats *SolveStats) {
	g := s.graph
	exitPortal, ok := g.Portal(exit)
	if !ok {
		return
	}
	viaPortal, ok := g.Portal(via)
	if !ok {
		return
	}

	fc := f.Chunks[ci]
	if fc != nil {
		for _, e := range fc.Exits {
			if e == exit {
				return
			}
		}
		fc.Exits = append(fc.Exits, exit)
		fc.cacheable = false
		s.integrate(fc, s.exitSeeds(ci, exitPortal, viaPortal, nil), exitPortal.Position, true)
		stats.Revisits++
		return
	}

	fc = s.newFieldChunk(f, ci)
	fc.Entry, fc.Exit, fc.Via = entry, exit, via
	fc.Exits = append(fc.Exits, exit)

	regional := f.Target.Kind != TargetPoint && f.Target.Overlaps(g, ci)
	if !regional && s.cache != nil && s.cache.Get(entry, exit, via, fc.Items) {
		fc.Cached = true
		stats.CacheHits++
		return
	}

	var seeds []seed
	if regional {
		seeds = s.regionSeeds(f, ci, seeds)
		fc.Target = len(seeds) > 0
	}
	seeds = s.exitSeeds(ci, exitPortal, viaPortal, seeds)
	s.integrate(fc, seeds, exitPortal.Position, false)
	fc.cacheable = !regional
	stats.ChunksSolved++
}

func (s *Solver) newFieldChunk(f *Field, ci ChunkIndex) *FieldChunk {
	items := s.alloc.Items(s.graph.Props.NodesPerChunk())
	for i := range items {
		items[i] = Item{BestCost: UnwalkableCost}
	}
	fc := &FieldChunk{Index: ci, Items: items}
	f.Chunks[ci] = fc
	f.Active.Set(ci)
	return fc
}

type seed struct {
	node NodeIndex
	code uint8
}

// solveTarget activates the target chunk and integrates toward the target cells
// A blocked target cell hands its role to the nearest walkable cell of the chunk
func (s *Solver) solveTarget(f *Field) {
	g := s.graph
	gx, gy, _ := g.GlobalCoords(f.Target.Position, true)
	ci, ni := g.FromGlobal(gx, gy)
	fc := s.newFieldChunk(f, ci)
	fc.Target = true

	seeds := s.regionSeeds(f, ci, nil)

	root, ok := ni, g.chunks[ci].nodes[ni].Walkable()
	if !ok {
		root, ok = s.nearestWalkable(ci, ni)
	}
	if ok {
		f.RootChunk, f.RootNode, f.HasRoot = ci, root, true
		f.RootPosition = g.NodePosition(ci, root)
		seeds = append(seeds, seed{node: root, code: DirectionTargetByte})
	}

	s.integrate(fc, seeds, f.Target.Position, false)
}

// regionSeeds appends walkable cells of chunk ci whose centers lie in the target region
func (s *Solver) regionSeeds(f *Field, ci ChunkIndex, dst []seed) []seed {
	if f.Target.Kind == TargetPoint {
		return dst
	}
	g := s.graph
	c := &g.chunks[ci]
	for ni := range c.nodes {
		if !c.nodes[ni].Walkable() {
			continue
		}
		if f.Target.Contains(g.NodePosition(ci, NodeIndex(ni))) {
			dst = append(dst, seed{node: NodeIndex(ni), code: DirectionTargetByte})
		}
	}
	return dst
}

// exitSeeds appends the cells of an exit portal that face the via portal across the boundary
// Each seed points out of the chunk
func (s *Solver) exitSeeds(ci ChunkIndex, p, via *Portal, dst []seed) []seed {
	cw, ch := s.graph.Props.ChunkWidth, s.graph.Props.ChunkHeight
	code := sideCode(p.Side)
	lo, hi := max(p.Start, via.Start), min(p.End(), via.End())
	for a := lo; a < hi; a++ {
		lx, ly := sideLocal(p.Side, cw, ch, a)
		dst = append(dst, seed{node: NodeIndex(ly*cw + lx), code: code})
	}
	return dst
}

// nearestWalkable runs a 4-neighbour BFS inside chunk ci from start
func (s *Solver) nearestWalkable(ci ChunkIndex, start NodeIndex) (NodeIndex, bool) {
	g := s.graph
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	c := &g.chunks[ci]

	seen := make([]bool, len(c.nodes))
	queue := []NodeIndex{start}
	seen[start] = true
	for len(queue) > 0 {
		ni := queue[0]
		queue = queue[1:]
		if c.nodes[ni].Walkable() {
			return ni, true
		}
		x, y := int(ni)%cw, int(ni)/cw
		for _, d := range cardinalDirs {
			nx, ny := x+DirVectors[d][0], y+DirVectors[d][1]
			if nx < 0 || ny < 0 || nx >= cw || ny >= ch {
				continue
			}
			nn := NodeIndex(ny*cw + nx)
			if !seen[nn] {
				seen[nn] = true
				queue = append(queue, nn)
			}
		}
	}
	return 0, false
}

// integrate runs a multi-source 4-neighbour Dijkstra over the chunk
// step cost = node cost + current cost + distance bias toward goal
// With keep, cells reached before this call are frozen and only unreached cells change
func (s *Solver) integrate(fc *FieldChunk, seeds []seed, goal mgl32.Vec2, keep bool) {
	g := s.graph
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	c := &g.chunks[fc.Index]
	items := fc.Items

	var frozen []bool
	if keep {
		frozen = make([]bool, len(items))
		for i := range items {
			frozen[i] = items[i].Reached()
		}
	}

	var q frontier
	q.init(len(seeds))
	for _, sd := range seeds {
		if (keep && frozen[sd.node]) || !c.nodes[sd.node].Walkable() {
			continue
		}
		items[sd.node].BestCost = 0
		items[sd.node].Direction = sd.code
		q.push(int32(sd.node), 0)
	}

	for q.len() > 0 {
		cur, base := q.pop()
		if base > items[cur].BestCost {
			continue
		}
		x, y := int(cur)%cw, int(cur)/cw
		for _, d := range cardinalDirs {
			nx, ny := x+DirVectors[d][0], y+DirVectors[d][1]
			if nx < 0 || ny < 0 || nx >= cw || ny >= ch {
				continue
			}
			ni := ny*cw + nx
			if (keep && frozen[ni]) || !c.nodes[ni].Walkable() {
				continue
			}
			cost := float32(c.nodes[ni].Cost) + base + s.bias(fc.Index, NodeIndex(ni), goal)
			if cost < items[ni].BestCost {
				items[ni].BestCost = cost
				q.push(int32(ni), cost)
			}
		}
	}
}

// bias is a tie-breaker favouring cells geometrically closer to goal
// Distances are normalised by chunk extent so the bias stays well below one node step
func (s *Solver) bias(ci ChunkIndex, ni NodeIndex, goal mgl32.Vec2) float32 {
	g := s.graph
	d := g.NodePosition(ci, ni).Sub(goal)
	nx := d.X() / (float32(g.Props.ChunkWidth) * g.Props.NodeSize)
	ny := d.Y() / (float32(g.Props.ChunkHeight) * g.Props.NodeSize)
	return parameter.NavBiasWeight * (nx*nx + ny*ny)
}

// deriveDirections points every reached non-seed cell at its cheapest lower 8-neighbour in the chunk
// Diagonals need both flanking cardinal cells walkable; seeds keep their seeded byte
func (s *Solver) deriveDirections(fc *FieldChunk) {
	g := s.graph
	cw, ch := g.Props.ChunkWidth, g.Props.ChunkHeight
	c := &g.chunks[fc.Index]
	items := fc.Items

	open := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < cw && y < ch && c.nodes[y*cw+x].Walkable() && items[y*cw+x].Reached()
	}

	for i := range items {
		it := &items[i]
		it.HasLineOfSight = false
		if !it.Reached() {
			it.Direction = 0
			continue
		}
		if it.BestCost == 0 {
			continue
		}

		x, y := i%cw, i/cw
		best, bestDir := it.BestCost, int8(-1)
		for d := int8(0); d < DirCount; d++ {
			dx, dy := DirVectors[d][0], DirVectors[d][1]
			if !open(x+dx, y+dy) {
				continue
			}
			if dx != 0 && dy != 0 && (!open(x+dx, y) || !open(x, y+dy)) {
				continue
			}
			if cost := items[(y+dy)*cw+x+dx].BestCost; cost < best {
				best, bestDir = cost, d
			}
		}
		if bestDir >= 0 {
			it.Direction = dirCodes[bestDir]
		}
	}
}
