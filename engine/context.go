// Package engine owns a navigation graph and the paths solved on it
// All graph mutation goes through GraphContext; obstacle updates are writers, path updates are readers
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/lixenwraith/chunknav/navigation"
	"github.com/lixenwraith/chunknav/status"
)

var (
	// ErrDisposed is returned by every operation after Close
	ErrDisposed = errors.New("engine: graph context disposed")
	// ErrUnknownPath is returned for handles that were never issued or already disposed
	ErrUnknownPath = errors.New("engine: unknown path handle")
	// ErrUpdateDiverged aliases the navigation pass-cap failure
	ErrUpdateDiverged = navigation.ErrUpdateDiverged
)

// PathHandle identifies a path owned by a GraphContext; zero is never issued
type PathHandle uint32

type pathEntry struct {
	path     *navigation.Path
	solveMu  sync.Mutex // One repath at a time per path
	released bool       // Guarded by solveMu; set once the buffers are returned
}

// GraphContext is the handle returned by BuildGraph
type GraphContext struct {
	// ===== Immutable After Init =====
	graph  *navigation.Graph
	cache  *navigation.ChunkCache
	solver *navigation.Solver
	sched  *Scheduler
	alloc  navigation.Allocator
	log    *slog.Logger
	status *status.Registry

	// ===== Graph Lock =====
	// Obstacle updates hold it exclusively; path solves and queries share it
	mu        sync.RWMutex
	obstacles navigation.ObstacleSource

	// ===== Path Table =====
	pathsMu    sync.RWMutex
	paths      map[PathHandle]*pathEntry
	nextHandle atomic.Uint32

	// ===== Lifecycle =====
	// pendingMu orders pending.Add against Close setting disposed
	pendingMu sync.Mutex
	disposed  atomic.Bool
	pending   sync.WaitGroup

	// Cached metric pointers
	statPortals       *atomic.Int64
	statRebuilt       *atomic.Int64
	statCacheHits     *atomic.Int64
	statCacheMisses   *atomic.Int64
	statCacheEntries  *atomic.Int64
	statRouteFailures *atomic.Int64
	statRepaths       *atomic.Int64
	statChunksSolved  *atomic.Int64
	statPaths         *atomic.Int64
	statUpdateMs      *status.AtomicFloat
	statRepathMs      *status.AtomicFloat
	statLastError     *status.AtomicString
	statRouteState    *status.AtomicString
}

// BuildGraph allocates the graph and builds every chunk, portal and connection
func BuildGraph(ctx context.Context, props navigation.Properties, heights navigation.HeightSampler, agent navigation.AgentConfig, opts ...Option) (*GraphContext, error) {
	o := buildOptions(opts)

	g, err := navigation.NewGraph(props, heights, agent)
	if err != nil {
		return nil, errors.Wrap(err, "build graph")
	}

	var cache *navigation.ChunkCache
	if !o.noCache {
		cache = navigation.NewChunkCache(o.alloc)
	}

	gc := &GraphContext{
		graph:     g,
		cache:     cache,
		solver:    navigation.NewSolver(g, cache, o.alloc, o.router),
		sched:     NewScheduler(o.workers, o.log),
		alloc:     o.alloc,
		log:       o.log,
		status:    o.status,
		obstacles: o.obstacles,
		paths:     make(map[PathHandle]*pathEntry),

		statPortals:       o.status.Ints.Get(status.KeyPortals),
		statRebuilt:       o.status.Ints.Get(status.KeyChunksRebuilt),
		statCacheHits:     o.status.Ints.Get(status.KeyCacheHits),
		statCacheMisses:   o.status.Ints.Get(status.KeyCacheMisses),
		statCacheEntries:  o.status.Ints.Get(status.KeyCacheEntries),
		statRouteFailures: o.status.Ints.Get(status.KeyRouteFailures),
		statRepaths:       o.status.Ints.Get(status.KeyRepaths),
		statChunksSolved:  o.status.Ints.Get(status.KeyChunksSolved),
		statPaths:         o.status.Ints.Get(status.KeyPaths),
		statUpdateMs:      o.status.Floats.Get(status.KeyLastUpdateMs),
		statRepathMs:      o.status.Floats.Get(status.KeyLastRepathMs),
		statLastError:     o.status.Strings.Get(status.KeyLastError),
		statRouteState:    o.status.Strings.Get(status.KeyLastRouteState),
	}

	start := time.Now()
	if err := gc.applyUpdate(ctx, navigation.FullMask(g.ChunkCount())); err != nil {
		return nil, errors.Wrap(err, "initial build")
	}
	gc.log.Info("graph built",
		slog.Int("chunks", g.ChunkCount()),
		slog.Int("portals", g.PortalCount()),
		slog.Int("workers", gc.sched.Workers()),
		slog.Duration("elapsed", time.Since(start)))
	return gc, nil
}

// Graph exposes the underlying graph for read-only inspection
// Callers must not read it while an obstacle update is in flight
func (gc *GraphContext) Graph() *navigation.Graph { return gc.graph }

// Status returns the telemetry registry
func (gc *GraphContext) Status() *status.Registry { return gc.status }

// Cache returns the solved-chunk cache, nil when disabled
func (gc *GraphContext) Cache() *navigation.ChunkCache { return gc.cache }

// SetObstacles replaces the obstacle source used by subsequent updates
func (gc *GraphContext) SetObstacles(src navigation.ObstacleSource) {
	if src == nil {
		src = navigation.ObstacleList(nil)
	}
	gc.mu.Lock()
	gc.obstacles = src
	gc.mu.Unlock()
}

// DirtyMask returns the chunks touched by any of obs
func (gc *GraphContext) DirtyMask(obs ...navigation.Obstacle) navigation.ChunkMask {
	return gc.graph.ChunksTouching(obs)
}

// --- Obstacle updates ---

// UpdateObstacles restamps the chunks in mask and repairs the portal graph around them
// Cache entries for the chunks and their neighbours are dropped and every path whose
// field covers one of them is scheduled for repath
func (gc *GraphContext) UpdateObstacles(ctx context.Context, mask navigation.ChunkMask) *Completion {
	if gc.disposed.Load() {
		return completed(ErrDisposed)
	}
	mask = gc.clampMask(mask)
	if mask.Len() == 0 {
		return completed(nil)
	}

	if !gc.begin() {
		return completed(ErrDisposed)
	}
	c := newCompletion()
	go func() {
		defer gc.pending.Done()
		c.resolve(gc.applyUpdate(ctx, mask))
	}()
	return c
}

// begin registers an in-flight operation; false once Close has started
func (gc *GraphContext) begin() bool {
	gc.pendingMu.Lock()
	defer gc.pendingMu.Unlock()
	if gc.disposed.Load() {
		return false
	}
	gc.pending.Add(1)
	return true
}

func (gc *GraphContext) applyUpdate(ctx context.Context, mask navigation.ChunkMask) error {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	stats, err := gc.graph.Update(mask, gc.obstacles, gc.sched.Runner(ctx))
	elapsed := time.Since(start)
	gc.statUpdateMs.Set(float64(elapsed.Microseconds()) / 1000)
	gc.statRebuilt.Add(int64(stats.Rebuilt))
	gc.statPortals.Store(int64(gc.graph.PortalCount()))

	// Neighbouring fields point across the shared boundary
	affected := gc.expand(mask)
	dropped := 0
	if gc.cache != nil {
		affected.ForEach(func(ci navigation.ChunkIndex) {
			dropped += gc.cache.InvalidateChunk(ci)
		})
		gc.statCacheEntries.Store(int64(gc.cache.Len()))
	}
	marked := gc.markPaths(affected)

	if err != nil {
		gc.statLastError.Store(err.Error())
		gc.log.Error("obstacle update aborted",
			slog.Int("chunks", mask.Len()),
			slog.Int("passes", stats.Passes),
			slog.Any("error", err))
		return errors.Wrap(err, "update obstacles")
	}

	gc.log.Info("obstacles updated",
		slog.Int("chunks", stats.Rebuilt),
		slog.Int("reconnected", stats.Reconnected),
		slog.Int("passes", stats.Passes),
		slog.Int("portals", stats.Portals),
		slog.Int("cache_dropped", dropped),
		slog.Int("paths_marked", marked),
		slog.Duration("elapsed", elapsed))
	return nil
}

// clampMask copies the in-range chunks of mask into a mask sized for the graph
func (gc *GraphContext) clampMask(mask navigation.ChunkMask) navigation.ChunkMask {
	out := navigation.NewChunkMask(gc.graph.ChunkCount())
	mask.ForEach(func(ci navigation.ChunkIndex) {
		if gc.graph.ValidChunk(ci) {
			out.Set(ci)
		}
	})
	return out
}

// expand adds the 4-neighbours of every chunk in mask
func (gc *GraphContext) expand(mask navigation.ChunkMask) navigation.ChunkMask {
	out := mask.Clone()
	mask.ForEach(func(ci navigation.ChunkIndex) {
		for s := navigation.Side(0); s < navigation.SideCount; s++ {
			if adj, ok := gc.graph.AdjacentChunk(ci, s); ok {
				out.Set(adj)
			}
		}
	})
	return out
}

// markPaths flags every path whose active chunks intersect mask
func (gc *GraphContext) markPaths(mask navigation.ChunkMask) int {
	gc.pathsMu.RLock()
	defer gc.pathsMu.RUnlock()
	n := 0
	for _, e := range gc.paths {
		if active, ok := e.path.ActiveChunks(); ok && active.Intersects(mask) {
			e.path.MarkRepath()
			n++
		}
	}
	return n
}

// --- Paths ---

// MakePath registers a path toward target; it solves on its first UpdatePath
func (gc *GraphContext) MakePath(target navigation.Target, filter navigation.Filter) (PathHandle, error) {
	if gc.disposed.Load() {
		return 0, ErrDisposed
	}

	gc.mu.RLock()
	target = gc.graph.SnapTarget(target, filter)
	gc.mu.RUnlock()

	h := PathHandle(gc.nextHandle.Add(1))
	gc.pathsMu.Lock()
	gc.paths[h] = &pathEntry{path: navigation.NewPath(target, filter)}
	gc.statPaths.Store(int64(len(gc.paths)))
	gc.pathsMu.Unlock()
	return h, nil
}

// release returns the path buffers once; queued solves see released and skip
func (e *pathEntry) release(alloc navigation.Allocator) {
	e.solveMu.Lock()
	defer e.solveMu.Unlock()
	if e.released {
		return
	}
	e.released = true
	e.path.Release(alloc)
}

func (gc *GraphContext) lookup(h PathHandle) (*pathEntry, error) {
	if gc.disposed.Load() {
		return nil, ErrDisposed
	}
	gc.pathsMu.RLock()
	e, ok := gc.paths[h]
	gc.pathsMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPath, "handle %d", h)
	}
	return e, nil
}

// Path returns the underlying path for direct queries
func (gc *GraphContext) Path(h PathHandle) (*navigation.Path, error) {
	e, err := gc.lookup(h)
	if err != nil {
		return nil, err
	}
	return e.path, nil
}

// SetTarget moves the path target to pos, snapped to the nearest node passing filter
func (gc *GraphContext) SetTarget(h PathHandle, pos mgl32.Vec2, filter navigation.Filter) error {
	return gc.SetTargetRegion(h, navigation.PointTarget(pos), filter)
}

// SetTargetRegion replaces the path target with any target shape
func (gc *GraphContext) SetTargetRegion(h PathHandle, t navigation.Target, filter navigation.Filter) error {
	e, err := gc.lookup(h)
	if err != nil {
		return err
	}
	gc.mu.RLock()
	e.path.SetTarget(gc.graph, t, filter)
	gc.mu.RUnlock()
	return nil
}

// SetFrom replaces the path's source positions
func (gc *GraphContext) SetFrom(h PathHandle, from ...mgl32.Vec2) error {
	e, err := gc.lookup(h)
	if err != nil {
		return err
	}
	e.path.SetFrom(from...)
	return nil
}

// AddFrom appends a source position to the path
func (gc *GraphContext) AddFrom(h PathHandle, pos mgl32.Vec2) error {
	e, err := gc.lookup(h)
	if err != nil {
		return err
	}
	e.path.AddFrom(pos)
	return nil
}

// UpdatePath repaths h when it is pending or its field covers a chunk in dirty
// A failed repath leaves the previous field in place and is reported through PathState
func (gc *GraphContext) UpdatePath(ctx context.Context, h PathHandle, dirty navigation.ChunkMask) *Completion {
	e, err := gc.lookup(h)
	if err != nil {
		return completed(err)
	}
	if dirty.Size() > 0 {
		if active, ok := e.path.ActiveChunks(); ok && active.Intersects(dirty) {
			e.path.MarkRepath()
		}
	}

	if !gc.begin() {
		return completed(ErrDisposed)
	}
	c := newCompletion()
	go func() {
		defer gc.pending.Done()
		c.resolve(gc.solve(ctx, h, e))
	}()
	return c
}

func (gc *GraphContext) solve(ctx context.Context, h PathHandle, e *pathEntry) error {
	e.solveMu.Lock()
	defer e.solveMu.Unlock()
	if e.released {
		return errors.Wrapf(ErrUnknownPath, "handle %d disposed", h)
	}
	gc.mu.RLock()
	defer gc.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	stats, ran := gc.solver.Update(e.path)
	if !ran {
		return nil
	}
	elapsed := time.Since(start)

	state := e.path.State()
	gc.statRepaths.Add(1)
	gc.statRepathMs.Set(float64(elapsed.Microseconds()) / 1000)
	gc.statChunksSolved.Add(int64(stats.ChunksSolved))
	gc.statRouteFailures.Add(int64(stats.Failed))
	gc.statRouteState.Store(state.String())
	if gc.cache != nil {
		hits, misses := gc.cache.Stats()
		gc.statCacheHits.Store(hits)
		gc.statCacheMisses.Store(misses)
		gc.statCacheEntries.Store(int64(gc.cache.Len()))
	}

	if state == navigation.PathFailed {
		gc.log.Warn("repath failed",
			slog.Uint64("path", uint64(h)),
			slog.Int("sources", stats.Sources),
			slog.Int("failed", stats.Failed))
		return nil
	}
	gc.log.Debug("repath",
		slog.Uint64("path", uint64(h)),
		slog.Int("sources", stats.Sources),
		slog.Int("routed", stats.Routed),
		slog.Int("chunks_solved", stats.ChunksSolved),
		slog.Int("cache_hits", stats.CacheHits),
		slog.Int("revisits", stats.Revisits),
		slog.Duration("elapsed", elapsed))
	return nil
}

// GetDirection returns the steering vector at pos and whether pos is on the target
func (gc *GraphContext) GetDirection(h PathHandle, pos mgl32.Vec2) (mgl32.Vec2, bool, error) {
	e, err := gc.lookup(h)
	if err != nil {
		return mgl32.Vec2{}, false, err
	}
	dir, arrived := e.path.GetDirection(gc.graph, pos)
	return dir, arrived, nil
}

// LineOfSight reports whether the field marks pos as having direct sight of the target
func (gc *GraphContext) LineOfSight(h PathHandle, pos mgl32.Vec2) (bool, error) {
	e, err := gc.lookup(h)
	if err != nil {
		return false, err
	}
	return e.path.LineOfSight(gc.graph, pos), nil
}

// Raycast tests node walkability along the segment from -> to
func (gc *GraphContext) Raycast(from, to mgl32.Vec2, filter navigation.Filter) bool {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.graph.Raycast(from, to, filter)
}

// PathState returns the outcome of the last repath of h
func (gc *GraphContext) PathState(h PathHandle) (navigation.PathState, error) {
	e, err := gc.lookup(h)
	if err != nil {
		return navigation.PathNotCalculated, err
	}
	return e.path.State(), nil
}

// DisposePath unregisters h and returns its field buffers
func (gc *GraphContext) DisposePath(h PathHandle) error {
	if gc.disposed.Load() {
		return ErrDisposed
	}
	gc.pathsMu.Lock()
	e, ok := gc.paths[h]
	delete(gc.paths, h)
	gc.statPaths.Store(int64(len(gc.paths)))
	gc.pathsMu.Unlock()
	if !ok {
		return errors.Wrapf(ErrUnknownPath, "handle %d", h)
	}

	// Wait out an in-flight solve before releasing its buffers
	e.release(gc.alloc)
	return nil
}

// Close waits for in-flight operations and releases every path and cache entry
func (gc *GraphContext) Close() error {
	gc.pendingMu.Lock()
	if !gc.disposed.CompareAndSwap(false, true) {
		gc.pendingMu.Unlock()
		return ErrDisposed
	}
	gc.pendingMu.Unlock()
	gc.pending.Wait()

	gc.pathsMu.Lock()
	for h, e := range gc.paths {
		e.release(gc.alloc)
		delete(gc.paths, h)
	}
	gc.statPaths.Store(0)
	gc.pathsMu.Unlock()

	if gc.cache != nil {
		gc.cache.Clear()
		gc.statCacheEntries.Store(0)
	}
	gc.log.Debug("graph context closed")
	return nil
}
