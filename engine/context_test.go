package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/lixenwraith/chunknav/navigation"
	"github.com/lixenwraith/chunknav/parameter"
	"github.com/lixenwraith/chunknav/status"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestContext builds a w×h grid of 8×8 chunks with unit nodes
func newTestContext(t *testing.T, w, h int, opts ...Option) *GraphContext {
	t.Helper()
	opts = append([]Option{WithLogger(quietLog), WithWorkers(4)}, opts...)
	gc, err := BuildGraph(context.Background(), navigation.Properties{
		Width: w, Height: h,
		ChunkWidth: 8, ChunkHeight: 8,
		NodeSize: 1,
	}, nil, navigation.AgentConfig{}, opts...)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	t.Cleanup(func() { gc.Close() })
	return gc
}

func cell(x, y int) navigation.Obstacle {
	return navigation.Obstacle{
		Position: mgl32.Vec2{float32(x) + 0.5, float32(y) + 0.5},
		Size:     mgl32.Vec2{0.5, 0.5},
		Cost:     navigation.CostUnwalkable,
	}
}

func waitOK(t *testing.T, c *Completion) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("completion: %v", err)
	}
}

func TestBuildGraphRejectsBadProperties(t *testing.T) {
	_, err := BuildGraph(context.Background(), navigation.Properties{Width: 0, Height: 2, ChunkWidth: 8, ChunkHeight: 8, NodeSize: 1},
		nil, navigation.AgentConfig{}, WithLogger(quietLog))
	if !errors.Is(err, navigation.ErrInvalidProperties) {
		t.Errorf("err = %v, want ErrInvalidProperties", err)
	}
}

func TestPathLifecycle(t *testing.T) {
	gc := newTestContext(t, 2, 1)
	ctx := context.Background()

	h, err := gc.MakePath(navigation.PointTarget(mgl32.Vec2{12.5, 3.5}), navigation.DefaultFilter)
	if err != nil {
		t.Fatal(err)
	}
	if st, _ := gc.PathState(h); st != navigation.PathNotCalculated {
		t.Errorf("fresh path state = %v", st)
	}
	if err := gc.SetFrom(h, mgl32.Vec2{3.5, 3.5}); err != nil {
		t.Fatal(err)
	}
	waitOK(t, gc.UpdatePath(ctx, h, navigation.ChunkMask{}))

	if st, _ := gc.PathState(h); st != navigation.PathSuccess {
		t.Fatalf("state = %v, want success", st)
	}
	dir, arrived, err := gc.GetDirection(h, mgl32.Vec2{3.5, 3.5})
	if err != nil || arrived {
		t.Fatalf("direction at source: %v arrived=%v err=%v", dir, arrived, err)
	}
	if dir.X() <= 0 {
		t.Errorf("direction at source = %v, want eastward", dir)
	}
	if _, arrived, _ := gc.GetDirection(h, mgl32.Vec2{12.5, 3.5}); !arrived {
		t.Error("target cell not reported as arrived")
	}

	// A second update with nothing dirty is a no-op
	before := gc.Status().Ints.Get(status.KeyRepaths).Load()
	waitOK(t, gc.UpdatePath(ctx, h, navigation.ChunkMask{}))
	if after := gc.Status().Ints.Get(status.KeyRepaths).Load(); after != before {
		t.Errorf("repaths %d -> %d without a dirty chunk", before, after)
	}

	if err := gc.DisposePath(h); err != nil {
		t.Fatal(err)
	}
	if err := gc.DisposePath(h); !errors.Is(err, ErrUnknownPath) {
		t.Errorf("second dispose err = %v, want ErrUnknownPath", err)
	}
	if _, _, err := gc.GetDirection(h, mgl32.Vec2{}); !errors.Is(err, ErrUnknownPath) {
		t.Errorf("query after dispose err = %v", err)
	}
}

func TestUpdateObstaclesKeepsLastGoodField(t *testing.T) {
	gc := newTestContext(t, 2, 1)
	ctx := context.Background()

	h, _ := gc.MakePath(navigation.PointTarget(mgl32.Vec2{12.5, 3.5}), navigation.DefaultFilter)
	gc.SetFrom(h, mgl32.Vec2{3.5, 3.5})
	waitOK(t, gc.UpdatePath(ctx, h, navigation.ChunkMask{}))
	good, _, _ := gc.GetDirection(h, mgl32.Vec2{3.5, 3.5})

	// Seal the only seam between the two chunks
	var wall navigation.ObstacleList
	for y := 1; y < 7; y++ {
		wall = append(wall, cell(7, y))
	}
	gc.SetObstacles(wall)
	mask := gc.DirtyMask(wall...)
	if !mask.Has(0) || mask.Has(1) {
		t.Fatalf("dirty mask = %v, want chunk 0 only", mask.Indices())
	}
	waitOK(t, gc.UpdateObstacles(ctx, mask))

	p, _ := gc.Path(h)
	if !p.NeedsRepath() {
		t.Fatal("path crossing the rebuilt chunk not marked for repath")
	}
	if n := len(gc.Graph().Chunk(0).Portals); n != 0 {
		t.Errorf("chunk 0 portals after sealing = %d, want 0", n)
	}

	waitOK(t, gc.UpdatePath(ctx, h, mask))
	if st, _ := gc.PathState(h); st != navigation.PathFailed {
		t.Fatalf("state = %v, want failed", st)
	}
	if dir, _, _ := gc.GetDirection(h, mgl32.Vec2{3.5, 3.5}); dir != good {
		t.Errorf("failed repath changed direction %v -> %v", good, dir)
	}
	if gc.Status().Ints.Get(status.KeyRouteFailures).Load() == 0 {
		t.Error("route failure not counted")
	}

	// Reopen the seam
	gc.SetObstacles(nil)
	waitOK(t, gc.UpdateObstacles(ctx, mask))
	waitOK(t, gc.UpdatePath(ctx, h, mask))
	if st, _ := gc.PathState(h); st != navigation.PathSuccess {
		t.Errorf("state after reopening = %v", st)
	}
}

func TestUpdateObstaclesDropsCacheAroundChunk(t *testing.T) {
	gc := newTestContext(t, 3, 1)
	ctx := context.Background()

	h, _ := gc.MakePath(navigation.PointTarget(mgl32.Vec2{20.5, 3.5}), navigation.DefaultFilter)
	gc.SetFrom(h, mgl32.Vec2{2.5, 3.5})
	waitOK(t, gc.UpdatePath(ctx, h, navigation.ChunkMask{}))
	if gc.Cache().Len() == 0 {
		t.Fatal("no chunk cached after solve")
	}

	// Chunk 1 is the neighbour of every cached chunk
	mask := navigation.NewChunkMask(3)
	mask.Set(1)
	waitOK(t, gc.UpdateObstacles(ctx, mask))
	if n := gc.Cache().Len(); n != 0 {
		t.Errorf("cache entries after neighbour rebuild = %d, want 0", n)
	}
}

func TestSetTargetSnapsAndRepaths(t *testing.T) {
	gc := newTestContext(t, 2, 2, WithObstacles(navigation.ObstacleList{cell(10, 10)}))
	ctx := context.Background()

	h, _ := gc.MakePath(navigation.PointTarget(mgl32.Vec2{3.5, 3.5}), navigation.DefaultFilter)
	gc.SetFrom(h, mgl32.Vec2{12.5, 12.5})
	waitOK(t, gc.UpdatePath(ctx, h, navigation.ChunkMask{}))

	if err := gc.SetTarget(h, mgl32.Vec2{10.5, 10.5}, navigation.DefaultFilter); err != nil {
		t.Fatal(err)
	}
	p, _ := gc.Path(h)
	if !p.NeedsRepath() {
		t.Error("SetTarget did not schedule a repath")
	}
	got := p.Target().Position
	if got == (mgl32.Vec2{10.5, 10.5}) {
		t.Error("target not snapped off the blocked node")
	}
	if d := got.Sub(mgl32.Vec2{10.5, 10.5}).Len(); d > 1.5 {
		t.Errorf("snapped target %v too far from request", got)
	}

	waitOK(t, gc.UpdatePath(ctx, h, navigation.ChunkMask{}))
	if _, arrived, _ := gc.GetDirection(h, got); !arrived {
		t.Error("snapped target cell not arrived")
	}
}

func TestConcurrentPaths(t *testing.T) {
	gc := newTestContext(t, 3, 3)
	ctx := context.Background()

	targets := []mgl32.Vec2{{3.5, 3.5}, {20.5, 3.5}, {3.5, 20.5}, {20.5, 20.5}, {12.5, 12.5}}
	handles := make([]PathHandle, len(targets))
	for i, tg := range targets {
		h, err := gc.MakePath(navigation.PointTarget(tg), navigation.DefaultFilter)
		if err != nil {
			t.Fatal(err)
		}
		gc.SetFrom(h, mgl32.Vec2{12.5, 4.5}, mgl32.Vec2{4.5, 12.5})
		handles[i] = h
	}
	if n := gc.Status().Ints.Get(status.KeyPaths).Load(); n != int64(len(targets)) {
		t.Errorf("paths metric = %d", n)
	}

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h PathHandle) {
			defer wg.Done()
			if err := gc.UpdatePath(ctx, h, navigation.ChunkMask{}).Wait(ctx); err != nil {
				t.Errorf("path %d: %v", h, err)
			}
			for i := 0; i < 100; i++ {
				gc.GetDirection(h, mgl32.Vec2{float32(i%20) + 2.5, 6.5})
			}
		}(h)
	}
	// An obstacle update racing the solves serializes behind them
	mask := navigation.NewChunkMask(9)
	mask.Set(4)
	upd := gc.UpdateObstacles(ctx, mask)
	wg.Wait()
	waitOK(t, upd)

	for i, h := range handles {
		waitOK(t, gc.UpdatePath(ctx, h, navigation.ChunkMask{}))
		if st, _ := gc.PathState(h); st != navigation.PathSuccess {
			t.Errorf("path %d toward %v state = %v", h, targets[i], st)
		}
	}
}

func TestCloseDisposesEverything(t *testing.T) {
	gc := newTestContext(t, 2, 1)
	h, _ := gc.MakePath(navigation.PointTarget(mgl32.Vec2{12.5, 3.5}), navigation.DefaultFilter)

	if err := gc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gc.Close(); !errors.Is(err, ErrDisposed) {
		t.Errorf("second Close err = %v", err)
	}
	if _, err := gc.MakePath(navigation.PointTarget(mgl32.Vec2{}), navigation.DefaultFilter); !errors.Is(err, ErrDisposed) {
		t.Errorf("MakePath after Close err = %v", err)
	}
	if err := gc.UpdatePath(context.Background(), h, navigation.ChunkMask{}).Wait(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Errorf("UpdatePath after Close err = %v", err)
	}
	if err := gc.UpdateObstacles(context.Background(), navigation.FullMask(2)).Err(); !errors.Is(err, ErrDisposed) {
		t.Errorf("UpdateObstacles after Close err = %v", err)
	}
}

func TestCancelledUpdate(t *testing.T) {
	gc := newTestContext(t, 2, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gc.UpdateObstacles(ctx, navigation.FullMask(4)).Wait(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestUpdateObstaclesPassCap(t *testing.T) {
	gc := newTestContext(t, 2, 2)
	ctx := context.Background()
	gc.Graph().SetMaxUpdatePasses(0)

	mask := gc.DirtyMask(cell(3, 3))
	err := gc.UpdateObstacles(ctx, mask).Wait(ctx)
	if !errors.Is(err, ErrUpdateDiverged) {
		t.Fatalf("err = %v, want ErrUpdateDiverged", err)
	}
	if got := gc.Status().Strings.Get(status.KeyLastError).Load(); got == "" {
		t.Error("last error not recorded")
	}

	gc.Graph().SetMaxUpdatePasses(parameter.NavMaxUpdatePasses)
	waitOK(t, gc.UpdateObstacles(ctx, mask))
}

func TestQueuedSolveAfterDispose(t *testing.T) {
	gc := newTestContext(t, 2, 1)
	h, err := gc.MakePath(navigation.PointTarget(mgl32.Vec2{12.5, 3.5}), navigation.DefaultFilter)
	if err != nil {
		t.Fatal(err)
	}
	if err := gc.SetFrom(h, mgl32.Vec2{3.5, 3.5}); err != nil {
		t.Fatal(err)
	}
	gc.pathsMu.RLock()
	e := gc.paths[h]
	gc.pathsMu.RUnlock()

	// The solve was looked up before DisposePath and runs after it
	if err := gc.DisposePath(h); err != nil {
		t.Fatal(err)
	}
	if err := gc.solve(context.Background(), h, e); !errors.Is(err, ErrUnknownPath) {
		t.Errorf("solve on disposed path = %v, want ErrUnknownPath", err)
	}
	if e.path.Field() != nil {
		t.Error("disposed path received a field")
	}
}

func TestUpdatePathRacingClose(t *testing.T) {
	gc, err := BuildGraph(context.Background(), navigation.Properties{
		Width: 2, Height: 2, ChunkWidth: 8, ChunkHeight: 8, NodeSize: 1,
	}, nil, navigation.AgentConfig{}, WithLogger(quietLog), WithWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	h, err := gc.MakePath(navigation.PointTarget(mgl32.Vec2{12.5, 12.5}), navigation.DefaultFilter)
	if err != nil {
		t.Fatal(err)
	}
	if err := gc.SetFrom(h, mgl32.Vec2{2.5, 2.5}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := gc.UpdatePath(ctx, h, gc.DirtyMask(cell(4, 4))).Wait(ctx)
				if errors.Is(err, ErrDisposed) {
					return
				}
				if err != nil && !errors.Is(err, ErrUnknownPath) {
					t.Errorf("update path: %v", err)
					return
				}
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	if err := gc.Close(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if err := gc.UpdateObstacles(ctx, gc.DirtyMask(cell(4, 4))).Wait(ctx); !errors.Is(err, ErrDisposed) {
		t.Errorf("update after close = %v", err)
	}
}
