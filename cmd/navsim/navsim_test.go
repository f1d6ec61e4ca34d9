package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/lixenwraith/chunknav/config"
	"github.com/lixenwraith/chunknav/maze"
	"github.com/lixenwraith/chunknav/navigation"
)

const openScenario = `
graph: {width: 2, height: 2, chunk_width: 8, chunk_height: 8}
target: {position: [12.5, 12.5]}
agents: [[2.5, 2.5], [2.5, 12.5], [12.5, 2.5]]
sim: {ticks: 400, speed: 0.25}
`

func parseScenario(t *testing.T, doc string) *config.Scenario {
	t.Helper()
	s, err := config.ParseScenario([]byte(doc))
	if err != nil {
		t.Fatalf("parse scenario: %v", err)
	}
	return s
}

func TestRunScenarioAgentsArrive(t *testing.T) {
	setupLogging(false)
	s := parseScenario(t, openScenario)

	res, gc, err := runScenario(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	defer gc.Close()

	if res.State != navigation.PathSuccess {
		t.Fatalf("route state = %s", res.State)
	}
	for i, a := range res.Agents {
		if !a.Arrived {
			t.Errorf("agent %d stuck at %v after %d ticks", i, a.End, res.Ticks)
		}
	}

	var out bytes.Buffer
	printResult(&out, res)
	if !strings.Contains(out.String(), "3/3 agents arrived") {
		t.Errorf("report:\n%s", out.String())
	}
}

func TestSimulateCancelled(t *testing.T) {
	setupLogging(false)
	s := parseScenario(t, openScenario)
	gc, err := buildScenario(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	defer gc.Close()
	h, err := solveScenario(context.Background(), gc, s)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := simulate(ctx, gc, h, s.AgentPositions(), 10, 0.25); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestObstacleDiff(t *testing.T) {
	a := navigation.Obstacle{Position: mgl32.Vec2{1, 1}, Size: mgl32.Vec2{1, 1}, Cost: navigation.CostUnwalkable}
	b := navigation.Obstacle{Position: mgl32.Vec2{5, 5}, Size: mgl32.Vec2{2, 1}, Cost: 30}
	c := navigation.Obstacle{Position: mgl32.Vec2{9, 2}, Size: mgl32.Vec2{1, 3}, Cost: navigation.CostUnwalkable}

	tests := []struct {
		name     string
		old, new navigation.ObstacleList
		want     int
	}{
		{"identical", navigation.ObstacleList{a, b}, navigation.ObstacleList{b, a}, 0},
		{"added", navigation.ObstacleList{a}, navigation.ObstacleList{a, c}, 1},
		{"removed", navigation.ObstacleList{a, b}, navigation.ObstacleList{b}, 1},
		{"replaced", navigation.ObstacleList{a, b}, navigation.ObstacleList{a, c}, 2},
		{"duplicate dropped", navigation.ObstacleList{a, a}, navigation.ObstacleList{a}, 1},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := obstacleDiff(tt.old, tt.new); len(got) != tt.want {
				t.Errorf("diff = %v, want %d obstacles", got, tt.want)
			}
		})
	}
}

func TestLiveScenarioReload(t *testing.T) {
	setupLogging(false)
	ctx := context.Background()
	live, err := startScenario(ctx, parseScenario(t, openScenario))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { live.Close() }()

	// A wall across the left chunk column, leaving a gap at the top
	walled := openScenario + "obstacles: [{position: [7.5, 6], size: [1, 10]}]\n"
	rs, err := live.reload(ctx, parseScenario(t, walled))
	if err != nil {
		t.Fatal(err)
	}
	if rs.Rebuilt || rs.Changed != 1 || rs.Dirty == 0 {
		t.Errorf("incremental reload = %+v", rs)
	}
	if rs.State != navigation.PathSuccess {
		t.Errorf("state after wall = %s", rs.State)
	}
	if live.gc.Raycast(mgl32.Vec2{2.5, 5}, mgl32.Vec2{12.5, 5}, navigation.DefaultFilter) {
		t.Error("raycast passes through the new wall")
	}

	// Graph section changes rebuild from scratch
	wider := strings.Replace(walled, "width: 2,", "width: 3,", 1)
	rs, err = live.reload(ctx, parseScenario(t, wider))
	if err != nil {
		t.Fatal(err)
	}
	if !rs.Rebuilt || live.gc.Graph().ChunkCount() != 6 {
		t.Errorf("rebuild reload = %+v, chunks %d", rs, live.gc.Graph().ChunkCount())
	}
}

func TestFileWatcherDebounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(openScenario), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := newFileWatcher(path, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// Unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(openScenario), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case got := <-w.Events:
		if filepath.Base(got) != "scenario.yaml" {
			t.Errorf("event for %s", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event after write")
	}

	// The burst coalesces into a single reload
	select {
	case got := <-w.Events:
		t.Errorf("second event %s from one burst", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRenderMaze(t *testing.T) {
	m := maze.Generate(maze.Config{Width: 9, Height: 7, Seed: 2})
	var out bytes.Buffer
	if err := renderMaze(&out, m, m.Solve()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != m.Height+1 {
		t.Fatalf("rendered %d lines, want %d rows plus summary", len(lines), m.Height)
	}
	for _, row := range lines[:m.Height] {
		if len(row) != m.Width {
			t.Errorf("row %q width %d", row, len(row))
		}
	}
	if !strings.Contains(out.String(), "S") || !strings.Contains(out.String(), "E") {
		t.Error("start or end missing")
	}
	// Top row is y = Height-1
	if lines[0][0] != '#' {
		t.Errorf("top-left %q, want wall", lines[0][0])
	}
}

func TestBenchSmallGraph(t *testing.T) {
	setupLogging(false)
	cfg, err := config.Parse([]byte("graph: {width: 2, height: 2, chunk_width: 8, chunk_height: 8}\n"))
	if err != nil {
		t.Fatal(err)
	}
	opts := benchOptions{iterations: 3, seed: 5, braid: 0.5}
	s, err := mazeScenario(cfg, opts)
	if err != nil {
		t.Fatal(err)
	}

	res, gc, err := runBench(context.Background(), s, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer gc.Close()

	if res.Update.n != 2*opts.iterations || res.Repath.n != 2*opts.iterations {
		t.Errorf("samples update=%d repath=%d, want %d", res.Update.n, res.Repath.n, 2*opts.iterations)
	}
	if res.Portals == 0 {
		t.Error("maze graph has no portals")
	}
	if res.State != navigation.PathSuccess {
		t.Errorf("route after lifting every blocker = %s", res.State)
	}
}
