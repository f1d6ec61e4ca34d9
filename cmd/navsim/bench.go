package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/chunknav/config"
	"github.com/lixenwraith/chunknav/engine"
	"github.com/lixenwraith/chunknav/navigation"
)

type benchOptions struct {
	iterations int
	seed       uint64
	braid      float64
	showStats  bool
}

// timing accumulates samples of one measured step
type timing struct {
	n          int
	total, max time.Duration
}

func (t *timing) add(d time.Duration) {
	t.n++
	t.total += d
	t.max = max(t.max, d)
}

func (t timing) String() string {
	if t.n == 0 {
		return "n/a"
	}
	avg := t.total / time.Duration(t.n)
	return fmt.Sprintf("avg %v  max %v  (n=%d)", avg.Round(time.Microsecond), t.max.Round(time.Microsecond), t.n)
}

type benchResult struct {
	Build   time.Duration
	Solve   time.Duration
	Update  timing
	Repath  timing
	Portals int
	State   navigation.PathState
}

func newBenchCmd(flags *rootFlags) *cobra.Command {
	opts := benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time graph build, incremental obstacle updates and repaths over a maze",
		Long: `bench fills the configured graph with a maze one node per cell, solves
a path from the maze start to its end, then repeatedly drops and lifts a
single-cell obstacle on the solution, timing each obstacle update and repath.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAuto(flags.configPath)
			if err != nil {
				return err
			}
			s, err := mazeScenario(cfg, opts)
			if err != nil {
				return err
			}
			res, gc, err := runBench(cmd.Context(), s, opts)
			if err != nil {
				return err
			}
			defer gc.Close()

			out := cmd.OutOrStdout()
			printBench(out, cfg, res)
			if opts.showStats {
				fmt.Fprintln(out)
				gc.Status().Dump(out)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.iterations, "iterations", 50, "Obstacle toggles to time")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "Maze and toggle seed")
	cmd.Flags().Float64Var(&opts.braid, "braid", 0.3, "Maze braiding factor [0,1]")
	cmd.Flags().BoolVar(&opts.showStats, "stats", false, "Dump engine telemetry after the run")
	return cmd
}

// mazeScenario covers the graph described by cfg with a maze at node resolution
func mazeScenario(cfg *config.Config, opts benchOptions) (*config.Scenario, error) {
	g := cfg.Graph
	s := &config.Scenario{
		Config: *cfg,
		Maze: &config.MazeConfig{
			Width:    g.Width * g.ChunkWidth,
			Height:   g.Height * g.ChunkHeight,
			Braiding: opts.braid,
			Seed:     opts.seed,
			CellSize: g.NodeSize,
			Origin:   g.Origin,
		},
		Target: config.TargetConfig{Kind: "point"},
		Sim:    config.SimConfig{Ticks: 0},
	}
	if err := s.Prepare(); err != nil {
		return nil, err
	}
	m := s.MazeGrid()
	s.Target.Position = config.Vec2(s.CellCenter(m.End))
	s.Agents = []config.Vec2{config.Vec2(s.CellCenter(m.Start))}
	return s, nil
}

func runBench(ctx context.Context, s *config.Scenario, opts benchOptions) (*benchResult, *engine.GraphContext, error) {
	res := &benchResult{}

	start := time.Now()
	gc, err := buildScenario(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	res.Build = time.Since(start)

	start = time.Now()
	h, err := solveScenario(ctx, gc, s)
	if err != nil {
		gc.Close()
		return nil, nil, err
	}
	res.Solve = time.Since(start)

	// Toggle blockers on the solution corridor so every update lands on the active field
	base := s.ObstacleList()
	corridor := s.MazeGrid().Solve()
	if len(corridor) > 2 {
		corridor = corridor[1 : len(corridor)-1]
	}
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed+1))
	size := mgl32.Vec2{s.Maze.CellSize * 0.98, s.Maze.CellSize * 0.98}

	for i := 0; i < opts.iterations && len(corridor) > 0; i++ {
		cell := corridor[rng.IntN(len(corridor))]
		blocker := navigation.Obstacle{Position: s.CellCenter(cell), Size: size, Cost: navigation.CostUnwalkable}
		dirty := gc.DirtyMask(blocker)

		for _, obs := range []navigation.ObstacleList{append(base[:len(base):len(base)], blocker), base} {
			gc.SetObstacles(obs)

			t := time.Now()
			if err := gc.UpdateObstacles(ctx, dirty).Wait(ctx); err != nil {
				gc.Close()
				return nil, nil, err
			}
			res.Update.add(time.Since(t))

			t = time.Now()
			if err := gc.UpdatePath(ctx, h, dirty).Wait(ctx); err != nil {
				gc.Close()
				return nil, nil, err
			}
			res.Repath.add(time.Since(t))
		}
	}

	res.Portals = gc.Graph().PortalCount()
	if res.State, err = gc.PathState(h); err != nil {
		gc.Close()
		return nil, nil, err
	}
	return res, gc, nil
}

func printBench(w io.Writer, cfg *config.Config, r *benchResult) {
	g := cfg.Graph
	fmt.Fprintf(w, "graph     %dx%d chunks of %dx%d nodes, %d portals\n", g.Width, g.Height, g.ChunkWidth, g.ChunkHeight, r.Portals)
	fmt.Fprintf(w, "build     %v\n", r.Build.Round(time.Microsecond))
	fmt.Fprintf(w, "solve     %v\n", r.Solve.Round(time.Microsecond))
	fmt.Fprintf(w, "update    %s\n", r.Update)
	fmt.Fprintf(w, "repath    %s\n", r.Repath)
	fmt.Fprintf(w, "route     %s\n", r.State)
}
