package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/chunknav/config"
	"github.com/lixenwraith/chunknav/engine"
	"github.com/lixenwraith/chunknav/navigation"
)

type agentResult struct {
	Start   mgl32.Vec2
	End     mgl32.Vec2
	Arrived bool
	Tick    int // Tick of arrival, -1 when the agent never arrived
	Stalled int // Ticks spent on a cell without a heading
}

type simResult struct {
	Agents []agentResult
	State  navigation.PathState
	Ticks  int
	Build  time.Duration
	Solve  time.Duration
}

// Arrived counts agents that reached the target
func (r *simResult) Arrived() int {
	n := 0
	for _, a := range r.Agents {
		if a.Arrived {
			n++
		}
	}
	return n
}

func newRunCmd() *cobra.Command {
	var (
		ticks     int
		speed     float32
		showStats bool
	)
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Solve a scenario and step its agents toward the target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadScenario(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ticks") {
				s.Sim.Ticks = ticks
			}
			if cmd.Flags().Changed("speed") {
				s.Sim.Speed = speed
			}

			res, gc, err := runScenario(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer gc.Close()

			out := cmd.OutOrStdout()
			printResult(out, res)
			if showStats {
				fmt.Fprintln(out)
				gc.Status().Dump(out)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 0, "Override sim.ticks")
	cmd.Flags().Float32Var(&speed, "speed", 0, "Override sim.speed (world units per tick)")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Dump engine telemetry after the run")
	return cmd
}

// runScenario builds, solves and simulates s; the caller owns the returned context
func runScenario(ctx context.Context, s *config.Scenario) (*simResult, *engine.GraphContext, error) {
	res := &simResult{Ticks: s.Sim.Ticks}

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

	if res.State, err = gc.PathState(h); err != nil {
		gc.Close()
		return nil, nil, err
	}

	res.Agents, err = simulate(ctx, gc, h, s.AgentPositions(), s.Sim.Ticks, s.Sim.Speed)
	if err != nil {
		gc.Close()
		return nil, nil, err
	}

	slog.Info("simulation finished",
		slog.Int("agents", len(res.Agents)),
		slog.Int("arrived", res.Arrived()),
		slog.String("state", res.State.String()))
	return res, gc, nil
}

// simulate moves each agent speed units per tick along the flow field of h
func simulate(ctx context.Context, gc *engine.GraphContext, h engine.PathHandle, agents []mgl32.Vec2, ticks int, speed float32) ([]agentResult, error) {
	out := make([]agentResult, len(agents))
	for i, p := range agents {
		out[i] = agentResult{Start: p, End: p, Tick: -1}
	}

	remaining := len(agents)
	for tick := 0; tick < ticks && remaining > 0; tick++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for i := range out {
			a := &out[i]
			if a.Arrived {
				continue
			}
			dir, arrived, err := gc.GetDirection(h, a.End)
			if err != nil {
				return out, err
			}
			if arrived {
				a.Arrived = true
				a.Tick = tick
				remaining--
				continue
			}
			if dir.Len() == 0 {
				a.Stalled++
				continue
			}
			a.End = a.End.Add(dir.Mul(speed))
		}
	}
	return out, nil
}

func printResult(w io.Writer, r *simResult) {
	fmt.Fprintf(w, "route: %s  build: %v  solve: %v\n", r.State, r.Build.Round(time.Microsecond), r.Solve.Round(time.Microsecond))
	for i, a := range r.Agents {
		status := "arrived at tick " + fmt.Sprint(a.Tick)
		if !a.Arrived {
			status = "en route"
		}
		fmt.Fprintf(w, "agent %2d  (%6.2f,%6.2f) -> (%6.2f,%6.2f)  %s", i,
			a.Start.X(), a.Start.Y(), a.End.X(), a.End.Y(), status)
		if a.Stalled > 0 {
			fmt.Fprintf(w, "  stalled %d", a.Stalled)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d/%d agents arrived within %d ticks\n", r.Arrived(), len(r.Agents), r.Ticks)
}
