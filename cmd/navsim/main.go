// Command navsim builds navigation graphs from scenario files and drives agents across them
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/chunknav/config"
	"github.com/lixenwraith/chunknav/engine"
	"github.com/lixenwraith/chunknav/navigation"
)

type rootFlags struct {
	configPath string
	debug      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "navsim: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	var logFile *os.File

	root := &cobra.Command{
		Use:   "navsim",
		Short: "Hierarchical flow-field navigation simulator",
		Long: `navsim builds a chunked navigation graph from a YAML scenario, solves
flow fields toward the scenario target and steps agents along them.

Run with --debug to write structured logs to logs/navsim.log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logFile = setupLogging(flags.debug)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFile != nil {
				logFile.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Graph config file (default: "+config.DefaultConfigPath+" or built-in)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Write debug logs to "+logDir+"/"+logFileName)

	root.AddCommand(
		newRunCmd(),
		newWatchCmd(),
		newMazeCmd(),
		newBenchCmd(flags),
	)
	return root
}

// buildScenario builds a graph context for s with its obstacles and engine settings
func buildScenario(ctx context.Context, s *config.Scenario) (*engine.GraphContext, error) {
	opts := append(s.EngineOptions(),
		engine.WithObstacles(s.ObstacleList()),
		engine.WithLogger(slog.Default().With(slog.String("component", "engine"))),
	)
	gc, err := engine.BuildGraph(ctx, s.Properties(), s.HeightSampler(), s.AgentConfig(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "build scenario graph")
	}
	return gc, nil
}

// solveScenario registers the scenario target with every agent as a source and waits for the first field
func solveScenario(ctx context.Context, gc *engine.GraphContext, s *config.Scenario) (engine.PathHandle, error) {
	h, err := gc.MakePath(s.NavTarget(), s.Filter())
	if err != nil {
		return 0, err
	}
	if err := gc.SetFrom(h, s.AgentPositions()...); err != nil {
		return 0, err
	}
	if err := gc.UpdatePath(ctx, h, navigation.ChunkMask{}).Wait(ctx); err != nil {
		return 0, errors.Wrap(err, "initial repath")
	}
	return h, nil
}
