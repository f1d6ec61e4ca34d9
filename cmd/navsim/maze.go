package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lixenwraith/chunknav/maze"
)

func newMazeCmd() *cobra.Command {
	var (
		cfg   maze.Config
		solve bool
	)
	cmd := &cobra.Command{
		Use:   "maze",
		Short: "Print a generated maze",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := maze.Generate(cfg)
			var path []maze.Point
			if solve {
				path = m.Solve()
			}
			return renderMaze(cmd.OutOrStdout(), m, path)
		},
	}
	cmd.Flags().IntVar(&cfg.Width, "width", 35, "Width in cells (odd)")
	cmd.Flags().IntVar(&cfg.Height, "height", 19, "Height in cells (odd)")
	cmd.Flags().Float64Var(&cfg.Braiding, "braid", 0.2, "Dead-end braiding factor [0,1]")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", 1, "Generator seed")
	cmd.Flags().BoolVar(&cfg.OpenBorder, "open-border", false, "Remove the outer wall ring")
	cmd.Flags().BoolVar(&solve, "solve", false, "Overlay the shortest start-to-end path")
	return cmd
}

// renderMaze draws m top row first; path cells are marked with '.'
func renderMaze(w io.Writer, m *maze.Maze, path []maze.Point) error {
	onPath := make(map[maze.Point]bool, len(path))
	for _, p := range path {
		onPath[p] = true
	}

	bw := bufio.NewWriter(w)
	for y := m.Height - 1; y >= 0; y-- {
		for x := 0; x < m.Width; x++ {
			p := maze.Point{X: x, Y: y}
			switch {
			case p == m.Start:
				bw.WriteByte('S')
			case p == m.End:
				bw.WriteByte('E')
			case m.Wall(x, y):
				bw.WriteByte('#')
			case onPath[p]:
				bw.WriteByte('.')
			default:
				bw.WriteByte(' ')
			}
		}
		bw.WriteByte('\n')
	}
	if path != nil {
		fmt.Fprintf(bw, "path length %d\n", len(path))
	}
	return bw.Flush()
}
