package maze

import (
	"fmt"
	"testing"
)

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(Config{Width: 31, Height: 21, Braiding: 0.3, Seed: 42})
	b := Generate(Config{Width: 31, Height: 21, Braiding: 0.3, Seed: 42})
	c := Generate(Config{Width: 31, Height: 21, Braiding: 0.3, Seed: 43})

	same := func(x, y *Maze) bool {
		for i := range x.walls {
			if x.walls[i] != y.walls[i] {
				return false
			}
		}
		return true
	}
	if !same(a, b) {
		t.Error("same seed produced different mazes")
	}
	if same(a, c) {
		t.Error("different seeds produced identical mazes")
	}
}

func TestPerfectMazeIsSpanningTree(t *testing.T) {
	for _, size := range [][2]int{{3, 3}, {9, 7}, {32, 20}, {41, 41}} {
		t.Run(fmt.Sprintf("%dx%d", size[0], size[1]), func(t *testing.T) {
			m := Generate(Config{Width: size[0], Height: size[1], Seed: 7})
			if m.Width%2 == 0 || m.Height%2 == 0 {
				t.Fatalf("dimensions %dx%d not odd", m.Width, m.Height)
			}
			rooms := ((m.Width - 1) / 2) * ((m.Height - 1) / 2)
			open := m.Width*m.Height - m.WallCount()
			if open != 2*rooms-1 {
				t.Errorf("open cells = %d, want %d for a tree over %d rooms", open, 2*rooms-1, rooms)
			}
			for x := 0; x < m.Width; x++ {
				if !m.Wall(x, 0) || !m.Wall(x, m.Height-1) {
					t.Fatal("outer ring breached")
				}
			}
		})
	}
}

func TestSolveConnectsStartAndEnd(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		m := Generate(Config{Width: 25, Height: 25, Braiding: 0.5, Seed: seed})
		path := m.Solve()
		if len(path) == 0 {
			t.Fatalf("seed %d: no solution", seed)
		}
		if path[0] != m.Start || path[len(path)-1] != m.End {
			t.Errorf("seed %d: path runs %v -> %v", seed, path[0], path[len(path)-1])
		}
		for i := 1; i < len(path); i++ {
			dx, dy := path[i].X-path[i-1].X, path[i].Y-path[i-1].Y
			if dx*dx+dy*dy != 1 {
				t.Fatalf("seed %d: step %v -> %v not 4-adjacent", seed, path[i-1], path[i])
			}
			if m.Wall(path[i].X, path[i].Y) {
				t.Fatalf("seed %d: path crosses wall at %v", seed, path[i])
			}
		}
	}
}

func TestBraidingAvoidsOpenBlocks(t *testing.T) {
	m := Generate(Config{Width: 41, Height: 41, Braiding: 1, Seed: 3})
	for y := 0; y+1 < m.Height; y++ {
		for x := 0; x+1 < m.Width; x++ {
			if !m.Wall(x, y) && !m.Wall(x+1, y) && !m.Wall(x, y+1) && !m.Wall(x+1, y+1) {
				t.Fatalf("2x2 open block at (%d,%d)", x, y)
			}
		}
	}
	perfect := Generate(Config{Width: 41, Height: 41, Seed: 3})
	if m.WallCount() >= perfect.WallCount() {
		t.Error("braiding removed no walls")
	}
}

func TestOpenBorderAndCustomEnds(t *testing.T) {
	end := Point{10, 0}
	m := Generate(Config{Width: 11, Height: 11, OpenBorder: true, End: &end, Seed: 9})
	if m.Wall(0, 5) || m.Wall(10, 10) {
		t.Error("border not cleared")
	}
	if m.End != end || m.Wall(end.X, end.Y) {
		t.Errorf("end = %v wall=%v", m.End, m.Wall(end.X, end.Y))
	}
	if m.Solve() == nil {
		t.Error("no solution with open border")
	}
	if !m.Wall(-1, 0) || !m.Wall(0, 11) {
		t.Error("out-of-range cells must read as walls")
	}
}
