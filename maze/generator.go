// Package maze generates deterministic passage grids used as navigation terrain
package maze

import (
	"math/rand/v2"
)

// Point is a maze cell coordinate, y up
type Point struct {
	X, Y int
}

var (
	steps = [4]Point{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
	jumps = [4]Point{{0, 2}, {2, 0}, {0, -2}, {-2, 0}}
)

// Config controls generation
type Config struct {
	Width, Height int // Rounded down to odd, minimum 3

	// Braiding is the chance a dead end is opened into a loop, 0 yields a perfect maze
	Braiding float64

	// OpenBorder clears the outer wall ring after carving
	OpenBorder bool

	Start, End *Point // nil picks opposite corners
	Seed       uint64 // Same seed, same maze
}

// Maze is a row-major wall grid
type Maze struct {
	Width, Height int
	Start, End    Point

	walls []bool
}

// Generate carves a spanning tree with a randomized depth-first walk, then braids dead ends
func Generate(cfg Config) *Maze {
	m := &Maze{
		Width:  oddAtLeast3(cfg.Width),
		Height: oddAtLeast3(cfg.Height),
	}
	m.walls = make([]bool, m.Width*m.Height)
	for i := range m.walls {
		m.walls[i] = true
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	m.Start = m.clamp(cfg.Start, Point{1, 1})
	m.End = m.clamp(cfg.End, Point{m.Width - 2, m.Height - 2})

	m.carve(m.roomNear(m.Start), rng)
	if cfg.OpenBorder {
		m.clearBorder()
	}
	if cfg.Braiding > 0 {
		m.braid(cfg.Braiding, rng)
	}
	m.connect(m.Start)
	m.connect(m.End)
	return m
}

// Wall reports whether (x, y) is a wall; out-of-range cells are walls
func (m *Maze) Wall(x, y int) bool {
	if !m.in(x, y) {
		return true
	}
	return m.walls[y*m.Width+x]
}

// Walls calls fn for every wall cell in row-major order
func (m *Maze) Walls(fn func(x, y int)) {
	for i, w := range m.walls {
		if w {
			fn(i%m.Width, i/m.Width)
		}
	}
}

// WallCount returns the number of wall cells
func (m *Maze) WallCount() int {
	n := 0
	for _, w := range m.walls {
		if w {
			n++
		}
	}
	return n
}

// Solve returns the shortest 4-connected route from Start to End, both included, or nil
func (m *Maze) Solve() []Point {
	if m.Wall(m.Start.X, m.Start.Y) || m.Wall(m.End.X, m.End.Y) {
		return nil
	}
	prev := make([]int32, len(m.walls))
	for i := range prev {
		prev[i] = -1
	}
	start, end := m.index(m.Start), m.index(m.End)
	prev[start] = int32(start)

	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == end {
			break
		}
		x, y := cur%m.Width, cur/m.Width
		for _, d := range steps {
			nx, ny := x+d.X, y+d.Y
			if m.Wall(nx, ny) {
				continue
			}
			ni := ny*m.Width + nx
			if prev[ni] < 0 {
				prev[ni] = int32(cur)
				queue = append(queue, ni)
			}
		}
	}
	if prev[end] < 0 {
		return nil
	}

	var path []Point
	for cur := end; ; cur = int(prev[cur]) {
		path = append(path, Point{cur % m.Width, cur / m.Width})
		if cur == start {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// --- Carving ---

func (m *Maze) carve(start Point, rng *rand.Rand) {
	m.open(start)
	stack := []Point{start}
	var options [4]Point
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		n := 0
		for _, d := range jumps {
			nx, ny := cur.X+d.X, cur.Y+d.Y
			if nx > 0 && ny > 0 && nx < m.Width-1 && ny < m.Height-1 && m.Wall(nx, ny) {
				options[n] = d
				n++
			}
		}
		if n == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		d := options[rng.IntN(n)]
		m.open(Point{cur.X + d.X/2, cur.Y + d.Y/2})
		next := Point{cur.X + d.X, cur.Y + d.Y}
		m.open(next)
		stack = append(stack, next)
	}
}

// braid opens a wall next to each dead-end room with probability p
// Walls are only removed when no 2×2 open block and no free-standing wall cell results
func (m *Maze) braid(p float64, rng *rand.Rand) {
	var options [4]Point
	for y := 1; y < m.Height-1; y += 2 {
		for x := 1; x < m.Width-1; x += 2 {
			if m.Wall(x, y) || m.exits(x, y) != 1 || rng.Float64() >= p {
				continue
			}
			n := 0
			for _, d := range jumps {
				wx, wy := x+d.X/2, y+d.Y/2
				if m.in(x+d.X, y+d.Y) && !m.Wall(x+d.X, y+d.Y) && m.Wall(wx, wy) && m.safeToOpen(wx, wy) {
					options[n] = Point{wx, wy}
					n++
				}
			}
			if n > 0 {
				m.open(options[rng.IntN(n)])
			}
		}
	}
}

func (m *Maze) safeToOpen(x, y int) bool {
	open := func(px, py int) bool { return m.in(px, py) && !m.Wall(px, py) }

	for _, q := range [4][2]int{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}} {
		if open(x+q[0], y) && open(x, y+q[1]) && open(x+q[0], y+q[1]) {
			return false
		}
	}

	for _, d := range steps {
		nx, ny := x+d.X, y+d.Y
		if !m.in(nx, ny) || !m.Wall(nx, ny) {
			continue
		}
		attached := false
		for _, d2 := range steps {
			ax, ay := nx+d2.X, ny+d2.Y
			if (ax != x || ay != y) && m.in(ax, ay) && m.Wall(ax, ay) {
				attached = true
				break
			}
		}
		if !attached {
			return false
		}
	}
	return true
}

// connect opens p and, if it is sealed in, one in-bounds neighbour
func (m *Maze) connect(p Point) {
	m.open(p)
	if m.exits(p.X, p.Y) > 0 {
		return
	}
	for _, d := range steps {
		nx, ny := p.X+d.X, p.Y+d.Y
		if nx > 0 && ny > 0 && nx < m.Width-1 && ny < m.Height-1 {
			m.open(Point{nx, ny})
			return
		}
	}
}

func (m *Maze) clearBorder() {
	for x := 0; x < m.Width; x++ {
		m.open(Point{x, 0})
		m.open(Point{x, m.Height - 1})
	}
	for y := 0; y < m.Height; y++ {
		m.open(Point{0, y})
		m.open(Point{m.Width - 1, y})
	}
}

// --- Helpers ---

func (m *Maze) exits(x, y int) int {
	n := 0
	for _, d := range steps {
		if !m.Wall(x+d.X, y+d.Y) {
			n++
		}
	}
	return n
}

func (m *Maze) in(x, y int) bool { return x >= 0 && y >= 0 && x < m.Width && y < m.Height }

func (m *Maze) index(p Point) int { return p.Y*m.Width + p.X }

func (m *Maze) open(p Point) {
	if m.in(p.X, p.Y) {
		m.walls[m.index(p)] = false
	}
}

func (m *Maze) clamp(p *Point, def Point) Point {
	if p == nil {
		return def
	}
	return Point{min(max(p.X, 0), m.Width-1), min(max(p.Y, 0), m.Height-1)}
}

// roomNear returns the odd-coordinate interior cell closest to p
func (m *Maze) roomNear(p Point) Point {
	x := min(max(p.X|1, 1), m.Width-2)
	y := min(max(p.Y|1, 1), m.Height-2)
	return Point{x, y}
}

func oddAtLeast3(n int) int {
	if n < 3 {
		return 3
	}
	if n%2 == 0 {
		return n - 1
	}
	return n
}
