package config

import (
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lixenwraith/chunknav/maze"
	"github.com/lixenwraith/chunknav/navigation"
	"github.com/lixenwraith/chunknav/parameter"
)

// HeightsConfig is a planar height field: base + slope_x*x + slope_y*y
type HeightsConfig struct {
	Base   float32 `yaml:"base"`
	SlopeX float32 `yaml:"slope_x"`
	SlopeY float32 `yaml:"slope_y"`
}

// MazeConfig stamps a generated maze onto the map, one maze cell per cell_size world units
type MazeConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Braiding   float64 `yaml:"braiding"`
	Seed       uint64  `yaml:"seed"`
	CellSize   float32 `yaml:"cell_size"`
	Origin     Vec2    `yaml:"origin"`
	OpenBorder bool    `yaml:"open_border"`
}

// ObstacleConfig is one oriented rectangle
type ObstacleConfig struct {
	Position Vec2    `yaml:"position"`
	Size     Vec2    `yaml:"size"`
	Rotation float32 `yaml:"rotation"` // Degrees
	Cost     int     `yaml:"cost"`     // 0 means unwalkable
	Flags    uint32  `yaml:"flags"`    // Node flags added under the rectangle
}

// TargetConfig selects a point, rect or radius target
type TargetConfig struct {
	Kind     string  `yaml:"kind"` // point | rect | radius
	Position Vec2    `yaml:"position"`
	Min      Vec2    `yaml:"min"`
	Max      Vec2    `yaml:"max"`
	Radius   float32 `yaml:"radius"`
	Flags    uint32  `yaml:"flags"` // Snap the target onto nodes carrying any of these
}

// SimConfig drives navsim run
type SimConfig struct {
	Ticks int     `yaml:"ticks"`
	Speed float32 `yaml:"speed"` // World units per tick
}

// Scenario is a map, its obstacles, a target and the agents heading for it
type Scenario struct {
	Config `yaml:",inline"`

	Heights   *HeightsConfig   `yaml:"heights"`
	Maze      *MazeConfig      `yaml:"maze"`
	Obstacles []ObstacleConfig `yaml:"obstacles"`
	Target    TargetConfig     `yaml:"target"`
	Agents    []Vec2           `yaml:"agents"`
	Sim       SimConfig        `yaml:"sim"`

	maze *maze.Maze
}

// LoadScenario reads and validates a scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load scenario %s", path)
	}
	return s, nil
}

// ParseScenario decodes a scenario over the config defaults
func ParseScenario(data []byte) (*Scenario, error) {
	s := &Scenario{
		Config: *Default(),
		Target: TargetConfig{Kind: "point"},
		Sim:    SimConfig{Ticks: parameter.NavSimTicks, Speed: parameter.NavSimSpeed},
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "unmarshal scenario")
	}
	if err := s.Prepare(); err != nil {
		return nil, err
	}
	return s, nil
}

// Prepare validates a scenario built in code and generates its maze
func (s *Scenario) Prepare() error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.maze = nil
	if s.Maze != nil {
		s.maze = maze.Generate(maze.Config{
			Width:      s.Maze.Width,
			Height:     s.Maze.Height,
			Braiding:   s.Maze.Braiding,
			OpenBorder: s.Maze.OpenBorder,
			Seed:       s.Maze.Seed,
		})
	}
	return nil
}

// CellCenter returns the world position of maze cell p
func (s *Scenario) CellCenter(p maze.Point) mgl32.Vec2 {
	if s.Maze == nil {
		return mgl32.Vec2{}
	}
	cs := s.Maze.CellSize
	return s.Maze.Origin.Vec().Add(mgl32.Vec2{(float32(p.X) + 0.5) * cs, (float32(p.Y) + 0.5) * cs})
}

// Validate checks the embedded config and scenario sections
func (s *Scenario) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	s.Target.Kind = strings.ToLower(s.Target.Kind)
	switch s.Target.Kind {
	case "", "point":
		s.Target.Kind = "point"
	case "rect":
		if s.Target.Min[0] > s.Target.Max[0] || s.Target.Min[1] > s.Target.Max[1] {
			return errors.Wrapf(ErrInvalid, "target rect min %v exceeds max %v", s.Target.Min, s.Target.Max)
		}
	case "radius":
		if s.Target.Radius <= 0 {
			return errors.Wrapf(ErrInvalid, "target radius %v", s.Target.Radius)
		}
	default:
		return errors.Wrapf(ErrInvalid, "target kind %q", s.Target.Kind)
	}
	for i, o := range s.Obstacles {
		if o.Size[0] <= 0 || o.Size[1] <= 0 {
			return errors.Wrapf(ErrInvalid, "obstacle %d size %v", i, o.Size)
		}
		if o.Cost < 0 || o.Cost > int(navigation.CostUnwalkable) {
			return errors.Wrapf(ErrInvalid, "obstacle %d cost %d outside [0,255]", i, o.Cost)
		}
	}
	if m := s.Maze; m != nil {
		if m.Width < 3 || m.Height < 3 {
			return errors.Wrapf(ErrInvalid, "maze size %dx%d", m.Width, m.Height)
		}
		if m.CellSize <= 0 {
			m.CellSize = s.Graph.NodeSize
		}
	}
	if s.Sim.Ticks < 0 || s.Sim.Speed < 0 {
		return errors.Wrapf(ErrInvalid, "sim ticks %d speed %v", s.Sim.Ticks, s.Sim.Speed)
	}
	return nil
}

// ObstacleList returns the explicit obstacles followed by one per maze wall cell
func (s *Scenario) ObstacleList() navigation.ObstacleList {
	out := make(navigation.ObstacleList, 0, len(s.Obstacles))
	for _, o := range s.Obstacles {
		cost := uint8(o.Cost)
		if o.Cost == 0 {
			cost = navigation.CostUnwalkable
		}
		out = append(out, navigation.Obstacle{
			Position: o.Position.Vec(),
			Size:     o.Size.Vec(),
			Rotation: mgl32.DegToRad(o.Rotation),
			Cost:     cost,
			Flags:    navigation.NodeFlag(o.Flags),
		})
	}
	if s.maze != nil {
		cs := s.Maze.CellSize
		// Shrunk slightly so a wall never stamps the passage beside it
		size := mgl32.Vec2{cs * 0.98, cs * 0.98}
		s.maze.Walls(func(x, y int) {
			out = append(out, navigation.Obstacle{
				Position: s.CellCenter(maze.Point{X: x, Y: y}),
				Size:     size,
				Cost:     navigation.CostUnwalkable,
			})
		})
	}
	return out
}

// MazeGrid returns the generated maze, nil when the scenario has none
func (s *Scenario) MazeGrid() *maze.Maze { return s.maze }

// HeightSampler returns the planar height field, nil for flat terrain
func (s *Scenario) HeightSampler() navigation.HeightSampler {
	if s.Heights == nil {
		return nil
	}
	h := *s.Heights
	return navigation.HeightFunc(func(p mgl32.Vec2) float32 {
		return h.Base + h.SlopeX*p.X() + h.SlopeY*p.Y()
	})
}

// NavTarget converts the target section
func (s *Scenario) NavTarget() navigation.Target {
	switch s.Target.Kind {
	case "rect":
		return navigation.RectTarget(s.Target.Min.Vec(), s.Target.Max.Vec())
	case "radius":
		return navigation.RadiusTarget(s.Target.Position.Vec(), s.Target.Radius)
	default:
		return navigation.PointTarget(s.Target.Position.Vec())
	}
}

// Filter returns the node filter used to snap the target
func (s *Scenario) Filter() navigation.Filter {
	return navigation.Filter{Flags: navigation.NodeFlag(s.Target.Flags)}
}

// AgentPositions returns the agent start positions
func (s *Scenario) AgentPositions() []mgl32.Vec2 {
	out := make([]mgl32.Vec2, len(s.Agents))
	for i, a := range s.Agents {
		out[i] = a.Vec()
	}
	return out
}
