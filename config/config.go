// Package config loads graph, agent and engine settings and scenario files from YAML
package config

import (
	_ "embed"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lixenwraith/chunknav/engine"
	"github.com/lixenwraith/chunknav/navigation"
	"github.com/lixenwraith/chunknav/parameter"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "navsim.yaml"
	DefaultConfigPath = DefaultConfigDir + "/" + DefaultConfigFile
)

//go:embed default.yaml
var embeddedDefault []byte

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("config: invalid")

// Vec2 decodes from a two-element sequence [x, y] or a mapping {x: , y: }
type Vec2 mgl32.Vec2

// UnmarshalYAML implements yaml.Unmarshaler
func (v *Vec2) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var xy []float32
		if err := value.Decode(&xy); err != nil {
			return err
		}
		if len(xy) != 2 {
			return errors.Errorf("line %d: vector needs 2 components, got %d", value.Line, len(xy))
		}
		*v = Vec2{xy[0], xy[1]}
	case yaml.MappingNode:
		var xy struct {
			X float32 `yaml:"x"`
			Y float32 `yaml:"y"`
		}
		if err := value.Decode(&xy); err != nil {
			return err
		}
		*v = Vec2{xy.X, xy.Y}
	default:
		return errors.Errorf("line %d: vector must be [x, y] or {x, y}", value.Line)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (v Vec2) MarshalYAML() (any, error) {
	return []float32{v[0], v[1]}, nil
}

// Vec returns the mathgl vector
func (v Vec2) Vec() mgl32.Vec2 { return mgl32.Vec2(v) }

// GraphConfig describes grid dimensions
type GraphConfig struct {
	Width       int     `yaml:"width"`  // Chunks along x
	Height      int     `yaml:"height"` // Chunks along y
	ChunkWidth  int     `yaml:"chunk_width"`
	ChunkHeight int     `yaml:"chunk_height"`
	NodeSize    float32 `yaml:"node_size"`
	Origin      Vec2    `yaml:"origin"`
	MaxSlope    float32 `yaml:"max_slope"` // Degrees
}

// AgentConfig describes the agent the graph is built for
type AgentConfig struct {
	Radius   float32 `yaml:"radius"`
	MaxSlope float32 `yaml:"max_slope"` // Degrees; 0 uses the graph's
}

// EngineConfig tunes the GraphContext
type EngineConfig struct {
	Workers       int  `yaml:"workers"`
	StrictRouting bool `yaml:"strict_routing"`
	DisableCache  bool `yaml:"disable_cache"`
}

// Config is the root of navsim.yaml
type Config struct {
	Graph  GraphConfig  `yaml:"graph"`
	Agent  AgentConfig  `yaml:"agent"`
	Engine EngineConfig `yaml:"engine"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			Width:       8,
			Height:      8,
			ChunkWidth:  parameter.NavChunkWidth,
			ChunkHeight: parameter.NavChunkHeight,
			NodeSize:    parameter.NavNodeSize,
			MaxSlope:    parameter.NavMaxSlope,
		},
		Engine: EngineConfig{Workers: parameter.NavDefaultWorkers},
	}
}

// Load reads a config file over the defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return cfg, nil
}

// LoadAuto loads with priority: customPath > DefaultConfigPath > embedded default
func LoadAuto(customPath string) (*Config, error) {
	if customPath != "" {
		return Load(customPath)
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return Load(DefaultConfigPath)
	}
	return Parse(embeddedDefault)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that NewGraph would reject plus engine settings
func (c *Config) Validate() error {
	g := c.Graph
	switch {
	case g.Width <= 0 || g.Height <= 0:
		return errors.Wrapf(ErrInvalid, "graph size %dx%d", g.Width, g.Height)
	case g.ChunkWidth < 2 || g.ChunkHeight < 2:
		return errors.Wrapf(ErrInvalid, "chunk size %dx%d, need at least 2x2", g.ChunkWidth, g.ChunkHeight)
	case g.NodeSize <= 0:
		return errors.Wrapf(ErrInvalid, "node size %v", g.NodeSize)
	case g.MaxSlope < 0 || g.MaxSlope > 90:
		return errors.Wrapf(ErrInvalid, "max slope %v outside [0,90]", g.MaxSlope)
	case c.Agent.Radius < 0:
		return errors.Wrapf(ErrInvalid, "agent radius %v", c.Agent.Radius)
	case c.Agent.MaxSlope < 0 || c.Agent.MaxSlope > 90:
		return errors.Wrapf(ErrInvalid, "agent max slope %v outside [0,90]", c.Agent.MaxSlope)
	case c.Engine.Workers < 0:
		return errors.Wrapf(ErrInvalid, "workers %d", c.Engine.Workers)
	}
	return nil
}

// Properties converts the graph section
func (c *Config) Properties() navigation.Properties {
	return navigation.Properties{
		Width:       c.Graph.Width,
		Height:      c.Graph.Height,
		ChunkWidth:  c.Graph.ChunkWidth,
		ChunkHeight: c.Graph.ChunkHeight,
		NodeSize:    c.Graph.NodeSize,
		Origin:      c.Graph.Origin.Vec(),
		MaxSlope:    c.Graph.MaxSlope,
	}
}

// AgentConfig converts the agent section
func (c *Config) AgentConfig() navigation.AgentConfig {
	return navigation.AgentConfig{Radius: c.Agent.Radius, MaxSlope: c.Agent.MaxSlope}
}

// EngineOptions converts the engine section
func (c *Config) EngineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithWorkers(c.Engine.Workers),
		engine.WithStrictRouting(c.Engine.StrictRouting),
	}
	if c.Engine.DisableCache {
		opts = append(opts, engine.WithoutCache())
	}
	return opts
}
