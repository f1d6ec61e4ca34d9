package engine

import (
	"log/slog"

	"github.com/lixenwraith/chunknav/navigation"
	"github.com/lixenwraith/chunknav/parameter"
	"github.com/lixenwraith/chunknav/status"
)

type options struct {
	obstacles navigation.ObstacleSource
	workers   int
	log       *slog.Logger
	status    *status.Registry
	alloc     navigation.Allocator
	router    navigation.RouterOptions
	noCache   bool
}

// Option configures BuildGraph
type Option func(*options)

// WithObstacles sets the obstacle source queried on every chunk rebuild
func WithObstacles(src navigation.ObstacleSource) Option {
	return func(o *options) { o.obstacles = src }
}

// WithWorkers bounds per-chunk parallelism; <= 0 uses GOMAXPROCS
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger replaces the default component logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStatus publishes telemetry into reg
func WithStatus(reg *status.Registry) Option {
	return func(o *options) { o.status = reg }
}

// WithAllocator sets the field buffer allocator
func WithAllocator(a navigation.Allocator) Option {
	return func(o *options) { o.alloc = a }
}

// WithStrictRouting disables the same-area route shortcut
func WithStrictRouting(strict bool) Option {
	return func(o *options) { o.router.Strict = strict }
}

// WithoutCache disables the solved-chunk cache
func WithoutCache() Option {
	return func(o *options) { o.noCache = true }
}

func buildOptions(opts []Option) options {
	o := options{workers: parameter.NavDefaultWorkers}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = slog.Default().With(slog.String("component", "engine"))
	}
	if o.status == nil {
		o.status = status.NewRegistry()
	}
	if o.alloc == nil {
		o.alloc = navigation.NewPoolAllocator()
	}
	if o.obstacles == nil {
		o.obstacles = navigation.ObstacleList(nil)
	}
	return o
}
