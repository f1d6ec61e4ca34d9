package engine

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/lixenwraith/chunknav/navigation"
)

// Scheduler fans chunk-local work out over a bounded set of goroutines
// One task per chunk; a pass returns only after every task has joined
type Scheduler struct {
	workers int
	log     *slog.Logger
}

// NewScheduler creates a scheduler running at most workers tasks at once
// workers <= 0 uses GOMAXPROCS
func NewScheduler(workers int, log *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{workers: workers, log: log}
}

// Workers returns the concurrency limit
func (s *Scheduler) Workers() int { return s.workers }

// Runner returns a navigation.Runner bound to ctx
// Tasks not yet started when ctx is cancelled are skipped and the context error is returned
func (s *Scheduler) Runner(ctx context.Context) navigation.Runner {
	return func(chunks []navigation.ChunkIndex, fn func(navigation.ChunkIndex) error) error {
		return s.Run(ctx, chunks, fn)
	}
}

// Run executes fn for every chunk and waits for all of them
func (s *Scheduler) Run(ctx context.Context, chunks []navigation.ChunkIndex, fn func(navigation.ChunkIndex) error) error {
	if len(chunks) == 0 {
		return ctx.Err()
	}
	if s.workers == 1 || len(chunks) == 1 {
		for _, ci := range chunks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ci); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for _, ci := range chunks {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			return fn(ci)
		})
	}
	if err := eg.Wait(); err != nil {
		s.log.Debug("chunk pass aborted", slog.Int("chunks", len(chunks)), slog.Any("error", err))
		return err
	}
	return ctx.Err()
}
