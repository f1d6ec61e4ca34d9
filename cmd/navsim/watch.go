package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/chunknav/config"
	"github.com/lixenwraith/chunknav/engine"
	"github.com/lixenwraith/chunknav/navigation"
	"github.com/lixenwraith/chunknav/parameter"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <scenario.yaml>",
		Short: "Rebuild the scenario incrementally whenever the file changes",
		Long: `watch solves the scenario once, then watches the file. Each save is
diffed against the previous obstacles; only the chunks touched by added or
removed obstacles are restamped and paths covering them are repathed.
A change to the graph, agent or engine sections rebuilds from scratch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchScenario(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
}

// liveScenario is a solved scenario that accepts reloads
type liveScenario struct {
	scenario *config.Scenario
	gc       *engine.GraphContext
	path     engine.PathHandle
}

type reloadStats struct {
	Rebuilt bool
	Changed int // Obstacles added or removed
	Dirty   int // Chunks restamped
	State   navigation.PathState
}

func startScenario(ctx context.Context, s *config.Scenario) (*liveScenario, error) {
	gc, err := buildScenario(ctx, s)
	if err != nil {
		return nil, err
	}
	h, err := solveScenario(ctx, gc, s)
	if err != nil {
		gc.Close()
		return nil, err
	}
	return &liveScenario{scenario: s, gc: gc, path: h}, nil
}

func (l *liveScenario) Close() { l.gc.Close() }

// reload moves the live graph to next, restamping only the chunks whose obstacles changed
func (l *liveScenario) reload(ctx context.Context, next *config.Scenario) (reloadStats, error) {
	if next.Config != l.scenario.Config {
		fresh, err := startScenario(ctx, next)
		if err != nil {
			return reloadStats{}, err
		}
		l.gc.Close()
		*l = *fresh
		st, err := l.gc.PathState(l.path)
		return reloadStats{Rebuilt: true, State: st}, err
	}

	oldObs, newObs := l.scenario.ObstacleList(), next.ObstacleList()
	changed := obstacleDiff(oldObs, newObs)
	dirty := l.gc.DirtyMask(changed...)

	l.gc.SetObstacles(newObs)
	if err := l.gc.UpdateObstacles(ctx, dirty).Wait(ctx); err != nil {
		return reloadStats{}, err
	}
	if next.Target != l.scenario.Target {
		if err := l.gc.SetTargetRegion(l.path, next.NavTarget(), next.Filter()); err != nil {
			return reloadStats{}, err
		}
	}
	if err := l.gc.SetFrom(l.path, next.AgentPositions()...); err != nil {
		return reloadStats{}, err
	}
	if err := l.gc.UpdatePath(ctx, l.path, dirty).Wait(ctx); err != nil {
		return reloadStats{}, err
	}
	l.scenario = next

	st, err := l.gc.PathState(l.path)
	return reloadStats{Changed: len(changed), Dirty: dirty.Len(), State: st}, err
}

// obstacleDiff returns the obstacles present in exactly one of a and b, counting duplicates
func obstacleDiff(a, b navigation.ObstacleList) []navigation.Obstacle {
	count := make(map[navigation.Obstacle]int, len(a))
	for _, o := range a {
		count[o]++
	}
	for _, o := range b {
		count[o]--
	}
	var out []navigation.Obstacle
	for o, n := range count {
		for ; n != 0; n -= sign(n) {
			out = append(out, o)
		}
	}
	return out
}

func sign(n int) int {
	if n < 0 {
		return -1
	}
	return 1
}

func watchScenario(ctx context.Context, path string, out io.Writer) error {
	s, err := config.LoadScenario(path)
	if err != nil {
		return err
	}
	live, err := startScenario(ctx, s)
	if err != nil {
		return err
	}
	defer func() { live.Close() }()

	st, _ := live.gc.PathState(live.path)
	fmt.Fprintf(out, "watching %s  route: %s  portals: %d\n", path, st, live.gc.Graph().PortalCount())

	w, err := newFileWatcher(path, time.Duration(parameter.NavWatchDebounceMs)*time.Millisecond)
	if err != nil {
		return err
	}
	defer w.Close()

	log := slog.Default().With(slog.String("component", "watch"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", slog.Any("error", err))
		case _, ok := <-w.Events:
			if !ok {
				return nil
			}
			next, err := config.LoadScenario(path)
			if err != nil {
				// Keep serving the last good scenario while the file is mid-edit
				fmt.Fprintf(out, "reload rejected: %v\n", err)
				log.Warn("reload rejected", slog.Any("error", err))
				continue
			}
			start := time.Now()
			rs, err := live.reload(ctx, next)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "reload")
			}
			if rs.Rebuilt {
				fmt.Fprintf(out, "rebuilt  route: %s  in %v\n", rs.State, time.Since(start).Round(time.Microsecond))
				continue
			}
			fmt.Fprintf(out, "reloaded  obstacles changed: %d  chunks: %d  route: %s  in %v\n",
				rs.Changed, rs.Dirty, rs.State, time.Since(start).Round(time.Microsecond))
		}
	}
}

// fileWatcher reports writes to one file, coalescing bursts within the debounce window
// The parent directory is watched so editors that save by rename are still seen
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	target   string
	debounce time.Duration
	Events   chan string
	Errors   chan error
	closeCh  chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newFileWatcher(path string, debounce time.Duration) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	w := &fileWatcher{
		watcher:  fw,
		target:   abs,
		debounce: debounce,
		Events:   make(chan string, 1),
		Errors:   make(chan error, 1),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *fileWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *fileWatcher) run() {
	defer close(w.done)
	defer close(w.Events)
	defer close(w.Errors)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(ev.Name) != w.target {
				continue
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			select {
			case w.Events <- w.target:
			default:
				// A reload is already pending
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
			}
		case <-w.closeCh:
			timer.Stop()
			return
		}
	}
}
