// Package watch re-renders the project when sources change. A filesystem
// watcher covers the source tree; events are debounced so one editor save
// does not trigger a rebuild per write. An optional periodic job rebuilds
// everything on a fixed interval, and an optional HTTP listener exposes
// build metrics.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docgen/internal/logfields"
	"git.home.luguber.info/inful/docgen/internal/metrics"
	"git.home.luguber.info/inful/docgen/internal/project"
)

const defaultDebounce = 500 * time.Millisecond

// Options configures a watch session.
type Options struct {
	// Debounce is the quiet period after the last event before a rebuild
	// starts.
	Debounce time.Duration
	// RebuildEvery enables a periodic full rebuild when positive.
	RebuildEvery time.Duration
	// MetricsAddr serves Prometheus metrics on host:port when set.
	MetricsAddr string
	// MetricsRegistry backs the metrics endpoint.
	MetricsRegistry *prom.Registry
	// Targets narrows the rebuilt targets; empty uses the project config.
	Targets []string
}

// Watcher drives rebuild-on-change sessions over one project.
type Watcher struct {
	project *project.Project
	fsw     *fsnotify.Watcher
	opts    Options
	trigger chan struct{}
}

// New prepares a watcher. Run starts it.
func New(p *project.Project, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	return &Watcher{
		project: p,
		fsw:     fsw,
		opts:    opts,
		trigger: make(chan struct{}, 1),
	}, nil
}

// Run renders once, then blocks rebuilding on changes until ctx is
// canceled. Rebuild failures are logged and watching continues; only
// setup failures end the session early.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.watchTree(w.project.SourceRoot()); err != nil {
		return err
	}

	if w.opts.RebuildEvery > 0 {
		sched, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		_, err = sched.NewJob(
			gocron.DurationJob(w.opts.RebuildEvery),
			gocron.NewTask(w.requestRebuild),
			gocron.WithName("periodic-rebuild"),
		)
		if err != nil {
			return fmt.Errorf("schedule periodic rebuild: %w", err)
		}
		sched.Start()
		defer func() { _ = sched.Shutdown() }()
		slog.Info("Periodic rebuild enabled", slog.Duration("interval", w.opts.RebuildEvery))
	}

	if w.opts.MetricsAddr != "" {
		stop := w.serveMetrics()
		defer stop()
	}

	slog.Info("Watching for changes", logfields.Path(w.project.SourceRoot()))
	w.rebuild(ctx)

	var timer *time.Timer
	var timerC <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.opts.Debounce)
			timerC = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.opts.Debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(ev) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				// New directories are not covered by the existing watch.
				w.addIfDir(ev.Name)
			}
			slog.Debug("Source changed", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("Watcher error", logfields.Error(err))

		case <-w.trigger:
			schedule()

		case <-timerC:
			w.rebuild(ctx)
		}
	}
}

// requestRebuild queues a rebuild; a pending request absorbs new ones.
func (w *Watcher) requestRebuild() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *Watcher) rebuild(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := w.project.Render(ctx, project.RenderRequest{Targets: w.opts.Targets})
	if err != nil {
		slog.Warn("Rebuild finished with failures", logfields.Error(err))
		return
	}
	slog.Info("Rebuild complete", slog.Int("built", result.Manifest.Built()))
}

// watchTree registers the source directory and every non-hidden
// subdirectory; the watcher is not recursive by itself.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) addIfDir(p string) {
	if strings.HasPrefix(filepath.Base(p), ".") {
		return
	}
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.fsw.Add(p); err != nil {
		slog.Warn("Could not watch new directory", logfields.Path(p), logfields.Error(err))
	}
}

// serveMetrics starts the metrics listener and returns its shutdown func.
func (w *Watcher) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(w.opts.MetricsRegistry))
	srv := &http.Server{Addr: w.opts.MetricsAddr, Handler: mux}

	go func() {
		slog.Info("Metrics listening", slog.String("addr", w.opts.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics listener failed", logfields.Error(err))
		}
	}()

	return func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}
}

// relevantEvent filters out editor droppings and hidden files.
func relevantEvent(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(ev.Name)
	switch {
	case strings.HasPrefix(base, "."):
		return false
	case strings.HasSuffix(base, "~"), strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".tmp"):
		return false
	}
	return true
}
