// Package watch triggers dataset reloads when the dataset file changes on
// disk or a refresh interval elapses.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

// DefaultDebounce absorbs the burst of events a single file copy produces.
const DefaultDebounce = 2 * time.Second

// ReloadFunc rebuilds the event store. Errors are logged and do not stop the watcher.
type ReloadFunc func(ctx context.Context) error

// Watcher runs ReloadFunc on file changes and on a fixed interval. Either
// trigger may be disabled: an empty path skips file watching, a zero
// interval skips periodic refresh.
type Watcher struct {
	path     string
	interval time.Duration
	debounce time.Duration
	reload   ReloadFunc
	clock    clockwork.Clock
	logger   *slog.Logger
}

// New creates a Watcher. A nil clock uses real time.
func New(path string, interval time.Duration, reload ReloadFunc, clock clockwork.Clock, logger *slog.Logger) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if path != "" {
		path = filepath.Clean(path)
	}
	return &Watcher{
		path:     path,
		interval: interval,
		debounce: DefaultDebounce,
		reload:   reload,
		clock:    clock,
		logger:   logger,
	}
}

// Run blocks until ctx is done. It returns an error only if the file watch
// cannot be established.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
		tick   <-chan time.Time
	)

	if w.path != "" {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create file watcher: %w", err)
		}
		defer fw.Close()
		// Watch the directory: dataset updates usually replace the file, which
		// drops a watch held on the file itself.
		if err := fw.Add(filepath.Dir(w.path)); err != nil {
			return fmt.Errorf("watch %s: %w", w.path, err)
		}
		events, errs = fw.Events, fw.Errors
		w.logger.Info("watching dataset", "path", w.path)
	}

	if w.interval > 0 {
		ticker := w.clock.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.Chan()
		w.logger.Info("periodic refresh enabled", "interval", w.interval)
	}

	var pending clockwork.Timer
	var fire <-chan time.Time
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("dataset changed", "path", ev.Name, "op", ev.Op.String())
			if pending == nil {
				pending = w.clock.NewTimer(w.debounce)
			} else {
				pending.Reset(w.debounce)
			}
			fire = pending.Chan()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("file watcher error", "error", err)
		case <-fire:
			fire = nil
			w.run(ctx, "file_change")
		case <-tick:
			w.run(ctx, "interval")
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) run(ctx context.Context, trigger string) {
	w.logger.Info("dataset reload triggered", "trigger", trigger)
	if err := w.reload(ctx); err != nil {
		w.logger.Error("dataset reload failed, keeping previous snapshot", "trigger", trigger, "error", err)
	}
}
