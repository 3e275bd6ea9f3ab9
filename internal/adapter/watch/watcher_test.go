package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder returns a ReloadFunc that reports each call on the channel.
func recorder(err error) (ReloadFunc, <-chan struct{}) {
	calls := make(chan struct{}, 16)
	return func(context.Context) error {
		calls <- struct{}{}
		return err
	}, calls
}

func waitCall(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("reload was not triggered")
	}
}

func start(t *testing.T, w *Watcher) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	return cancelFn, errc
}

func TestWatcher_PeriodicRefresh(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reload, calls := recorder(errors.New("source unavailable"))
	w := New("", time.Hour, reload, clock, discardLogger())

	cancel, done := start(t, w)
	defer cancel()

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Hour)
	waitCall(t, calls)

	// A failed reload does not stop the loop.
	clock.Advance(time.Hour)
	waitCall(t, calls)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcher_FileChangeIsDebounced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gtd.csv")
	require.NoError(t, os.WriteFile(path, []byte("eventid\n"), 0o600))

	clock := clockwork.NewFakeClock()
	reload, calls := recorder(nil)
	w := New(path, 0, reload, clock, discardLogger())

	cancel, done := start(t, w)
	defer cancel()

	// Keep touching the file until the watcher has armed its debounce timer.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("eventid\n1\n"), 0o600)
		ctx, stop := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer stop()
		return clock.BlockUntilContext(ctx, 1) == nil
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-calls:
		t.Fatal("reload fired before the debounce elapsed")
	default:
	}

	clock.Advance(DefaultDebounce)
	waitCall(t, calls)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	reload, _ := recorder(nil)
	w := New(filepath.Join(t.TempDir(), "absent", "gtd.csv"), 0, reload, clockwork.NewFakeClock(), discardLogger())

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch")
}

func TestWatcher_Relevant(t *testing.T) {
	w := New("/data/gtd.csv", 0, nil, nil, discardLogger())

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"write", fsnotify.Event{Name: "/data/gtd.csv", Op: fsnotify.Write}, true},
		{"create", fsnotify.Event{Name: "/data/gtd.csv", Op: fsnotify.Create}, true},
		{"rename", fsnotify.Event{Name: "/data/gtd.csv", Op: fsnotify.Rename}, true},
		{"chmod", fsnotify.Event{Name: "/data/gtd.csv", Op: fsnotify.Chmod}, false},
		{"sibling", fsnotify.Event{Name: "/data/other.csv", Op: fsnotify.Write}, false},
		{"unclean path", fsnotify.Event{Name: "/data/./gtd.csv", Op: fsnotify.Write}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.ev))
		})
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	reload, _ := recorder(nil)
	w := New("", 0, reload, clockwork.NewFakeClock(), discardLogger())

	cancel, done := start(t, w)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
