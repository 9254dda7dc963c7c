package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"forms2xml/internal/logging"
	"forms2xml/internal/watch"
)

type recorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string]int)}
}

func (r *recorder) add(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[path]++
	return r.calls[path]
}

func (r *recorder) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[path]
}

func fastOptions() watch.Options {
	return watch.Options{
		Concurrency: 2,
		Retries:     3,
		Settle:      20 * time.Millisecond,
		Backoff:     time.Millisecond,
	}
}

// startWatcher runs w in the background and returns a stop function that
// cancels it and waits for Run to return.
func startWatcher(t *testing.T, w *watch.Watcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	// Give the watcher time to register before files are written.
	time.Sleep(50 * time.Millisecond)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Errorf("Run did not return after cancel")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWatcherHandlesNewFilesOnce(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	opts := fastOptions()
	opts.Settle = 100 * time.Millisecond
	w := watch.New(dir, func(ctx context.Context, path string) error {
		rec.add(path)
		return nil
	}, opts, logging.NewNop())
	stop := startWatcher(t, w)

	path := filepath.Join(dir, "orders.fmb")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.WriteString("chunk"); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.Close()

	waitFor(t, "handler call", func() bool { return rec.count(path) > 0 })
	time.Sleep(200 * time.Millisecond)
	stop()
	if got := rec.count(path); got != 1 {
		t.Fatalf("expected one call after the writes settled, got %d", got)
	}
}

func TestWatcherSkipsUnmatchedPaths(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	opts := fastOptions()
	opts.Match = func(path string) bool { return strings.HasSuffix(path, ".fmb") }
	w := watch.New(dir, func(ctx context.Context, path string) error {
		rec.add(path)
		return nil
	}, opts, logging.NewNop())
	stop := startWatcher(t, w)

	skipped := filepath.Join(dir, "notes.txt")
	handled := filepath.Join(dir, "orders.fmb")
	writeFile(t, skipped, "x")
	writeFile(t, handled, "x")

	waitFor(t, "matched file", func() bool { return rec.count(handled) == 1 })
	stop()
	if rec.count(skipped) != 0 {
		t.Fatalf("unmatched file was handled")
	}
}

func TestWatcherRetriesUntilSuccess(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	w := watch.New(dir, func(ctx context.Context, path string) error {
		if rec.add(path) < 3 {
			return errors.New("gateway busy")
		}
		return nil
	}, fastOptions(), logging.NewNop())
	stop := startWatcher(t, w)

	path := filepath.Join(dir, "orders.fmb")
	writeFile(t, path, "x")
	waitFor(t, "third attempt", func() bool { return rec.count(path) == 3 })
	time.Sleep(50 * time.Millisecond)
	stop()
	if got := rec.count(path); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWatcherGivesUp(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "retries exhausted", err: errors.New("gateway down"), want: 3},
		{name: "permanent", err: watch.Permanent(errors.New("same file")), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			rec := newRecorder()
			w := watch.New(dir, func(ctx context.Context, path string) error {
				rec.add(path)
				return tt.err
			}, fastOptions(), logging.NewNop())
			stop := startWatcher(t, w)

			path := filepath.Join(dir, "orders.fmb")
			writeFile(t, path, "x")
			waitFor(t, "first attempt", func() bool { return rec.count(path) > 0 })
			time.Sleep(100 * time.Millisecond)
			stop()
			if got := rec.count(path); got != tt.want {
				t.Fatalf("expected %d attempts, got %d", tt.want, got)
			}
		})
	}
}

func TestWatcherCapsConcurrency(t *testing.T) {
	dir := t.TempDir()
	var running, peak atomic.Int32
	var handled atomic.Int32
	opts := fastOptions()
	opts.Concurrency = 1
	w := watch.New(dir, func(ctx context.Context, path string) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		handled.Add(1)
		return nil
	}, opts, logging.NewNop())
	stop := startWatcher(t, w)

	for _, name := range []string{"a.fmb", "b.fmb", "c.fmb"} {
		writeFile(t, filepath.Join(dir, name), "x")
	}
	waitFor(t, "all files", func() bool { return handled.Load() == 3 })
	stop()
	if got := peak.Load(); got != 1 {
		t.Fatalf("expected at most one handler at a time, saw %d", got)
	}
}

func TestWatcherWaitsForRunningHandlers(t *testing.T) {
	dir := t.TempDir()
	started := make(chan struct{})
	var startOnce sync.Once
	var finished atomic.Bool
	w := watch.New(dir, func(ctx context.Context, path string) error {
		startOnce.Do(func() { close(started) })
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}, fastOptions(), logging.NewNop())
	stop := startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "orders.fmb"), "x")
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("handler never started")
	}
	stop()
	if !finished.Load() {
		t.Fatalf("Run returned before the running handler finished")
	}
}

func TestRunFailsForMissingDirectory(t *testing.T) {
	w := watch.New(filepath.Join(t.TempDir(), "missing"), func(context.Context, string) error { return nil }, fastOptions(), logging.NewNop())
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected error for a missing directory")
	}
}
