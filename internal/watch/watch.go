package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/semaphore"

	"forms2xml/internal/logging"
)

// Defaults applied to zero Options fields.
const (
	DefaultConcurrency = 8
	DefaultRetries     = 10
	DefaultSettle      = time.Second
	DefaultBackoff     = time.Second
)

// Handler processes one file. It is called again after a failure until
// Options.Retries attempts were made or it returns a Permanent error.
type Handler func(ctx context.Context, path string) error

// Options tunes a Watcher.
type Options struct {
	// Concurrency caps handlers running at once.
	Concurrency int
	// Retries is the number of attempts per file.
	Retries int
	// Settle is the quiet period after the last event for a file before it
	// is handled, so copies in progress are not picked up half written.
	Settle time.Duration
	// Backoff grows linearly between attempts.
	Backoff time.Duration
	// Match selects the paths to handle. Nil handles every path.
	Match func(path string) bool
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Watcher hands files appearing in a directory to a Handler.
type Watcher struct {
	dir    string
	handle Handler
	opts   Options
	logger *slog.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New builds a Watcher for dir.
func New(dir string, handle Handler, opts Options, logger *slog.Logger) *Watcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	return &Watcher{
		dir:     dir,
		handle:  handle,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "watch"),
		sem:     semaphore.NewWeighted(int64(opts.Concurrency)),
		pending: make(map[string]*time.Timer),
	}
}

// Run watches until ctx is done, then waits for running handlers. Files
// still settling when ctx ends are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	defer w.wg.Wait()
	defer w.stopTimers()

	w.logger.Info("watching directory",
		logging.String("dir", w.dir),
		logging.Int("concurrency", w.opts.Concurrency),
		logging.Int("retries", w.opts.Retries),
	)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped", logging.String("dir", w.dir))
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if w.opts.Match != nil && !w.opts.Match(ev.Name) {
				continue
			}
			w.schedule(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "file watcher error", "watch_error",
				logging.String("dir", w.dir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "some file events may have been missed"),
			)
		}
	}
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.opts.Settle)
		return
	}

	var t *time.Timer
	w.wg.Add(1)
	t = time.AfterFunc(w.opts.Settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.process(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer w.sem.Release(1)

	var err error
	attempt := 0
	for attempt < w.opts.Retries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * w.opts.Backoff):
			}
		}
		attempt++
		start := time.Now()
		if err = w.handle(ctx, path); err == nil {
			w.logger.Info("file handled",
				logging.String("path", path),
				logging.Int("attempt", attempt),
				logging.Duration("duration", time.Since(start)),
			)
			return
		}
		if ctx.Err() != nil {
			return
		}
		var perm permanentError
		if errors.As(err, &perm) {
			break
		}
		w.logger.Warn("attempt failed",
			logging.String("path", path),
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
	}
	logging.ErrorWithContext(w.logger, "giving up on file", "watch_failed",
		logging.String("path", path),
		logging.Int("attempts", attempt),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "fix the module and copy it into the directory again"),
	)
}
