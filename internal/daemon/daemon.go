package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"forms2xml/internal/codec"
	"forms2xml/internal/config"
	"forms2xml/internal/deps"
	"forms2xml/internal/gateway"
	"forms2xml/internal/journal"
	"forms2xml/internal/logging"
	"forms2xml/internal/preflight"
	"forms2xml/internal/staging"
)

// Daemon serves the conversion gateway and enforces single-instance
// execution per staging directory.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	codec   codec.Codec
	staging *staging.Manager
	journal *journal.Store
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Listen       string
	StartedAt    time.Time
	StagingDir   string
	StagedFiles  int
	LockFilePath string
	JournalPath  string
	Outcomes     map[string]int
	Dependencies []deps.Status
}

// New constructs a daemon around an established codec. store may be nil when
// the journal is disabled.
func New(cfg *config.Config, c codec.Codec, store *journal.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || c == nil || logger == nil {
		return nil, errors.New("daemon requires config, codec, and logger")
	}

	manager, err := staging.NewManager(cfg.Paths.StagingDir, logger)
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		codec:    c,
		staging:  manager,
		journal:  store,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}
	if store != nil {
		opts = append(opts, gateway.WithRecorder(store))
	}
	orchestrator := gateway.NewOrchestrator(c, cfg.ConversionTimeout(), logger)
	handler := gateway.NewHandler(orchestrator, manager, opts...)
	d.api = newAPIServer(cfg, d, handler, logger)
	return d, nil
}

// Start acquires the instance lock, sweeps leftovers from earlier runs, and
// begins serving. It returns once the listener is bound.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another forms2xml instance is already serving %s", d.cfg.Paths.StagingDir)
	}

	d.Sweep(ctx)
	d.logPreflight()

	if err := d.api.listen(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(d.api.serve)
	group.Go(func() error {
		<-groupCtx.Done()
		return d.api.shutdown(seconds(d.cfg.Server.ShutdownTimeoutSeconds))
	})
	group.Go(func() error {
		d.sweepLoop(groupCtx)
		return nil
	})

	d.cancel = cancel
	d.group = group
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("forms2xml gateway started",
		logging.String("address", d.api.addr()),
		logging.String("lock", d.lockPath),
		logging.String("staging_dir", d.staging.Dir()),
	)
	return nil
}

// Wait blocks until the server exits, either because the start context was
// cancelled or because serving failed.
func (d *Daemon) Wait() error {
	d.mu.Lock()
	group := d.group
	d.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop shuts the server down and releases the instance lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	cancel, group := d.cancel, d.group
	d.cancel, d.group = nil, nil
	d.running.Store(false)
	d.mu.Unlock()

	cancel()
	if err := group.Wait(); err != nil {
		d.logger.Warn("gateway exited with error", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release instance lock", logging.Error(err))
	}
	d.logger.Info("forms2xml gateway stopped")
}

// Close stops the daemon and releases the journal and codec.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.journal != nil {
		errs = append(errs, d.journal.Close())
	}
	if closer, ok := d.codec.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// Addr returns the bound listen address, or "" before Start.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Sweep removes stale staged files and prunes journal rows past retention.
func (d *Daemon) Sweep(ctx context.Context) {
	result := staging.CleanStale(ctx, d.staging.Dir(), d.cfg.StaleMaxAge(), d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("removed stale staged files", logging.Int("count", len(result.Removed)))
	}

	if d.journal == nil || d.cfg.Journal.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -d.cfg.Journal.RetentionDays)
	pruned, err := d.journal.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(d.logger, "journal prune failed", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "conversion history keeps growing"),
		)
		return
	}
	if pruned > 0 {
		d.logger.Info("pruned conversion journal", logging.Int64("rows", pruned))
	}
}

func (d *Daemon) logPreflight() {
	for _, result := range preflight.Failed(preflight.RunAll(d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "conversions may fail until this is fixed"),
			logging.String(logging.FieldErrorHint, "run `forms2xml deps` for a full report"),
		)
	}
}

func (d *Daemon) sweepLoop(ctx context.Context) {
	interval := d.cfg.SweepInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Listen:       d.api.addr(),
		StagingDir:   d.staging.Dir(),
		LockFilePath: d.lockPath,
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
	d.mu.Lock()
	status.StartedAt = d.startedAt
	d.mu.Unlock()

	if files, err := staging.ListFiles(d.staging.Dir()); err == nil {
		status.StagedFiles = len(files)
	}
	if d.journal != nil {
		status.JournalPath = d.journal.Path()
		if stats, err := d.journal.Stats(ctx); err == nil {
			status.Outcomes = stats
		} else {
			d.logger.Warn("journal stats unavailable", logging.Error(err))
		}
	}
	return status
}

// Conversions lists the most recent journal records.
func (d *Daemon) Conversions(ctx context.Context, limit int) ([]journal.Record, error) {
	if d.journal == nil {
		return nil, errors.New("conversion journal disabled")
	}
	return d.journal.List(ctx, limit)
}
