package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"cutroom/internal/api"
	"cutroom/internal/config"
	"cutroom/internal/logging"
	"cutroom/internal/preflight"
	"cutroom/internal/queue"
	"cutroom/internal/scheduler"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	sched     *scheduler.Scheduler
	heartbeat *scheduler.HeartbeatMonitor
	service   *api.Service
	apiSrv    *apiServer
	logPath   string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		logPath:  filepath.Join(cfg.Paths.LogDir, "cutroom.log"),
		lockPath: filepath.Join(cfg.Paths.LogDir, "cutroomd.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.heartbeat = scheduler.NewHeartbeatMonitor(
		store,
		logger,
		time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
		time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
	)
	d.sched = scheduler.New(scheduler.Options{
		Store:                store,
		Execute:              d.executeJob,
		MaxConcurrent:        cfg.Export.MaxConcurrent,
		MaxConcurrentPerUser: cfg.Export.MaxConcurrentPerUser,
		Logger:               logger,
	})
	d.service = api.NewService(store, d.sched)

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiSrv = srv
	return d, nil
}

// Start acquires the daemon lock, reclaims abandoned jobs, and launches the
// scheduler and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cutroom daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.heartbeat.ReclaimStaleJobs(d.ctx); err != nil {
		d.logger.Warn("stale job reclamation failed", logging.Error(err))
	}
	if err := d.sched.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.apiSrv.start(d.ctx); err != nil {
		d.sched.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("cutroom daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock. Running
// exports are interrupted and left retryable.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	// The scheduler must mark itself stopped before any job context dies,
	// otherwise an interrupted job persists as cancelled instead of as a
	// retryable shutdown failure.
	d.sched.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.apiSrv.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("cutroom daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Service exposes the shared project and job operations.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status including preflight results.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	active, pending := d.sched.Snapshot()
	status := api.DaemonStatus{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		DBPath:     d.store.Path(),
		LockPath:   d.lockPath,
		ActiveJobs: active,
		QueuedJobs: pending,
	}
	for _, result := range preflight.RunAll(ctx, d.cfg) {
		status.Checks = append(status.Checks, api.PreflightCheck{
			Name:      result.Name,
			Available: result.Passed,
			Detail:    result.Detail,
		})
	}
	return status
}
