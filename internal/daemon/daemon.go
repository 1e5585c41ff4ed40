package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"trawler/internal/config"
	"trawler/internal/logging"
	"trawler/internal/notifications"
	"trawler/internal/queue"
	"trawler/internal/scheduler"
	"trawler/internal/storage"
)

// Daemon owns the process-wide resources and enforces single-instance
// execution through a lock file in the data directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *storage.DB
	queue  *queue.Store
	sched  *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Scheduler    scheduler.Status
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, db *storage.DB, queueStore *queue.Store, sched *scheduler.Scheduler) (*Daemon, error) {
	if cfg == nil || logger == nil || db == nil || queueStore == nil || sched == nil {
		return nil, errors.New("daemon requires config, logger, database, queue store, and scheduler")
	}

	lockPath := filepath.Join(cfg.Storage.DataDir, "trawlerd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		db:       db,
		queue:    queueStore,
		sched:    sched,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another trawler daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.sched.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("trawler daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the scheduler and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.sched.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("trawler daemon stopped")
}

// Close releases resources held by the daemon, including the database.
func (d *Daemon) Close() error {
	d.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// RetryFailed resets every terminally failed item back to queued.
func (d *Daemon) RetryFailed(ctx context.Context) (int64, error) {
	count, err := d.queue.RetryAllFailed(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		d.logger.Info("failed items reset for retry", logging.Int64("count", count))
	}
	return count, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	schedStatus, err := d.sched.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Scheduler:    schedStatus,
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}, nil
}
