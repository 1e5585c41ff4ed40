package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"

	"trawler/internal/config"
	"trawler/internal/daemon"
	"trawler/internal/eventlog"
	"trawler/internal/logging"
	"trawler/internal/notifications"
	"trawler/internal/processed"
	"trawler/internal/queue"
	"trawler/internal/scheduler"
	"trawler/internal/services/analyzer"
	"trawler/internal/services/ytfeed"
	"trawler/internal/storage"
	"trawler/internal/subscriptions"
)

const logFileName = "trawlerd.log"

// runDaemon assembles every component and blocks until the context is
// cancelled by a signal.
func runDaemon(ctx context.Context, configPath string) error {
	cfg, resolvedPath, found, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, logPath, err := newDaemonLogger(cfg)
	if err != nil {
		return err
	}
	if !found {
		logger.Warn("no config file found, using defaults",
			logging.String("searched", resolvedPath))
	}

	// Boot housekeeping: prune rotated logs past retention and leave a pid
	// file for operators.
	logging.CleanupOldLogs(logger, cfg.Storage.LogDir, "trawlerd*.log", logPath, cfg.Logging.RetentionDays)
	pidPath := filepath.Join(cfg.Storage.DataDir, "trawlerd.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		logger.Warn("failed to write pid file", logging.String("path", pidPath), logging.Error(err))
	} else {
		defer os.Remove(pidPath)
	}

	db, err := storage.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	index := processed.NewIndex(db)
	queueStore := queue.NewStore(db, queue.Settings{
		MaxAttempts:                cfg.Queue.MaxAttempts,
		ProcessInterval:            time.Duration(cfg.Scheduler.ProcessIntervalSeconds) * time.Second,
		MaxItemAge:                 time.Duration(cfg.Queue.MaxItemAgeDays) * 24 * time.Hour,
		PermanentFailureSignatures: cfg.Queue.PermanentFailureSignatures,
	}, index)
	subStore := subscriptions.NewStore(db, subscriptions.Defaults{
		Priority:      cfg.Subscriptions.DefaultPriority,
		IntervalHours: cfg.Subscriptions.DefaultIntervalHours,
	})
	events := eventlog.NewStore(db)
	notifier := notifications.NewService(cfg)

	lister := ytfeed.NewLister(cfg)
	processor, err := analyzer.NewClient(cfg)
	if err != nil {
		_ = db.Close()
		return err
	}

	sched := scheduler.New(cfg, logger, subStore, queueStore, events, notifier, lister, processor, index)
	d, err := daemon.New(cfg, logger, db, queueStore, sched)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}

	logger.Info("trawlerd running",
		logging.String("config", resolvedPath),
		logging.String("database", cfg.DatabasePath()),
	)

	<-ctx.Done()
	logger.Info("trawlerd shutting down")
	d.Stop()
	return nil
}

// newDaemonLogger builds the process logger: console on a TTY, JSON
// otherwise, always teeing to the rotating daemon log file.
func newDaemonLogger(cfg *config.Config) (*slog.Logger, string, error) {
	format := cfg.Logging.Format
	if format == "" {
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			format = "console"
		} else {
			format = "json"
		}
	}

	logPath := filepath.Join(cfg.Storage.LogDir, logFileName)
	outputs := []string{"stdout"}
	if cfg.Storage.LogDir != "" {
		outputs = append(outputs, logPath)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      format,
		OutputPaths: outputs,
	})
	if err != nil {
		return nil, "", fmt.Errorf("init logger: %w", err)
	}
	return logger, logPath, nil
}
