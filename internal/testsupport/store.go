package testsupport

import (
	"testing"
	"time"

	"trawler/internal/config"
	"trawler/internal/queue"
	"trawler/internal/storage"
	"trawler/internal/subscriptions"
)

// MustOpenDB opens the SQLite database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	db, err := storage.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// QueueSettings derives queue settings from a config the same way the
// daemon wiring does.
func QueueSettings(cfg *config.Config) queue.Settings {
	return queue.Settings{
		MaxAttempts:                cfg.Queue.MaxAttempts,
		ProcessInterval:            time.Duration(cfg.Scheduler.ProcessIntervalSeconds) * time.Second,
		MaxItemAge:                 time.Duration(cfg.Queue.MaxItemAgeDays) * 24 * time.Hour,
		PermanentFailureSignatures: cfg.Queue.PermanentFailureSignatures,
	}
}

// SubscriptionDefaults derives registration defaults from a config the same
// way the daemon wiring does.
func SubscriptionDefaults(cfg *config.Config) subscriptions.Defaults {
	return subscriptions.Defaults{
		Priority:      cfg.Subscriptions.DefaultPriority,
		IntervalHours: cfg.Subscriptions.DefaultIntervalHours,
	}
}

// MustOpenQueue opens a queue store over a fresh database, without a
// processed-items index.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	return queue.NewStore(MustOpenDB(t, cfg), QueueSettings(cfg), nil)
}
