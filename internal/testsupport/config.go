package testsupport

import (
	"path/filepath"
	"testing"

	"trawler/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Intervals are left at their defaults; tests drive the scheduler manually.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DataDir = filepath.Join(base, "data")
	cfg.Storage.LogDir = filepath.Join(base, "logs")
	cfg.Scheduler.Enabled = true
	cfg.Analyzer.Endpoint = "http://127.0.0.1:1/analyze"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAnalyzerEndpoint points the config at a test analyzer server.
func WithAnalyzerEndpoint(endpoint string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Analyzer.Endpoint = endpoint
	}
}

// WithNtfyTopic enables notifications against a test ntfy server.
func WithNtfyTopic(topic string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Notifications.NtfyTopic = topic
	}
}

// WithMaxAttempts overrides the queue retry budget.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxAttempts = attempts
	}
}
