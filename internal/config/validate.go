package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSubscriptions(); err != nil {
		return err
	}
	if err := c.validateAnalyzer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage.data_dir must be set")
	}
	if strings.TrimSpace(c.Storage.Database) == "" {
		return errors.New("storage.database must be set")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.PollIntervalMinutes <= 0 {
		return errors.New("scheduler.poll_interval_minutes must be positive")
	}
	if c.Scheduler.ProcessIntervalSeconds <= 0 {
		return errors.New("scheduler.process_interval_seconds must be positive")
	}
	if c.Scheduler.CleanupIntervalMinutes <= 0 {
		return errors.New("scheduler.cleanup_interval_minutes must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxAttempts < 1 {
		return errors.New("queue.max_attempts must be at least 1")
	}
	if c.Queue.StaleTimeoutMinutes <= 0 {
		return errors.New("queue.stale_timeout_minutes must be positive")
	}
	if c.Queue.MaxItemAgeDays <= 0 {
		return errors.New("queue.max_item_age_days must be positive")
	}
	if c.Queue.FirstPollMaxItems <= 0 {
		return errors.New("queue.first_poll_max_items must be positive")
	}
	return nil
}

func (c *Config) validateSubscriptions() error {
	if c.Subscriptions.DefaultPriority < 0 {
		return errors.New("subscriptions.default_priority must not be negative")
	}
	if c.Subscriptions.DefaultIntervalHours <= 0 {
		return errors.New("subscriptions.default_interval_hours must be positive")
	}
	return nil
}

func (c *Config) validateAnalyzer() error {
	endpoint := strings.TrimSpace(c.Analyzer.Endpoint)
	if endpoint == "" {
		// The daemon refuses to start the scheduler without a processor;
		// config check still passes so operators can inspect settings.
		return nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("analyzer.endpoint %q is not a valid URL", endpoint)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}
