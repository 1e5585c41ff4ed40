package config

import (
	"os"
	"strings"
)

// normalize expands paths, fills zeroed fields from defaults, and applies
// environment fallbacks before validation.
func (c *Config) normalize() error {
	defaults := Default()

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = defaults.Storage.DataDir
	}
	if strings.TrimSpace(c.Storage.Database) == "" {
		c.Storage.Database = defaults.Storage.Database
	}
	if strings.TrimSpace(c.Storage.LogDir) == "" {
		c.Storage.LogDir = defaults.Storage.LogDir
	}

	var err error
	if c.Storage.DataDir, err = expandPath(c.Storage.DataDir); err != nil {
		return err
	}
	if c.Storage.LogDir, err = expandPath(c.Storage.LogDir); err != nil {
		return err
	}

	if c.Scheduler.PollIntervalMinutes <= 0 {
		c.Scheduler.PollIntervalMinutes = defaults.Scheduler.PollIntervalMinutes
	}
	if c.Scheduler.ProcessIntervalSeconds <= 0 {
		c.Scheduler.ProcessIntervalSeconds = defaults.Scheduler.ProcessIntervalSeconds
	}
	if c.Scheduler.CleanupIntervalMinutes <= 0 {
		c.Scheduler.CleanupIntervalMinutes = defaults.Scheduler.CleanupIntervalMinutes
	}

	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = defaults.Queue.MaxAttempts
	}
	if c.Queue.StaleTimeoutMinutes <= 0 {
		c.Queue.StaleTimeoutMinutes = defaults.Queue.StaleTimeoutMinutes
	}
	if c.Queue.MaxItemAgeDays <= 0 {
		c.Queue.MaxItemAgeDays = defaults.Queue.MaxItemAgeDays
	}
	if c.Queue.FirstPollMaxItems <= 0 {
		c.Queue.FirstPollMaxItems = defaults.Queue.FirstPollMaxItems
	}
	if len(c.Queue.PermanentFailureSignatures) == 0 {
		c.Queue.PermanentFailureSignatures = append([]string{}, defaults.Queue.PermanentFailureSignatures...)
	}

	if c.Subscriptions.DefaultPriority <= 0 {
		c.Subscriptions.DefaultPriority = defaults.Subscriptions.DefaultPriority
	}
	if c.Subscriptions.DefaultIntervalHours <= 0 {
		c.Subscriptions.DefaultIntervalHours = defaults.Subscriptions.DefaultIntervalHours
	}

	if c.EventLog.RetentionDays <= 0 {
		c.EventLog.RetentionDays = defaults.EventLog.RetentionDays
	}

	if c.Lister.RequestTimeout <= 0 {
		c.Lister.RequestTimeout = defaults.Lister.RequestTimeout
	}
	if c.Analyzer.RequestTimeout <= 0 {
		c.Analyzer.RequestTimeout = defaults.Analyzer.RequestTimeout
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaults.Notifications.RequestTimeout
	}

	if strings.TrimSpace(c.Analyzer.Endpoint) == "" {
		c.Analyzer.Endpoint = strings.TrimSpace(os.Getenv("TRAWLER_ANALYZER_ENDPOINT"))
	}
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(os.Getenv("TRAWLER_NTFY_TOPIC"))
	}

	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaults.Logging.RetentionDays
	}

	return nil
}
