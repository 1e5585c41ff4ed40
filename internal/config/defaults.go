package config

const (
	defaultDataDir                = "~/.local/share/trawler"
	defaultDatabase               = "trawler.db"
	defaultLogDir                 = "~/.local/share/trawler/logs"
	defaultPollIntervalMinutes    = 30
	defaultProcessIntervalSeconds = 60
	defaultCleanupIntervalMinutes = 60
	defaultMaxAttempts            = 3
	defaultStaleTimeoutMinutes    = 30
	defaultMaxItemAgeDays         = 30
	defaultFirstPollMaxItems      = 10
	defaultPriority               = 5
	defaultIntervalHours          = 12
	defaultLogRetentionDays       = 30
	defaultEventRetentionDays     = 30
	defaultRequestTimeout         = 30
	defaultNtfyRequestTimeout     = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// defaultPermanentFailureSignatures are the upstream error wordings that mark
// an item as permanently unprocessable. Matching is case-insensitive
// substring; operators extend the list via [queue] when upstream wording
// drifts.
var defaultPermanentFailureSignatures = []string{
	"video unavailable",
	"video is unavailable",
	"private video",
	"video is private",
	"video has been removed",
	"account associated with this video has been terminated",
	"age-restricted",
	"age restricted",
	"sign in to confirm your age",
	"members-only",
	"members only",
	"blocked in your country",
	"copyright claim",
	"copyright grounds",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Storage: Storage{
			DataDir:  defaultDataDir,
			Database: defaultDatabase,
			LogDir:   defaultLogDir,
		},
		Scheduler: Scheduler{
			Enabled:                true,
			PollIntervalMinutes:    defaultPollIntervalMinutes,
			ProcessIntervalSeconds: defaultProcessIntervalSeconds,
			CleanupIntervalMinutes: defaultCleanupIntervalMinutes,
		},
		Queue: Queue{
			MaxAttempts:                defaultMaxAttempts,
			StaleTimeoutMinutes:        defaultStaleTimeoutMinutes,
			MaxItemAgeDays:             defaultMaxItemAgeDays,
			FirstPollMaxItems:          defaultFirstPollMaxItems,
			PermanentFailureSignatures: append([]string{}, defaultPermanentFailureSignatures...),
		},
		Subscriptions: Subscriptions{
			DefaultPriority:      defaultPriority,
			DefaultIntervalHours: defaultIntervalHours,
		},
		EventLog: EventLog{
			RetentionDays: defaultEventRetentionDays,
		},
		Lister: Lister{
			RequestTimeout: defaultRequestTimeout,
		},
		Analyzer: Analyzer{
			RequestTimeout: defaultRequestTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
