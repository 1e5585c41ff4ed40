package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"trawler/internal/config"
	"trawler/internal/eventlog"
	"trawler/internal/logging"
	"trawler/internal/notifications"
	"trawler/internal/queue"
	"trawler/internal/subscriptions"
)

// Event types recorded in the audit trail.
const (
	EventPollStarted     = "poll_started"
	EventPollFinished    = "poll_finished"
	EventPollError       = "poll_error"
	EventItemQueued      = "item_queued"
	EventItemStarted     = "item_started"
	EventItemSkipped     = "item_skipped"
	EventItemCompleted   = "item_completed"
	EventItemRetried     = "item_retried"
	EventItemFailed      = "item_failed"
	EventQueueStalled    = "queue_stalled"
	EventStaleReclaimed  = "stale_reclaimed"
	EventLogPurged       = "log_purged"
	EventSchedulerStart  = "scheduler_started"
	EventSchedulerStop   = "scheduler_stopped"
)

// ListedItem is one entry returned by a source lister.
type ListedItem struct {
	ExternalID  string
	URL         string
	Title       string
	PublishedAt *time.Time
}

// Lister enumerates the current items of a subscription's source.
type Lister interface {
	List(ctx context.Context, sub *subscriptions.Subscription) ([]ListedItem, error)
}

// ProcessResult carries the outcome of a successful processing run.
type ProcessResult struct {
	ResultsFound int
	ResultRef    string
}

// Processor performs the downstream work for one claimed item. A returned
// error wrapped with services.ErrPermanent skips the item instead of
// consuming a retry attempt.
type Processor interface {
	Process(ctx context.Context, item *queue.Item) (ProcessResult, error)
}

// Recorder persists processed external ids so re-discoveries auto-skip.
type Recorder interface {
	Record(ctx context.Context, externalID, resultRef string) error
}

// Scheduler drives the three periodic loops against one shared database.
type Scheduler struct {
	cfg       *config.Config
	logger    *slog.Logger
	subs      *subscriptions.Store
	queue     *queue.Store
	events    *eventlog.Store
	notifier  notifications.Service
	lister    Lister
	processor Processor
	processed Recorder

	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	lastPollAt    time.Time
	nextPollAt    time.Time
	nextProcessAt time.Time
	stallAlerted  bool
}

// New assembles a scheduler. The notifier may be nil; a noop service is
// substituted so call sites never nil-check.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	subs *subscriptions.Store,
	queueStore *queue.Store,
	events *eventlog.Store,
	notifier notifications.Service,
	lister Lister,
	processor Processor,
	processed Recorder,
) *Scheduler {
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	return &Scheduler{
		cfg:       cfg,
		logger:    logging.WithComponent(logger, "scheduler"),
		subs:      subs,
		queue:     queueStore,
		events:    events,
		notifier:  notifier,
		lister:    lister,
		processor: processor,
		processed: processed,
	}
}

// Start launches the poll, process, and cleanup loops. With the scheduler
// disabled in configuration this logs and returns without starting anything.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Scheduler.Enabled {
		s.logger.Info("scheduler disabled; periodic tasks will not run")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.running = true

	now := time.Now().UTC()
	s.nextPollAt = now
	s.nextProcessAt = now.Add(s.processInterval())

	s.wg.Add(3)
	go s.runPollLoop(runCtx)
	go s.runProcessLoop(runCtx)
	go s.runCleanupLoop(runCtx)

	s.logger.Info("scheduler started",
		logging.Duration("poll_interval", s.pollInterval()),
		logging.Duration("process_interval", s.processInterval()),
		logging.Duration("cleanup_interval", s.cleanupInterval()),
	)
	s.appendEvent(runCtx, eventlog.LevelInfo, EventSchedulerStart, "scheduler started", "", 0, nil)
	return nil
}

// Stop halts the loops and waits for in-flight work to finish. Safe to call
// repeatedly and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	s.appendEvent(ctx, eventlog.LevelInfo, EventSchedulerStop, "scheduler stopped", "", 0, nil)
	s.logger.Info("scheduler stopped")
}

// Status reports the scheduler's current state and queue occupancy.
type Status struct {
	Running       bool
	LastPollAt    time.Time
	NextPollAt    time.Time
	NextProcessAt time.Time
	QueueDepth    int
	Processing    int
}

// Status returns a live snapshot; queue counts come straight from SQLite.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	status := Status{
		Running:       s.running,
		LastPollAt:    s.lastPollAt,
		NextPollAt:    s.nextPollAt,
		NextProcessAt: s.nextProcessAt,
	}
	s.mu.Unlock()

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return status, err
	}
	status.QueueDepth = stats[queue.StatusQueued]
	status.Processing = stats[queue.StatusProcessing]
	return status, nil
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) pollInterval() time.Duration {
	minutes := s.cfg.Scheduler.PollIntervalMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) processInterval() time.Duration {
	seconds := s.cfg.Scheduler.ProcessIntervalSeconds
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

func (s *Scheduler) cleanupInterval() time.Duration {
	minutes := s.cfg.Scheduler.CleanupIntervalMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) staleTimeout() time.Duration {
	minutes := s.cfg.Queue.StaleTimeoutMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

// appendEvent writes an audit entry; event-log failures are logged and
// swallowed so bookkeeping never takes down the pipeline.
func (s *Scheduler) appendEvent(ctx context.Context, level eventlog.Level, eventType, message, subscriptionID string, itemID int64, details map[string]any) {
	if s.events == nil {
		return
	}
	_, err := s.events.Append(ctx, eventlog.Record{
		Level:          level,
		Type:           eventType,
		Message:        message,
		SubscriptionID: subscriptionID,
		ItemID:         itemID,
		Details:        details,
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("failed to append event",
			logging.String(logging.FieldEventType, eventType),
			logging.Error(err),
		)
	}
}
