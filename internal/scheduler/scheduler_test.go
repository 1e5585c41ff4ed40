package scheduler_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trawler/internal/config"
	"trawler/internal/eventlog"
	"trawler/internal/logging"
	"trawler/internal/processed"
	"trawler/internal/queue"
	"trawler/internal/scheduler"
	"trawler/internal/services"
	"trawler/internal/storage"
	"trawler/internal/subscriptions"
	"trawler/internal/testsupport"
)

type fixture struct {
	cfg    *config.Config
	db     *storage.DB
	subs   *subscriptions.Store
	queue  *queue.Store
	events *eventlog.Store
	index  *processed.Index
	lister *testsupport.FakeLister
	proc   *testsupport.FakeProcessor
	sched  *scheduler.Scheduler
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	db := testsupport.MustOpenDB(t, cfg)
	index := processed.NewIndex(db)
	queueStore := queue.NewStore(db, testsupport.QueueSettings(cfg), index)
	subStore := subscriptions.NewStore(db, testsupport.SubscriptionDefaults(cfg))
	events := eventlog.NewStore(db)
	lister := &testsupport.FakeLister{}
	proc := &testsupport.FakeProcessor{}

	sched := scheduler.New(cfg, logging.NewNop(), subStore, queueStore, events, nil, lister, proc, index)
	return &fixture{
		cfg:    cfg,
		db:     db,
		subs:   subStore,
		queue:  queueStore,
		events: events,
		index:  index,
		lister: lister,
		proc:   proc,
		sched:  sched,
	}
}

func (f *fixture) register(t *testing.T, url string, priority int) *subscriptions.Subscription {
	t.Helper()
	sub, err := f.subs.Register(context.Background(), subscriptions.RegisterRequest{
		URL:           url,
		Priority:      priority,
		IntervalHours: 12,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return sub
}

func (f *fixture) makeDue(t *testing.T, id int64) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Minute)
	if err := f.db.ExecRetryNoResult(context.Background(),
		`UPDATE queue_items SET scheduled_for = ? WHERE id = ?`,
		storage.FormatTime(past), id); err != nil {
		t.Fatalf("rewind scheduled_for: %v", err)
	}
}

func (f *fixture) eventCount(t *testing.T, eventType string) int {
	t.Helper()
	_, total, err := f.events.Query(context.Background(), eventlog.Filter{Type: eventType})
	if err != nil {
		t.Fatalf("event query failed: %v", err)
	}
	return total
}

func listedItem(id string, publishedAgo time.Duration) scheduler.ListedItem {
	published := time.Now().UTC().Add(-publishedAgo)
	return scheduler.ListedItem{
		ExternalID:  id,
		URL:         "https://www.youtube.com/watch?v=" + id,
		Title:       "Item " + id,
		PublishedAt: &published,
	}
}

func TestPollQueuesDiscoveredItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.register(t, "https://www.youtube.com/@creator", 2)
	f.lister.Items = []scheduler.ListedItem{
		listedItem("vid-1", 2*time.Hour),
		listedItem("vid-2", time.Hour),
	}

	f.sched.PollOnce(ctx)

	items, err := f.queue.ListQueued(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListQueued failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("queued = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.Priority != 2 {
			t.Fatalf("item priority = %d, want inherited 2", item.Priority)
		}
		if item.SubscriptionID != sub.ID {
			t.Fatalf("item subscription = %q", item.SubscriptionID)
		}
	}

	updated, err := f.subs.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.LastCheckedAt == nil {
		t.Fatal("last_checked_at not stamped")
	}
	if updated.ItemsFound != 2 {
		t.Fatalf("items_found = %d, want 2", updated.ItemsFound)
	}
	if updated.LastItemPublishedAt == nil {
		t.Fatal("last_item_published_at not recorded")
	}

	if f.eventCount(t, scheduler.EventPollStarted) != 1 {
		t.Fatal("missing poll_started event")
	}
	if f.eventCount(t, scheduler.EventItemQueued) != 2 {
		t.Fatal("missing item_queued events")
	}
	if f.eventCount(t, scheduler.EventPollFinished) != 1 {
		t.Fatal("missing poll_finished event")
	}
}

func TestPollRespectsFirstPollCap(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Queue.FirstPollMaxItems = 2
	})
	ctx := context.Background()

	f.register(t, "https://www.youtube.com/@deep-archive", 5)
	f.lister.Items = []scheduler.ListedItem{
		listedItem("vid-oldest", 96*time.Hour),
		listedItem("vid-newest", time.Hour),
		listedItem("vid-older", 72*time.Hour),
		listedItem("vid-newer", 24*time.Hour),
	}

	f.sched.PollOnce(ctx)

	queued, err := f.queue.ListQueued(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListQueued failed: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("queued = %d, want the 2 newest", len(queued))
	}
	got := map[string]bool{}
	for _, item := range queued {
		got[item.ExternalID] = true
	}
	if !got["vid-newest"] || !got["vid-newer"] {
		t.Fatalf("wrong items queued: %#v", got)
	}

	overflow, err := f.queue.GetByExternalID(ctx, "vid-oldest")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if overflow == nil || overflow.Status != queue.StatusSkipped {
		t.Fatalf("overflow item not recorded skipped: %#v", overflow)
	}
	if !strings.Contains(overflow.ErrorMessage, "first-poll limit") {
		t.Fatalf("unexpected overflow reason: %q", overflow.ErrorMessage)
	}
}

func TestPollIsolatesFailingSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	broken := f.register(t, "https://www.youtube.com/@broken", 1)
	f.register(t, "https://www.youtube.com/@healthy", 5)
	f.lister.ErrFor = map[string]error{"@broken": errors.New("feed exploded")}
	f.lister.ByCanonical = map[string][]scheduler.ListedItem{
		"@healthy": {listedItem("vid-ok", time.Hour)},
	}

	f.sched.PollOnce(ctx)

	queued, err := f.queue.ListQueued(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListQueued failed: %v", err)
	}
	if len(queued) != 1 || queued[0].ExternalID != "vid-ok" {
		t.Fatalf("healthy subscription not polled past the broken one: %#v", queued)
	}

	if f.eventCount(t, scheduler.EventPollError) != 1 {
		t.Fatal("missing poll_error event for the broken subscription")
	}

	// The broken subscription is still stamped so it waits a full interval.
	updated, err := f.subs.Get(ctx, broken.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.LastCheckedAt == nil {
		t.Fatal("failed poll should still stamp last_checked_at")
	}
}

func TestPollSkipsSubscriptionsNotDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.register(t, "https://www.youtube.com/@fresh", 5)
	recent := time.Now().UTC().Add(-time.Hour)
	if _, err := f.subs.Update(ctx, sub.ID, subscriptions.Fields{LastCheckedAt: &recent}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	f.sched.PollOnce(ctx)

	if f.lister.Calls() != 0 {
		t.Fatalf("lister called %d times for a not-due subscription", f.lister.Calls())
	}
}

func TestProcessCompletesItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.register(t, "https://www.youtube.com/@creator", 5)
	f.lister.Items = []scheduler.ListedItem{listedItem("vid-1", time.Hour)}
	f.sched.PollOnce(ctx)

	f.proc.Result = scheduler.ProcessResult{ResultsFound: 3, ResultRef: "ref-1"}
	f.sched.ProcessOnce(ctx)

	item, err := f.queue.GetByExternalID(ctx, "vid-1")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if item.Status != queue.StatusCompleted || item.ResultsFound != 3 || item.ResultRef != "ref-1" {
		t.Fatalf("unexpected completed item: %#v", item)
	}

	known, err := f.index.Contains(ctx, "vid-1")
	if err != nil || !known {
		t.Fatalf("processed index missing item: %t, %v", known, err)
	}

	updated, err := f.subs.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.ItemsProcessed != 1 || updated.ResultsFound != 3 {
		t.Fatalf("counters not incremented: %#v", updated)
	}

	if f.eventCount(t, scheduler.EventItemCompleted) != 1 {
		t.Fatal("missing item_completed event")
	}
}

func TestProcessRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "https://www.youtube.com/@creator", 5)
	f.lister.Items = []scheduler.ListedItem{listedItem("vid-flaky", time.Hour)}
	f.sched.PollOnce(ctx)

	f.proc.Err = errors.New("connection reset")
	f.sched.ProcessOnce(ctx)

	item, err := f.queue.GetByExternalID(ctx, "vid-flaky")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if item.Status != queue.StatusQueued || item.Attempts != 1 {
		t.Fatalf("unexpected retried item: %#v", item)
	}
	if item.ScheduledFor.Before(time.Now().UTC()) {
		t.Fatal("retry should be scheduled in the future")
	}

	if f.eventCount(t, scheduler.EventItemRetried) != 1 {
		t.Fatal("missing item_retried event")
	}
}

func TestProcessSkipsPermanentFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "https://www.youtube.com/@creator", 5)
	f.lister.Items = []scheduler.ListedItem{listedItem("vid-gone", time.Hour)}
	f.sched.PollOnce(ctx)

	f.proc.Err = services.Wrap(services.ErrPermanent, "analyzer", "analyze", "item deleted upstream", nil)
	f.sched.ProcessOnce(ctx)

	item, err := f.queue.GetByExternalID(ctx, "vid-gone")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if item.Status != queue.StatusSkipped {
		t.Fatalf("status = %s, want skipped", item.Status)
	}
	if item.Attempts != 0 {
		t.Fatalf("permanent failure must not consume attempts: %d", item.Attempts)
	}
}

func TestProcessExhaustionThenStallAlert(t *testing.T) {
	f := newFixture(t, testsupport.WithMaxAttempts(1))
	ctx := context.Background()

	f.register(t, "https://www.youtube.com/@creator", 5)
	f.lister.Items = []scheduler.ListedItem{listedItem("vid-doomed", time.Hour)}
	f.sched.PollOnce(ctx)

	f.proc.Err = errors.New("boom")
	f.sched.ProcessOnce(ctx)

	item, err := f.queue.GetByExternalID(ctx, "vid-doomed")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if item.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed after exhausting one attempt", item.Status)
	}
	if f.eventCount(t, scheduler.EventItemFailed) != 1 {
		t.Fatal("missing item_failed event")
	}

	// Queue now has nothing runnable and one terminal failure: the next
	// empty tick raises the stall alert, exactly once.
	f.sched.ProcessOnce(ctx)
	f.sched.ProcessOnce(ctx)
	if f.eventCount(t, scheduler.EventQueueStalled) != 1 {
		t.Fatalf("queue_stalled events = %d, want 1", f.eventCount(t, scheduler.EventQueueStalled))
	}
}

func TestCleanupReclaimsStaleAndPurgesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "https://www.youtube.com/@creator", 5)
	f.lister.Items = []scheduler.ListedItem{listedItem("vid-stuck", time.Hour)}
	f.sched.PollOnce(ctx)

	item, err := f.queue.GetByExternalID(ctx, "vid-stuck")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	f.makeDue(t, item.ID)
	claimed, err := f.queue.Dequeue(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	staleStart := time.Now().UTC().Add(-2 * time.Hour)
	if err := f.db.ExecRetryNoResult(ctx,
		`UPDATE queue_items SET processing_started_at = ? WHERE id = ?`,
		storage.FormatTime(staleStart), item.ID); err != nil {
		t.Fatalf("age claim: %v", err)
	}

	aged := time.Now().UTC().AddDate(0, 0, -(f.cfg.EventLog.RetentionDays + 10))
	entry, err := f.events.Append(ctx, eventlog.Record{Type: "poll_finished", Message: "ancient"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := f.db.ExecRetryNoResult(ctx,
		`UPDATE log_entries SET at = ? WHERE id = ?`,
		storage.FormatTime(aged), entry.ID); err != nil {
		t.Fatalf("age event: %v", err)
	}

	f.sched.CleanupOnce(ctx)

	reclaimed, err := f.queue.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if reclaimed.Status != queue.StatusFailed || reclaimed.ErrorMessage != queue.StaleTimeoutReason {
		t.Fatalf("stale claim not reclaimed: %#v", reclaimed)
	}
	if f.eventCount(t, scheduler.EventStaleReclaimed) != 1 {
		t.Fatal("missing stale_reclaimed event")
	}

	_, total, err := f.events.Query(ctx, eventlog.Filter{Type: "poll_finished"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if total != 1 {
		// The original poll_finished from PollOnce survives; the aged copy is gone.
		t.Fatalf("poll_finished events = %d after purge, want 1", total)
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Scheduler.Enabled = false
	})

	if err := f.sched.Start(context.Background()); err != nil {
		t.Fatalf("Start with disabled scheduler failed: %v", err)
	}
	if f.sched.Running() {
		t.Fatal("disabled scheduler must not report running")
	}
	f.sched.Stop()
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t)

	if err := f.sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !f.sched.Running() {
		t.Fatal("expected running after Start")
	}
	if err := f.sched.Start(context.Background()); err == nil {
		t.Fatal("second Start must fail while running")
	}

	f.sched.Stop()
	if f.sched.Running() {
		t.Fatal("expected stopped after Stop")
	}
	f.sched.Stop() // idempotent

	status, err := f.sched.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running {
		t.Fatal("status must report stopped")
	}
}

// TestDiscoveryToCompletionFlow walks the full pipeline: registration, poll
// discovery, a transient failure with retry, completion, and idempotent
// re-discovery on the next poll.
func TestDiscoveryToCompletionFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.register(t, "https://www.youtube.com/@creator", 3)
	f.lister.Items = []scheduler.ListedItem{
		listedItem("vid-a", 2*time.Hour),
		listedItem("vid-b", time.Hour),
	}

	f.sched.PollOnce(ctx)

	depth, err := f.queue.Depth(ctx)
	if err != nil || depth != 2 {
		t.Fatalf("depth = %d (%v), want 2", depth, err)
	}

	// First item processes cleanly.
	f.proc.Result = scheduler.ProcessResult{ResultsFound: 1, ResultRef: "ref-a"}
	f.sched.ProcessOnce(ctx)

	// Second item fails once, then succeeds after its backoff.
	second, err := f.queue.GetByExternalID(ctx, "vid-b")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	f.makeDue(t, second.ID)
	f.proc.Err = errors.New("temporarily overloaded")
	f.sched.ProcessOnce(ctx)

	retried, err := f.queue.GetByExternalID(ctx, "vid-b")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if retried.Status != queue.StatusQueued || retried.Attempts != 1 {
		t.Fatalf("expected one recorded attempt: %#v", retried)
	}

	f.proc.Err = nil
	f.proc.Result = scheduler.ProcessResult{ResultsFound: 2, ResultRef: "ref-b"}
	f.makeDue(t, second.ID)
	f.sched.ProcessOnce(ctx)

	final, err := f.queue.GetByExternalID(ctx, "vid-b")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}

	// Force the subscription due again; re-discovery must not requeue.
	stale := time.Now().UTC().Add(-24 * time.Hour)
	if _, err := f.subs.Update(ctx, sub.ID, subscriptions.Fields{LastCheckedAt: &stale}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	f.sched.PollOnce(ctx)

	depth, err = f.queue.Depth(ctx)
	if err != nil || depth != 0 {
		t.Fatalf("depth = %d (%v) after re-poll, want 0", depth, err)
	}

	updated, err := f.subs.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.ItemsFound != 2 || updated.ItemsProcessed != 2 || updated.ResultsFound != 3 {
		t.Fatalf("unexpected counters: found=%d processed=%d results=%d",
			updated.ItemsFound, updated.ItemsProcessed, updated.ResultsFound)
	}
}
