package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"trawler/internal/eventlog"
	"trawler/internal/logging"
	"trawler/internal/queue"
	"trawler/internal/subscriptions"
)

func (s *Scheduler) runPollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	// First sweep runs immediately so a fresh daemon does not idle for a
	// full interval.
	s.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

// pollOnce sweeps every due subscription. Failures are isolated per
// subscription so one broken feed cannot block the rest of the sweep.
func (s *Scheduler) pollOnce(ctx context.Context) {
	now := time.Now().UTC()
	runID := uuid.NewString()
	logger := s.logger.With(logging.String(logging.FieldRunID, runID))

	s.mu.Lock()
	s.lastPollAt = now
	s.nextPollAt = now.Add(s.pollInterval())
	s.mu.Unlock()

	subs, err := s.subs.List(ctx, true)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("failed to list subscriptions", logging.Error(err))
		}
		return
	}

	var due []*subscriptions.Subscription
	for _, sub := range subs {
		if sub.DueForCheck(now) {
			due = append(due, sub)
		}
	}
	if len(due) == 0 {
		logger.Debug("no subscriptions due", logging.Int("active", len(subs)))
		return
	}

	logger.Info("poll sweep started",
		logging.Int("due", len(due)),
		logging.Int("active", len(subs)),
	)
	s.appendEvent(ctx, eventlog.LevelInfo, EventPollStarted,
		fmt.Sprintf("polling %d due subscriptions", len(due)), "", 0,
		map[string]any{"run_id": runID, "due": len(due)})

	checked := 0
	totalQueued := 0
	for _, sub := range due {
		if ctx.Err() != nil {
			return
		}
		queued, err := s.pollSubscription(ctx, logger, sub)
		checked++
		totalQueued += queued
		if err != nil && ctx.Err() == nil {
			logger.Error("subscription poll failed",
				logging.String(logging.FieldSubscriptionID, sub.ID),
				logging.String("canonical_id", sub.CanonicalID),
				logging.Error(err),
			)
			s.appendEvent(ctx, eventlog.LevelError, EventPollError,
				fmt.Sprintf("poll failed: %v", err), sub.ID, 0,
				map[string]any{"run_id": runID, "canonical_id": sub.CanonicalID})
		}
	}

	logger.Info("poll sweep finished",
		logging.Int("checked", checked),
		logging.Int("queued", totalQueued),
	)
	s.appendEvent(ctx, eventlog.LevelInfo, EventPollFinished,
		fmt.Sprintf("checked %d subscriptions, queued %d items", checked, totalQueued), "", 0,
		map[string]any{"run_id": runID, "checked": checked, "queued": totalQueued})

	if totalQueued > 0 {
		if err := s.notifier.NotifyPollSummary(ctx, checked, totalQueued); err != nil && ctx.Err() == nil {
			logger.Warn("poll summary notification failed", logging.Error(err))
		}
	}
}

// pollSubscription fetches one source's current items and enqueues the new
// ones at the subscription's priority. The last-checked stamp advances even
// on failure so a persistently broken feed is retried on its normal cadence
// instead of every sweep.
func (s *Scheduler) pollSubscription(ctx context.Context, logger *slog.Logger, sub *subscriptions.Subscription) (int, error) {
	now := time.Now().UTC()
	firstPoll := sub.LastCheckedAt == nil

	items, listErr := s.lister.List(ctx, sub)

	stamp := now
	fields := subscriptions.Fields{LastCheckedAt: &stamp}
	if listErr != nil {
		if _, err := s.subs.Update(ctx, sub.ID, fields); err != nil && ctx.Err() == nil {
			logger.Warn("failed to stamp last-checked after poll error",
				logging.String(logging.FieldSubscriptionID, sub.ID),
				logging.Error(err),
			)
		}
		return 0, listErr
	}

	// The cap on a first poll bounds the backlog a deep archive would
	// otherwise dump into the queue: newest items queue, the rest are
	// recorded skipped for visibility.
	var overflow []ListedItem
	if firstPoll && s.cfg.Queue.FirstPollMaxItems > 0 && len(items) > s.cfg.Queue.FirstPollMaxItems {
		sort.SliceStable(items, func(i, j int) bool {
			return publishedAfter(items[i].PublishedAt, items[j].PublishedAt)
		})
		overflow = items[s.cfg.Queue.FirstPollMaxItems:]
		items = items[:s.cfg.Queue.FirstPollMaxItems]
	}

	queuedCount := 0
	var maxPublished *time.Time
	for _, item := range items {
		if ctx.Err() != nil {
			return queuedCount, ctx.Err()
		}
		if item.PublishedAt != nil && (maxPublished == nil || item.PublishedAt.After(*maxPublished)) {
			published := item.PublishedAt.UTC()
			maxPublished = &published
		}

		inserted, err := s.queue.Enqueue(ctx, queue.EnqueueRequest{
			ExternalID:     item.ExternalID,
			URL:            item.URL,
			SubscriptionID: sub.ID,
			Title:          item.Title,
			PublishedAt:    item.PublishedAt,
			Priority:       sub.Priority,
		})
		if errors.Is(err, queue.ErrAlreadyQueued) {
			continue
		}
		if err != nil {
			logger.Warn("failed to enqueue item",
				logging.String(logging.FieldSubscriptionID, sub.ID),
				logging.String(logging.FieldExternalID, item.ExternalID),
				logging.Error(err),
			)
			continue
		}
		switch inserted.Status {
		case queue.StatusQueued:
			queuedCount++
			s.appendEvent(ctx, eventlog.LevelInfo, EventItemQueued,
				fmt.Sprintf("queued %q", inserted.Title), sub.ID, inserted.ID,
				map[string]any{"external_id": inserted.ExternalID})
		case queue.StatusSkipped:
			s.appendEvent(ctx, eventlog.LevelInfo, EventItemSkipped,
				fmt.Sprintf("skipped %q: %s", inserted.Title, inserted.ErrorMessage), sub.ID, inserted.ID,
				map[string]any{"external_id": inserted.ExternalID})
		}
	}

	for _, item := range overflow {
		if err := s.queue.EnqueueSkipped(ctx, queue.EnqueueRequest{
			ExternalID:     item.ExternalID,
			URL:            item.URL,
			SubscriptionID: sub.ID,
			Title:          item.Title,
			PublishedAt:    item.PublishedAt,
			Priority:       sub.Priority,
		}, fmt.Sprintf("beyond the first-poll limit of %d items", s.cfg.Queue.FirstPollMaxItems)); err != nil && ctx.Err() == nil {
			logger.Warn("failed to record first-poll overflow item",
				logging.String(logging.FieldSubscriptionID, sub.ID),
				logging.String(logging.FieldExternalID, item.ExternalID),
				logging.Error(err),
			)
		}
	}

	if maxPublished != nil {
		if sub.LastItemPublishedAt == nil || maxPublished.After(*sub.LastItemPublishedAt) {
			fields.LastItemPublishedAt = maxPublished
		}
	}
	if _, err := s.subs.Update(ctx, sub.ID, fields); err != nil {
		return queuedCount, fmt.Errorf("stamp last checked: %w", err)
	}
	if queuedCount > 0 {
		if err := s.subs.IncrementStats(ctx, sub.ID, int64(queuedCount), 0, 0); err != nil {
			return queuedCount, fmt.Errorf("increment found counter: %w", err)
		}
	}

	logger.Info("subscription polled",
		logging.String(logging.FieldSubscriptionID, sub.ID),
		logging.String("canonical_id", sub.CanonicalID),
		logging.Int("listed", len(items)+len(overflow)),
		logging.Int("queued", queuedCount),
		logging.Bool("first_poll", firstPoll),
	)
	return queuedCount, nil
}

// publishedAfter orders items newest-first, with undated items last.
func publishedAfter(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
