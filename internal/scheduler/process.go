package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trawler/internal/eventlog"
	"trawler/internal/logging"
	"trawler/internal/queue"
	"trawler/internal/services"
)

func (s *Scheduler) runProcessLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.processInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.nextProcessAt = time.Now().UTC().Add(interval)
			s.mu.Unlock()
			s.processOnce(ctx)
		}
	}
}

// processOnce claims at most one due item and runs it through the processor.
// One item per tick keeps the cadence of downstream calls bounded by the
// process interval.
func (s *Scheduler) processOnce(ctx context.Context) {
	item, err := s.queue.Dequeue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to claim queue item", logging.Error(err))
		}
		return
	}
	if item == nil {
		s.checkStall(ctx)
		return
	}

	s.mu.Lock()
	s.stallAlerted = false
	s.mu.Unlock()

	logger := s.logger.With(
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldExternalID, item.ExternalID),
		logging.Int(logging.FieldAttempt, item.Attempts+1),
	)
	logger.Info("processing item", logging.String("title", item.Title))
	s.appendEvent(ctx, eventlog.LevelInfo, EventItemStarted,
		fmt.Sprintf("processing %q (attempt %d of %d)", item.Title, item.Attempts+1, item.MaxAttempts),
		item.SubscriptionID, item.ID,
		map[string]any{"external_id": item.ExternalID, "attempt": item.Attempts + 1})

	result, procErr := s.processor.Process(ctx, item)
	if procErr == nil {
		s.finishItem(ctx, logger, item, result)
		return
	}
	if ctx.Err() != nil {
		// Shutdown mid-flight; the stale-claim sweep reclaims the item.
		return
	}
	s.failItem(ctx, logger, item, procErr)
}

func (s *Scheduler) finishItem(ctx context.Context, logger *slog.Logger, item *queue.Item, result ProcessResult) {
	ok, err := s.queue.MarkCompleted(ctx, item.ID, result.ResultsFound, result.ResultRef)
	if err != nil || !ok {
		logger.Error("failed to mark item completed", logging.Error(err))
		return
	}

	if s.processed != nil {
		if err := s.processed.Record(ctx, item.ExternalID, result.ResultRef); err != nil {
			logger.Warn("failed to record processed item", logging.Error(err))
		}
	}
	if item.SubscriptionID != "" {
		if err := s.subs.IncrementStats(ctx, item.SubscriptionID, 0, 1, int64(result.ResultsFound)); err != nil {
			logger.Warn("failed to increment processed counters", logging.Error(err))
		}
	}

	logger.Info("item completed",
		logging.Int("results_found", result.ResultsFound),
		logging.String("result_ref", result.ResultRef),
	)
	s.appendEvent(ctx, eventlog.LevelInfo, EventItemCompleted,
		fmt.Sprintf("completed %q with %d results", item.Title, result.ResultsFound),
		item.SubscriptionID, item.ID,
		map[string]any{"external_id": item.ExternalID, "results_found": result.ResultsFound})

	if err := s.notifier.NotifyItemCompleted(ctx, item.Title, result.ResultsFound); err != nil && ctx.Err() == nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
}

func (s *Scheduler) failItem(ctx context.Context, logger *slog.Logger, item *queue.Item, procErr error) {
	var (
		updated *queue.Item
		err     error
	)
	if services.IsPermanent(procErr) {
		updated, err = s.queue.MarkFailedPermanent(ctx, item.ID, procErr.Error())
	} else {
		updated, err = s.queue.MarkFailed(ctx, item.ID, procErr.Error())
	}
	if err != nil || updated == nil {
		logger.Error("failed to record item failure", logging.Error(err))
		return
	}

	switch updated.Status {
	case queue.StatusQueued:
		logger.Warn("item failed, will retry",
			logging.Error(procErr),
			logging.Int("attempts", updated.Attempts),
			logging.Int("max_attempts", updated.MaxAttempts),
			logging.Time("next_attempt", updated.ScheduledFor),
		)
		s.appendEvent(ctx, eventlog.LevelWarning, EventItemRetried,
			fmt.Sprintf("attempt %d of %d failed: %v", updated.Attempts, updated.MaxAttempts, procErr),
			item.SubscriptionID, item.ID,
			map[string]any{"external_id": item.ExternalID, "attempts": updated.Attempts})
		s.warnOnRepeatedError(logger, updated)

	case queue.StatusSkipped:
		logger.Warn("item skipped as permanently unprocessable", logging.Error(procErr))
		s.appendEvent(ctx, eventlog.LevelWarning, EventItemSkipped,
			fmt.Sprintf("skipped %q: %v", item.Title, procErr),
			item.SubscriptionID, item.ID,
			map[string]any{"external_id": item.ExternalID})

	case queue.StatusFailed:
		logger.Error("item failed terminally",
			logging.Error(procErr),
			logging.Int("attempts", updated.Attempts),
		)
		s.appendEvent(ctx, eventlog.LevelError, EventItemFailed,
			fmt.Sprintf("gave up on %q after %d attempts: %v", item.Title, updated.Attempts, procErr),
			item.SubscriptionID, item.ID,
			map[string]any{"external_id": item.ExternalID, "attempts": updated.Attempts})
		if err := s.notifier.NotifyItemFailed(ctx, item.Title, procErr.Error()); err != nil && ctx.Err() == nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
	}
}

// warnOnRepeatedError flags items whose consecutive attempts fail with the
// same message: a candidate for the permanent-failure signature list.
func (s *Scheduler) warnOnRepeatedError(logger *slog.Logger, item *queue.Item) {
	n := len(item.ErrorHistory)
	if n < 2 {
		return
	}
	last, prev := item.ErrorHistory[n-1], item.ErrorHistory[n-2]
	if last.Message != "" && last.Message == prev.Message {
		logger.Warn("item failing repeatedly with an identical error; consider adding a permanent-failure signature",
			logging.String("error_message", last.Message),
		)
	}
}

// checkStall raises an alert once when the queue has no runnable or running
// work but terminal failures have accumulated.
func (s *Scheduler) checkStall(ctx context.Context) {
	s.mu.Lock()
	alerted := s.stallAlerted
	s.mu.Unlock()
	if alerted {
		return
	}

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to read queue stats", logging.Error(err))
		}
		return
	}
	failed := stats[queue.StatusFailed]
	if stats[queue.StatusQueued] != 0 || stats[queue.StatusProcessing] != 0 || failed == 0 {
		return
	}

	s.mu.Lock()
	s.stallAlerted = true
	s.mu.Unlock()

	s.logger.Warn("queue stalled: nothing runnable and terminal failures present",
		logging.Int("failed", failed),
		logging.String(logging.FieldErrorHint, "inspect failed items and retry or skip them"),
	)
	s.appendEvent(ctx, eventlog.LevelWarning, EventQueueStalled,
		fmt.Sprintf("queue stalled with %d terminally failed items", failed), "", 0,
		map[string]any{"failed": failed})
	if err := s.notifier.NotifyQueueStalled(ctx, failed); err != nil && ctx.Err() == nil {
		s.logger.Warn("stall notification failed", logging.Error(err))
	}
}
