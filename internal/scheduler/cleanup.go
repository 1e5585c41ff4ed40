package scheduler

import (
	"context"
	"fmt"
	"time"

	"trawler/internal/eventlog"
	"trawler/internal/logging"
)

func (s *Scheduler) runCleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOnce(ctx)
		}
	}
}

// cleanupOnce reclaims stale processing claims and enforces event-log
// retention. Both sweeps run even when one fails.
func (s *Scheduler) cleanupOnce(ctx context.Context) {
	reclaimed, err := s.queue.CleanupStale(ctx, s.staleTimeout())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("stale-claim sweep failed", logging.Error(err))
		}
	} else if reclaimed > 0 {
		s.logger.Warn("reclaimed stale processing claims",
			logging.Int64("reclaimed", reclaimed),
			logging.Duration("stale_timeout", s.staleTimeout()),
		)
		s.appendEvent(ctx, eventlog.LevelWarning, EventStaleReclaimed,
			fmt.Sprintf("reclaimed %d stale processing claims", reclaimed), "", 0,
			map[string]any{"reclaimed": reclaimed})
	}

	purged, err := s.events.Purge(ctx, s.cfg.EventLog.RetentionDays)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("event-log purge failed", logging.Error(err))
		}
	} else if purged > 0 {
		s.logger.Info("purged aged event-log entries",
			logging.Int64("purged", purged),
			logging.Int("retention_days", s.cfg.EventLog.RetentionDays),
		)
		s.appendEvent(ctx, eventlog.LevelInfo, EventLogPurged,
			fmt.Sprintf("purged %d event-log entries past retention", purged), "", 0,
			map[string]any{"purged": purged})
	}
}
