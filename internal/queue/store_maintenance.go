package queue

import (
	"context"
	"fmt"
	"time"

	"trawler/internal/storage"
)

// RetryAllFailed bulk-resets every failed item back to queued with a fresh
// attempt budget and a due-now slot. Returns the count affected.
func (s *Store) RetryAllFailed(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, attempts = 0, error_message = NULL,
             scheduled_for = ?, processing_started_at = NULL,
             processing_completed_at = NULL, updated_at = ?
         WHERE status = ?`,
		StatusQueued,
		storage.FormatTime(now),
		storage.FormatTime(now),
		StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return res.RowsAffected()
}

// CleanupStale fails every processing item whose claim is older than
// staleTimeout. This is the sole recovery path for items abandoned by a
// crashed worker; the timeout must exceed the slowest expected processor
// call.
func (s *Store) CleanupStale(ctx context.Context, staleTimeout time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-staleTimeout)
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, processing_completed_at = ?, error_message = ?, updated_at = ?
         WHERE status = ? AND processing_started_at IS NOT NULL AND processing_started_at < ?`,
		StatusFailed,
		storage.FormatTime(now),
		StaleTimeoutReason,
		storage.FormatTime(now),
		StatusProcessing,
		storage.FormatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale items: %w", err)
	}
	return res.RowsAffected()
}
