package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trawler/internal/storage"
)

// Dequeue atomically claims the single most urgent due item: lowest priority
// number first, earliest scheduled slot second, among queued items whose
// slot is at or before now. Returns (nil, nil) when nothing is eligible.
//
// The claim is a conditional update on status, so two concurrent callers can
// never both receive the same item; a lost race re-selects the next
// candidate.
func (s *Store) Dequeue(ctx context.Context) (*Item, error) {
	for {
		now := time.Now().UTC()
		var id int64
		row := s.db.Handle().QueryRowContext(
			ctx,
			`SELECT id FROM queue_items
             WHERE status = ? AND scheduled_for <= ?
             ORDER BY priority ASC, scheduled_for ASC, id ASC
             LIMIT 1`,
			StatusQueued,
			storage.FormatTime(now),
		)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select dequeue candidate: %w", err)
		}

		res, err := s.db.ExecRetry(
			ctx,
			`UPDATE queue_items
             SET status = ?, processing_started_at = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusProcessing,
			storage.FormatTime(now),
			storage.FormatTime(now),
			id,
			StatusQueued,
		)
		if err != nil {
			return nil, fmt.Errorf("claim item %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Another caller won the claim; try the next candidate.
			continue
		}
		return s.GetByID(ctx, id)
	}
}

// MarkCompleted transitions processing -> completed with the result fields.
// Returns false when the id is unknown.
func (s *Store) MarkCompleted(ctx context.Context, id int64, resultsFound int, resultRef string) (bool, error) {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	if !canTransition(item.Status, StatusCompleted) {
		return false, &TransitionError{ID: id, From: item.Status, To: StatusCompleted}
	}

	now := time.Now().UTC()
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, processing_completed_at = ?, results_found = ?,
             result_ref = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		storage.FormatTime(now),
		resultsFound,
		storage.NullableString(strings.TrimSpace(resultRef)),
		storage.FormatTime(now),
		id,
		item.Status,
	)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed records a failure and routes the item through the retry policy:
// a permanent-failure signature skips it outright, remaining attempts
// requeue it with exponential backoff, and an exhausted budget fails it
// terminally. Returns the updated item, or (nil, nil) when the id is
// unknown.
func (s *Store) MarkFailed(ctx context.Context, id int64, errorMessage string) (*Item, error) {
	return s.fail(ctx, id, errorMessage, false)
}

// MarkFailedPermanent records a failure the caller has already classified as
// permanent (typed processor errors), skipping the item without consulting
// the signature list or consuming attempts.
func (s *Store) MarkFailedPermanent(ctx context.Context, id int64, errorMessage string) (*Item, error) {
	return s.fail(ctx, id, errorMessage, true)
}

func (s *Store) fail(ctx context.Context, id int64, errorMessage string, permanent bool) (*Item, error) {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	errorMessage = strings.TrimSpace(errorMessage)
	history := append(item.ErrorHistory, ErrorEntry{
		Message: errorMessage,
		At:      now,
		Attempt: item.Attempts + 1,
	})
	historyJSON, err := encodeHistory(history)
	if err != nil {
		return nil, err
	}

	if permanent || s.matchesPermanentSignature(errorMessage) {
		if !canTransition(item.Status, StatusSkipped) {
			return nil, &TransitionError{ID: id, From: item.Status, To: StatusSkipped}
		}
		if err := s.db.ExecRetryNoResult(
			ctx,
			`UPDATE queue_items
             SET status = ?, processing_completed_at = ?, error_message = ?,
                 error_history = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusSkipped,
			storage.FormatTime(now),
			storage.NullableString(errorMessage),
			historyJSON,
			storage.FormatTime(now),
			id,
			item.Status,
		); err != nil {
			return nil, fmt.Errorf("skip permanent failure: %w", err)
		}
		return s.GetByID(ctx, id)
	}

	attempts := item.Attempts + 1
	if attempts < item.MaxAttempts {
		if !canTransition(item.Status, StatusQueued) {
			return nil, &TransitionError{ID: id, From: item.Status, To: StatusQueued}
		}
		// Backoff after the k-th failure is base * 2^(k-1).
		backoff := s.settings.ProcessInterval * (1 << uint(item.Attempts))
		if err := s.db.ExecRetryNoResult(
			ctx,
			`UPDATE queue_items
             SET status = ?, attempts = ?, scheduled_for = ?, error_message = ?,
                 error_history = ?, processing_started_at = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusQueued,
			attempts,
			storage.FormatTime(now.Add(backoff)),
			storage.NullableString(errorMessage),
			historyJSON,
			storage.FormatTime(now),
			id,
			item.Status,
		); err != nil {
			return nil, fmt.Errorf("requeue failed item: %w", err)
		}
		return s.GetByID(ctx, id)
	}

	if !canTransition(item.Status, StatusFailed) {
		return nil, &TransitionError{ID: id, From: item.Status, To: StatusFailed}
	}
	if err := s.db.ExecRetryNoResult(
		ctx,
		`UPDATE queue_items
         SET status = ?, attempts = ?, processing_completed_at = ?,
             error_message = ?, error_history = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		attempts,
		storage.FormatTime(now),
		storage.NullableString(errorMessage),
		historyJSON,
		storage.FormatTime(now),
		id,
		item.Status,
	); err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *Store) matchesPermanentSignature(errorMessage string) bool {
	if errorMessage == "" {
		return false
	}
	lowered := strings.ToLower(errorMessage)
	for _, signature := range s.settings.PermanentFailureSignatures {
		signature = strings.ToLower(strings.TrimSpace(signature))
		if signature == "" {
			continue
		}
		if strings.Contains(lowered, signature) {
			return true
		}
	}
	return false
}

// Skip forces an item to skipped regardless of its current state. This is
// the operator override and deliberately bypasses the transition table.
func (s *Store) Skip(ctx context.Context, id int64, reason string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, processing_completed_at = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		StatusSkipped,
		storage.FormatTime(now),
		storage.NullableString(strings.TrimSpace(reason)),
		storage.FormatTime(now),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("skip item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Prioritize moves an item to the front: highest urgency and due now.
func (s *Store) Prioritize(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE queue_items SET priority = 0, scheduled_for = ?, updated_at = ? WHERE id = ?`,
		storage.FormatTime(now),
		storage.FormatTime(now),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("prioritize item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
