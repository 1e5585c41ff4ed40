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

// EnqueueRequest carries the values for a new queue item. Priority is taken
// as resolved by the caller; inheritance from a subscription happens in the
// scheduler so the queue never reads the registry.
type EnqueueRequest struct {
	ExternalID     string
	URL            string
	SubscriptionID string
	Title          string
	PublishedAt    *time.Time
	Priority       int
}

// Enqueue inserts a discovered item.
//
// Items published before the configured maximum age are inserted directly as
// skipped. An external id already present in the queue fails with
// ErrAlreadyQueued; one already present in the processed registry is
// inserted as skipped so re-discoveries stay idempotent. Otherwise the item
// lands in queued with a scheduled slot one process interval after the
// latest queued slot, clamped to now.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Item, error) {
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return nil, errors.New("external id is required")
	}
	now := time.Now().UTC()

	if req.PublishedAt != nil && s.settings.MaxItemAge > 0 {
		if now.Sub(req.PublishedAt.UTC()) > s.settings.MaxItemAge {
			reason := fmt.Sprintf("published %s, older than the %s maximum age",
				req.PublishedAt.UTC().Format(time.RFC3339), s.settings.MaxItemAge)
			return s.insert(ctx, req, StatusSkipped, reason, now)
		}
	}

	existing, err := s.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, externalID)
	}

	if s.processed != nil {
		known, err := s.processed.Contains(ctx, externalID)
		if err != nil {
			return nil, fmt.Errorf("check processed registry: %w", err)
		}
		if known {
			return s.insert(ctx, req, StatusSkipped, "already present in processed registry", now)
		}
	}

	return s.insert(ctx, req, StatusQueued, "", now)
}

// EnqueueSkipped records a deliberately excluded item for visibility, with
// the reason stored as its error message. A duplicate external id is a
// no-op.
func (s *Store) EnqueueSkipped(ctx context.Context, req EnqueueRequest, reason string) error {
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return errors.New("external id is required")
	}
	existing, err := s.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.insert(ctx, req, StatusSkipped, reason, time.Now().UTC())
	if errors.Is(err, ErrAlreadyQueued) {
		return nil
	}
	return err
}

func (s *Store) insert(ctx context.Context, req EnqueueRequest, status Status, reason string, now time.Time) (*Item, error) {
	scheduledFor := now
	if status == StatusQueued {
		slot, err := s.nextScheduledSlot(ctx, now)
		if err != nil {
			return nil, err
		}
		scheduledFor = slot
	}

	res, err := s.db.ExecRetry(
		ctx,
		`INSERT INTO queue_items (
            external_id, url, subscription_id, title, published_at, status,
            priority, scheduled_for, attempts, max_attempts, error_message,
            results_found, discovered_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, 0, ?, ?)`,
		strings.TrimSpace(req.ExternalID),
		req.URL,
		storage.NullableString(req.SubscriptionID),
		storage.NullableString(strings.TrimSpace(req.Title)),
		storage.NullableTime(req.PublishedAt),
		status,
		req.Priority,
		storage.FormatTime(scheduledFor),
		s.settings.MaxAttempts,
		storage.NullableString(strings.TrimSpace(reason)),
		storage.FormatTime(now),
		storage.FormatTime(now),
	)
	if err != nil {
		if storage.IsConstraintViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, req.ExternalID)
		}
		return nil, fmt.Errorf("insert queue item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// nextScheduledSlot spaces new work one process interval after the latest
// queued slot, clamped to now when that slot is already in the past.
func (s *Store) nextScheduledSlot(ctx context.Context, now time.Time) (time.Time, error) {
	var latestRaw sql.NullString
	row := s.db.Handle().QueryRowContext(
		ctx,
		`SELECT MAX(scheduled_for) FROM queue_items WHERE status = ?`,
		StatusQueued,
	)
	if err := row.Scan(&latestRaw); err != nil {
		return time.Time{}, fmt.Errorf("query latest scheduled slot: %w", err)
	}
	if !latestRaw.Valid {
		return now, nil
	}
	latest, err := storage.ParseTime(latestRaw.String)
	if err != nil {
		return now, nil
	}
	slot := latest.Add(s.settings.ProcessInterval)
	if slot.Before(now) {
		return now, nil
	}
	return slot, nil
}

// GetByID fetches a queue item by identifier. A missing id returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.Handle().QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetByExternalID fetches a queue item by its upstream identifier.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*Item, error) {
	row := s.db.Handle().QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE external_id = ?`, externalID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by external id: %w", err)
	}
	return item, nil
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecRetry(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Depth returns the number of queued items.
func (s *Store) Depth(ctx context.Context) (int, error) {
	var count int
	row := s.db.Handle().QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_items WHERE status = ?`, StatusQueued)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count queued items: %w", err)
	}
	return count, nil
}

// ListQueued returns queued items in claim order, paginated.
func (s *Store) ListQueued(ctx context.Context, page, limit int) ([]*Item, error) {
	return s.listByStatuses(ctx,
		`ORDER BY priority ASC, scheduled_for ASC`, page, limit, StatusQueued)
}

// ListProcessing returns items currently claimed by a worker.
func (s *Store) ListProcessing(ctx context.Context) ([]*Item, error) {
	return s.listByStatuses(ctx, `ORDER BY processing_started_at ASC`, 1, 0, StatusProcessing)
}

// History returns completed and failed items, most recently finished first.
func (s *Store) History(ctx context.Context, page, limit int) ([]*Item, error) {
	return s.listByStatuses(ctx,
		`ORDER BY processing_completed_at DESC, id DESC`, page, limit,
		StatusCompleted, StatusFailed)
}

func (s *Store) listByStatuses(ctx context.Context, orderClause string, page, limit int, statuses ...Status) ([]*Item, error) {
	placeholders := storage.Placeholders(len(statuses))
	args := make([]any, 0, len(statuses)+2)
	for _, status := range statuses {
		args = append(args, status)
	}

	query := `SELECT ` + itemColumns + ` FROM queue_items WHERE status IN (` + placeholders + `) ` + orderClause
	if limit > 0 {
		if page < 1 {
			page = 1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, (page-1)*limit)
	}

	rows, err := s.db.Handle().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Stats returns the item count per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.Handle().QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		status, ok := ParseStatus(statusStr)
		if !ok {
			return nil, fmt.Errorf("unrecognized queue status %q", statusStr)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
