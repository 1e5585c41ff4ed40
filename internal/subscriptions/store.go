package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trawler/internal/sources"
	"trawler/internal/storage"
)

// Defaults supplies the registration values used when a request leaves
// priority or interval unset.
type Defaults struct {
	Priority      int
	IntervalHours int
}

// Store manages subscription persistence backed by the shared database.
type Store struct {
	db       *storage.DB
	defaults Defaults
}

// NewStore builds a registry store on the shared database. Zeroed defaults
// fall back to priority 5 and a 12-hour check interval.
func NewStore(db *storage.DB, defaults Defaults) *Store {
	if defaults.Priority <= 0 {
		defaults.Priority = 5
	}
	if defaults.IntervalHours <= 0 {
		defaults.IntervalHours = 12
	}
	return &Store{db: db, defaults: defaults}
}

const subscriptionColumns = "id, kind, url, canonical_id, display_name, active, priority, interval_hours, last_checked_at, last_item_published_at, items_found, items_processed, results_found, created_at, updated_at"

// RegisterRequest carries the operator-supplied registration values.
type RegisterRequest struct {
	URL           string
	DisplayName   string
	Priority      int
	IntervalHours int
}

// Register resolves the URL, rejects duplicates, and persists a new
// subscription with zeroed counters and active=true. Unset priority and
// interval take the store defaults.
func (s *Store) Register(ctx context.Context, req RegisterRequest) (*Subscription, error) {
	src, err := sources.Resolve(req.URL)
	if err != nil {
		return nil, err
	}

	if req.Priority <= 0 {
		req.Priority = s.defaults.Priority
	}
	if req.IntervalHours <= 0 {
		req.IntervalHours = s.defaults.IntervalHours
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	_, err = s.db.ExecRetry(
		ctx,
		`INSERT INTO subscriptions (
            id, kind, url, canonical_id, display_name, active, priority,
            interval_hours, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		id,
		string(src.Kind),
		src.URL,
		src.CanonicalID,
		storage.NullableString(strings.TrimSpace(req.DisplayName)),
		req.Priority,
		req.IntervalHours,
		storage.FormatTime(now),
		storage.FormatTime(now),
	)
	if err != nil {
		if storage.IsConstraintViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, src.CanonicalID)
		}
		return nil, fmt.Errorf("insert subscription: %w", err)
	}

	return s.Get(ctx, id)
}

// Get fetches a subscription by id. A missing id returns (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Subscription, error) {
	row := s.db.Handle().QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// GetByCanonicalID fetches a subscription by its canonical source id.
func (s *Store) GetByCanonicalID(ctx context.Context, canonicalID string) (*Subscription, error) {
	row := s.db.Handle().QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE canonical_id = ?`, canonicalID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by canonical id: %w", err)
	}
	return sub, nil
}

// List returns subscriptions ordered by priority ascending, never-checked
// sources first, then least-recently-checked first.
func (s *Store) List(ctx context.Context, activeOnly bool) ([]*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY priority ASC,
        CASE WHEN last_checked_at IS NULL THEN 0 ELSE 1 END ASC,
        last_checked_at ASC`

	rows, err := s.db.Handle().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Update applies a partial update. Returns false when the id is unknown.
func (s *Store) Update(ctx context.Context, id string, fields Fields) (bool, error) {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)

	if fields.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, storage.BoolToInt(*fields.Active))
	}
	if fields.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *fields.Priority)
	}
	if fields.IntervalHours != nil {
		sets = append(sets, "interval_hours = ?")
		args = append(args, *fields.IntervalHours)
	}
	if fields.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, storage.NullableString(strings.TrimSpace(*fields.DisplayName)))
	}
	if fields.LastCheckedAt != nil {
		sets = append(sets, "last_checked_at = ?")
		args = append(args, storage.FormatTime(*fields.LastCheckedAt))
	}
	if fields.LastItemPublishedAt != nil {
		sets = append(sets, "last_item_published_at = ?")
		args = append(args, storage.FormatTime(*fields.LastItemPublishedAt))
	}
	if len(sets) == 0 {
		// Nothing recognized to change; treat as a successful no-op when
		// the subscription exists.
		sub, err := s.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return sub != nil, nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, storage.FormatTime(time.Now().UTC()))
	args = append(args, id)

	res, err := s.db.ExecRetry(ctx, `UPDATE subscriptions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// IncrementStats adds to the cumulative counters in a single statement so
// concurrent increments cannot be lost.
func (s *Store) IncrementStats(ctx context.Context, id string, found, processed, resultsFound int64) error {
	if found == 0 && processed == 0 && resultsFound == 0 {
		return nil
	}
	if err := s.db.ExecRetryNoResult(
		ctx,
		`UPDATE subscriptions
         SET items_found = items_found + ?,
             items_processed = items_processed + ?,
             results_found = results_found + ?,
             updated_at = ?
         WHERE id = ?`,
		found,
		processed,
		resultsFound,
		storage.FormatTime(time.Now().UTC()),
		id,
	); err != nil {
		return fmt.Errorf("increment subscription stats: %w", err)
	}
	return nil
}

// Pause deactivates a subscription.
func (s *Store) Pause(ctx context.Context, id string) (bool, error) {
	active := false
	return s.Update(ctx, id, Fields{Active: &active})
}

// Resume reactivates a subscription.
func (s *Store) Resume(ctx context.Context, id string) (bool, error) {
	active := true
	return s.Update(ctx, id, Fields{Active: &active})
}

// Delete removes a subscription. Returns false when the id is unknown.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecRetry(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanSubscription(scanner interface{ Scan(dest ...any) error }) (*Subscription, error) {
	var (
		id              string
		kind            string
		rawURL          string
		canonicalID     string
		displayName     sql.NullString
		active          int
		priority        int
		intervalHours   int
		lastCheckedRaw  sql.NullString
		lastItemRaw     sql.NullString
		itemsFound      int64
		itemsProcessed  int64
		resultsFound    int64
		createdRaw      string
		updatedRaw      string
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&rawURL,
		&canonicalID,
		&displayName,
		&active,
		&priority,
		&intervalHours,
		&lastCheckedRaw,
		&lastItemRaw,
		&itemsFound,
		&itemsProcessed,
		&resultsFound,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:             id,
		Kind:           sources.Kind(kind),
		URL:            rawURL,
		CanonicalID:    canonicalID,
		DisplayName:    displayName.String,
		Active:         active != 0,
		Priority:       priority,
		IntervalHours:  intervalHours,
		ItemsFound:     itemsFound,
		ItemsProcessed: itemsProcessed,
		ResultsFound:   resultsFound,
	}
	if lastCheckedRaw.Valid {
		if t, err := storage.ParseTime(lastCheckedRaw.String); err == nil {
			sub.LastCheckedAt = &t
		}
	}
	if lastItemRaw.Valid {
		if t, err := storage.ParseTime(lastItemRaw.String); err == nil {
			sub.LastItemPublishedAt = &t
		}
	}
	if created, err := storage.ParseTime(createdRaw); err == nil {
		sub.CreatedAt = created
	}
	if updated, err := storage.ParseTime(updatedRaw); err == nil {
		sub.UpdatedAt = updated
	}
	return sub, nil
}
