package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trawler/internal/storage"
)

// Level classifies an entry's severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel converts a string into a known Level.
func ParseLevel(value string) (Level, bool) {
	switch Level(strings.ToLower(strings.TrimSpace(value))) {
	case LevelInfo:
		return LevelInfo, true
	case LevelWarning:
		return LevelWarning, true
	case LevelError:
		return LevelError, true
	default:
		return "", false
	}
}

// Entry is one structured pipeline event.
type Entry struct {
	ID             int64
	At             time.Time
	Level          Level
	Type           string
	SubscriptionID string
	ItemID         int64
	Message        string
	Details        map[string]any
}

// Record carries the values for a new entry. Zero-valued optional fields
// are stored as NULL.
type Record struct {
	Level          Level
	Type           string
	Message        string
	SubscriptionID string
	ItemID         int64
	Details        map[string]any
}

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	Level          Level
	Type           string
	SubscriptionID string
	Start          time.Time
	End            time.Time
	Page           int
	Limit          int
}

// Store manages event persistence backed by the shared database.
type Store struct {
	db *storage.DB
}

// NewStore builds an event-log store on the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

const entryColumns = "id, at, level, event_type, subscription_id, item_id, message, details"

// Append stores a new entry stamped with the current time.
func (s *Store) Append(ctx context.Context, rec Record) (*Entry, error) {
	if rec.Level == "" {
		rec.Level = LevelInfo
	}
	if _, ok := ParseLevel(string(rec.Level)); !ok {
		return nil, fmt.Errorf("unrecognized log level %q", rec.Level)
	}
	if strings.TrimSpace(rec.Type) == "" {
		return nil, fmt.Errorf("event type is required")
	}

	var details any
	if len(rec.Details) > 0 {
		data, err := json.Marshal(rec.Details)
		if err != nil {
			return nil, fmt.Errorf("encode event details: %w", err)
		}
		details = string(data)
	}

	var itemID any
	if rec.ItemID > 0 {
		itemID = rec.ItemID
	}

	now := time.Now().UTC()
	res, err := s.db.ExecRetry(
		ctx,
		`INSERT INTO log_entries (at, level, event_type, subscription_id, item_id, message, details)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		storage.FormatTime(now),
		string(rec.Level),
		rec.Type,
		storage.NullableString(rec.SubscriptionID),
		itemID,
		rec.Message,
		details,
	)
	if err != nil {
		return nil, fmt.Errorf("insert log entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	entry := &Entry{
		ID:             id,
		At:             now,
		Level:          rec.Level,
		Type:           rec.Type,
		SubscriptionID: rec.SubscriptionID,
		ItemID:         rec.ItemID,
		Message:        rec.Message,
		Details:        rec.Details,
	}
	return entry, nil
}

// Query returns matching entries most-recent-first, plus the total count
// honoring the same filters. An end date at midnight is treated as
// inclusive of the entire day.
func (s *Store) Query(ctx context.Context, filter Filter) ([]*Entry, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 6)

	if filter.Level != "" {
		conditions = append(conditions, "level = ?")
		args = append(args, string(filter.Level))
	}
	if strings.TrimSpace(filter.Type) != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, strings.TrimSpace(filter.Type))
	}
	if strings.TrimSpace(filter.SubscriptionID) != "" {
		conditions = append(conditions, "subscription_id = ?")
		args = append(args, strings.TrimSpace(filter.SubscriptionID))
	}
	if !filter.Start.IsZero() {
		conditions = append(conditions, "at >= ?")
		args = append(args, storage.FormatTime(filter.Start))
	}
	if !filter.End.IsZero() {
		end := filter.End.UTC()
		if isMidnight(end) {
			// A day-only end date covers the whole day.
			conditions = append(conditions, "at < ?")
			args = append(args, storage.FormatTime(end.AddDate(0, 0, 1)))
		} else {
			conditions = append(conditions, "at <= ?")
			args = append(args, storage.FormatTime(end))
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	row := s.db.Handle().QueryRowContext(ctx, `SELECT COUNT(1) FROM log_entries`+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count log entries: %w", err)
	}

	query := `SELECT ` + entryColumns + ` FROM log_entries` + where + ` ORDER BY at DESC, id DESC`
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, (page-1)*filter.Limit)
	}

	rows, err := s.db.Handle().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// Purge deletes every entry older than the retention cutoff; returns the
// count removed. A non-positive retention disables purging.
func (s *Store) Purge(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecRetry(ctx, `DELETE FROM log_entries WHERE at < ?`, storage.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge log entries: %w", err)
	}
	return res.RowsAffected()
}

// EventCounts returns per-type occurrence counts within the trailing window.
func (s *Store) EventCounts(ctx context.Context, days int) (map[string]int, error) {
	if days <= 0 {
		days = 1
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.Handle().QueryContext(
		ctx,
		`SELECT event_type, COUNT(1) FROM log_entries WHERE at >= ? GROUP BY event_type`,
		storage.FormatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			eventType string
			count     int
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id             int64
		atRaw          string
		levelStr       string
		eventType      string
		subscriptionID sql.NullString
		itemID         sql.NullInt64
		message        string
		details        sql.NullString
	)

	if err := scanner.Scan(&id, &atRaw, &levelStr, &eventType, &subscriptionID, &itemID, &message, &details); err != nil {
		return nil, fmt.Errorf("scan log entry: %w", err)
	}

	entry := &Entry{
		ID:             id,
		Level:          Level(levelStr),
		Type:           eventType,
		SubscriptionID: subscriptionID.String,
		ItemID:         itemID.Int64,
		Message:        message,
	}
	if at, err := storage.ParseTime(atRaw); err == nil {
		entry.At = at
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
			return nil, fmt.Errorf("decode details for entry %d: %w", id, err)
		}
	}
	return entry, nil
}
