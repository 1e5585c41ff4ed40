package subscriptions

import (
	"errors"
	"time"

	"trawler/internal/sources"
)

// ErrDuplicateSource marks a registration whose canonical id already exists.
var ErrDuplicateSource = errors.New("source already registered")

// Subscription is a watched content source.
type Subscription struct {
	ID                  string
	Kind                sources.Kind
	URL                 string
	CanonicalID         string
	DisplayName         string
	Active              bool
	Priority            int
	IntervalHours       int
	LastCheckedAt       *time.Time
	LastItemPublishedAt *time.Time
	ItemsFound          int64
	ItemsProcessed      int64
	ResultsFound        int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DueForCheck reports whether the subscription should be polled at now.
// Never-checked subscriptions are always due.
func (s *Subscription) DueForCheck(now time.Time) bool {
	if s.LastCheckedAt == nil {
		return true
	}
	interval := time.Duration(s.IntervalHours) * time.Hour
	return !now.Before(s.LastCheckedAt.Add(interval))
}

// Fields is the partial-update patch for a subscription. Nil fields are left
// untouched; the struct itself is the update allow-list.
type Fields struct {
	Active              *bool
	Priority            *int
	IntervalHours       *int
	DisplayName         *string
	LastCheckedAt       *time.Time
	LastItemPublishedAt *time.Time
}
