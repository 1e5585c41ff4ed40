package queue

import (
	"context"
	"time"

	"trawler/internal/storage"
)

// ProcessedIndex is the queue's view of the external "already-processed"
// registry, consulted at enqueue time to auto-skip known items.
type ProcessedIndex interface {
	Contains(ctx context.Context, externalID string) (bool, error)
}

// Settings carries the queue's tunable behavior.
type Settings struct {
	// MaxAttempts is the retry budget before an item fails terminally.
	MaxAttempts int
	// ProcessInterval spaces scheduled slots and is the backoff base unit.
	ProcessInterval time.Duration
	// MaxItemAge auto-skips items whose publish timestamp is older.
	MaxItemAge time.Duration
	// PermanentFailureSignatures are case-insensitive substrings of error
	// text that short-circuit the retry path straight to skipped.
	PermanentFailureSignatures []string
}

// Store manages queue-item persistence backed by the shared database.
type Store struct {
	db        *storage.DB
	settings  Settings
	processed ProcessedIndex
}

// NewStore builds a queue store. processed may be nil when no
// already-processed registry is wired (enqueue then skips that check).
func NewStore(db *storage.DB, settings Settings, processed ProcessedIndex) *Store {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	if settings.ProcessInterval <= 0 {
		settings.ProcessInterval = time.Minute
	}
	return &Store{db: db, settings: settings, processed: processed}
}

// Settings returns the store's effective settings.
func (s *Store) Settings() Settings {
	return s.settings
}
