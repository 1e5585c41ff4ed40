package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// StaleTimeoutReason is the error message set when a stale claim is reclaimed.
const StaleTimeoutReason = "processing exceeded stale timeout; worker presumed dead"

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusSkipped:   {},
}

// legalTransitions is the closed transition table consulted by every
// mutator. Skip is the one deliberate exception: it forces skipped from any
// state by operator request.
var legalTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusSkipped},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusQueued, StatusSkipped},
	StatusFailed:     {StatusQueued},
}

func canTransition(from, to Status) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the item lifecycle.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// ErrorEntry is one append-only record in an item's error history.
type ErrorEntry struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Attempt int       `json:"attempt"`
}

// Item represents a discovered unit of work persisted in SQLite.
type Item struct {
	ID                    int64
	ExternalID            string
	URL                   string
	SubscriptionID        string
	Title                 string
	PublishedAt           *time.Time
	Status                Status
	Priority              int
	ScheduledFor          time.Time
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	Attempts              int
	MaxAttempts           int
	ErrorMessage          string
	ErrorHistory          []ErrorEntry
	ResultsFound          int
	ResultRef             string
	DiscoveredAt          time.Time
	UpdatedAt             time.Time
}

// LastError returns the most recent error-history entry, if any.
func (i *Item) LastError() (ErrorEntry, bool) {
	if len(i.ErrorHistory) == 0 {
		return ErrorEntry{}, false
	}
	return i.ErrorHistory[len(i.ErrorHistory)-1], true
}
