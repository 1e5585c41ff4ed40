// Package queue persists discovered items and drives their lifecycle
// state machine in SQLite.
//
// Statuses form a closed set: queued -> processing -> {completed | failed |
// skipped}, with a processing -> queued self-loop for retryable failures.
// Every mutator consults the transition table; illegal transitions are
// errors, not silent writes. Dequeue claims an item with an atomic
// conditional update so concurrent callers can never both receive it.
//
// Treat this package as the single source of truth for item lifecycle
// semantics; the scheduler orchestrates but never writes status directly.
package queue
