// Package storage owns the shared SQLite database used by the pipeline
// stores. It opens the database with WAL and busy-timeout pragmas, applies
// embedded SQL migrations in one transaction, and provides the busy-retry
// exec wrapper and scan helpers the store packages build on.
//
// The subscription registry, work queue, event log, and processed-items
// index all share one database file so a single transaction boundary covers
// every mutation. Treat schema changes as new migration files; existing
// migrations are never edited.
package storage
