// Package daemon wires the scheduler, stores, and instance lock into the
// long-running trawlerd process.
package daemon
