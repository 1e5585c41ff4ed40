// Package eventlog persists the append-only audit trail of pipeline events.
//
// Entries are written once and never mutated; retention sweeps delete in
// bulk by age. The details payload is stored and returned verbatim as
// opaque JSON.
package eventlog
