// Package logging builds the slog loggers used across trawler.
//
// It provides a console handler (timestamp, level, component prefix, k=v
// attrs), a JSON handler with ts/level/msg key renames, typed attribute
// helpers, shared field-name constants, and an age-based retention sweep
// for daemon log files.
package logging
