// Package processed maintains the local index of already-processed items so
// re-discovered content auto-skips instead of reprocessing.
package processed
