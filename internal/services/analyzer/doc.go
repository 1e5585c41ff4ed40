// Package analyzer is the HTTP client for the external item processor.
package analyzer
