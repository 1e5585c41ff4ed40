// Command trawlerd runs the content-discovery daemon and its supporting
// maintenance subcommands (version, config, preflight).
package main
