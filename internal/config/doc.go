// Package config loads and validates the TOML configuration for trawler.
//
// Load resolves the config path (explicit flag, TRAWLER_CONFIG, the default
// user path, then ./trawler.toml), decodes on top of repository defaults,
// normalizes paths and zeroed fields, and validates ranges. A missing file
// is not an error; defaults apply.
package config
