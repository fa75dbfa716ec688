// Package config loads and merges wordbatch configuration.
//
// Precedence (highest to lowest):
//  1. CLI flags, passed to [Load] as an overrides map
//  2. Environment variables (WORDBATCH_MODEL, WORDBATCH_CONCURRENCY, ...)
//  3. Config file (--config, else $XDG_CONFIG_HOME/wordbatch/config.json)
//  4. Built-in defaults
//
// Config files may group keys under "api" and "processing" objects; both
// are flattened before decoding, and JSON nulls are ignored.
//
// The credential is resolved separately: an explicit --api-key, then the
// configured api_key, then WORDBATCH_API_KEY (or the legacy APP_API_KEY).
// It is never written to run metadata; use [Config.Sanitized].
package config
