// Package cache stores generation responses on disk so that re-running a
// batch over unchanged documents does not pay for the same prompt twice.
//
// Entries are JSON files named by the SHA-256 of the request identity
// (endpoint, model, temperature, output cap and the full prompt). Each entry
// records its creation time; entries older than the TTL are treated as
// misses and removed lazily. Writes go through a temp file and rename, so
// concurrent workers never observe a partial entry.
//
// The default directory is $XDG_CACHE_HOME/wordbatch or the OS equivalent.
package cache
