// Package cache persists query results as JSON files under a storage root.
//
// Each named query owns exactly one file, <root>/<query name>.json, holding a
// Record with the raw result and the optional manual version tag it was written
// with. Key points:
//   - Writes replace the whole file (temp file + rename), creating parent directories
//   - Reads never fail: missing, stale, unreadable or malformed entries are misses
//   - A present record is not proof of freshness; callers pass the staleness verdict
//   - When a version is expected, only a record written with that version is returned
package cache
