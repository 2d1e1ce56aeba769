package cache

import (
	"bytes"
	"encoding/json"
	"time"
)

// Record is the persisted unit for one query.
type Record struct {
	// Result is the raw JSON returned by the content API.
	Result json.RawMessage `json:"result"`

	// Version is the manual version tag the record was written with, if any.
	Version string `json:"version,omitempty"`

	// CachedAt is informational only; freshness is never derived from it.
	CachedAt time.Time `json:"cached_at,omitempty"`
}

// NewRecord creates a record stamped with the current time.
func NewRecord(result json.RawMessage, version string) *Record {
	return &Record{
		Result:   result,
		Version:  version,
		CachedAt: time.Now().UTC(),
	}
}

// Matches reports whether the record satisfies expectedVersion. An empty
// expectedVersion matches any record.
func (r *Record) Matches(expectedVersion string) bool {
	if expectedVersion == "" {
		return true
	}
	return r.Version == expectedVersion
}

// IsNull reports whether raw is absent or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
