package staleness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// LatestUpdateQuery selects the update time of the most recently changed document.
const LatestUpdateQuery = `*|order(_updatedAt desc)[0]._updatedAt`

// Timestamp is the default oracle. It compares the remote latest update time
// with the marker of the storage root by string equality.
//
// Concurrent checks against the same storage root within one process share a
// single remote query and all receive its verdict.
type Timestamp struct {
	logger zerolog.Logger
	group  singleflight.Group
}

// NewTimestamp creates the default oracle.
func NewTimestamp(logger zerolog.Logger) *Timestamp {
	return &Timestamp{logger: logger.With().Str("component", "staleness").Logger()}
}

// IsStale implements Oracle.
//
// The shared check runs detached from any single caller's cancellation; each
// caller stops waiting when its own ctx is done.
func (t *Timestamp) IsStale(ctx context.Context, src Source, storageRoot string) (bool, error) {
	shared := context.WithoutCancel(ctx)
	ch := t.group.DoChan(storageRoot, func() (any, error) {
		return t.check(shared, src, storageRoot)
	})

	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return true, res.Err
		}
		if res.Shared {
			t.logger.Debug().Str("storage_root", storageRoot).Msg("shared in-flight staleness check")
		}
		stale, _ := res.Val.(bool)
		return stale, nil
	}
}

func (t *Timestamp) check(ctx context.Context, src Source, storageRoot string) (bool, error) {
	marker := NewMarker(storageRoot)

	cached, _, err := marker.Load()
	if err != nil {
		t.logger.Warn().Err(err).Str("path", marker.Path()).Msg("treating unreadable marker as absent")
		cached = ""
	}

	remote, err := latestUpdate(ctx, src)
	if err != nil {
		return true, fmt.Errorf("fetching latest update time: %w", err)
	}

	stale := remote == "" || remote != cached
	if stale && remote != "" {
		// The marker advances before any query has been refetched.
		if storeErr := marker.Store(remote); storeErr != nil {
			t.logger.Warn().Err(storeErr).Str("path", marker.Path()).Msg("could not persist staleness marker")
		}
	}

	t.logger.Debug().
		Str("storage_root", storageRoot).
		Str("remote", remote).
		Str("cached", cached).
		Bool("stale", stale).
		Msg("checked remote update time")
	return stale, nil
}

// latestUpdate asks src for the dataset's latest update time, using its
// LatestUpdate method when it has one.
func latestUpdate(ctx context.Context, src Source) (string, error) {
	if u, ok := src.(LatestUpdater); ok {
		return u.LatestUpdate(ctx)
	}
	raw, err := src.Fetch(ctx, LatestUpdateQuery)
	if err != nil {
		return "", err
	}
	return decodeTimestamp(raw), nil
}

// decodeTimestamp extracts a string timestamp; null, empty and non-string
// results are treated as absent.
func decodeTimestamp(raw json.RawMessage) string {
	var ts *string
	if err := json.Unmarshal(raw, &ts); err != nil || ts == nil {
		return ""
	}
	return *ts
}
