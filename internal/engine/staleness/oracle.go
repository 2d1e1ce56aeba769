package staleness

import (
	"context"
	"encoding/json"
)

// Source is the remote content capability consulted by oracles.
type Source interface {
	Fetch(ctx context.Context, query string) (json.RawMessage, error)
}

// LatestUpdater is implemented by sources that answer LatestUpdateQuery
// directly. An empty string means the dataset has no documents.
type LatestUpdater interface {
	LatestUpdate(ctx context.Context) (string, error)
}

// Oracle reports whether data cached under storageRoot must be considered stale.
type Oracle interface {
	IsStale(ctx context.Context, src Source, storageRoot string) (bool, error)
}

// Func adapts an ordinary function to the Oracle interface.
type Func func(ctx context.Context, src Source, storageRoot string) (bool, error)

// IsStale calls f.
func (f Func) IsStale(ctx context.Context, src Source, storageRoot string) (bool, error) {
	return f(ctx, src, storageRoot)
}

// Always reports every cache entry as stale.
//
//nolint:gochecknoglobals // stateless strategy value
var Always Oracle = Func(func(context.Context, Source, string) (bool, error) {
	return true, nil
})

// Never trusts every cache entry; only manual versions invalidate.
//
//nolint:gochecknoglobals // stateless strategy value
var Never Oracle = Func(func(context.Context, Source, string) (bool, error) {
	return false, nil
})
