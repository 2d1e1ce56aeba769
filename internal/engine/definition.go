package engine

import (
	"context"
	"encoding/json"
)

// TransformFunc post-processes a query result (cached or fresh) before it is
// returned to the caller.
type TransformFunc func(ctx context.Context, result json.RawMessage) (any, error)

// RunFunc executes one configured query.
type RunFunc func(ctx context.Context) (any, error)

// Definition configures a single query loader. It is built once per call site
// and reused for every invocation of the RunFunc returned by Loader.Define.
type Definition struct {
	// QueryName identifies the query. It is the cache key and the stem of the
	// query file <queries dir>/<QueryName>.groq.
	QueryName string

	// Query is literal query text. It takes precedence over the query file.
	Query string

	// Transform is applied to the chosen result; nil returns it unchanged.
	Transform TransformFunc

	// Cache enables caching when nil or true.
	Cache *bool

	// ExpectedVersion switches the cache to manual versioning: only records
	// written with the same version are used.
	ExpectedVersion string
}

// CacheEnabled reports whether caching is on for this definition (default true).
func (d Definition) CacheEnabled() bool {
	return d.Cache == nil || *d.Cache
}

// Bool returns a pointer to b, for Definition.Cache literals.
func Bool(b bool) *bool {
	return &b
}

// Chain composes transforms left to right. Intermediate values that are not
// already raw JSON are re-encoded before being passed on.
func Chain(transforms ...TransformFunc) TransformFunc {
	var active []TransformFunc
	for _, t := range transforms {
		if t != nil {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return nil
	}
	if len(active) == 1 {
		return active[0]
	}
	return func(ctx context.Context, result json.RawMessage) (any, error) {
		var out any = result
		for _, t := range active {
			raw, err := toRaw(out)
			if err != nil {
				return nil, err
			}
			if out, err = t(ctx, raw); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}

func toRaw(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
