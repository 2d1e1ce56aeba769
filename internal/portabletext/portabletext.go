// Package portabletext cleans Portable Text arrays returned by the content API.
//
// Editors occasionally leave blocks without a _type (for example after a
// failed paste), and renderers reject them. Fix drops such blocks.
package portabletext

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Fix returns blocks without the entries that lack a non-empty string _type.
// The backing array is reused.
func Fix(blocks []any) []any {
	kept := blocks[:0]
	for _, block := range blocks {
		obj, ok := block.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := obj["_type"].(string); t != "" {
			kept = append(kept, block)
		}
	}
	clear(blocks[len(kept):])
	return kept
}

// FixFields applies Fix to every array found at the given dotted paths of doc.
// Arrays met on the way to a path are traversed element by element, so
// "sections.body" fixes the body of every section. Missing paths are ignored.
func FixFields(doc any, paths ...string) any {
	for _, p := range paths {
		if p == "" {
			continue
		}
		doc = fixPath(doc, strings.Split(p, "."))
	}
	return doc
}

func fixPath(node any, segments []string) any {
	if arr, ok := node.([]any); ok {
		for i, item := range arr {
			arr[i] = fixPath(item, segments)
		}
		if len(segments) == 0 {
			return Fix(arr)
		}
		return arr
	}
	if len(segments) == 0 {
		return node
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return node
	}
	child, ok := obj[segments[0]]
	if !ok {
		return node
	}
	if len(segments) == 1 {
		if arr, isArr := child.([]any); isArr {
			obj[segments[0]] = Fix(arr)
		}
		return node
	}
	obj[segments[0]] = fixPath(child, segments[1:])
	return node
}

// Transform returns a result transform that fixes the given fields.
func Transform(paths ...string) func(ctx context.Context, result json.RawMessage) (any, error) {
	return func(_ context.Context, result json.RawMessage) (any, error) {
		var doc any
		if err := json.Unmarshal(result, &doc); err != nil {
			return nil, fmt.Errorf("decoding result for portable text: %w", err)
		}
		return FixFields(doc, paths...), nil
	}
}
