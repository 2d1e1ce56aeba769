// Package virtual exposes query loaders as build-tool virtual modules.
//
// A Registry wraps an engine.Loader with global watch defaults. CreateLoader
// merges per-module options over those defaults and returns a thunk producing
// the Module handed to the host: which files to watch and a Load function that
// runs the query and serialises the result as a JSON module.
package virtual

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/rshade/contentloader/internal/engine"
)

// DefaultWatchEvents are the file events that trigger a reload by default.
//
//nolint:gochecknoglobals // read-only default
var DefaultWatchEvents = []string{"add", "change", "unlink"}

// Options are the watch settings shared by the registry and each module.
type Options struct {
	// Watch lists glob patterns. Nil inherits the default; see DisableWatch.
	Watch []string
	// DisableWatch turns watching off regardless of Watch.
	DisableWatch bool
	// WatchOptions are passed through to the host's watcher.
	WatchOptions map[string]any
	// WatchEvents lists the events that trigger a reload.
	WatchEvents []string
}

// LoaderOptions configure one virtual module.
type LoaderOptions struct {
	engine.Definition
	Options
}

// Module is what the build host consumes.
type Module struct {
	Name         string
	Watch        []string
	WatchOptions map[string]any
	WatchEvents  []string
	Load         func(ctx context.Context) (string, error)
}

// Registry creates virtual module loaders sharing one engine.Loader.
type Registry struct {
	loader   *engine.Loader
	defaults Options
}

// New creates a Registry. When defaults.Watch is nil the default pattern
// matches every query file: <queries dir>/**/*.groq.
func New(loader *engine.Loader, defaults Options) *Registry {
	if defaults.Watch == nil && loader.QueriesDir() != "" {
		defaults.Watch = []string{DefaultWatchPattern(loader.QueriesDir())}
	}
	if defaults.WatchEvents == nil {
		defaults.WatchEvents = slices.Clone(DefaultWatchEvents)
	}
	return &Registry{loader: loader, defaults: defaults}
}

// DefaultWatchPattern returns the glob matching every query file under dir.
func DefaultWatchPattern(dir string) string {
	return filepath.ToSlash(filepath.Join(dir, "**", "*"+engine.QueryFileExtension))
}

// CreateLoader defines the query and returns a thunk describing the module.
func (r *Registry) CreateLoader(opts LoaderOptions) func() Module {
	run := r.loader.Define(opts.Definition)
	merged := r.merge(opts.Options)

	return func() Module {
		m := cloneOptions(merged)
		return Module{
			Name:         opts.QueryName,
			Watch:        m.Watch,
			WatchOptions: m.WatchOptions,
			WatchEvents:  m.WatchEvents,
			Load: func(ctx context.Context) (string, error) {
				result, err := run(ctx)
				if err != nil {
					return "", err
				}
				return ToJSONModule(result)
			},
		}
	}
}

// merge overlays per-module options on the registry defaults. A module that
// lists its own patterns watches them even when the defaults disable watching.
func (r *Registry) merge(o Options) Options {
	merged := cloneOptions(r.defaults)
	if o.WatchOptions != nil {
		merged.WatchOptions = maps.Clone(o.WatchOptions)
	}
	if o.WatchEvents != nil {
		merged.WatchEvents = slices.Clone(o.WatchEvents)
	}

	switch {
	case o.DisableWatch:
		merged.Watch, merged.DisableWatch = []string{}, true
	case o.Watch != nil:
		merged.Watch, merged.DisableWatch = slices.Clone(o.Watch), false
	case merged.DisableWatch:
		merged.Watch = []string{}
	}
	return merged
}

func cloneOptions(o Options) Options {
	return Options{
		Watch:        slices.Clone(o.Watch),
		DisableWatch: o.DisableWatch,
		WatchOptions: maps.Clone(o.WatchOptions),
		WatchEvents:  slices.Clone(o.WatchEvents),
	}
}

// ToJSONModule serialises v as an ES module whose default export is v.
func ToJSONModule(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding module: %w", err)
	}
	return "export default " + string(data) + ";", nil
}
