package cli

import (
	"fmt"

	"github.com/rshade/contentloader/internal/assets"
	"github.com/rshade/contentloader/internal/config"
	"github.com/rshade/contentloader/internal/engine"
	"github.com/rshade/contentloader/internal/engine/staleness"
	"github.com/rshade/contentloader/internal/logging"
	"github.com/rshade/contentloader/internal/portabletext"
	"github.com/rshade/contentloader/internal/sanity"
	"github.com/rshade/contentloader/internal/virtual"
)

// contentRuntime holds the collaborators built from one configuration.
type contentRuntime struct {
	cfg      *config.Config
	client   *sanity.Client
	loader   *engine.Loader
	registry *virtual.Registry
	// assets is nil when no asset directory is configured.
	assets *assets.Fetcher
}

// newRuntime validates cfg and wires the client, oracle, loader and registry.
func (a *app) newRuntime() (*contentRuntime, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := sanity.New(cfg.Client.SanityConfig(), logging.ComponentLogger(a.logger, "sanity"))
	if err != nil {
		return nil, fmt.Errorf("creating content client: %w", err)
	}
	a.logger.Debug().
		Str("component", "cli").
		Str("endpoint", client.Endpoint()).
		Str("strategy", cfg.Cache.Strategy).
		Msg("content client ready")

	oracle, err := staleness.FromStrategy(
		cfg.Cache.Strategy,
		cfg.Cache.EffectiveTTL(),
		logging.ComponentLogger(a.logger, "staleness"),
	)
	if err != nil {
		return nil, err
	}

	loader, err := engine.NewLoader(engine.LoaderConfig{
		Source:      client,
		Oracle:      oracle,
		StorageRoot: cfg.CacheDir(),
		QueriesDir:  cfg.Paths.Queries,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}

	rt := &contentRuntime{
		cfg:    cfg,
		client: client,
		loader: loader,
		registry: virtual.New(loader, virtual.Options{
			Watch:        cfg.Watch.Patterns,
			DisableWatch: cfg.Watch.Disable,
			WatchOptions: cfg.Watch.Options,
			WatchEvents:  cfg.Watch.Events,
		}),
	}

	if cfg.Paths.Assets != "" {
		rt.assets, err = assets.New(assets.Config{
			Dir:        cfg.Paths.Assets,
			PublicPath: cfg.Paths.AssetsPublic,
		}, a.logger)
		if err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// definition converts a configured query into an engine definition with its
// transforms chained: portable text first, then asset rewriting.
func (rt *contentRuntime) definition(q config.QueryConfig) (engine.Definition, error) {
	var transforms []engine.TransformFunc
	if len(q.PortableText) > 0 {
		transforms = append(transforms, portabletext.Transform(q.PortableText...))
	}
	if q.Assets {
		if rt.assets == nil {
			return engine.Definition{}, fmt.Errorf("%w: query %q downloads assets but paths.assets is not set",
				engine.ErrConfig, q.Name)
		}
		transforms = append(transforms, rt.assets.Rewrite)
	}

	return engine.Definition{
		QueryName:       q.Name,
		Query:           q.Query,
		Transform:       engine.Chain(transforms...),
		Cache:           engine.Bool(q.CacheEnabled(rt.cfg.Cache.Enabled)),
		ExpectedVersion: q.Version,
	}, nil
}

// module creates the virtual module for a configured query.
func (rt *contentRuntime) module(q config.QueryConfig) (virtual.Module, error) {
	def, err := rt.definition(q)
	if err != nil {
		return virtual.Module{}, err
	}
	create := rt.registry.CreateLoader(virtual.LoaderOptions{
		Definition: def,
		Options: virtual.Options{
			Watch:        q.Watch,
			DisableWatch: q.DisableWatch,
			WatchOptions: q.WatchOptions,
			WatchEvents:  q.WatchEvents,
		},
	})
	return create(), nil
}

// queryOrAdHoc returns the configured query called name, or an ad-hoc query
// definition resolved from the queries directory.
func (rt *contentRuntime) queryOrAdHoc(name string) config.QueryConfig {
	if q, ok := rt.cfg.Query(name); ok {
		return q
	}
	return config.QueryConfig{Name: name}
}
