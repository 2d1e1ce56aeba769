package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/rshade/contentloader/internal/engine/cache"
	"github.com/rshade/contentloader/internal/engine/staleness"
)

// QueryFileExtension is the extension of query files under the queries directory.
const QueryFileExtension = ".groq"

// Fetcher runs query text against the remote content API.
type Fetcher = staleness.Source

// LoaderConfig wires a Loader to its collaborators. StorageRoot and QueriesDir
// apply to every query defined on the loader.
type LoaderConfig struct {
	Source      Fetcher
	Oracle      staleness.Oracle
	StorageRoot string
	QueriesDir  string
	Logger      zerolog.Logger
}

// Loader composes the staleness oracle, the cache store and the remote source.
// It keeps no state between runs besides what lives on disk.
type Loader struct {
	source     Fetcher
	oracle     staleness.Oracle
	store      *cache.Store
	root       string
	queriesDir string
	logger     zerolog.Logger
}

// NewLoader validates cfg and creates a Loader. A nil Oracle selects the
// timestamp strategy.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("%w: a content source is required", ErrConfig)
	}
	if cfg.StorageRoot == "" {
		return nil, fmt.Errorf("%w: storage root is required", ErrConfig)
	}

	logger := cfg.Logger.With().Str("component", "loader").Logger()
	store, err := cache.NewStore(cfg.StorageRoot, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	oracle := cfg.Oracle
	if oracle == nil {
		oracle = staleness.NewTimestamp(cfg.Logger)
	}

	return &Loader{
		source:     cfg.Source,
		oracle:     oracle,
		store:      store,
		root:       cfg.StorageRoot,
		queriesDir: cfg.QueriesDir,
		logger:     logger,
	}, nil
}

// Store returns the cache store shared by all queries of this loader.
func (l *Loader) Store() *cache.Store {
	return l.store
}

// StorageRoot returns the directory holding cache records and markers.
func (l *Loader) StorageRoot() string {
	return l.root
}

// QueriesDir returns the directory query files are resolved from.
func (l *Loader) QueriesDir() string {
	return l.queriesDir
}

// Define returns the run function for def. Each run:
//  1. checks the staleness oracle (caching disabled means always stale),
//  2. reads the cache record, honouring the expected version,
//  3. on a miss, resolves the query text and fetches it, then caches the result,
//  4. applies the transform.
//
// Errors are logged with the query name and returned unchanged.
func (l *Loader) Define(def Definition) RunFunc {
	return func(ctx context.Context) (any, error) {
		log := l.logger.With().Str("query", def.QueryName).Logger()
		result, err := l.run(ctx, def, log)
		if err != nil {
			log.Error().Ctx(ctx).Err(err).Msg("query load failed")
			return nil, err
		}
		return result, nil
	}
}

func (l *Loader) run(ctx context.Context, def Definition, log zerolog.Logger) (any, error) {
	cacheEnabled := def.CacheEnabled()
	if cacheEnabled && def.QueryName == "" {
		return nil, ErrQueryNameRequired
	}

	stale := true
	if cacheEnabled {
		var err error
		if stale, err = l.oracle.IsStale(ctx, l.source, l.root); err != nil {
			return nil, err
		}
		if stale {
			log.Debug().Ctx(ctx).Msg("cache is stale")
		}
	}

	var result json.RawMessage
	if cacheEnabled {
		if cached, ok := l.store.Read(def.QueryName, def.ExpectedVersion, stale); ok && !cache.IsNull(cached) {
			log.Debug().Ctx(ctx).Msg("loaded query from cache")
			result = cached
		}
	}

	if result == nil {
		text, err := l.queryText(def)
		if err != nil {
			return nil, err
		}
		log.Debug().Ctx(ctx).Msg("fetching fresh data")
		if result, err = l.source.Fetch(ctx, text); err != nil {
			return nil, err
		}
		if cacheEnabled {
			if writeErr := l.store.Write(def.QueryName, result, def.ExpectedVersion); writeErr != nil {
				log.Warn().Ctx(ctx).Err(writeErr).Msg("could not cache query result")
			}
		}
	}

	if def.Transform == nil {
		return result, nil
	}
	return def.Transform(ctx, result)
}

// queryText returns the literal query or the contents of the query file.
func (l *Loader) queryText(def Definition) (string, error) {
	if def.Query != "" {
		return def.Query, nil
	}
	if def.QueryName == "" {
		return "", ErrNoQuery
	}
	return l.ReadQuery(def.QueryName)
}

// QueryPath returns the query file for queryName.
func (l *Loader) QueryPath(queryName string) string {
	return filepath.Join(l.queriesDir, filepath.FromSlash(queryName)+QueryFileExtension)
}

// ReadQuery reads the query file for queryName.
func (l *Loader) ReadQuery(queryName string) (string, error) {
	if l.queriesDir == "" {
		return "", fmt.Errorf("%w: %s (no queries directory configured)", ErrQueryNotFound, queryName)
	}
	path := l.QueryPath(queryName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s at %s", ErrQueryNotFound, queryName, path)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrQueryNotFound, queryName, err)
	}
	return string(data), nil
}
