package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rshade/contentloader/internal/config"
	"github.com/rshade/contentloader/internal/logging"
	"github.com/rshade/contentloader/internal/watch"
)

// watchedQuery is a configured query with its resolved watch settings.
type watchedQuery struct {
	query config.QueryConfig
	// queryFile is the absolute path of <paths.queries>/<name>.groq.
	queryFile string
	// patterns are normalized relative to the watch base directory.
	patterns []string
	events   []string
}

// newWatchCmd creates the watch command, which rebuilds modules on file changes.
func newWatchCmd(a *app) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build all modules, then rebuild them when watched files change",
		Long: `Builds every configured query, then watches the files matched by each
module's watch patterns (by default <paths.queries>/**/*.groq).

When a module's own query file changes its cache record is dropped and only
that module is rebuilt. Any other matching change rebuilds every module whose
patterns match it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, a, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, a *app, flags buildFlags) error {
	if err := flags.validate(); err != nil {
		return err
	}
	rt, err := a.newRuntime()
	if err != nil {
		return err
	}
	if len(rt.cfg.Queries) == 0 {
		return errNoQueries
	}

	log := logging.ComponentLogger(a.logger, "cli")
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outDir := flags.outputDir(rt.cfg)
	if _, buildErr := rt.buildModules(ctx, rt.cfg.Queries, outDir, flags.format); buildErr != nil {
		log.Error().Ctx(ctx).Err(buildErr).Msg("initial build failed, watching for changes")
	} else {
		cmd.Printf("Built %d module(s) in %s\n", len(rt.cfg.Queries), outDir)
	}

	baseDir := watchBaseDir(rt.cfg)
	watched, err := rt.watchedQueries(baseDir)
	if err != nil {
		return err
	}
	patterns, events := watchUnion(watched)
	if len(patterns) == 0 {
		return fmt.Errorf("watching is disabled for every query")
	}

	w, err := watch.New(watch.Config{
		Patterns: patterns,
		Ignore:   rt.cfg.Watch.Ignore,
		Events:   events,
		Debounce: rt.cfg.Watch.Debounce,
		BaseDir:  baseDir,
		Logger:   a.logger,
		OnChange: func(ctx context.Context, changed []string) error {
			rebuild, dropCache := affectedQueries(baseDir, changed, watched)
			if len(rebuild) == 0 {
				return nil
			}
			for _, name := range dropCache {
				if delErr := rt.loader.Store().Delete(name); delErr != nil {
					log.Warn().Ctx(ctx).Err(delErr).Str("query", name).Msg("could not drop cache record")
				}
			}
			written, buildErr := rt.buildModules(ctx, rebuild, outDir, flags.format)
			if buildErr != nil {
				return buildErr
			}
			for _, path := range written {
				cmd.Printf("Rebuilt %s\n", path)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	cmd.Printf("Watching %s for changes (Ctrl+C to stop)\n", w.BaseDir())
	return w.Run(ctx)
}

// watchBaseDir returns the directory watch patterns are relative to: the
// directory of the project config file, or the working directory.
func watchBaseDir(cfg *config.Config) string {
	if src := cfg.Source(); src != "" {
		return filepath.Dir(src)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// watchedQueries resolves the watch settings of every configured query.
func (rt *contentRuntime) watchedQueries(baseDir string) ([]watchedQuery, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving watch directory: %w", err)
	}

	watched := make([]watchedQuery, 0, len(rt.cfg.Queries))
	for _, q := range rt.cfg.Queries {
		m, modErr := rt.module(q)
		if modErr != nil {
			return nil, modErr
		}
		patterns, normErr := watch.NormalizePatterns(absBase, m.Watch)
		if normErr != nil {
			return nil, fmt.Errorf("query %s: %w", q.Name, normErr)
		}
		queryFile, absErr := filepath.Abs(rt.loader.QueryPath(q.Name))
		if absErr != nil {
			return nil, fmt.Errorf("query %s: %w", q.Name, absErr)
		}
		watched = append(watched, watchedQuery{
			query:     q,
			queryFile: queryFile,
			patterns:  patterns,
			events:    m.WatchEvents,
		})
	}
	return watched, nil
}

// watchUnion merges the patterns and events of all watched queries.
func watchUnion(watched []watchedQuery) (patterns, events []string) {
	for _, wq := range watched {
		for _, p := range wq.patterns {
			if !slices.Contains(patterns, p) {
				patterns = append(patterns, p)
			}
		}
		if len(wq.patterns) == 0 {
			continue
		}
		for _, e := range wq.events {
			if !slices.Contains(events, e) {
				events = append(events, e)
			}
		}
	}
	return patterns, events
}

// affectedQueries maps changed paths (relative to baseDir) to the queries to
// rebuild. A change to a query's own file rebuilds only that query and drops
// its cache record; other changes rebuild every query whose patterns match.
func affectedQueries(baseDir string, changed []string, watched []watchedQuery) (rebuild []config.QueryConfig, dropCache []string) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		absBase = baseDir
	}

	selected := make(map[string]bool)
	for _, rel := range changed {
		abs := filepath.Join(absBase, filepath.FromSlash(rel))

		direct := false
		for _, wq := range watched {
			if wq.queryFile == abs && len(wq.patterns) > 0 {
				direct = true
				if !selected[wq.query.Name] {
					dropCache = append(dropCache, wq.query.Name)
				}
				selected[wq.query.Name] = true
			}
		}
		if direct {
			continue
		}
		for _, wq := range watched {
			if watch.MatchAny(wq.patterns, rel) {
				selected[wq.query.Name] = true
			}
		}
	}

	for _, wq := range watched {
		if selected[wq.query.Name] {
			rebuild = append(rebuild, wq.query)
		}
	}
	return rebuild, dropCache
}
