package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/contentloader/internal/config"
)

// Output formats of generated modules.
const (
	formatJS   = "js"
	formatJSON = "json"
)

// errNoQueries is returned when a command needs configured queries and there are none.
var errNoQueries = errors.New("no queries configured (add a queries section to " + config.DefaultFileName + ")")

// buildFlags holds the options shared by build and watch.
type buildFlags struct {
	format string
	output string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", formatJS, "module format: js or json")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output directory (default: paths.output)")
}

func (f *buildFlags) validate() error {
	if f.format != formatJS && f.format != formatJSON {
		return fmt.Errorf("unknown format %q (want %s or %s)", f.format, formatJS, formatJSON)
	}
	return nil
}

func (f *buildFlags) outputDir(cfg *config.Config) string {
	if f.output != "" {
		return f.output
	}
	return cfg.Paths.Output
}

// newBuildCmd creates the build command, which writes one module per configured query.
func newBuildCmd(a *app) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build [name...]",
		Short: "Generate a module for every configured query",
		Long: `Loads every configured query (or only the named ones) concurrently and writes
<output>/<name>.js containing "export default <result>;". With --format json the
raw result is written to <output>/<name>.json instead.

An output directory named ` + config.DefaultOutputDir + ` also receives a .gitignore so
generated data stays out of version control. Other directories are left as they are.`,
		Example: `  contentloader build
  contentloader build posts pages --format json -o public/data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, a, args, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runBuild(cmd *cobra.Command, a *app, names []string, flags buildFlags) error {
	if err := flags.validate(); err != nil {
		return err
	}
	rt, err := a.newRuntime()
	if err != nil {
		return err
	}
	queries, err := rt.selectQueries(names)
	if err != nil {
		return err
	}

	outDir := flags.outputDir(rt.cfg)
	written, err := rt.buildModules(cmd.Context(), queries, outDir, flags.format)
	if err != nil {
		return err
	}
	cmd.Printf("Built %d module(s) in %s\n", len(written), outDir)
	return nil
}

// selectQueries returns the configured queries named in names, or all of them.
func (rt *contentRuntime) selectQueries(names []string) ([]config.QueryConfig, error) {
	if len(names) == 0 {
		if len(rt.cfg.Queries) == 0 {
			return nil, errNoQueries
		}
		return rt.cfg.Queries, nil
	}
	queries := make([]config.QueryConfig, 0, len(names))
	for _, name := range names {
		queries = append(queries, rt.queryOrAdHoc(name))
	}
	return queries, nil
}

// buildModules writes one file per query, running at most NumCPU loads at a
// time. It returns the written paths in query order. Only the default output
// directory is git-ignored.
func (rt *contentRuntime) buildModules(
	ctx context.Context,
	queries []config.QueryConfig,
	outDir, format string,
) ([]string, error) {
	if filepath.Base(filepath.Clean(outDir)) == config.DefaultOutputDir {
		if _, err := config.EnsureGitignore(outDir); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	written := make([]string, len(queries))
	for i, q := range queries {
		g.Go(func() error {
			path, err := rt.buildOne(gctx, q, outDir, format)
			if err != nil {
				return fmt.Errorf("building %s: %w", q.Name, err)
			}
			written[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return written, nil
}

func (rt *contentRuntime) buildOne(ctx context.Context, q config.QueryConfig, outDir, format string) (string, error) {
	var content []byte
	switch format {
	case formatJSON:
		def, err := rt.definition(q)
		if err != nil {
			return "", err
		}
		result, err := rt.loader.Define(def)(ctx)
		if err != nil {
			return "", err
		}
		if content, err = json.MarshalIndent(result, "", "  "); err != nil {
			return "", fmt.Errorf("encoding result: %w", err)
		}
	default:
		m, err := rt.module(q)
		if err != nil {
			return "", err
		}
		src, err := m.Load(ctx)
		if err != nil {
			return "", err
		}
		content = []byte(src)
	}

	path := filepath.Join(outDir, filepath.FromSlash(q.Name)+"."+format)
	if err := writeFileAtomic(path, append(content, '\n')); err != nil {
		return "", err
	}
	return path, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place so readers never observe a partial module.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	//nolint:gosec // generated modules are served to the bundler and must be world-readable.
	if err = tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
