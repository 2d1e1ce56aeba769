package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rshade/contentloader/internal/logging"
)

// ErrNoProjectConfig is returned by FindConfigFile when no project file exists
// in the start directory or any parent.
var ErrNoProjectConfig = errors.New("no " + DefaultFileName + " found")

// FindConfigFile walks up from dir looking for DefaultFileName and returns its path.
func FindConfigFile(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}

	current := absDir
	for {
		for _, name := range []string{DefaultFileName, "contentloader.yml"} {
			candidate := filepath.Join(current, name)
			if _, statErr := os.Stat(candidate); statErr == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached filesystem root.
			return "", ErrNoProjectConfig
		}
		current = parent
	}
}

// Load builds the effective configuration: defaults, then the global file,
// then the project file shallow-merged on top, then environment overrides.
//
// An explicit path must exist. With an empty path the project file is
// discovered from startDir; finding none is not an error.
func Load(ctx context.Context, path, startDir string) (*Config, error) {
	logger := logging.FromContext(ctx).With().Str("component", "config").Logger()
	cfg := New()

	globalPath := GlobalConfigPath()
	if _, err := os.Stat(globalPath); err == nil {
		if mergeErr := ShallowMergeYAML(cfg, globalPath); mergeErr != nil {
			return nil, fmt.Errorf("loading global config: %w", mergeErr)
		}
		logger.Debug().Str("path", globalPath).Msg("merged global config")
	}

	projectPath := path
	if projectPath == "" {
		found, err := FindConfigFile(startDir)
		switch {
		case err == nil:
			projectPath = found
		case errors.Is(err, ErrNoProjectConfig):
			logger.Debug().Str("start_dir", startDir).Msg("no project config found, using defaults")
		default:
			return nil, err
		}
	}

	if projectPath != "" {
		if err := ShallowMergeYAML(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
		cfg.source = projectPath
		cfg.resolveRelative(filepath.Dir(projectPath))
		logger.Debug().Str("path", projectPath).Msg("merged project config")
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// resolveRelative anchors relative paths at the directory of the project
// file so commands behave the same from any subdirectory.
func (c *Config) resolveRelative(base string) {
	for _, p := range []*string{
		&c.Paths.Queries,
		&c.Paths.Cache,
		&c.Paths.Assets,
		&c.Paths.Output,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}
