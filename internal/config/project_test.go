package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/contentloader/internal/config"
)

// isolateEnv points the XDG homes at empty temp dirs and clears overrides.
func isolateEnv(t *testing.T) {
	t.Helper()
	// Registered first so it runs after the environment is restored.
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	for _, key := range []string{
		config.EnvProjectID, config.EnvDataset, config.EnvToken, config.EnvAPIVersion,
		config.EnvCacheDir, config.EnvCacheEnabled, config.EnvLogLevel, config.EnvLogFormat,
		"CONTENTLOADER_CACHE_TTL",
	} {
		t.Setenv(key, "")
	}
	xdg.Reload()
}

func TestFindConfigFile(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(root, config.DefaultFileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte("{}"), 0o600))

	nested := filepath.Join(root, "src", "pages")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := config.FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, got)
}

func TestFindConfigFile_NotFound(t *testing.T) {
	_, err := config.FindConfigFile(t.TempDir())
	// A config file may exist above the temp dir on developer machines.
	if err != nil {
		assert.True(t, errors.Is(err, config.ErrNoProjectConfig))
	}
}

func TestLoad_ProjectFile(t *testing.T) {
	isolateEnv(t)

	root := t.TempDir()
	cfgPath := filepath.Join(root, config.DefaultFileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
client:
  project_id: abc123
  dataset: production
paths:
  queries: cms/queries
  cache: .cache/sanity
`), 0o600))

	cfg, err := config.Load(context.Background(), cfgPath, "")
	require.NoError(t, err)

	assert.Equal(t, cfgPath, cfg.Source())
	assert.Equal(t, "abc123", cfg.Client.ProjectID)
	assert.Equal(t, filepath.Join(root, "cms", "queries"), cfg.Paths.Queries)
	assert.Equal(t, filepath.Join(root, ".cache", "sanity"), cfg.CacheDir())
	// Output is resolved against the project even when left at its default.
	assert.Equal(t, filepath.Join(root, config.DefaultOutputDir), cfg.Paths.Output)
	require.NoError(t, cfg.Validate())
}

func TestLoad_GlobalThenProject(t *testing.T) {
	isolateEnv(t)

	globalPath := config.GlobalConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(globalPath), 0o755))
	require.NoError(t, os.WriteFile(globalPath, []byte(`
client:
  project_id: global
  dataset: production
  token: global-token
logging:
  level: debug
`), 0o600))

	root := t.TempDir()
	cfgPath := filepath.Join(root, config.DefaultFileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
client:
  project_id: project
  dataset: staging
`), 0o600))

	cfg, err := config.Load(context.Background(), "", root)
	require.NoError(t, err)

	// client is replaced wholesale by the project layer.
	assert.Equal(t, "project", cfg.Client.ProjectID)
	assert.Equal(t, "staging", cfg.Client.Dataset)
	assert.Empty(t, cfg.Client.Token)
	// logging comes from the global layer.
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_NoProjectFile(t *testing.T) {
	isolateEnv(t)
	t.Setenv(config.EnvProjectID, "env-project")
	t.Setenv(config.EnvDataset, "env-dataset")

	cfg, err := config.Load(context.Background(), "", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "env-project", cfg.Client.ProjectID)
	assert.Equal(t, config.DefaultQueriesDir, cfg.Paths.Queries)
	assert.Equal(t, config.DefaultCacheDir("env-project", "env-dataset"), cfg.CacheDir())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolateEnv(t)

	_, err := config.Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
}
