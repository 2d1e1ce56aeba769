// Package config loads contentloader settings from YAML files and the environment.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/rshade/contentloader/internal/engine/staleness"
	"github.com/rshade/contentloader/internal/sanity"
)

const (
	// AppName names the XDG subdirectories used for global config and cache.
	AppName = "contentloader"

	// DefaultFileName is the project config file looked up from the working directory.
	DefaultFileName = "contentloader.yaml"

	// DefaultQueriesDir holds <name>.groq files when paths.queries is unset.
	DefaultQueriesDir = "src/sanity/queries"

	// DefaultOutputDir receives generated modules from the build command.
	DefaultOutputDir = ".contentloader"
)

type (
	// Config is the full contentloader configuration.
	Config struct {
		Client  ClientConfig  `yaml:"client"`
		Paths   PathsConfig   `yaml:"paths"`
		Cache   CacheConfig   `yaml:"cache"`
		Logging LoggingConfig `yaml:"logging"`
		Watch   WatchConfig   `yaml:"watch"`
		Queries []QueryConfig `yaml:"queries"`

		// source is the project file the config was loaded from, if any.
		source string
	}

	// ClientConfig holds the connection settings of the CMS dataset.
	ClientConfig struct {
		ProjectID   string        `yaml:"project_id"`
		Dataset     string        `yaml:"dataset"`
		APIVersion  string        `yaml:"api_version"`
		Token       string        `yaml:"token"`
		UseCDN      bool          `yaml:"use_cdn"`
		Perspective string        `yaml:"perspective"`
		Timeout     time.Duration `yaml:"timeout"`

		// BaseURL replaces the project API host, e.g. for a caching proxy.
		BaseURL string `yaml:"base_url"`
	}

	// PathsConfig locates query files, the cache and downloaded assets.
	PathsConfig struct {
		Queries      string `yaml:"queries"`
		Cache        string `yaml:"cache"`
		Assets       string `yaml:"assets"`
		AssetsPublic string `yaml:"assets_public"`
		Output       string `yaml:"output"`
	}

	// CacheConfig controls the disk cache and its staleness strategy.
	CacheConfig struct {
		Enabled  bool          `yaml:"enabled"`
		Strategy string        `yaml:"strategy"`
		TTL      time.Duration `yaml:"ttl"`
	}

	// LoggingConfig controls log output.
	LoggingConfig struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	}

	// WatchConfig holds the global watch defaults of generated modules.
	WatchConfig struct {
		Disable  bool           `yaml:"disable"`
		Patterns []string       `yaml:"patterns"`
		Ignore   []string       `yaml:"ignore"`
		Events   []string       `yaml:"events"`
		Debounce time.Duration  `yaml:"debounce"`
		Options  map[string]any `yaml:"options"`
	}

	// QueryConfig declares one content module.
	QueryConfig struct {
		Name         string         `yaml:"name"`
		Query        string         `yaml:"query"`
		Cache        *bool          `yaml:"cache"`
		Version      string         `yaml:"version"`
		PortableText []string       `yaml:"portable_text"`
		Assets       bool           `yaml:"assets"`
		Watch        []string       `yaml:"watch"`
		DisableWatch bool           `yaml:"disable_watch"`
		WatchEvents  []string       `yaml:"watch_events"`
		WatchOptions map[string]any `yaml:"watch_options"`
	}
)

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Client: ClientConfig{
			APIVersion: sanity.DefaultAPIVersion,
			Timeout:    sanity.DefaultTimeout,
		},
		Paths: PathsConfig{
			Queries: DefaultQueriesDir,
			Output:  DefaultOutputDir,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Strategy: staleness.StrategyTimestamp,
			TTL:      staleness.DefaultTTL,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Source returns the project file this config was loaded from, or "".
func (c *Config) Source() string {
	return c.source
}

// CacheDir returns the storage root. When paths.cache is unset it is derived
// from the dataset under the XDG cache home so datasets never share records.
func (c *Config) CacheDir() string {
	if c.Paths.Cache != "" {
		return c.Paths.Cache
	}
	return DefaultCacheDir(c.Client.ProjectID, c.Client.Dataset)
}

// DefaultCacheDir returns $XDG_CACHE_HOME/contentloader/<project>-<dataset>.
func DefaultCacheDir(projectID, dataset string) string {
	return filepath.Join(xdg.CacheHome, AppName, projectID+"-"+dataset)
}

// GlobalConfigPath returns the path of the per-user config file.
func GlobalConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Query returns the query declared with name.
func (c *Config) Query(name string) (QueryConfig, bool) {
	for _, q := range c.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return QueryConfig{}, false
}

// SanityConfig converts the client section into sanity.Config.
func (cc ClientConfig) SanityConfig() sanity.Config {
	return sanity.Config{
		ProjectID:   cc.ProjectID,
		Dataset:     cc.Dataset,
		APIVersion:  cc.APIVersion,
		Token:       cc.Token,
		UseCDN:      cc.UseCDN,
		Perspective: cc.Perspective,
		Timeout:     cc.Timeout,
		BaseURL:     cc.BaseURL,
	}
}

// CacheEnabled reports whether the query is cached, falling back to the
// global cache switch when the query does not say.
func (q QueryConfig) CacheEnabled(global bool) bool {
	if q.Cache == nil {
		return global
	}
	return *q.Cache
}
