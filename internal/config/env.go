package config

import (
	"os"
	"strconv"

	"github.com/rshade/contentloader/internal/engine/staleness"
)

// Environment variables that override file settings.
const (
	EnvProjectID    = "SANITY_PROJECT_ID"
	EnvDataset      = "SANITY_DATASET"
	EnvToken        = "SANITY_API_TOKEN"
	EnvAPIVersion   = "SANITY_API_VERSION"
	EnvCacheDir     = "CONTENTLOADER_CACHE_DIR"
	EnvCacheEnabled = "CONTENTLOADER_CACHE_ENABLED"
	EnvLogLevel     = "CONTENTLOADER_LOG_LEVEL"
	EnvLogFormat    = "CONTENTLOADER_LOG_FORMAT"
)

// ApplyEnv overrides settings from the environment. Unparsable values are ignored.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Client.ProjectID, EnvProjectID)
	setFromEnv(&c.Client.Dataset, EnvDataset)
	setFromEnv(&c.Client.Token, EnvToken)
	setFromEnv(&c.Client.APIVersion, EnvAPIVersion)
	setFromEnv(&c.Paths.Cache, EnvCacheDir)
	setFromEnv(&c.Logging.Level, EnvLogLevel)
	setFromEnv(&c.Logging.Format, EnvLogFormat)

	c.Cache.Enabled = GetCacheEnabledFromEnv(c.Cache.Enabled)
	c.Cache.TTL = staleness.GetTTLFromEnv(c.Cache.TTL)
}

// GetCacheEnabledFromEnv reads CONTENTLOADER_CACHE_ENABLED or returns fallback.
func GetCacheEnabledFromEnv(fallback bool) bool {
	envVal := os.Getenv(EnvCacheEnabled)
	if envVal == "" {
		return fallback
	}
	enabled, err := strconv.ParseBool(envVal)
	if err != nil {
		return fallback
	}
	return enabled
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
