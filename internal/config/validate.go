package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/contentloader/internal/engine/staleness"
	"github.com/rshade/contentloader/internal/watch"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate reports the first problem that would prevent loading content.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.Queries) == "" {
		problems = append(problems, "paths.queries is required")
	}
	if c.Client.ProjectID == "" {
		problems = append(problems, "client.project_id is required (or set "+EnvProjectID+")")
	}
	if c.Client.Dataset == "" {
		problems = append(problems, "client.dataset is required (or set "+EnvDataset+")")
	}
	if (c.Paths.Assets == "") != (c.Paths.AssetsPublic == "") {
		problems = append(problems, "paths.assets and paths.assets_public must be set together")
	}
	if _, err := staleness.FromStrategy(c.Cache.Strategy, c.Cache.TTL, zerolog.Nop()); err != nil {
		problems = append(problems, "cache.strategy: "+err.Error())
	}

	seen := make(map[string]bool, len(c.Queries))
	for i, q := range c.Queries {
		switch {
		case q.Name == "":
			problems = append(problems, fmt.Sprintf("queries[%d].name is required", i))
		case seen[q.Name]:
			problems = append(problems, fmt.Sprintf("queries[%d]: duplicate name %q", i, q.Name))
		}
		seen[q.Name] = true
		if q.Assets && c.Paths.Assets == "" {
			problems = append(problems, fmt.Sprintf("queries[%d]: assets requires paths.assets", i))
		}
		if err := validEvents(q.WatchEvents); err != nil {
			problems = append(problems, fmt.Sprintf("queries[%d].watch_events: %v", i, err))
		}
	}
	if err := validEvents(c.Watch.Events); err != nil {
		problems = append(problems, fmt.Sprintf("watch.events: %v", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// EffectiveTTL returns the configured TTL, or the default when unset.
func (cc CacheConfig) EffectiveTTL() time.Duration {
	if cc.TTL <= 0 {
		return staleness.DefaultTTL
	}
	return cc.TTL
}

func validEvents(events []string) error {
	for _, e := range events {
		switch e {
		case watch.EventAdd, watch.EventChange, watch.EventUnlink, watch.EventAll:
		default:
			return fmt.Errorf("unknown event %q", e)
		}
	}
	return nil
}
