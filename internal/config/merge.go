package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Top-level YAML config key names used for shallow merge.
const (
	keyClient  = "client"
	keyPaths   = "paths"
	keyCache   = "cache"
	keyLogging = "logging"
	keyWatch   = "watch"
	keyQueries = "queries"
)

// knownTopLevelKeys lists the YAML keys that correspond to exported Config fields.
// Keys not in this list are silently ignored during merge.
//
//nolint:gochecknoglobals // Compile-time constant lookup table.
var knownTopLevelKeys = map[string]bool{
	keyClient:  true,
	keyPaths:   true,
	keyCache:   true,
	keyLogging: true,
	keyWatch:   true,
	keyQueries: true,
}

// ShallowMergeYAML loads a YAML file and merges its top-level keys onto
// the target Config. Keys present in the overlay replace entire sections
// in the target. Keys absent in the overlay are left unchanged.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]any
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	// Empty or comment-only file: nothing to merge.
	if len(overlay) == 0 {
		return nil
	}

	for key, value := range overlay {
		if !knownTopLevelKeys[key] {
			continue
		}

		// Re-marshal the single section so we can unmarshal it onto the
		// strongly-typed target field.
		sectionBytes, marshalErr := yaml.Marshal(value)
		if marshalErr != nil {
			return fmt.Errorf("re-marshalling overlay section %q: %w", key, marshalErr)
		}

		if err = unmarshalSection(target, key, sectionBytes); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}

	return nil
}

// unmarshalSection unmarshals raw YAML bytes into the correct field of target
// based on the given key name. Each section starts from the defaults of New so
// an overlay replaces the whole section while omitted fields keep their
// default rather than the previous layer's value.
func unmarshalSection(target *Config, key string, data []byte) error {
	defaults := New()
	switch key {
	case keyClient:
		v := defaults.Client
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Client = v
	case keyPaths:
		v := defaults.Paths
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Paths = v
	case keyCache:
		v := defaults.Cache
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Cache = v
	case keyLogging:
		v := defaults.Logging
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Logging = v
	case keyWatch:
		v := defaults.Watch
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Watch = v
	case keyQueries:
		var v []QueryConfig
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Queries = v
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
