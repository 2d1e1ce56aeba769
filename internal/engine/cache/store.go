package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// cacheFileExtension is the file extension used for cache entries.
const cacheFileExtension = ".json"

// Common cache errors.
var (
	ErrInvalidCacheKey = errors.New("cache key must be a non-empty relative name")
	ErrEmptyDirectory  = errors.New("cache directory cannot be empty")
)

// Store reads and writes per-query records under a storage root.
// It holds no locks: every write is a whole-file replacement and the last
// writer wins.
type Store struct {
	directory string
	logger    zerolog.Logger
}

// EntryInfo describes one record on disk.
type EntryInfo struct {
	Name     string
	Path     string
	Version  string
	Size     int64
	CachedAt time.Time
	Corrupt  bool
}

// NewStore creates a store rooted at directory. The directory is created
// lazily by Write.
func NewStore(directory string, logger zerolog.Logger) (*Store, error) {
	if directory == "" {
		return nil, ErrEmptyDirectory
	}
	return &Store{
		directory: directory,
		logger:    logger.With().Str("component", "cache").Logger(),
	}, nil
}

// Directory returns the storage root.
func (s *Store) Directory() string {
	return s.directory
}

// Path returns the file that holds the record for queryName.
func (s *Store) Path(queryName string) string {
	return filepath.Join(s.directory, filepath.FromSlash(queryName)+cacheFileExtension)
}

// Write persists result for queryName tagged with version. The returned error
// is informational: callers treat caching as best effort.
func (s *Store) Write(queryName string, result json.RawMessage, version string) error {
	if err := validateKey(queryName); err != nil {
		return err
	}

	data, err := json.Marshal(NewRecord(result, version))
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}

	filePath := s.Path(queryName)
	if mkErr := os.MkdirAll(filepath.Dir(filePath), 0750); mkErr != nil {
		return fmt.Errorf("failed to create cache directory: %w", mkErr)
	}

	// Write to temporary file first, then rename for atomicity
	tmp, err := os.CreateTemp(filepath.Dir(filePath), filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	tempPath := tmp.Name()
	if _, writeErr := tmp.Write(data); writeErr != nil {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write cache file: %w", writeErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write cache file: %w", closeErr)
	}
	if renameErr := os.Rename(tempPath, filePath); renameErr != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", renameErr)
	}

	s.logger.Debug().Str("query", queryName).Str("path", filePath).Msg("cached query result")
	return nil
}

// Read returns the cached result for queryName, or false when the entry must
// not be used. A stale verdict short-circuits before the file is opened.
func (s *Store) Read(queryName, expectedVersion string, stale bool) (json.RawMessage, bool) {
	if validateKey(queryName) != nil {
		return nil, false
	}

	filePath := s.Path(queryName)
	if _, err := os.Stat(filePath); err != nil {
		return nil, false
	}
	if stale {
		return nil, false
	}

	record, err := readRecord(filePath)
	if err != nil {
		s.logger.Error().Err(err).Str("query", queryName).Str("path", filePath).
			Msg("ignoring unreadable cache entry")
		return nil, false
	}

	if !record.Matches(expectedVersion) {
		s.logger.Debug().Str("query", queryName).Str("cached_version", record.Version).
			Str("expected_version", expectedVersion).Msg("cache version mismatch")
		return nil, false
	}

	return record.Result, true
}

// Delete removes the record for queryName. Missing entries are not an error.
func (s *Store) Delete(queryName string) error {
	if err := validateKey(queryName); err != nil {
		return err
	}
	err := os.Remove(s.Path(queryName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Entries lists every record under the storage root, sorted by name.
// Unparsable records are reported with Corrupt set.
func (s *Store) Entries() ([]EntryInfo, error) {
	var entries []EntryInfo
	err := s.walk(func(path, name string, info fs.FileInfo) error {
		entry := EntryInfo{Name: name, Path: path, Size: info.Size()}
		if record, readErr := readRecord(path); readErr != nil {
			entry.Corrupt = true
		} else {
			entry.Version = record.Version
			entry.CachedAt = record.CachedAt
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Clear removes all records from the store and returns how many were removed.
func (s *Store) Clear() (int, error) {
	removed := 0
	err := s.walk(func(path, name string, _ fs.FileInfo) error {
		if removeErr := os.Remove(path); removeErr != nil {
			return fmt.Errorf("failed to remove cache file %s: %w", name, removeErr)
		}
		removed++
		return nil
	})
	return removed, err
}

// Size returns the total size of all records in bytes.
func (s *Store) Size() (int64, error) {
	var total int64
	err := s.walk(func(_, _ string, info fs.FileInfo) error {
		total += info.Size()
		return nil
	})
	return total, err
}

// Count returns the number of records.
func (s *Store) Count() (int, error) {
	count := 0
	err := s.walk(func(_, _ string, _ fs.FileInfo) error {
		count++
		return nil
	})
	return count, err
}

// walk visits every record file. A missing storage root is an empty store.
func (s *Store) walk(fn func(path, name string, info fs.FileInfo) error) error {
	err := filepath.WalkDir(s.directory, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) && path == s.directory {
				return fs.SkipAll
			}
			return walkErr
		}
		if d.IsDir() || filepath.Ext(path) != cacheFileExtension {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil //nolint:nilerr // file vanished between listing and stat
		}
		rel, relErr := filepath.Rel(s.directory, path)
		if relErr != nil {
			return nil //nolint:nilerr // not under the root
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), cacheFileExtension)
		return fn(path, name, info)
	})
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	return nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	var record Record
	if unmarshalErr := json.Unmarshal(data, &record); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal cache record: %w", unmarshalErr)
	}
	return &record, nil
}

func validateKey(queryName string) error {
	if queryName == "" || !filepath.IsLocal(filepath.FromSlash(queryName)) {
		return fmt.Errorf("%w: %q", ErrInvalidCacheKey, queryName)
	}
	return nil
}
