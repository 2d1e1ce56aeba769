package staleness

import (
	"fmt"
	"os"
	"path/filepath"
)

// MarkerFileName is the file under the storage root holding the last observed
// remote update timestamp.
const MarkerFileName = "latest-update.txt"

// Marker is the persisted staleness marker of one storage root.
type Marker struct {
	path string
}

// NewMarker returns the marker stored under storageRoot.
func NewMarker(storageRoot string) Marker {
	return Marker{path: filepath.Join(storageRoot, MarkerFileName)}
}

// NewNamedMarker returns a marker file with a custom name under storageRoot.
func NewNamedMarker(storageRoot, name string) Marker {
	return Marker{path: filepath.Join(storageRoot, name)}
}

// Path returns the marker file path.
func (m Marker) Path() string {
	return m.path
}

// Load returns the stored value. ok is false when no marker exists.
func (m Marker) Load() (value string, ok bool, err error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading staleness marker: %w", err)
	}
	return string(data), true, nil
}

// Store replaces the marker contents, creating the storage root if needed.
func (m Marker) Store(value string) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating storage root: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing staleness marker: %w", err)
	}
	if _, err = tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing staleness marker: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing staleness marker: %w", err)
	}
	if err = os.Rename(tmp.Name(), m.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing staleness marker: %w", err)
	}
	return nil
}

// Remove deletes the marker. A missing marker is not an error.
func (m Marker) Remove() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing staleness marker: %w", err)
	}
	return nil
}
