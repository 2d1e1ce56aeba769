// Package assets downloads remote media referenced by query results into a
// local directory and hands back the path under which it is publicly served.
//
// Assets are keyed by the basename of their URL path only. Once a file of that
// name exists locally it is considered current and is never downloaded again.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single download.
const DefaultTimeout = 2 * time.Minute

// Errors returned by Fetcher.
var (
	ErrDownload    = errors.New("asset download failed")
	ErrInvalidURL  = errors.New("asset url has no file name")
	ErrMissingPath = errors.New("asset directory and public path are required")
)

// Config configures a Fetcher.
type Config struct {
	// Dir is the local directory assets are written to.
	Dir string
	// PublicPath is the prefix under which Dir is served, e.g. "/assets/sanity".
	PublicPath string
	// HTTPClient is used for downloads; nil uses a client with DefaultTimeout.
	HTTPClient *http.Client
}

// Fetcher saves remote assets to Dir.
type Fetcher struct {
	dir        string
	publicPath string
	client     *http.Client
	logger     zerolog.Logger
}

// New creates a Fetcher.
func New(cfg Config, logger zerolog.Logger) (*Fetcher, error) {
	if cfg.Dir == "" || cfg.PublicPath == "" {
		return nil, ErrMissingPath
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{
		dir:        cfg.Dir,
		publicPath: strings.TrimRight(cfg.PublicPath, "/"),
		client:     client,
		logger:     logger.With().Str("component", "assets").Logger(),
	}, nil
}

// Dir returns the local asset directory.
func (f *Fetcher) Dir() string {
	return f.dir
}

// Save downloads rawURL unless a file with the same name already exists and
// returns its public path. An empty URL returns "" without touching the
// filesystem or the network. A failed download removes the partial file.
//
// Concurrent calls for the same URL are not coordinated; both may download and
// the last rename wins with identical content.
func (f *Fetcher) Save(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", nil
	}

	name, escaped, err := fileName(rawURL)
	if err != nil {
		return "", err
	}
	localPath := filepath.Join(f.dir, name)
	publicPath := f.publicPath + "/" + escaped

	if _, statErr := os.Stat(localPath); statErr == nil {
		return publicPath, nil
	}

	if err = os.MkdirAll(f.dir, 0750); err != nil {
		return "", fmt.Errorf("creating asset directory: %w", err)
	}

	if err = f.download(ctx, rawURL, localPath); err != nil {
		f.logger.Error().Ctx(ctx).Err(err).Str("asset", name).Msg("error downloading asset")
		return "", err
	}

	f.logger.Debug().Ctx(ctx).Str("asset", name).Msg("downloaded asset")
	return publicPath, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating asset request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s returned HTTP %d", ErrDownload, rawURL, resp.StatusCode)
	}

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("creating asset file: %w", err)
	}
	if _, err = io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if err = file.Close(); err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	return nil
}

// fileName returns the last segment of the URL path, decoded for use on disk
// and still escaped for use in the public path.
func fileName(rawURL string) (name, escaped string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	escaped = path.Base(u.EscapedPath())
	if name, err = url.PathUnescape(escaped); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return name, escaped, nil
}
