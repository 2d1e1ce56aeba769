// Package watch rebuilds content modules when watched files change.
//
// It monitors filesystem paths matching doublestar glob patterns and invokes a
// callback after a debounce period. Events within the debounce window are
// coalesced so the callback fires once with the full set of changed paths.
package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the delay before firing OnChange after the last event.
const DefaultDebounce = 500 * time.Millisecond

// Event names accepted in Config.Events.
const (
	EventAdd    = "add"
	EventChange = "change"
	EventUnlink = "unlink"
	EventAll    = "all"
)

// defaultIgnores lists path patterns that never trigger callbacks.
//
//nolint:gochecknoglobals // read-only table
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
	"**/*.tmp",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Patterns are doublestar globs, relative to BaseDir or absolute.
		// An empty slice watches every non-ignored file.
		Patterns []string

		// Ignore are additional globs merged with the built-in ignores.
		Ignore []string

		// Events filters which kinds of change fire the callback. Empty means
		// add, change and unlink.
		Events []string

		// Debounce is the quiet period after the last event. Zero or negative
		// values fall back to DefaultDebounce.
		Debounce time.Duration

		// BaseDir is the root directory to watch; empty means the working directory.
		BaseDir string

		// OnChange receives the changed paths relative to BaseDir.
		OnChange func(ctx context.Context, changed []string) error

		Logger zerolog.Logger
	}

	// Watcher monitors BaseDir and fires a debounced callback when matching
	// files change. Run must be called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		patterns []string
		ignores  []string
		ops      fsnotify.Op
		debounce time.Duration
		baseDir  string
		logger   zerolog.Logger
		started  atomic.Bool
	}
)

// New creates a Watcher and registers every non-ignored directory under BaseDir.
func New(cfg Config) (*Watcher, error) {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	patterns, err := NormalizePatterns(absBase, cfg.Patterns)
	if err != nil {
		return nil, err
	}
	ignores, err := NormalizePatterns(absBase, cfg.Ignore)
	if err != nil {
		return nil, err
	}
	ops, err := parseEvents(cfg.Events)
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		patterns: patterns,
		ignores:  append(slices.Clone(defaultIgnores), ignores...),
		ops:      ops,
		debounce: debounce,
		baseDir:  absBase,
		logger:   cfg.Logger.With().Str("component", "watch").Logger(),
	}

	if err = w.addDirectories(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// BaseDir returns the absolute directory being watched.
func (w *Watcher) BaseDir() string {
	return w.baseDir
}

// Run blocks until ctx is cancelled, dispatching debounced callbacks. It
// returns nil on cancellation and an error when the watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire drains the pending set. A run that is still in progress causes the
	// timer to be re-armed so accumulated events are not lost.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug().Msg("previous rebuild still running, deferring")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error().Err(err).Strs("changed", changed).Msg("rebuild failed")
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if closeErr := w.fsw.Close(); closeErr != nil {
			w.logger.Warn().Err(closeErr).Msg("closing fsnotify watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}

			// Extend recursive watches to directories created after startup.
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			rel, err := filepath.Rel(w.baseDir, evt.Name)
			if err != nil {
				rel = evt.Name
			}
			if !w.accepts(evt.Op) || w.isIgnored(rel) || !w.matchesPatterns(rel) {
				continue
			}

			mu.Lock()
			pending[filepath.ToSlash(rel)] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatal(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) accepts(op fsnotify.Op) bool {
	return op&w.ops != 0
}

// addDirectories registers every non-ignored directory under baseDir.
func (w *Watcher) addDirectories() error {
	walkErr := filepath.WalkDir(w.baseDir, func(p string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			w.logger.Warn().Err(walkDirErr).Str("path", p).Msg("skipping inaccessible path")
			return nil //nolint:nilerr // inaccessible paths are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.baseDir, p)
		if relErr != nil {
			return nil //nolint:nilerr // not under base
		}
		if rel != "." && (w.isIgnored(rel) || w.isIgnored(rel+"/")) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(p); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", p, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk directory tree: %w", walkErr)
	}
	return nil
}

func (w *Watcher) maybeAddDir(p string) {
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return
	}
	rel, err := filepath.Rel(w.baseDir, p)
	if err != nil || w.isIgnored(rel) || w.isIgnored(rel+"/") {
		return
	}
	if addErr := w.fsw.Add(p); addErr != nil {
		w.logger.Warn().Err(addErr).Str("path", p).Msg("could not watch new directory")
	}
}

func (w *Watcher) isIgnored(rel string) bool {
	return MatchAny(w.ignores, rel)
}

func (w *Watcher) matchesPatterns(rel string) bool {
	if len(w.patterns) == 0 {
		return true
	}
	return MatchAny(w.patterns, rel)
}

// MatchAny reports whether rel matches one of the normalized patterns.
func MatchAny(patterns []string, rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range patterns {
		if matched, matchErr := doublestar.Match(pat, normalized); matchErr == nil && matched {
			return true
		}
	}
	return false
}

// NormalizePatterns validates patterns and rewrites absolute ones relative to
// baseDir so they can be matched against relative event paths.
func NormalizePatterns(baseDir string, patterns []string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for _, pat := range patterns {
		p := pat
		if filepath.IsAbs(p) {
			rel, err := filepath.Rel(baseDir, p)
			if err != nil {
				return nil, fmt.Errorf("watch: pattern %q is outside %s: %w", pat, baseDir, err)
			}
			p = rel
		}
		p = path.Clean(filepath.ToSlash(p))
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("watch: invalid pattern %q", pat)
		}
		out = append(out, p)
	}
	return out, nil
}

func parseEvents(events []string) (fsnotify.Op, error) {
	if len(events) == 0 {
		return fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename, nil
	}
	var ops fsnotify.Op
	for _, e := range events {
		switch e {
		case EventAdd:
			ops |= fsnotify.Create
		case EventChange:
			ops |= fsnotify.Write
		case EventUnlink:
			ops |= fsnotify.Remove | fsnotify.Rename
		case EventAll:
			ops |= fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename | fsnotify.Chmod
		default:
			return 0, fmt.Errorf("watch: unknown event %q", e)
		}
	}
	return ops, nil
}

// isFatal reports resource exhaustion errors after which the watcher cannot recover.
func isFatal(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
