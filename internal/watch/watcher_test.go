package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWatcher(t *testing.T, cfg Config) (context.CancelFunc, <-chan error) {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(cancel)
	// Give fsnotify a moment to settle before generating events.
	time.Sleep(50 * time.Millisecond)
	return cancel, errCh
}

func TestWatcherDebounce(t *testing.T) {
	dir := t.TempDir()
	queries := filepath.Join(dir, "queries")
	require.NoError(t, os.MkdirAll(queries, 0o755))

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	done := make(chan struct{})
	var once sync.Once

	cancel, errCh := runWatcher(t, Config{
		Patterns: []string{"queries/**/*.groq"},
		Debounce: 100 * time.Millisecond,
		BaseDir:  dir,
		Logger:   zerolog.Nop(),
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			defer mu.Unlock()
			for _, c := range changed {
				seen[c] = true
			}
			if seen["queries/a.groq"] && seen["queries/b.groq"] {
				once.Do(func() { close(done) })
			}
			return nil
		},
	})

	require.NoError(t, os.WriteFile(filepath.Join(queries, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(queries, "a.groq"), []byte("*"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(queries, "b.groq"), []byte("*"), 0o600))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("OnChange did not report both query files")
	}

	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, seen["queries/notes.txt"])
}

func TestWatcherAbsolutePattern(t *testing.T) {
	dir := t.TempDir()
	done := make(chan []string, 1)

	_, _ = runWatcher(t, Config{
		Patterns: []string{filepath.Join(dir, "**", "*.groq")},
		Debounce: 50 * time.Millisecond,
		BaseDir:  dir,
		Logger:   zerolog.Nop(),
		OnChange: func(_ context.Context, changed []string) error {
			select {
			case done <- changed:
			default:
			}
			return nil
		},
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "posts.groq"), []byte("*"), 0o600))

	select {
	case changed := <-done:
		assert.Equal(t, []string{"posts.groq"}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("OnChange was not called")
	}
}

func TestWatcherNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	done := make(chan []string, 1)

	_, _ = runWatcher(t, Config{
		Patterns: []string{"**/*.groq"},
		Debounce: 50 * time.Millisecond,
		BaseDir:  dir,
		Logger:   zerolog.Nop(),
		OnChange: func(_ context.Context, changed []string) error {
			select {
			case done <- changed:
			default:
			}
			return nil
		},
	})

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	// Wait for the new directory to be registered.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.groq"), []byte("*"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case changed := <-done:
			if assert.ObjectsAreEqual([]string{"nested/deep.groq"}, changed) {
				return
			}
		case <-deadline:
			t.Fatal("change in new subdirectory was not reported")
		}
	}
}

func TestWatcherRunTwice(t *testing.T) {
	w, err := New(Config{BaseDir: t.TempDir(), Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	require.Error(t, w.Run(ctx))
}

func TestNewRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := New(Config{BaseDir: dir, Patterns: []string{"[unclosed"}})
	require.Error(t, err)

	_, err = New(Config{BaseDir: dir, Events: []string{"rename-ish"}})
	require.Error(t, err)
}

func TestParseEvents(t *testing.T) {
	ops, err := parseEvents(nil)
	require.NoError(t, err)
	assert.True(t, ops.Has(fsnotify.Create))
	assert.True(t, ops.Has(fsnotify.Write))
	assert.True(t, ops.Has(fsnotify.Remove))
	assert.False(t, ops.Has(fsnotify.Chmod))

	ops, err = parseEvents([]string{EventChange})
	require.NoError(t, err)
	assert.Equal(t, fsnotify.Write, ops)

	ops, err = parseEvents([]string{EventUnlink})
	require.NoError(t, err)
	assert.True(t, ops.Has(fsnotify.Rename))
	assert.False(t, ops.Has(fsnotify.Create))

	ops, err = parseEvents([]string{EventAll})
	require.NoError(t, err)
	assert.True(t, ops.Has(fsnotify.Chmod))
}

func TestIgnores(t *testing.T) {
	w := &Watcher{ignores: defaultIgnores}

	assert.True(t, w.isIgnored("node_modules/pkg/index.js"))
	assert.True(t, w.isIgnored(".git/HEAD"))
	assert.True(t, w.isIgnored("queries/.posts.groq.swp"))
	assert.False(t, w.isIgnored("queries/posts.groq"))
}

func TestMatchesPatterns(t *testing.T) {
	w := &Watcher{}
	assert.True(t, w.matchesPatterns("anything.txt"), "no patterns matches everything")

	w.patterns = []string{"src/queries/**/*.groq"}
	assert.True(t, w.matchesPatterns("src/queries/posts.groq"))
	assert.True(t, w.matchesPatterns("src/queries/blog/posts.groq"))
	assert.False(t, w.matchesPatterns("src/queries/posts.json"))
	assert.False(t, w.matchesPatterns("other/posts.groq"))
}

func TestNormalizePatterns(t *testing.T) {
	base := t.TempDir()
	got, err := NormalizePatterns(base, []string{"./queries/**/*.groq", filepath.Join(base, "x", "*.groq")})
	require.NoError(t, err)
	assert.Equal(t, []string{"queries/**/*.groq", "x/*.groq"}, got)
}
