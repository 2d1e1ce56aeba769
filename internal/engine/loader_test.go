package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/contentloader/internal/engine"
	"github.com/rshade/contentloader/internal/engine/staleness"
)

// fakeSource serves canned results and counts content fetches separately from
// latest-update checks.
type fakeSource struct {
	mu      sync.Mutex
	latest  string
	results map[string]string
	err     error
	fetches []string
	checks  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{latest: "2024-05-01T10:00:00Z", results: map[string]string{}}
}

func (f *fakeSource) Fetch(_ context.Context, query string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if query == staleness.LatestUpdateQuery {
		f.checks++
		return json.Marshal(f.latest)
	}
	f.fetches = append(f.fetches, query)
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.results[query]; ok {
		return json.RawMessage(res), nil
	}
	return json.RawMessage(`{"query":` + mustJSON(query) + `}`), nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

type fixture struct {
	source     *fakeSource
	loader     *engine.Loader
	root       string
	queriesDir string
	logs       *bytes.Buffer
}

func newFixture(t *testing.T, oracle staleness.Oracle) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		source:     newFakeSource(),
		root:       filepath.Join(dir, "cache"),
		queriesDir: filepath.Join(dir, "queries"),
		logs:       &bytes.Buffer{},
	}
	require.NoError(t, os.MkdirAll(f.queriesDir, 0750))

	loader, err := engine.NewLoader(engine.LoaderConfig{
		Source:      f.source,
		Oracle:      oracle,
		StorageRoot: f.root,
		QueriesDir:  f.queriesDir,
		Logger:      zerolog.New(f.logs),
	})
	require.NoError(t, err)
	f.loader = loader
	return f
}

func (f *fixture) writeQuery(t *testing.T, name, text string) {
	t.Helper()
	path := filepath.Join(f.queriesDir, filepath.FromSlash(name)+engine.QueryFileExtension)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(text), 0600))
}

func (f *fixture) writeCache(t *testing.T, name, content string) {
	t.Helper()
	path := f.loader.Store().Path(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func asJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestNewLoaderValidation(t *testing.T) {
	_, err := engine.NewLoader(engine.LoaderConfig{StorageRoot: t.TempDir()})
	require.ErrorIs(t, err, engine.ErrConfig)

	_, err = engine.NewLoader(engine.LoaderConfig{Source: newFakeSource()})
	require.ErrorIs(t, err, engine.ErrConfig)

	loader, err := engine.NewLoader(engine.LoaderConfig{Source: newFakeSource(), StorageRoot: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, loader.Store())
}

func TestCachingDisabledAlwaysFetches(t *testing.T) {
	f := newFixture(t, staleness.Never)
	run := f.loader.Define(engine.Definition{
		QueryName: "home",
		Query:     `*[_type == "home"][0]`,
		Cache:     engine.Bool(false),
	})

	for range 2 {
		_, err := run(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 2, f.source.fetchCount())
	assert.Zero(t, f.source.checks)
	assert.NoDirExists(t, f.root, "no caching side effects at all")
}

func TestCachingDisabledWithoutQueryName(t *testing.T) {
	f := newFixture(t, nil)
	run := f.loader.Define(engine.Definition{Query: "*[0]", Cache: engine.Bool(false)})

	got, err := run(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"*[0]"}`, asJSON(t, got))
}

func TestCacheHitWhenNotStale(t *testing.T) {
	f := newFixture(t, staleness.Never)
	f.writeCache(t, "home", `{"result":{"title":"cached"}}`)

	got, err := f.loader.Define(engine.Definition{QueryName: "home", Query: "*"})(context.Background())
	require.NoError(t, err)

	assert.JSONEq(t, `{"title":"cached"}`, asJSON(t, got))
	assert.Zero(t, f.source.fetchCount())
}

func TestVersionMismatchRefetchesAndRetags(t *testing.T) {
	f := newFixture(t, staleness.Never)
	f.writeCache(t, "home", `{"result":{"title":"old"},"version":"v1"}`)
	f.source.results["*"] = `{"title":"new"}`

	run := f.loader.Define(engine.Definition{QueryName: "home", Query: "*", ExpectedVersion: "v2"})
	got, err := run(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"new"}`, asJSON(t, got))
	assert.Equal(t, 1, f.source.fetchCount())

	raw, err := os.ReadFile(f.loader.Store().Path("home"))
	require.NoError(t, err)
	var record struct {
		Result  json.RawMessage `json:"result"`
		Version string          `json:"version"`
	}
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.Equal(t, "v2", record.Version)
	assert.JSONEq(t, `{"title":"new"}`, string(record.Result))

	// The retagged record now satisfies the version.
	_, err = run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.source.fetchCount())
}

func TestStaleCacheIsRefetchedAndOverwritten(t *testing.T) {
	f := newFixture(t, staleness.Always)
	f.writeCache(t, "home", `{"result":{"title":"old"}}`)
	f.source.results["*"] = `{"title":"fresh"}`

	got, err := f.loader.Define(engine.Definition{QueryName: "home", Query: "*"})(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"fresh"}`, asJSON(t, got))
	assert.Equal(t, 1, f.source.fetchCount())

	cached, ok := f.loader.Store().Read("home", "", false)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"fresh"}`, string(cached))
}

func TestCorruptCacheIsAMiss(t *testing.T) {
	f := newFixture(t, staleness.Never)
	f.writeCache(t, "home", `{"result":`)

	got, err := f.loader.Define(engine.Definition{QueryName: "home", Query: "*"})(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"*"}`, asJSON(t, got))
	assert.Equal(t, 1, f.source.fetchCount())
	assert.Contains(t, f.logs.String(), "ignoring unreadable cache entry")
}

func TestNullCachedResultIsAMiss(t *testing.T) {
	f := newFixture(t, staleness.Never)
	f.writeCache(t, "home", `{"result":null}`)

	_, err := f.loader.Define(engine.Definition{QueryName: "home", Query: "*"})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.source.fetchCount())
}

func TestQueryFileResolution(t *testing.T) {
	f := newFixture(t, staleness.Always)
	f.writeQuery(t, "pages/about", `*[_type == "about"]`)

	_, err := f.loader.Define(engine.Definition{QueryName: "pages/about"})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{`*[_type == "about"]`}, f.source.fetches)
	assert.FileExists(t, filepath.Join(f.root, "pages", "about.json"))
}

func TestLiteralQueryTakesPrecedence(t *testing.T) {
	f := newFixture(t, staleness.Always)
	f.writeQuery(t, "home", "from-file")

	_, err := f.loader.Define(engine.Definition{QueryName: "home", Query: "literal"})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"literal"}, f.source.fetches)
}

func TestMissingQueryFileIsConfigError(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.loader.Define(engine.Definition{QueryName: "home"})(context.Background())
	require.ErrorIs(t, err, engine.ErrConfig)
	require.ErrorIs(t, err, engine.ErrQueryNotFound)
	assert.Zero(t, f.source.fetchCount(), "no content fetch may happen")
	assert.Contains(t, f.logs.String(), `"query":"home"`)
}

func TestMissingQueryAndNameIsConfigError(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.loader.Define(engine.Definition{Cache: engine.Bool(false)})(context.Background())
	require.ErrorIs(t, err, engine.ErrNoQuery)
	assert.Zero(t, f.source.fetchCount())
}

func TestQueryNameRequiredWhenCaching(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.loader.Define(engine.Definition{Query: "*"})(context.Background())
	require.ErrorIs(t, err, engine.ErrQueryNameRequired)
	assert.Zero(t, f.source.checks)
	assert.Zero(t, f.source.fetchCount())
}

func TestFetchErrorPropagatesUnchanged(t *testing.T) {
	f := newFixture(t, staleness.Always)
	boom := errors.New("remote exploded")
	f.source.err = boom

	_, err := f.loader.Define(engine.Definition{QueryName: "home", Query: "*"})(context.Background())
	assert.Same(t, boom, err)
	assert.Contains(t, f.logs.String(), "query load failed")
	assert.NoFileExists(t, f.loader.Store().Path("home"))
}

func TestOracleErrorPropagates(t *testing.T) {
	boom := errors.New("oracle unavailable")
	f := newFixture(t, staleness.Func(func(context.Context, staleness.Source, string) (bool, error) {
		return false, boom
	}))

	_, err := f.loader.Define(engine.Definition{QueryName: "home", Query: "*"})(context.Background())
	assert.Same(t, boom, err)
	assert.Zero(t, f.source.fetchCount())
}

func TestOracleReceivesStorageRoot(t *testing.T) {
	var gotRoot string
	f := newFixture(t, staleness.Func(func(_ context.Context, _ staleness.Source, root string) (bool, error) {
		gotRoot = root
		return true, nil
	}))

	_, err := f.loader.Define(engine.Definition{QueryName: "home", Query: "*"})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.root, gotRoot)
}

func TestCacheWriteFailureDoesNotFailLoad(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(root, []byte("not a directory"), 0600))
	var logs bytes.Buffer

	loader, err := engine.NewLoader(engine.LoaderConfig{
		Source:      newFakeSource(),
		Oracle:      staleness.Always,
		StorageRoot: root,
		Logger:      zerolog.New(&logs),
	})
	require.NoError(t, err)

	got, err := loader.Define(engine.Definition{QueryName: "home", Query: "*"})(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"*"}`, asJSON(t, got))
	assert.Contains(t, logs.String(), "could not cache query result")
}

func TestTransformAppliesToHitAndMiss(t *testing.T) {
	f := newFixture(t, staleness.Never)
	f.source.results["*"] = `{"n":1}`
	var seen []string
	transform := func(_ context.Context, raw json.RawMessage) (any, error) {
		seen = append(seen, string(raw))
		var v map[string]int
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v["n"] * 10, nil
	}
	run := f.loader.Define(engine.Definition{QueryName: "home", Query: "*", Transform: transform})

	first, err := run(context.Background())
	require.NoError(t, err)
	second, err := run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, first)
	assert.Equal(t, 10, second)
	assert.Len(t, seen, 2)
	assert.Equal(t, 1, f.source.fetchCount(), "second run is a cache hit")
}

func TestTransformErrorPropagates(t *testing.T) {
	f := newFixture(t, staleness.Always)
	boom := errors.New("bad shape")
	run := f.loader.Define(engine.Definition{
		QueryName: "home",
		Query:     "*",
		Transform: func(context.Context, json.RawMessage) (any, error) { return nil, boom },
	})

	_, err := run(context.Background())
	assert.Same(t, boom, err)
	assert.FileExists(t, f.loader.Store().Path("home"), "result is cached before the transform runs")
}

func TestDefaultOracleFetchesOncePerTransition(t *testing.T) {
	f := newFixture(t, nil)
	run := f.loader.Define(engine.Definition{QueryName: "home", Query: "*"})

	for range 3 {
		_, err := run(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.source.fetchCount())
	assert.Equal(t, 3, f.source.checks)

	f.source.latest = "2024-06-01T00:00:00Z"
	for range 2 {
		_, err := run(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.source.fetchCount())
}

func TestMarkerAdvancesEvenWhenFetchFails(t *testing.T) {
	f := newFixture(t, nil)
	f.source.err = errors.New("temporary outage")
	run := f.loader.Define(engine.Definition{QueryName: "home", Query: "*"})

	_, err := run(context.Background())
	require.Error(t, err)

	value, ok, err := staleness.NewMarker(f.root).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.source.latest, value)

	// Next run: not stale, but there is no record, so it still fetches.
	f.source.err = nil
	_, err = run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.source.fetchCount())
}

func TestConcurrentRunsOfDistinctQueries(t *testing.T) {
	f := newFixture(t, staleness.Always)
	names := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.loader.Define(engine.Definition{QueryName: name, Query: name})(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, name := range names {
		cached, ok := f.loader.Store().Read(name, "", false)
		require.True(t, ok, name)
		assert.JSONEq(t, `{"query":`+mustJSON(name)+`}`, string(cached))
	}
}

func TestChain(t *testing.T) {
	double := func(_ context.Context, raw json.RawMessage) (any, error) {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return n * 2, nil
	}

	assert.Nil(t, engine.Chain())
	assert.Nil(t, engine.Chain(nil, nil))

	single := engine.Chain(nil, double)
	got, err := single(context.Background(), json.RawMessage(`3`))
	require.NoError(t, err)
	assert.Equal(t, 6, got)

	chained := engine.Chain(double, double, double)
	got, err = chained(context.Background(), json.RawMessage(`1`))
	require.NoError(t, err)
	assert.Equal(t, 8, got)
}
