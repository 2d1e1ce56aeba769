// Package engine loads named content queries with local caching.
//
// A Loader is constructed once per storage root from a content source, a
// staleness oracle and the queries directory. Loader.Define turns a Definition
// into a RunFunc that decides, on every call, whether the cached record for the
// query can be trusted, fetches fresh data when it cannot, persists the result
// best-effort and finally applies the definition's transform.
package engine
