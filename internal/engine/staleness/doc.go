// Package staleness decides whether cached query results can be trusted.
//
// An Oracle is a single-method strategy consulted once per load. The default,
// Timestamp, asks the content API for its most recent document update time and
// compares it with a marker persisted under the storage root; any difference
// (or an absent remote timestamp) means stale. The marker is shared by every
// loader using the same storage root and advances as soon as a new timestamp is
// observed.
package staleness
