// Package store persists finished and failed feedback submissions in SQLite.
//
// It is the persistence collaborator the pipeline hands remote identifiers,
// sizes, and durations to. Writes retry on SQLITE_BUSY with a short bounded
// backoff so the CLI and the API server can share one database file.
package store
