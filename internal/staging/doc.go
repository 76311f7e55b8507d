// Package staging manages per-session scratch directories under
// paths.staging_dir.
//
// Each feedback session owns one "session-<id>" directory guarded by a file
// lock so two pipelines never share it. Stale cleanup skips directories whose
// lock is still held.
package staging
