// Package main hosts the feedbackpipe CLI entrypoint and command graph.
//
// The Cobra command tree drives the pipeline from a terminal: record feedback
// from local capture devices, run the stitching and upload stages on their
// own, verify remote files, inspect stored submissions, and serve the HTTP
// API. Configuration resolution and logger setup are centralized in
// commandContext so subcommands stay declarative; the work itself lives in
// the internal packages.
package main
