// Package api serves the feedbackpipe HTTP surface: health, stored
// submissions, and live session events.
//
// # Endpoints
//
//	GET /api/health                  dependency availability and submission counts
//	GET /api/submissions             stored submissions, newest first (?status=, ?limit=)
//	GET /api/submissions/{id}        one submission by session id
//	GET /api/sessions/{id}           latest pipeline event for a session
//	GET /api/sessions/{id}/events    websocket stream of pipeline events
//
// # Design Notes
//
// DTOs use camelCase JSON tags for browser consumers. Timestamps use RFC3339
// with milliseconds. The Hub implements pipeline.Publisher, so an orchestrator
// publishing to it fans events out to every websocket subscribed to that
// session. A subscriber first receives the session's latest event, then live
// events in publish order. Subscribers that fall behind are disconnected
// rather than blocking the pipeline.
//
// When a token is configured every route requires
// "Authorization: Bearer <token>".
package api
