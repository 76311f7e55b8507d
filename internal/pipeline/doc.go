// Package pipeline sequences one feedback session's media lifecycle.
//
// The Orchestrator is driven by wizard-level events (mode selected, consent
// given, answers recorded, all questions answered, restart). For video and
// audio feedback it owns the recording session, then runs stitching, the
// resumable upload, and persistence strictly in that order. Text feedback skips
// straight to persistence.
//
// A Restart bumps the orchestrator's generation. Work started under an older
// generation may finish in the background but its results are never persisted
// or published.
package pipeline
