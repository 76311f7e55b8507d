// Package recording implements the continuous recording session: one capture
// device held across every question of a feedback session, stopped exactly
// once into an immutable artifact.
//
// States: idle → requesting_device → active → stopping → stopped, or failed
// from any non-terminal state. Stop is a single completion shared by every
// caller, and the device is released on every exit path, including a stop
// acknowledgement that never arrives.
package recording
