package pipeline

import (
	"time"

	"feedbackpipe/internal/media"
)

// Event is one observable pipeline transition or progress update.
type Event struct {
	SessionID string     `json:"session_id"`
	State     State      `json:"state"`
	Mode      media.Mode `json:"mode,omitempty"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	RemoteID  string     `json:"remote_id,omitempty"`
	Time      time.Time  `json:"time"`
}

// Publisher receives pipeline events. Publish must not block for long; it is
// called from the upload progress callback.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) { f(e) }
