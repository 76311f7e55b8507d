package capture

import (
	"context"
	"fmt"
	"time"

	"feedbackpipe/internal/media"
	"feedbackpipe/internal/services"
)

// DefaultTimeslice is the chunk emission interval.
const DefaultTimeslice = time.Second

// Constraints names the tracks requested from the device.
type Constraints struct {
	Video     bool
	Audio     bool
	Timeslice time.Duration
}

// ConstraintsFor maps a feedback mode to device constraints: video mode
// requests camera and microphone, audio mode the microphone only.
func ConstraintsFor(mode media.Mode, timeslice time.Duration) (Constraints, error) {
	if timeslice <= 0 {
		timeslice = DefaultTimeslice
	}
	switch mode {
	case media.ModeVideo:
		return Constraints{Video: true, Audio: true, Timeslice: timeslice}, nil
	case media.ModeAudio:
		return Constraints{Audio: true, Timeslice: timeslice}, nil
	default:
		return Constraints{}, services.Wrap(services.ErrValidation, "recording", "constraints", fmt.Sprintf("mode %q does not record", mode), nil)
	}
}

// Tracks lists the track kinds the constraints request.
func (c Constraints) Tracks() []string {
	var tracks []string
	if c.Video {
		tracks = append(tracks, "video")
	}
	if c.Audio {
		tracks = append(tracks, "audio")
	}
	return tracks
}

// Device grants exclusive access to capture hardware.
type Device interface {
	// Open blocks until the device granted or denied access. Denials are
	// reported as *DeviceError.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live capture. Implementations must be safe for concurrent use.
type Stream interface {
	// Chunks delivers media chunks in production order and is closed after
	// the final chunk.
	Chunks() <-chan []byte
	// Done is closed once the device has stopped and Chunks is closed.
	Done() <-chan struct{}
	// Err reports why the stream ended when it ended without RequestStop.
	Err() error
	// RequestStop asks the device to flush its final chunk and stop.
	RequestStop()
	// Release frees every track. It is idempotent.
	Release() error
	// Tracks lists the live track kinds ("video", "audio").
	Tracks() []string
}
