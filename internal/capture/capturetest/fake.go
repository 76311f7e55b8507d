// Package capturetest provides scriptable capture devices for tests.
package capturetest

import (
	"context"
	"sync"
	"sync/atomic"

	"feedbackpipe/internal/capture"
)

// Device hands out Streams. A non-nil OpenErr is returned from every Open.
type Device struct {
	OpenErr error
	// FinalChunk is emitted when RequestStop is called.
	FinalChunk []byte
	// WithholdStop keeps the stream from acknowledging RequestStop.
	WithholdStop bool
	// Block, when set, is waited on before Open returns.
	Block chan struct{}

	mu          sync.Mutex
	opens       int
	constraints []capture.Constraints
	streams     []*Stream
}

func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	d.mu.Lock()
	d.opens++
	d.constraints = append(d.constraints, c)
	block := d.Block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := NewStream(c.Tracks())
	s.finalChunk = d.FinalChunk
	s.withholdStop = d.WithholdStop
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// Opens counts Open calls.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Constraints returns the constraints of every Open call.
func (d *Device) Constraints() []capture.Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]capture.Constraints(nil), d.constraints...)
}

// Last returns the most recently opened stream.
func (d *Device) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// Stream is a capture.Stream driven by the test through Emit and Fail.
type Stream struct {
	tracks       []string
	chunks       chan []byte
	done         chan struct{}
	finalChunk   []byte
	withholdStop bool

	mu       sync.Mutex
	err      error
	closed   bool
	released atomic.Int32
	stops    atomic.Int32
}

// NewStream creates a live stream with the given track kinds.
func NewStream(tracks []string) *Stream {
	return &Stream{
		tracks: tracks,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// Emit delivers a chunk as if the device produced it.
func (s *Stream) Emit(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.chunks <- append([]byte(nil), chunk...)
}

// Fail ends the stream with err, as a disconnected device would.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.end(nil)
}

func (s *Stream) end(final []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(final) > 0 {
		s.chunks <- append([]byte(nil), final...)
	}
	s.closed = true
	close(s.chunks)
	close(s.done)
}

func (s *Stream) Chunks() <-chan []byte { return s.chunks }

func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) RequestStop() {
	s.stops.Add(1)
	if s.withholdStop {
		return
	}
	s.end(s.finalChunk)
}

func (s *Stream) Release() error {
	s.released.Add(1)
	return nil
}

func (s *Stream) Tracks() []string { return append([]string(nil), s.tracks...) }

// Released reports how many times Release was called.
func (s *Stream) Released() int { return int(s.released.Load()) }

// StopRequests reports how many times RequestStop was called.
func (s *Stream) StopRequests() int { return int(s.stops.Load()) }

var _ capture.Stream = (*Stream)(nil)
var _ capture.Device = (*Device)(nil)
