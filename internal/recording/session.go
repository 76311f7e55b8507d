package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedbackpipe/internal/capture"
	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/media"
	"feedbackpipe/internal/services"
)

// State is a recording session lifecycle state.
type State string

const (
	StateIdle             State = "idle"
	StateRequestingDevice State = "requesting_device"
	StateActive           State = "active"
	StateStopping         State = "stopping"
	StateStopped          State = "stopped"
	StateFailed           State = "failed"
)

// DefaultStopTimeout bounds the wait for the device's final chunk.
const DefaultStopTimeout = 5 * time.Second

var (
	// ErrNotStopped is returned when the artifact is read before the session stopped.
	ErrNotStopped = errors.New("recording artifact unavailable before stop")
	// ErrInvalidState is returned for operations not allowed in the current state.
	ErrInvalidState = errors.New("invalid recording state")
	// ErrAborted is the failure cause when Abort is called without one.
	ErrAborted = errors.New("recording aborted")
)

// Session is one continuous recording.
type Session struct {
	id          string
	mode        media.Mode
	device      capture.Device
	constraints capture.Constraints
	now         func() time.Time
	stopTimeout time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	state      State
	stream     capture.Stream
	chunks     [][]byte
	chunkBytes int64
	startedAt  time.Time
	frozen     time.Duration
	artifact   media.Artifact
	err        error
	cancelOpen context.CancelFunc
	collected  chan struct{}
	completed  chan struct{}

	completeOnce sync.Once
	releaseOnce  sync.Once
}

// Option customises a Session.
type Option func(*Session)

// WithClock overrides the time source used for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimeslice sets the chunk emission interval requested from the device.
func WithTimeslice(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.constraints.Timeslice = d
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the device to flush.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logging.NewComponentLogger(logger, "recording")
	}
}

// WithID tags log lines with the feedback session identifier.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// New creates an idle session. Text mode is rejected.
func New(mode media.Mode, device capture.Device, opts ...Option) (*Session, error) {
	constraints, err := capture.ConstraintsFor(mode, capture.DefaultTimeslice)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, services.Wrap(services.ErrConfiguration, "recording", "new session", "no capture device", nil)
	}
	s := &Session{
		mode:        mode,
		device:      device,
		constraints: constraints,
		now:         time.Now,
		stopTimeout: DefaultStopTimeout,
		logger:      logging.NewComponentLogger(nil, "recording"),
		state:       StateIdle,
		completed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id != "" {
		s.logger = s.logger.With(logging.String(logging.FieldSessionID, s.id))
	}
	return s, nil
}

// Mode returns the recording mode.
func (s *Session) Mode() media.Mode { return s.mode }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure cause once the session failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stream returns the live capture handle while recording, for preview.
func (s *Session) Stream() capture.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil
	}
	return s.stream
}

// ChunkCount returns how many chunks have been buffered.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Elapsed returns whole seconds recorded. It stops advancing when Stop is
// requested.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if s.state == StateActive {
		return s.now().Sub(s.startedAt).Truncate(time.Second)
	}
	return s.frozen
}

// Start requests the device and begins chunk collection. A denial moves the
// session to failed and returns the device error; there is no retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, state)
	}
	s.state = StateRequestingDevice
	openCtx, cancel := context.WithCancel(ctx)
	s.cancelOpen = cancel
	s.mu.Unlock()

	stream, err := s.device.Open(openCtx, s.constraints)
	cancel()

	s.mu.Lock()
	s.cancelOpen = nil
	if s.state != StateRequestingDevice {
		cause := s.err
		s.mu.Unlock()
		if stream != nil {
			s.releaseStream(stream)
		}
		return cause
	}
	if err != nil {
		s.state = StateFailed
		s.err = err
		s.mu.Unlock()
		s.complete()
		logging.WarnWithContext(s.logger, "capture device unavailable", "recording_device_denied",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check device permissions and connections"),
			logging.String(logging.FieldImpact, "feedback cannot be recorded"),
		)
		return err
	}
	s.state = StateActive
	s.stream = stream
	s.chunks = nil
	s.chunkBytes = 0
	s.artifact = media.Artifact{}
	s.err = nil
	s.startedAt = s.now()
	s.collected = make(chan struct{})
	collected := s.collected
	s.mu.Unlock()

	go s.collect(stream, collected)
	s.logger.Info("recording started",
		logging.String(logging.FieldEventType, "recording_started"),
		logging.String("mode", s.mode.String()),
	)
	return nil
}

// collect buffers chunks in arrival order. If the stream ends while the
// session is still active, the device failed and the session is aborted.
func (s *Session) collect(stream capture.Stream, collected chan struct{}) {
	for chunk := range stream.Chunks() {
		s.mu.Lock()
		if s.state == StateActive || s.state == StateStopping {
			s.chunks = append(s.chunks, chunk)
			s.chunkBytes += int64(len(chunk))
		}
		s.mu.Unlock()
	}
	close(collected)

	s.mu.Lock()
	active := s.state == StateActive
	s.mu.Unlock()
	if !active {
		return
	}
	cause := stream.Err()
	if cause == nil {
		cause = &capture.DeviceError{Kind: capture.KindOther, Detail: "capture ended unexpectedly"}
	}
	s.Abort(cause)
}

// Stop ends the recording and returns the assembled artifact. Concurrent and
// repeated calls share one completion and return the same result.
func (s *Session) Stop(ctx context.Context) (media.Artifact, error) {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		artifact := s.artifact
		s.mu.Unlock()
		return artifact, nil
	case StateFailed:
		err := s.err
		s.mu.Unlock()
		return media.Artifact{}, err
	case StateStopping:
		s.mu.Unlock()
		return s.wait(ctx)
	case StateActive:
	default:
		state := s.state
		s.mu.Unlock()
		return media.Artifact{}, fmt.Errorf("%w: stop from %s", ErrInvalidState, state)
	}
	s.frozen = s.elapsedLocked()
	s.state = StateStopping
	stream := s.stream
	collected := s.collected
	s.mu.Unlock()

	stream.RequestStop()
	flushed := s.awaitFlush(ctx, stream, collected)
	s.releaseStream(stream)

	s.mu.Lock()
	if s.state != StateStopping {
		s.mu.Unlock()
		return s.wait(ctx)
	}
	if !flushed {
		logging.WarnWithContext(s.logger, "device did not acknowledge stop; using buffered chunks", "recording_stop_timeout",
			logging.Duration("stop_timeout", s.stopTimeout),
			logging.Int("chunks", len(s.chunks)),
			logging.Alert("stop_timeout"),
			logging.String(logging.FieldImpact, "the final chunk may be missing"),
		)
		if len(s.chunks) == 0 {
			s.state = StateFailed
			s.err = services.Wrap(services.ErrTimeout, "recording", "stop", "device produced no data", nil)
			err := s.err
			s.mu.Unlock()
			s.complete()
			return media.Artifact{}, err
		}
	}
	s.artifact = s.assembleLocked()
	s.chunks = nil
	s.state = StateStopped
	artifact := s.artifact
	s.mu.Unlock()
	s.complete()

	s.logger.Info("recording stopped",
		logging.String(logging.FieldEventType, "recording_stopped"),
		logging.Int64("bytes", artifact.Size()),
		logging.Duration("duration", artifact.Duration),
	)
	return artifact, nil
}

// awaitFlush waits for the final chunk and the device's stop completion,
// bounded by the stop timeout and ctx. It reports whether both arrived.
func (s *Session) awaitFlush(ctx context.Context, stream capture.Stream, collected <-chan struct{}) bool {
	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()
	for _, ch := range []<-chan struct{}{collected, stream.Done()} {
		select {
		case <-ch:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (s *Session) assembleLocked() media.Artifact {
	data := make([]byte, 0, s.chunkBytes)
	for _, chunk := range s.chunks {
		data = append(data, chunk...)
	}
	return media.Artifact{Data: data, MimeType: s.mode.MimeType(), Duration: s.frozen}
}

func (s *Session) wait(ctx context.Context) (media.Artifact, error) {
	select {
	case <-s.completed:
	case <-ctx.Done():
		return media.Artifact{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return s.artifact, nil
	}
	return media.Artifact{}, s.err
}

// Abort forces the session to failed from any non-terminal state and
// releases the device. Pending Stop callers receive cause.
func (s *Session) Abort(cause error) {
	if cause == nil {
		cause = ErrAborted
	}
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	if s.state == StateActive {
		s.frozen = s.elapsedLocked()
	}
	s.state = StateFailed
	s.err = cause
	s.chunks = nil
	if s.cancelOpen != nil {
		s.cancelOpen()
	}
	stream := s.stream
	s.mu.Unlock()

	if stream != nil {
		s.releaseStream(stream)
	}
	s.complete()
	var devErr *capture.DeviceError
	if errors.As(cause, &devErr) {
		logging.ErrorWithContext(s.logger, "recording failed", "recording_failed",
			logging.Error(cause),
			logging.String("device_error_kind", string(devErr.Kind)),
			logging.String(logging.FieldErrorHint, devErr.UserMessage()),
		)
		return
	}
	s.logger.Info("recording aborted",
		logging.String(logging.FieldEventType, "recording_aborted"),
		logging.Error(cause),
	)
}

// Artifact returns the final artifact. It is only available once stopped.
func (s *Session) Artifact() (media.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return media.Artifact{}, fmt.Errorf("%w (state %s)", ErrNotStopped, s.state)
	}
	return s.artifact, nil
}

// Done is closed once the session reaches stopped or failed.
func (s *Session) Done() <-chan struct{} {
	return s.completed
}

func (s *Session) complete() {
	s.completeOnce.Do(func() { close(s.completed) })
}

func (s *Session) releaseStream(stream capture.Stream) {
	s.releaseOnce.Do(func() {
		if err := stream.Release(); err != nil {
			logging.WarnWithContext(s.logger, "device release failed", "recording_release_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the device may stay busy until the process exits"),
			)
			return
		}
		s.logger.Debug("capture device released", logging.String(logging.FieldEventType, "device_released"))
	})
}
