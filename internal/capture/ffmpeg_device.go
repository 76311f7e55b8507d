package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/logging"
)

const (
	defaultOpenTimeout = 10 * time.Second
	readBufferSize     = 32 * 1024
	stderrTailBytes    = 4 * 1024
)

// FFmpegDevice captures from local devices by running ffmpeg and reading a
// WebM stream from its stdout.
type FFmpegDevice struct {
	binary      string
	videoFormat string
	videoDevice string
	audioFormat string
	audioDevice string
	hotplug     bool
	openTimeout time.Duration
	logger      *slog.Logger
	newWatcher  func(nodes []string, onRemove func(string), logger *slog.Logger) watcher
}

type watcher interface {
	Start(ctx context.Context) error
	Stop()
}

// NewFFmpegDevice builds a device from the [capture] config section.
func NewFFmpegDevice(cfg config.Capture, logger *slog.Logger) *FFmpegDevice {
	binary := strings.TrimSpace(cfg.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegDevice{
		binary:      binary,
		videoFormat: cfg.VideoFormat,
		videoDevice: cfg.VideoDevice,
		audioFormat: cfg.AudioFormat,
		audioDevice: cfg.AudioDevice,
		hotplug:     cfg.WatchHotplug,
		openTimeout: defaultOpenTimeout,
		logger:      logging.NewComponentLogger(logger, "capture"),
		newWatcher: func(nodes []string, onRemove func(string), logger *slog.Logger) watcher {
			return NewRemovalWatcher(nodes, onRemove, logger)
		},
	}
}

// Args builds the ffmpeg command line for the requested tracks.
func (d *FFmpegDevice) Args(c Constraints) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if c.Video {
		args = append(args, "-f", d.videoFormat, "-i", d.videoDevice)
	}
	if c.Audio {
		args = append(args, "-f", d.audioFormat, "-i", d.audioDevice)
	}
	if c.Video {
		args = append(args, "-c:v", "libvpx", "-deadline", "realtime", "-cpu-used", "8", "-b:v", "1M")
	}
	if c.Audio {
		args = append(args, "-c:a", "libopus", "-b:a", "96k")
	}
	clusterMillis := c.Timeslice.Milliseconds()
	if clusterMillis <= 0 {
		clusterMillis = DefaultTimeslice.Milliseconds()
	}
	return append(args,
		"-f", "webm",
		"-cluster_time_limit", fmt.Sprint(clusterMillis),
		"-flush_packets", "1",
		"pipe:1",
	)
}

func (d *FFmpegDevice) nodes(c Constraints) []string {
	var nodes []string
	if c.Video {
		if node := DeviceNode(d.videoFormat, d.videoDevice); node != "" {
			nodes = append(nodes, node)
		}
	}
	if c.Audio {
		if node := DeviceNode(d.audioFormat, d.audioDevice); node != "" {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// Open starts ffmpeg and waits until it produces output (grant) or exits
// (denial).
func (d *FFmpegDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if !c.Video && !c.Audio {
		return nil, &DeviceError{Kind: KindOther, Detail: "no tracks requested"}
	}
	if c.Timeslice <= 0 {
		c.Timeslice = DefaultTimeslice
	}
	nodes := d.nodes(c)
	for _, node := range nodes {
		if err := CheckAccess(node); err != nil {
			return nil, err
		}
	}

	cmd := exec.Command(d.binary, d.Args(c)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &DeviceError{Kind: KindOther, Detail: "open ffmpeg stdin", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DeviceError{Kind: KindOther, Detail: "open ffmpeg stdout", Err: err}
	}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, &DeviceError{Kind: KindOther, Detail: "start " + d.binary, Err: err}
	}

	stream := &processStream{
		cmd:       cmd,
		stdin:     stdin,
		stderr:    stderr,
		tracks:    c.Tracks(),
		timeslice: c.Timeslice,
		chunks:    make(chan []byte, 16),
		done:      make(chan struct{}),
		firstData: make(chan struct{}),
		device:    strings.Join(nodes, ","),
		logger:    d.logger,
	}
	go stream.pump(stdout)

	timer := time.NewTimer(d.openTimeout)
	defer timer.Stop()
	select {
	case <-stream.firstData:
	case <-stream.done:
		diag := stderr.String()
		return nil, &DeviceError{Kind: Classify(diag), Device: stream.device, Detail: lastLine(diag), Err: stream.exitErr()}
	case <-timer.C:
		_ = stream.Release()
		return nil, &DeviceError{Kind: KindBusy, Device: stream.device, Detail: "device produced no data within " + d.openTimeout.String()}
	case <-ctx.Done():
		_ = stream.Release()
		return nil, ctx.Err()
	}

	if d.hotplug && len(nodes) > 0 && d.newWatcher != nil {
		w := d.newWatcher(nodes, func(node string) {
			stream.fail(&DeviceError{Kind: KindNotFound, Device: node, Detail: "device disconnected"})
		}, d.logger)
		if err := w.Start(context.Background()); err == nil {
			stream.setWatcher(w)
		}
	}

	d.logger.Info("capture device granted",
		logging.String(logging.FieldEventType, "capture_granted"),
		logging.String("tracks", strings.Join(stream.tracks, "+")),
		logging.String("device", stream.device),
	)
	return stream, nil
}

type processStream struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    *tailBuffer
	tracks    []string
	timeslice time.Duration
	device    string
	logger    *slog.Logger

	chunks    chan []byte
	done      chan struct{}
	firstData chan struct{}

	mu            sync.Mutex
	err           error
	waitErr       error
	stopRequested bool
	finished      bool
	watcher       watcher

	firstOnce   sync.Once
	stopOnce    sync.Once
	releaseOnce sync.Once
}

func (s *processStream) Chunks() <-chan []byte { return s.chunks }

func (s *processStream) Done() <-chan struct{} { return s.done }

func (s *processStream) Tracks() []string { return append([]string(nil), s.tracks...) }

func (s *processStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *processStream) exitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

// RequestStop sends ffmpeg its interactive quit key so it finalizes the
// container and exits.
func (s *processStream) RequestStop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopRequested = true
		s.mu.Unlock()
		_, _ = io.WriteString(s.stdin, "q")
		_ = s.stdin.Close()
	})
}

// Release kills ffmpeg if it is still running, which closes the device
// handles it holds.
func (s *processStream) Release() error {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		w := s.watcher
		s.watcher = nil
		s.mu.Unlock()
		if w != nil {
			w.Stop()
		}
		_ = s.stdin.Close()
		select {
		case <-s.done:
		default:
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		}
	})
	return nil
}

func (s *processStream) setWatcher(w watcher) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		w.Stop()
		return
	}
	s.watcher = w
	s.mu.Unlock()
}

func (s *processStream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// pump reads stdout and emits the accumulated bytes once per timeslice. The
// remainder is flushed as the final chunk when ffmpeg closes stdout.
func (s *processStream) pump(stdout io.Reader) {
	reads := make(chan []byte)
	go func() {
		defer close(reads)
		buf := make([]byte, readBufferSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				s.firstOnce.Do(func() { close(s.firstData) })
				reads <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.timeslice)
	defer ticker.Stop()
	var pending []byte
	for {
		select {
		case data, ok := <-reads:
			if !ok {
				if len(pending) > 0 {
					s.chunks <- pending
				}
				close(s.chunks)
				s.finish()
				return
			}
			pending = append(pending, data...)
		case <-ticker.C:
			if len(pending) > 0 {
				s.chunks <- pending
				pending = nil
			}
		}
	}
}

func (s *processStream) finish() {
	waitErr := s.cmd.Wait()
	s.mu.Lock()
	s.waitErr = waitErr
	if s.err == nil && !s.stopRequested {
		diag := s.stderr.String()
		kind := Classify(diag)
		if kind == KindOther && waitErr == nil {
			diag = "capture ended unexpectedly"
		}
		s.err = &DeviceError{Kind: kind, Device: s.device, Detail: lastLine(diag), Err: waitErr}
	}
	s.finished = true
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	close(s.done)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.data = b.data[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

var _ Stream = (*processStream)(nil)
