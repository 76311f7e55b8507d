package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"feedbackpipe/internal/pipeline"
	"feedbackpipe/internal/stitch"
	"feedbackpipe/internal/upload"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []pipeline.Event
}

func (l *eventLog) Publish(e pipeline.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) All() []pipeline.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]pipeline.Event(nil), l.events...)
}

// driveServer accepts resumable uploads and confirms every chunk in full.
type driveServer struct {
	*httptest.Server

	mu          sync.Mutex
	body        []byte
	contentType string
}

func newDriveServer(t *testing.T) *driveServer {
	t.Helper()
	d := &driveServer{}
	d.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = io.Copy(io.Discard, r.Body)
			w.Header().Set("Location", d.URL+"/session")
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			var start, end, total int64
			if _, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			chunk, _ := io.ReadAll(r.Body)
			d.mu.Lock()
			d.body = append(d.body[:start], chunk...)
			d.contentType = r.Header.Get("Content-Type")
			d.mu.Unlock()
			if end+1 == total {
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"id":"remote-123"}`)
				return
			}
			w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", end))
			w.WriteHeader(http.StatusPermanentRedirect)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(d.Close)
	return d
}

func (d *driveServer) Received() ([]byte, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.body...), d.contentType
}

func noSleep(context.Context, time.Duration) error { return nil }

func newUploader(srv *driveServer, chunk int64) *upload.Engine {
	return upload.New(
		upload.WithEndpoint(srv.URL),
		upload.WithHTTPClient(srv.Client()),
		upload.WithChunkSize(chunk),
		upload.WithSleeper(noSleep),
	)
}

type stubStitcher struct {
	mu    sync.Mutex
	out   stitch.Output
	err   error
	calls []stitch.Request
}

func (s *stubStitcher) Build(_ context.Context, req stitch.Request) (stitch.Output, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.out, s.err
}

// blockingUploader holds Transfer until release is closed.
type blockingUploader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingUploader() *blockingUploader {
	return &blockingUploader{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingUploader) Transfer(_ context.Context, req upload.Request) (upload.Result, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	if req.Progress != nil {
		req.Progress(100)
	}
	return upload.Result{RemoteID: "late-remote", TotalBytes: int64(len(req.Data)), State: upload.StateCompleted}, nil
}
