package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/notifications"
)

type captured struct {
	title, tags, priority, body string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyFailed(context.Background(), "s", "uploading", errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, seen := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Completed = true
	cfg.Notifications.Failed = true
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyCompleted(ctx, notifications.Completion{
		SessionID: "0123456789abcdef",
		Mode:      "audio",
		RemoteID:  "file-9",
		SizeBytes: 3 * 1024 * 1024,
		Duration:  45*time.Second + 300*time.Millisecond,
	}); err != nil {
		t.Fatalf("NotifyCompleted: %v", err)
	}
	if err := svc.NotifyFailed(ctx, "0123456789abcdef", "uploading", errors.New("retries exhausted")); err != nil {
		t.Fatalf("NotifyFailed: %v", err)
	}

	got := seen()
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	if got[0].title != "feedbackpipe - Submission Complete" || got[0].tags != "feedbackpipe,audio,completed" {
		t.Fatalf("unexpected completion headers %+v", got[0])
	}
	if got[0].body != "Feedback received (audio), session 01234567\nFile: file-9 (3.0 MiB, 45s)" {
		t.Fatalf("unexpected completion body %q", got[0].body)
	}
	if got[1].priority != "high" || !strings.Contains(got[1].body, "during uploading") || !strings.HasSuffix(got[1].body, "retries exhausted") {
		t.Fatalf("unexpected failure payload %+v", got[1])
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	srv, seen := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Completed = false
	cfg.Notifications.Failed = true
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyCompleted(context.Background(), notifications.Completion{SessionID: "x"}); err != nil {
		t.Fatalf("NotifyCompleted: %v", err)
	}
	if len(seen()) != 0 {
		t.Fatal("completion notifications are disabled")
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
