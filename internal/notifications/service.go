package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"feedbackpipe/internal/config"
)

const userAgent = "feedbackpipe/0.1.0"

// Completion describes a successfully delivered submission.
type Completion struct {
	SessionID string
	Mode      string
	RemoteID  string
	SizeBytes int64
	Duration  time.Duration
}

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	NotifyCompleted(ctx context.Context, c Completion) error
	NotifyFailed(ctx context.Context, sessionID, stage string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) NotifyCompleted(ctx context.Context, c Completion) error {
	if !n.completed {
		return nil
	}
	mode := strings.TrimSpace(c.Mode)
	if mode == "" {
		mode = "unknown"
	}
	message := fmt.Sprintf("Feedback received (%s), session %s", mode, shortID(c.SessionID))
	if c.RemoteID != "" {
		message += fmt.Sprintf("\nFile: %s (%s, %s)", c.RemoteID, formatBytes(c.SizeBytes), c.Duration.Truncate(time.Second))
	}
	return n.send(ctx, payload{
		title:   "feedbackpipe - Submission Complete",
		message: message,
		tags:    []string{"feedbackpipe", mode, "completed"},
	})
}

func (n *ntfyService) NotifyFailed(ctx context.Context, sessionID, stage string, err error) error {
	if !n.failed {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Submission failed")
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(" during ")
		builder.WriteString(stage)
	}
	if sessionID != "" {
		builder.WriteString(", session ")
		builder.WriteString(shortID(sessionID))
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "feedbackpipe - Error",
		message:  builder.String(),
		tags:     []string{"feedbackpipe", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "feedbackpipe - Test",
		message:  "Notification system test",
		tags:     []string{"feedbackpipe", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

type noopService struct{}

func (noopService) NotifyCompleted(context.Context, Completion) error         { return nil }
func (noopService) NotifyFailed(context.Context, string, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
