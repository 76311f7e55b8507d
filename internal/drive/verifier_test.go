package drive_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feedbackpipe/internal/drive"
	"feedbackpipe/internal/services"
)

func newDriveServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/files/file-1"):
			if r.URL.Query().Get("supportsAllDrives") != "true" {
				t.Errorf("expected supportsAllDrives=true, got %q", r.URL.RawQuery)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"file-1","name":"Feedback.mp4","mimeType":"video/mp4","size":"2048","parents":["folder-1"]}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newVerifier(t *testing.T, server *httptest.Server) *drive.Verifier {
	t.Helper()
	v, err := drive.NewVerifier(context.Background(), nil, nil,
		drive.WithEndpoint(server.URL+"/"),
		drive.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestVerifyMatchesSize(t *testing.T) {
	v := newVerifier(t, newDriveServer(t))
	file, err := v.Verify(context.Background(), "file-1", 2048)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if file.Name != "Feedback.mp4" || file.Size != 2048 || len(file.Parents) != 1 {
		t.Fatalf("unexpected file %+v", file)
	}
}

func TestVerifyReportsSizeMismatch(t *testing.T) {
	v := newVerifier(t, newDriveServer(t))
	if _, err := v.Verify(context.Background(), "file-1", 4096); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatMissingFile(t *testing.T) {
	v := newVerifier(t, newDriveServer(t))
	if _, err := v.Stat(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewVerifierRequiresCredential(t *testing.T) {
	if _, err := drive.NewVerifier(context.Background(), nil, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
