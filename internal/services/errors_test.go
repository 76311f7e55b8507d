package services_test

import (
	"errors"
	"strings"
	"testing"

	"feedbackpipe/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "stitching", "concat", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"stitching", "concat", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
	if !services.IsRetriable(err) {
		t.Fatal("expected transient error to be retriable")
	}
}

func TestDetailsClassification(t *testing.T) {
	tests := []struct {
		marker error
		kind   string
	}{
		{services.ErrDeviceAccess, "device"},
		{services.ErrValidation, "validation"},
		{services.ErrConfiguration, "configuration"},
		{services.ErrNotFound, "not_found"},
		{services.ErrTimeout, "timeout"},
		{services.ErrExternalTool, "external_tool"},
		{services.ErrTransient, "transient"},
	}
	for _, tt := range tests {
		details := services.Details(services.Wrap(tt.marker, "stage", "op", "msg", nil))
		if details.Kind != tt.kind {
			t.Fatalf("marker %v: expected kind %q, got %q", tt.marker, tt.kind, details.Kind)
		}
		if details.Hint == "" {
			t.Fatalf("marker %v: expected hint", tt.marker)
		}
	}
	if got := services.Details(errors.New("plain")); got.Kind != "unknown" {
		t.Fatalf("expected unknown kind, got %q", got.Kind)
	}
	if got := services.Details(nil); got != (services.ErrorDetails{}) {
		t.Fatalf("expected zero details for nil, got %+v", got)
	}
}
