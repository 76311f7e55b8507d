package capture

import (
	"strings"

	"feedbackpipe/internal/services"
)

// Kind classifies device access failures.
type Kind string

const (
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindBusy             Kind = "busy"
	KindOther            Kind = "other"
)

// DeviceError is a fatal capture failure. It matches services.ErrDeviceAccess.
type DeviceError struct {
	Kind   Kind
	Device string
	Detail string
	Err    error
}

func (e *DeviceError) Error() string {
	msg := e.UserMessage()
	if e.Device != "" {
		msg += " (" + e.Device + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// UserMessage is the category-specific text shown to the respondent.
func (e *DeviceError) UserMessage() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "access to the camera or microphone was denied; allow access and try again"
	case KindNotFound:
		return "no camera or microphone was found; connect a device and try again"
	case KindBusy:
		return "the camera or microphone is in use by another application"
	default:
		return "the camera or microphone could not be started"
	}
}

func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrDeviceAccess}
	}
	return []error{services.ErrDeviceAccess, e.Err}
}

// Classify maps capture tool diagnostics to a Kind.
func Classify(diagnostics string) Kind {
	text := strings.ToLower(diagnostics)
	switch {
	case strings.Contains(text, "permission denied"), strings.Contains(text, "operation not permitted"):
		return KindPermissionDenied
	case strings.Contains(text, "device or resource busy"), strings.Contains(text, "resource busy"):
		return KindBusy
	case strings.Contains(text, "no such file or directory"),
		strings.Contains(text, "no such device"),
		strings.Contains(text, "cannot find card"),
		strings.Contains(text, "unknown pcm"):
		return KindNotFound
	default:
		return KindOther
	}
}
