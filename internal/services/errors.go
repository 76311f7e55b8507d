package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrDeviceAccess  = errors.New("device access error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the classification of a pipeline failure.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
}

// Details classifies err by marker. Unmarked errors are reported as "unknown".
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: "unknown", Message: err.Error(), Hint: "check logs for details"}
	switch {
	case errors.Is(err, ErrDeviceAccess):
		details.Kind = "device"
		details.Hint = "check that the camera or microphone is connected and not held by another application"
	case errors.Is(err, ErrValidation):
		details.Kind = "validation"
		details.Hint = "check the request inputs"
	case errors.Is(err, ErrConfiguration):
		details.Kind = "configuration"
		details.Hint = "run 'feedbackpipe config show' and correct the reported setting"
	case errors.Is(err, ErrNotFound):
		details.Kind = "not_found"
		details.Hint = "verify the referenced file or prompt clip exists"
	case errors.Is(err, ErrTimeout):
		details.Kind = "timeout"
		details.Hint = "check network connectivity and retry"
	case errors.Is(err, ErrExternalTool):
		details.Kind = "external_tool"
		details.Hint = "run 'feedbackpipe doctor' to check ffmpeg and ffprobe"
	case errors.Is(err, ErrTransient):
		details.Kind = "transient"
		details.Hint = "retry the submission"
	}
	return details
}

// IsRetriable reports whether err is marked as worth retrying.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
