package capture

import (
	"errors"
	"strings"
	"testing"
	"time"

	"feedbackpipe/internal/media"
	"feedbackpipe/internal/services"
)

func TestClassify(t *testing.T) {
	tests := map[string]Kind{
		"/dev/video0: Permission denied":                                 KindPermissionDenied,
		"[video4linux2] ioctl(VIDIOC_STREAMON): Device or resource busy": KindBusy,
		"/dev/video9: No such file or directory":                         KindNotFound,
		"ALSA lib pcm.c: Unknown PCM hw:7":                               KindNotFound,
		"Conversion failed!":                                             KindOther,
	}
	for diag, want := range tests {
		if got := Classify(diag); got != want {
			t.Errorf("Classify(%q) = %s, want %s", diag, got, want)
		}
	}
}

func TestDeviceErrorMatchesMarker(t *testing.T) {
	cause := errors.New("exit status 1")
	err := error(&DeviceError{Kind: KindPermissionDenied, Device: "/dev/video0", Err: cause})
	if !errors.Is(err, services.ErrDeviceAccess) {
		t.Fatal("expected device access marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected underlying cause")
	}
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Kind != KindPermissionDenied {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if !strings.Contains(err.Error(), "denied") || !strings.Contains(err.Error(), "/dev/video0") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	messages := map[string]bool{}
	for _, kind := range []Kind{KindPermissionDenied, KindNotFound, KindBusy, KindOther} {
		messages[(&DeviceError{Kind: kind}).UserMessage()] = true
	}
	if len(messages) != 4 {
		t.Fatal("expected a distinct message per kind")
	}
}

func TestConstraintsFor(t *testing.T) {
	video, err := ConstraintsFor(media.ModeVideo, 0)
	if err != nil || !video.Video || !video.Audio || video.Timeslice != time.Second {
		t.Fatalf("unexpected video constraints: %+v err=%v", video, err)
	}
	audio, err := ConstraintsFor(media.ModeAudio, 500*time.Millisecond)
	if err != nil || audio.Video || !audio.Audio || audio.Timeslice != 500*time.Millisecond {
		t.Fatalf("unexpected audio constraints: %+v err=%v", audio, err)
	}
	if got := audio.Tracks(); len(got) != 1 || got[0] != "audio" {
		t.Fatalf("unexpected tracks: %v", got)
	}
	if _, err := ConstraintsFor(media.ModeText, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for text mode, got %v", err)
	}
}
