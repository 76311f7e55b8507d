package ffprobe

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "vp9", "codec_type": "video", "width": 1280, "height": 720, "pix_fmt": "yuv420p", "r_frame_rate": "30/1"},
    {"index": 1, "codec_name": "opus", "codec_type": "audio", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"filename": "clip.webm", "nb_streams": 2, "duration": "12.500000", "size": "2048", "format_name": "matroska,webm"}
}`

func TestProbeParsesOutput(t *testing.T) {
	var gotArgs []string
	prober := NewProber("", func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "ffprobe" {
			t.Fatalf("unexpected binary %q", name)
		}
		gotArgs = args
		return []byte(sampleJSON), nil
	})

	result, err := prober.Probe(context.Background(), "/tmp/clip.webm")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if gotArgs[len(gotArgs)-1] != "/tmp/clip.webm" || gotArgs[len(gotArgs)-2] != "--" {
		t.Fatalf("expected path after --, got %v", gotArgs)
	}
	if result.StreamCount("video") != 1 || result.StreamCount("audio") != 1 {
		t.Fatalf("unexpected stream counts: %+v", result.Streams)
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 2048 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	video, ok := result.VideoStream()
	if !ok || video.CodecName != "vp9" {
		t.Fatalf("unexpected video stream: %+v", video)
	}
}

func TestProbeReportsToolFailure(t *testing.T) {
	prober := NewProber("ffprobe", func(context.Context, string, ...string) ([]byte, error) {
		return []byte("clip.webm: Invalid data found"), errors.New("exit status 1")
	})
	_, err := prober.Probe(context.Background(), "clip.webm")
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
	if _, err := prober.Probe(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestConcatCompatible(t *testing.T) {
	base, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if ok, reason := ConcatCompatible([]Result{base, base, base}); !ok {
		t.Fatalf("identical clips should be compatible: %s", reason)
	}

	resized := clone(base)
	resized.Streams[0].Width = 640
	if ok, reason := ConcatCompatible([]Result{base, resized}); ok || !strings.Contains(reason, "resolution") {
		t.Fatalf("expected resolution mismatch, got ok=%v reason=%q", ok, reason)
	}

	silent := clone(base)
	silent.Streams = silent.Streams[:1]
	if ok, reason := ConcatCompatible([]Result{base, silent}); ok || !strings.Contains(reason, "audio") {
		t.Fatalf("expected audio layout mismatch, got ok=%v reason=%q", ok, reason)
	}

	mp4 := clone(base)
	mp4.Format.FormatName = "mov,mp4,m4a,3gp,3g2,mj2"
	if ok, _ := ConcatCompatible([]Result{base, mp4}); ok {
		t.Fatal("expected container mismatch")
	}

	if ok, _ := ConcatCompatible([]Result{base}); !ok {
		t.Fatal("a single clip is trivially compatible")
	}
}

func clone(r Result) Result {
	out := r
	out.Streams = append([]Stream(nil), r.Streams...)
	return out
}
