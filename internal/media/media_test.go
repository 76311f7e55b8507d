package media

import (
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	for _, in := range []string{"video", " Audio ", "TEXT"} {
		if _, err := ParseMode(in); err != nil {
			t.Fatalf("ParseMode(%q) returned error: %v", in, err)
		}
	}
	if _, err := ParseMode("hologram"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestModeMimeTypes(t *testing.T) {
	if ModeVideo.MimeType() != "video/webm" {
		t.Fatalf("unexpected video mime: %q", ModeVideo.MimeType())
	}
	if ModeAudio.MimeType() != "audio/webm" {
		t.Fatalf("unexpected audio mime: %q", ModeAudio.MimeType())
	}
	if ModeText.MimeType() != "" || ModeText.Records() {
		t.Fatal("text mode must not record")
	}
}

func TestArtifactHelpers(t *testing.T) {
	a := Artifact{Data: []byte("abc"), MimeType: MimeVideoWebM, Duration: 45*time.Second + 900*time.Millisecond}
	if a.Size() != 3 || a.Empty() {
		t.Fatalf("unexpected size: %d", a.Size())
	}
	if a.DurationSeconds() != 45 {
		t.Fatalf("expected 45 whole seconds, got %d", a.DurationSeconds())
	}
}

func TestExtensionRoundTrip(t *testing.T) {
	cases := map[string]string{
		"video/webm":              ".webm",
		"audio/webm;codecs=opus":  ".webm",
		"video/mp4":               ".mp4",
		"image/png":               ".png",
		"application/x-something": ".bin",
	}
	for mime, want := range cases {
		if got := Extension(mime); got != want {
			t.Errorf("Extension(%q) = %q, want %q", mime, got, want)
		}
	}
	if MimeTypeForExtension(".MP4") != MimeVideoMP4 {
		t.Fatal("expected mp4 mime for .MP4")
	}
}
