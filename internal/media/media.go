package media

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the feedback medium chosen by the respondent.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
	ModeText  Mode = "text"
)

// Media types for recordings and stitched output.
const (
	MimeVideoWebM = "video/webm"
	MimeAudioWebM = "audio/webm"
	MimeVideoMP4  = "video/mp4"
)

// ParseMode accepts "video", "audio", or "text" in any case.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeVideo:
		return ModeVideo, nil
	case ModeAudio:
		return ModeAudio, nil
	case ModeText:
		return ModeText, nil
	default:
		return "", fmt.Errorf("unknown feedback mode %q (want video, audio, or text)", value)
	}
}

// Records reports whether the mode captures media.
func (m Mode) Records() bool {
	return m == ModeVideo || m == ModeAudio
}

// MimeType is the container type a recording in this mode is tagged with.
func (m Mode) MimeType() string {
	switch m {
	case ModeVideo:
		return MimeVideoWebM
	case ModeAudio:
		return MimeAudioWebM
	default:
		return ""
	}
}

func (m Mode) String() string { return string(m) }

// Artifact is a finished, immutable media payload. Producers hand ownership
// to the consumer; neither side mutates Data afterwards.
type Artifact struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Size returns the payload length in bytes.
func (a Artifact) Size() int64 { return int64(len(a.Data)) }

// DurationSeconds returns the duration rounded down to whole seconds.
func (a Artifact) DurationSeconds() int { return int(a.Duration / time.Second) }

// Empty reports whether the artifact carries no bytes.
func (a Artifact) Empty() bool { return len(a.Data) == 0 }

// Extension maps a media type to the file extension ffmpeg infers the
// container from.
func Extension(mimeType string) string {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	switch strings.TrimSpace(base) {
	case MimeVideoWebM, MimeAudioWebM:
		return ".webm"
	case MimeVideoMP4, "audio/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/x-matroska":
		return ".mkv"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}

// MimeTypeForExtension is the inverse of Extension for the containers the
// pipeline produces or accepts as prompt clips.
func MimeTypeForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")) {
	case "webm":
		return MimeVideoWebM
	case "mp4", "m4v":
		return MimeVideoMP4
	case "mov":
		return "video/quicktime"
	case "mkv":
		return "video/x-matroska"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
