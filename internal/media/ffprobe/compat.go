package ffprobe

import (
	"fmt"
	"strings"
)

// ConcatCompatible reports whether every clip carries one video stream with
// identical codec, geometry, pixel format, and frame rate, and matching audio
// parameters, so the concat demuxer can join them with stream copy. When not
// compatible the returned reason names the first mismatch.
func ConcatCompatible(results []Result) (bool, string) {
	if len(results) < 2 {
		return true, ""
	}
	ref := results[0]
	refVideo, ok := ref.VideoStream()
	if !ok || ref.StreamCount("video") != 1 {
		return false, "clip 0: expected exactly one video stream"
	}
	refAudio, refHasAudio := ref.AudioStream()
	if ref.StreamCount("audio") > 1 {
		return false, "clip 0: multiple audio streams"
	}
	for i, res := range results[1:] {
		idx := i + 1
		video, ok := res.VideoStream()
		if !ok || res.StreamCount("video") != 1 {
			return false, fmt.Sprintf("clip %d: expected exactly one video stream", idx)
		}
		if reason := compareVideo(refVideo, video); reason != "" {
			return false, fmt.Sprintf("clip %d: %s", idx, reason)
		}
		audio, hasAudio := res.AudioStream()
		if hasAudio != refHasAudio || res.StreamCount("audio") > 1 {
			return false, fmt.Sprintf("clip %d: audio stream layout differs", idx)
		}
		if hasAudio {
			if reason := compareAudio(refAudio, audio); reason != "" {
				return false, fmt.Sprintf("clip %d: %s", idx, reason)
			}
		}
		if !sameContainer(ref.Format.FormatName, res.Format.FormatName) {
			return false, fmt.Sprintf("clip %d: container %q differs from %q", idx, res.Format.FormatName, ref.Format.FormatName)
		}
	}
	return true, ""
}

func compareVideo(a, b Stream) string {
	switch {
	case !strings.EqualFold(a.CodecName, b.CodecName):
		return fmt.Sprintf("video codec %s != %s", b.CodecName, a.CodecName)
	case a.Width != b.Width || a.Height != b.Height:
		return fmt.Sprintf("resolution %dx%d != %dx%d", b.Width, b.Height, a.Width, a.Height)
	case a.PixFmt != b.PixFmt:
		return fmt.Sprintf("pixel format %s != %s", b.PixFmt, a.PixFmt)
	case a.RFrameRate != b.RFrameRate:
		return fmt.Sprintf("frame rate %s != %s", b.RFrameRate, a.RFrameRate)
	}
	return ""
}

func compareAudio(a, b Stream) string {
	switch {
	case !strings.EqualFold(a.CodecName, b.CodecName):
		return fmt.Sprintf("audio codec %s != %s", b.CodecName, a.CodecName)
	case a.SampleRate != b.SampleRate:
		return fmt.Sprintf("sample rate %s != %s", b.SampleRate, a.SampleRate)
	case a.Channels != b.Channels:
		return fmt.Sprintf("channels %d != %d", b.Channels, a.Channels)
	}
	return ""
}

func sameContainer(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
