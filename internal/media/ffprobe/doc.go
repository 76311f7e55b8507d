// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Prober: runs ffprobe through an injectable command function
//
// ConcatCompatible decides whether a set of clips can be joined with the
// concat demuxer and stream copy, or must be re-encoded.
package ffprobe
