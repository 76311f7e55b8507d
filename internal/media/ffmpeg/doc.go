// Package ffmpeg builds and runs the ffmpeg invocations the stitching engine
// needs: lossless concat through the concat demuxer, re-encoding concat
// through a normalizing filter graph, and still-image video synthesis for
// audio-only feedback.
//
// Argument construction is exposed separately from execution so callers can
// test exact command lines without an ffmpeg binary.
package ffmpeg
