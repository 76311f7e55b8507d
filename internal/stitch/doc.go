// Package stitch assembles the final feedback artifact: the ordered prompt
// clips followed by the respondent's recording.
//
// Prompt references are resolved through a fetcher registry (local paths,
// file://, http(s)://, s3://bucket/key) with bounded concurrency; any fetch
// failure aborts the build with a FetchError naming the clip. Audio
// recordings are first turned into a still-image video no longer than the
// recorded duration. Clips whose streams match are joined losslessly with
// the concat demuxer; anything else is re-encoded through a normalizing
// concat filter graph.
package stitch
