// Package upload moves finished artifacts to remote storage over the
// resumable byte-range protocol used by Google Drive.
//
// A transfer is two phases. Initiate POSTs the file metadata and receives a
// session URI in the Location header. The transfer loop then PUTs fixed-size
// slices tagged with Content-Range and always resynchronizes its offset from
// the server's Range answer (or a "bytes */total" status probe) instead of
// trusting what it last sent. Failures share one retry budget with
// exponential backoff; each backoff is followed by a probe before the next
// slice goes out.
package upload
