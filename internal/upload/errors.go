package upload

import "errors"

var (
	// ErrInitiate marks a failed session initiation. It is never retried by
	// the engine; callers may retry the whole transfer.
	ErrInitiate = errors.New("upload initiate failed")
	// ErrRetriesExhausted marks a transfer abandoned after the retry budget.
	ErrRetriesExhausted = errors.New("upload retries exhausted")
	// ErrProtocol marks a response that breaks the resumable protocol, such as
	// a malformed Range header or a completion without an id.
	ErrProtocol = errors.New("upload protocol violation")
)
