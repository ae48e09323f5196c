package resolver

import "errors"

var (
	// ErrDecodingFailed marks an empty or malformed candidate set. It is
	// fatal for the request and never served from a fallback.
	ErrDecodingFailed = errors.New("decoding failed")
	// ErrNotFound means no source knows the placement or variation.
	ErrNotFound = errors.New("not found")
	// ErrProfileChanged means the profile identity changed while the request
	// was in flight. Nothing is cached; callers should retry.
	ErrProfileChanged = errors.New("profile changed")
	// ErrSegmentMismatch is reported by the backend when the segment hash in
	// the request is stale.
	ErrSegmentMismatch = errors.New("segment hash mismatch")
	// ErrTimeout is surfaced only when the timeout fallback chain is empty.
	ErrTimeout = errors.New("timeout")
)
