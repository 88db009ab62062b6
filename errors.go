package gcsio

import "errors"

// Error kinds returned across the channel boundary. These are sentinel
// values rather than types: callers compare with errors.Is, and internal
// code wraps them with fmt.Errorf("...: %w", ErrXxx) to attach context.
var (
	// ErrFileNotFound indicates the object, or the pinned generation of the
	// object, does not exist. Terminal for the channel.
	ErrFileNotFound = errors.New("gcsio: object not found")

	// ErrGenerationMismatch indicates the caller pinned a generation that
	// disagrees with the generation resolved from the server. Terminal, and
	// not retried: this is a caller consistency error, not a transient one.
	ErrGenerationMismatch = errors.New("gcsio: pinned generation does not match resolved generation")

	// ErrGzipUnsupported indicates the object is served with
	// Content-Encoding: gzip and the channel was opened with FailOnGzip.
	// Terminal at open time.
	ErrGzipUnsupported = errors.New("gcsio: object is gzip-encoded and gzip support is disabled")

	// ErrTransient indicates a retryable failure: network error, timeout,
	// 5xx, or a mid-stream truncation. Metadata fetches, range opens and
	// streams that end before the object's size are retried under the
	// backoff policy, and the error is surfaced once its budget is
	// exhausted. A read error from an open stream is not retried: Read (or
	// a Seek that drains the stream) returns it at once and drops the
	// stream, so the next Read reopens at the current position.
	ErrTransient = errors.New("gcsio: transient transport error")

	// ErrFatal indicates a non-retryable server response, such as a
	// permission error. Terminal.
	ErrFatal = errors.New("gcsio: fatal transport error")

	// ErrChannelClosed indicates an operation was attempted on a channel
	// that has already been closed. Terminal.
	ErrChannelClosed = errors.New("gcsio: channel is closed")

	// ErrInvalidArgument indicates a negative seek target, a seek to a
	// nonzero position on a gzip-encoded object, or an object URL that
	// Simple cannot parse. Read options are not validated.
	ErrInvalidArgument = errors.New("gcsio: invalid argument")
)
