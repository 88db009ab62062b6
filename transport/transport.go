// Package transport defines the collaborator surface the read channel (C6)
// consumes to talk to a remote object store (C2), plus two concrete,
// interchangeable implementations: an HTTP/JSON adapter (http.go) and a
// streaming RPC adapter (rpc.go). Per the spec's Design Notes, no
// inheritance is needed between them — a plain capability set (the
// Transport interface) suffices.
package transport

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors a Transport implementation returns to signal the status
// taxonomy of spec §4.2. Errors.Is-compatible; wrapped with context via
// fmt.Errorf("...: %w", ...).
var (
	// ErrNotFound maps from HTTP 404 or an RPC "not found" status: the
	// object, or the pinned generation, does not exist.
	ErrNotFound = errors.New("transport: object not found")

	// ErrTransient maps from 408, 429, 5xx, connection reset, read timeout,
	// or the RPC equivalents (Unavailable, DeadlineExceeded,
	// ResourceExhausted). The caller is expected to retry under backoff.
	ErrTransient = errors.New("transport: transient failure")

	// ErrFatal maps from any other non-2xx / non-OK response, such as a
	// permission error. Not retried.
	ErrFatal = errors.New("transport: fatal failure")
)

// Metadata is what a Transport resolves about an object: its size as
// reported by the server (the stored size for a gzip-encoded object),
// generation, and content-encoding.
type Metadata struct {
	Size            int64
	Generation      int64
	ContentEncoding string
}

// Object identifies what to fetch: bucket, object name, and optionally a
// generation to pin the request to.
type Object struct {
	Bucket     string
	Name       string
	Generation int64 // 0 or negative means unpinned
}

// RangeStream is a byte stream opened over part or all of an object, plus
// the bookkeeping the range planner and read channel need to validate it.
type RangeStream struct {
	// Body is the stream of bytes starting at ActualFirstByte. The caller
	// owns it and must Close it exactly once.
	Body io.ReadCloser
	// ActualFirstByte is the first byte position actually being served,
	// parsed from the response (e.g. Content-Range) when available, else
	// the requested FirstByte.
	ActualFirstByte int64
	// ContentEncoding is the raw encoding header of the response, so the
	// caller can detect a gzip stream it didn't expect.
	ContentEncoding string
}

// Transport issues a single metadata fetch or a single ranged GET. It does
// not retry; retrying under backoff is the read channel's responsibility
// (spec §4.2: "The adapter does not itself retry.").
type Transport interface {
	// FetchMetadata resolves size, generation, and content-encoding for obj.
	FetchMetadata(ctx context.Context, obj Object) (Metadata, error)

	// OpenRange opens a stream over [firstByte, lastByte] of obj.
	// lastByte < 0 means "unbounded: stream to end of object". When
	// obj.Generation is set (pinned), the request includes it, and a
	// mismatch is surfaced as ErrNotFound.
	OpenRange(ctx context.Context, obj Object, firstByte, lastByte int64) (RangeStream, error)
}
