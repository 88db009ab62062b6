package gcsio

import "strconv"

// NoGeneration means "no pinning": the channel reads whatever generation of
// the object the server currently has, without checking it against an
// expected value.
const NoGeneration int64 = -1

// ObjectHandle is the immutable identifier of a remote object: a bucket, an
// object name within that bucket, and an optional pinned generation.
//
// A zero-value Generation and NoGeneration are equivalent: both mean "no
// pinning". Handle values are safe to share across goroutines and across
// channels; a single handle may back any number of independent channels.
type ObjectHandle struct {
	Bucket     string
	Object     string
	Generation int64
}

// Pinned reports whether the handle requests a specific object generation.
func (h ObjectHandle) Pinned() bool {
	return h.Generation > 0
}

// String returns a "bucket/object" or "bucket/object#generation" form,
// suitable for logging.
func (h ObjectHandle) String() string {
	if h.Pinned() {
		return h.Bucket + "/" + h.Object + "#" + strconv.FormatInt(h.Generation, 10)
	}
	return h.Bucket + "/" + h.Object
}
