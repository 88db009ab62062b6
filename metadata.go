package gcsio

import "math"

// GzipSentinelSize is the exported size of a transparently gzip-encoded
// object before it has been fully read: the decoded length is unknown until
// EOF, so Size() reports this sentinel instead of a real byte count.
const GzipSentinelSize = math.MaxInt64

// ObjectMetadata is the resolved, immutable description of a remote object.
// It is fetched at most once per channel (C3) and never refreshed.
//
// Size is the object size in bytes as reported by the transport. For a
// gzip-encoded object that is the stored size, not the decoded length;
// ReadChannel.Size reports GzipSentinelSize for such an object until EOF.
// Generation is the server-assigned generation actually observed; it is
// always positive once resolved. ContentEncoding is the raw header value
// ("gzip" receives special handling; anything else is carried through
// without interpretation).
//
// The field set mirrors google.golang.org/api/storage/v1's Object type
// (Size, Generation, ContentEncoding) so a caller that already resolved an
// object via the GCS JSON API can construct one directly.
type ObjectMetadata struct {
	Size            int64
	Generation      int64
	ContentEncoding string
}

// Gzip reports whether the object is transparently gzip-encoded at the
// server, in which case byte-range semantics over the stored bytes do not
// correspond to decoded offsets and the channel restricts itself to
// sequential access (invariant 5 of the data model).
func (m ObjectMetadata) Gzip() bool {
	return m.ContentEncoding == "gzip"
}
