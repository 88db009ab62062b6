package gcsio

// StatsSink is an optional observer of channel activity, supplied by the
// embedding application rather than constructed by the core (Design Notes
// §9: "Statistics are external... the core exposes them via an optional
// sink interface but must not hard-wire one"). A nil StatsSink is always
// valid; the channel checks for nil before every call.
type StatsSink interface {
	// NetworkRange records that bytes [firstByte, lastByte] were requested
	// from the transport (an actual network fetch, not a cache hit).
	NetworkRange(firstByte, lastByte int64)

	// FooterHitRange records that bytes [firstByte, lastByte] were served
	// from the footer cache without touching the network.
	FooterHitRange(firstByte, lastByte int64)

	// InplaceDiscard records n bytes read from a live stream and discarded
	// to accomplish a forward in-place seek.
	InplaceDiscard(n int64)

	// StreamOpened records a new upstream stream being opened, whether on
	// first use or after invalidating a previous one.
	StreamOpened()

	// Seek records a seek call. inplace is true when it was satisfied by
	// draining the live stream rather than invalidating it.
	Seek(inplace bool)

	// FadviseTransitioned records the one-way AUTO -> RANDOM transition.
	FadviseTransitioned()
}
