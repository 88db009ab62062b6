package gcsio

// RangePlan is the byte range C5 hands to C2 for the next stream open.
// LastByte of -1 means unbounded (an open-ended GET).
type RangePlan struct {
	FirstByte int64
	LastByte  int64
}

// planOpen implements C5 (spec §4.5): given the current position, resolved
// size, fadvise state and size hints, decide the next range to request.
//
//   - SEQUENTIAL: firstByte = position, unbounded.
//   - RANDOM: bounded to max(minRangeSize, bufferHint) bytes, truncated
//     before the footer region if the footer is already cached and the
//     plan would otherwise re-request it.
//   - AUTO: identical to SEQUENTIAL until the fadviseTracker has flipped to
//     RANDOM, then identical to RANDOM — the caller passes the tracker's
//     current derived state in, rather than the nominal AUTO value, since by
//     the time a plan is needed the one-way transition has already resolved.
func planOpen(position, size int64, randomAccess bool, minRangeSize, bufferHint int64, footerStart int64, footerCached bool) RangePlan {
	if !randomAccess {
		return RangePlan{FirstByte: position, LastByte: -1}
	}

	span := minRangeSize
	if bufferHint > span {
		span = bufferHint
	}
	last := position + span - 1
	if size >= 0 && last > size-1 {
		last = size - 1
	}

	if footerCached && last >= footerStart && position < footerStart {
		last = footerStart - 1
	}

	return RangePlan{FirstByte: position, LastByte: last}
}

// planFooter implements the trailing-byte-count supplement recovered from
// the original connector (SPEC_FULL.md §9.1): it returns both the absolute
// first byte of the footer region and the equivalent trailing byte count,
// so a transport that supports "bytes=-N" style requests can use it while
// one that doesn't falls back to the absolute form.
func planFooter(size, minRangeRequestSize, footerPrefetchSize int64) (firstByte, trailingCount int64) {
	firstByte, footerSize := footerRegion(size, minRangeRequestSize, footerPrefetchSize)
	return firstByte, footerSize
}
