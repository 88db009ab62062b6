// Package stats provides a reference gcsio.StatsSink implementation.
//
// It is not wired into gcsio by default: the core never constructs a sink
// for itself (see SPEC_FULL.md §4.9; "the core exposes them via an optional
// sink interface but must not hard-wire one"). Callers that want one pass a
// *RangeRecorder via gcsio.WithStats.
package stats

import (
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/hail-is/gcsio"
)

// recorderBlockSize is the reporting granularity for the coverage bitmap.
// It is unrelated to the channel's read or footer-cache granularity; it
// only bounds how many bits RangeRecorder spends per byte observed.
const recorderBlockSize = 1 << 16

// RangeRecorder is a channel-scoped gcsio.StatsSink. Where the teacher's
// *roaring.Bitmap records which blocks of a file have been persisted to a
// local cache across the file's lifetime (file.go's status field),
// RangeRecorder repurposes the same bitmap for a different, non-caching
// concern: which byte blocks of a single ReadChannel's object have
// actually crossed the network during this channel's lifetime, so a
// caller can answer "did I refetch anything?" without gcsio itself caching
// across objects (a non-goal; SPEC_FULL.md §10).
type RangeRecorder struct {
	mu sync.Mutex

	networkBytes       int64
	footerHitBytes      int64
	inplaceDiscardBytes int64
	streamOpens         int
	inplaceSeeks        int
	invalidatingSeeks   int
	fadviseTransitions  int

	network *roaring.Bitmap
}

var _ gcsio.StatsSink = (*RangeRecorder)(nil)

// NewRangeRecorder returns an empty RangeRecorder.
func NewRangeRecorder() *RangeRecorder {
	return &RangeRecorder{network: roaring.New()}
}

// NetworkRange implements gcsio.StatsSink.
func (r *RangeRecorder) NetworkRange(firstByte, lastByte int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networkBytes += lastByte - firstByte + 1
	markBlocks(r.network, firstByte, lastByte)
}

// FooterHitRange implements gcsio.StatsSink.
func (r *RangeRecorder) FooterHitRange(firstByte, lastByte int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.footerHitBytes += lastByte - firstByte + 1
}

// InplaceDiscard implements gcsio.StatsSink.
func (r *RangeRecorder) InplaceDiscard(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inplaceDiscardBytes += n
}

// StreamOpened implements gcsio.StatsSink.
func (r *RangeRecorder) StreamOpened() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamOpens++
}

// Seek implements gcsio.StatsSink.
func (r *RangeRecorder) Seek(inplace bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inplace {
		r.inplaceSeeks++
	} else {
		r.invalidatingSeeks++
	}
}

// FadviseTransitioned implements gcsio.StatsSink.
func (r *RangeRecorder) FadviseTransitioned() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fadviseTransitions++
}

// Snapshot is a point-in-time copy of a RangeRecorder's counters.
type Snapshot struct {
	NetworkBytes        int64
	FooterHitBytes       int64
	InplaceDiscardBytes  int64
	StreamOpens          int
	InplaceSeeks         int
	InvalidatingSeeks    int
	FadviseTransitions   int
	NetworkBlocksTouched uint64
}

// Snapshot returns the current counters.
func (r *RangeRecorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		NetworkBytes:         r.networkBytes,
		FooterHitBytes:       r.footerHitBytes,
		InplaceDiscardBytes:  r.inplaceDiscardBytes,
		StreamOpens:          r.streamOpens,
		InplaceSeeks:         r.inplaceSeeks,
		InvalidatingSeeks:    r.invalidatingSeeks,
		FadviseTransitions:   r.fadviseTransitions,
		NetworkBlocksTouched: r.network.GetCardinality(),
	}
}

// RefetchedBytes reports how many bytes of [firstByte, lastByte] had already
// been recorded by an earlier NetworkRange call, i.e. were fetched over the
// network more than once. Tests use this to assert the footer-reuse and
// no-redundant-fetch properties.
func (r *RangeRecorder) RefetchedBytes(firstByte, lastByte int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	probe := roaring.New()
	markBlocks(probe, firstByte, lastByte)
	probe.And(r.network)
	return int64(probe.GetCardinality()) * recorderBlockSize
}

func markBlocks(b *roaring.Bitmap, firstByte, lastByte int64) {
	first := firstByte / recorderBlockSize
	last := lastByte / recorderBlockSize
	for block := first; block <= last; block++ {
		b.Add(uint32(block))
	}
}
