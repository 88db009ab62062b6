package gcsio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oxtoacart/bpool"

	"github.com/hail-is/gcsio/transport"
)

// footerBufferPool amortizes footer-buffer allocation across the many
// channels one process opens over its lifetime (SPEC_FULL.md §4.10),
// grounded in SchnorcherSepp-storage/defaultimpl/cache.go's use of the same
// package for sector-sized reuse. Width 0: footer sizes vary per channel
// (minRangeRequestSize/footerPrefetchSize are caller-configured), so buffers
// are grown on Get rather than pre-sized.
var footerBufferPool = bpool.NewBytePool(64, 0)

// footerRegion computes the footer region [firstByte, size) per spec §4.4:
// footerSize = max(minRangeRequestSize, footerPrefetchSize), capped at size.
func footerRegion(size, minRangeRequestSize, footerPrefetchSize int64) (firstByte, footerSize int64) {
	footerSize = minRangeRequestSize
	if footerPrefetchSize > footerSize {
		footerSize = footerPrefetchSize
	}
	if footerSize > size {
		footerSize = size
	}
	if footerSize < 0 {
		footerSize = 0
	}
	firstByte = size - footerSize
	if firstByte < 0 {
		firstByte = 0
	}
	return firstByte, footerSize
}

// footerCache holds at most one prefetched tail segment (C4). It is fetched
// exactly once, lazily, the first time a read starts inside the footer
// region.
type footerCache struct {
	start int64
	buf   []byte
	n     int
	ready bool
}

// region reports the cached footer's [start, start+n) range. Only valid
// after ready.
func (f *footerCache) region() (start, end int64) {
	return f.start, f.start + int64(f.n)
}

// contains reports whether position falls inside the cached footer.
func (f *footerCache) contains(position int64) bool {
	if !f.ready {
		return false
	}
	start, end := f.region()
	return position >= start && position < end
}

// readAt copies from the cached footer starting at position into p, return
// the number of bytes copied. Caller must have checked contains(position).
func (f *footerCache) readAt(position int64, p []byte) int {
	off := int(position - f.start)
	return copy(p, f.buf[off:f.n])
}

// release returns the footer's buffer to the pool. Safe to call on a
// never-populated or already-released cache.
func (f *footerCache) release() {
	if f.buf != nil {
		footerBufferPool.Put(f.buf)
		f.buf = nil
	}
	f.ready = false
	f.n = 0
}

// fetch performs the dedicated ranged GET for the footer region (independent
// of any main stream) and populates the cache. It is the caller's
// responsibility to check eligibility (non-SEQUENTIAL fadvise, non-gzip
// size) and to avoid calling fetch more than once per channel (spec §4.4,
// §5 invariant 2).
func (f *footerCache) fetch(ctx context.Context, tr transport.Transport, obj transport.Object, size, minRangeRequestSize, footerPrefetchSize int64) error {
	firstByte, footerSize := footerRegion(size, minRangeRequestSize, footerPrefetchSize)
	if footerSize == 0 {
		f.start, f.n, f.ready = firstByte, 0, true
		return nil
	}

	rs, err := tr.OpenRange(ctx, obj, firstByte, size-1)
	if err != nil {
		return fmt.Errorf("footer prefetch: %w", err)
	}
	defer rs.Body.Close()

	buf := footerBufferPool.Get()
	if int64(cap(buf)) < footerSize {
		buf = make([]byte, footerSize)
	}
	buf = buf[:footerSize]

	n := 0
	for int64(n) < footerSize {
		m, rerr := rs.Body.Read(buf[n:])
		n += m
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			footerBufferPool.Put(buf)
			return fmt.Errorf("footer prefetch: %w", rerr)
		}
	}

	f.start = rs.ActualFirstByte
	f.buf = buf
	f.n = n
	f.ready = true
	return nil
}
