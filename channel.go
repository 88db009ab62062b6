package gcsio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hail-is/gcsio/backoff"
	"github.com/hail-is/gcsio/transport"
)

// ReadChannel is the top-level read state machine (C6), composing C2
// through C5 behind size/position/seek/read/close. A ReadChannel reads a
// single remote object and must not be used concurrently from more than one
// goroutine (spec §1 non-goals).
type ReadChannel struct {
	mu sync.Mutex

	handle    ObjectHandle
	transport transport.Transport
	opts      ReadOptions
	log       logrus.FieldLogger

	fadvise *fadviseTracker

	metaResolved bool
	meta         ObjectMetadata

	position int64

	stream      io.ReadCloser
	streamStart int64
	streamEnd   int64 // -1 means unbounded

	footer footerCache

	// gzipDone and gzipTotal track the decoded size of a gzip object, which
	// is unknown until the stream's own EOF is observed (spec §8 scenario 6).
	gzipDone  bool
	gzipTotal int64

	closed bool
}

// Open constructs a ReadChannel for handle over tr, applying opts in order
// over NewReadOptions' defaults. If FailOnNotFound is true (the default),
// metadata is resolved eagerly and Open fails if the object, the pinned
// generation, or gzip tolerance checks fail.
func Open(ctx context.Context, handle ObjectHandle, tr transport.Transport, opts ...Option) (*ReadChannel, error) {
	o := NewReadOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &ReadChannel{
		handle:      handle,
		transport:   tr,
		opts:        o,
		log:         o.Logger,
		fadvise:     newFadviseTracker(o.Fadvise),
		streamEnd:   -1,
	}

	if o.FailOnNotFound {
		if err := c.resolve(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// resolve fetches metadata at most once per channel (C3), retrying
// transient failures under C1, and enforces generation pinning and gzip
// policy once resolved.
func (c *ReadChannel) resolve(ctx context.Context) error {
	if c.metaResolved {
		return nil
	}

	meta, err := c.fetchMetadataWithRetry(ctx)
	if err != nil {
		return err
	}

	if c.handle.Pinned() && meta.Generation != c.handle.Generation {
		return fmt.Errorf("%w: pinned %d, resolved %d", ErrGenerationMismatch, c.handle.Generation, meta.Generation)
	}
	if meta.Gzip() && c.opts.FailOnGzip {
		return fmt.Errorf("%w: %s", ErrGzipUnsupported, c.handle)
	}

	c.meta = meta
	c.metaResolved = true
	c.log.WithFields(logrus.Fields{
		"object":     c.handle.String(),
		"size":       meta.Size,
		"generation": meta.Generation,
		"gzip":       meta.Gzip(),
	}).Debug("gcsio: metadata resolved")
	return nil
}

func (c *ReadChannel) fetchMetadataWithRetry(ctx context.Context) (ObjectMetadata, error) {
	seq := backoff.New(c.opts.Backoff)
	for {
		md, err := c.transport.FetchMetadata(ctx, transport.Object{
			Bucket: c.handle.Bucket, Name: c.handle.Object, Generation: c.handle.Generation,
		})
		if err == nil {
			return ObjectMetadata{Size: md.Size, Generation: md.Generation, ContentEncoding: md.ContentEncoding}, nil
		}
		if classified := classifyTransportError(err); classified != nil {
			return ObjectMetadata{}, classified
		}

		delay, ok := seq.Next()
		if !ok {
			return ObjectMetadata{}, fmt.Errorf("%w: metadata resolve exhausted retries: %s", ErrTransient, err)
		}
		c.log.WithError(err).WithField("attempt", seq.Attempt()).Debug("gcsio: retrying metadata fetch")
		if err := sleepCtx(ctx, delay); err != nil {
			return ObjectMetadata{}, err
		}
	}
}

// classifyTransportError maps a transport-package error into the gcsio
// taxonomy, returning nil for transport.ErrTransient (the caller retries
// those) and a wrapped gcsio sentinel for anything terminal.
func classifyTransportError(err error) error {
	switch {
	case errors.Is(err, transport.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrFileNotFound, err)
	case errors.Is(err, transport.ErrTransient):
		return nil
	case errors.Is(err, transport.ErrFatal):
		return fmt.Errorf("%w: %s", ErrFatal, err)
	default:
		return fmt.Errorf("%w: %s", ErrFatal, err)
	}
}

// Size returns the resolved decoded size, triggering metadata resolution if
// it hasn't happened yet (lazy path). For a gzip object not yet fully
// drained it returns GzipSentinelSize.
func (c *ReadChannel) Size(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrChannelClosed
	}
	if err := c.resolve(ctx); err != nil {
		return 0, err
	}
	if c.meta.Gzip() {
		if !c.gzipDone {
			return GzipSentinelSize, nil
		}
		return c.gzipTotal, nil
	}
	return c.meta.Size, nil
}

// Position returns the current logical read position. Per the data model's
// invariant 3, it fails with ErrChannelClosed once the channel is closed.
func (c *ReadChannel) Position() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrChannelClosed
	}
	return c.position, nil
}

// Seek updates the logical position per spec §4.6's seek algorithm: a
// forward jump within inplaceSeekLimit that stays inside the live stream is
// served by discarding bytes from that stream; anything else invalidates
// the stream (and may flip an AUTO channel to RANDOM) without reading from
// the object. A seek to a new position first resolves metadata if that has
// not happened yet (lazy mode), so it can issue a metadata request; on a
// gzip-encoded object only a seek to 0 is accepted.
func (c *ReadChannel) Seek(ctx context.Context, p int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if p < 0 {
		return fmt.Errorf("%w: negative seek target %d", ErrInvalidArgument, p)
	}
	if p == c.position {
		return nil
	}

	if err := c.resolve(ctx); err != nil {
		return err
	}
	if c.meta.Gzip() && p != 0 {
		// Invariant 5: a transparently gzip-encoded object has no
		// correspondence between stored byte offsets and decoded offsets,
		// so only rewinding to the start is meaningful.
		return fmt.Errorf("%w: gzip-encoded object only supports seeking to 0", ErrInvalidArgument)
	}

	transitioned := c.fadvise.observeSeek(c.position, p, c.opts.InplaceSeekLimit)
	if transitioned {
		c.log.WithFields(logrus.Fields{"from": c.position, "to": p}).Debug("gcsio: fadvise AUTO -> RANDOM")
		if c.opts.Stats != nil {
			c.opts.Stats.FadviseTransitioned()
		}
	}

	if !transitioned && c.stream != nil && p > c.position && p-c.position <= c.opts.InplaceSeekLimit &&
		(c.streamEnd < 0 || p < c.streamEnd) {
		if err := c.discardTo(ctx, p); err != nil {
			return err
		}
		if c.opts.Stats != nil {
			c.opts.Stats.Seek(true)
		}
		return nil
	}

	c.invalidateStream()
	c.position = p
	if c.opts.Stats != nil {
		c.opts.Stats.Seek(false)
	}
	return nil
}

// discardTo reads and discards bytes from the live stream until reaching p.
func (c *ReadChannel) discardTo(ctx context.Context, p int64) error {
	var buf [32 * 1024]byte
	for c.position < p {
		want := p - c.position
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		n, err := c.stream.Read(buf[:want])
		c.position += int64(n)
		if c.opts.Stats != nil && n > 0 {
			c.opts.Stats.InplaceDiscard(int64(n))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The stream ended before p: drop it and let the next Read
				// reopen at p, as a non-in-place seek would.
				c.invalidateStream()
				c.position = p
				return nil
			}
			c.invalidateStream()
			return fmt.Errorf("%w: in-place seek discard: %s", ErrTransient, err)
		}
	}
	return nil
}

// Read implements the read algorithm of spec §4.6.
func (c *ReadChannel) Read(ctx context.Context, buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrChannelClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if err := c.resolve(ctx); err != nil {
		return 0, err
	}
	if !c.meta.Gzip() && c.position >= c.meta.Size {
		return 0, io.EOF
	}

	if n, ok := c.tryFooterRead(buf); ok {
		return n, nil
	}

	if err := c.ensureFooterPrefetched(ctx); err != nil {
		return 0, err
	}
	// The prefetch above may have just populated the footer with exactly
	// the region this read's position falls in, in which case it is
	// answered from the cache rather than by opening a redundant stream.
	if n, ok := c.tryFooterRead(buf); ok {
		return n, nil
	}

	var seq *backoff.Sequencer
	for {
		if c.stream != nil && (c.position > c.streamEnd0() || c.position < c.streamStart) {
			// The live stream no longer covers the current position (a
			// bounded RANDOM range was exhausted, or a seek moved outside
			// it): invalidate before opening a replacement so the stale
			// body is never overwritten while still open (spec §4.6 step 5).
			c.invalidateStream()
		}
		if c.stream == nil {
			if err := c.openStream(ctx, int64(len(buf))); err != nil {
				return 0, err
			}
		}

		n, err := c.stream.Read(buf)
		c.position += int64(n)
		if err != nil && !errors.Is(err, io.EOF) {
			c.invalidateStream()
			return n, fmt.Errorf("%w: %s", ErrTransient, err)
		}
		if n > 0 {
			return n, nil
		}
		// n == 0. For a gzip object the decoded size is unknown ahead of
		// time, so the stream's own EOF is trusted as the genuine end and
		// the delivered byte count becomes the final reported size.
		if errors.Is(err, io.EOF) && c.meta.Gzip() {
			c.gzipDone = true
			c.gzipTotal = c.position
			c.invalidateStream()
			return 0, io.EOF
		}
		// For a non-gzip object, EOF at the resolved size is genuine;
		// anything earlier is a premature stream close (spec §4.6 step 6)
		// and is retried by reopening at the current position under the
		// backoff policy.
		if errors.Is(err, io.EOF) && c.position >= c.meta.Size {
			return 0, io.EOF
		}
		c.invalidateStream()
		if seq == nil {
			seq = backoff.New(c.opts.Backoff)
		}
		delay, ok := seq.Next()
		if !ok {
			return 0, fmt.Errorf("%w: stream ended at %d before size %d", ErrTransient, c.position, c.meta.Size)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return 0, err
		}
	}
}

// tryFooterRead serves buf from the cached footer if the current position
// falls inside it, reporting ok=false if it doesn't.
func (c *ReadChannel) tryFooterRead(buf []byte) (int, bool) {
	if !c.footer.contains(c.position) {
		return 0, false
	}
	hitStart := c.position
	n := c.footer.readAt(c.position, buf)
	c.position += int64(n)
	if c.opts.Stats != nil && n > 0 {
		c.opts.Stats.FooterHitRange(hitStart, c.position-1)
	}
	return n, true
}

// streamEnd0 returns a comparable sentinel for an unbounded stream so the
// "position > streamEnd" check in Read never trips on one.
func (c *ReadChannel) streamEnd0() int64 {
	if c.streamEnd < 0 {
		return 1<<63 - 1
	}
	return c.streamEnd
}

// ensureFooterPrefetched triggers the footer prefetch the first time a read
// starts inside the footer region, subject to §4.4's eligibility predicate
// (non-SEQUENTIAL fadvise, non-gzip). A read that starts before the region
// and extends into it does not trigger the prefetch.
func (c *ReadChannel) ensureFooterPrefetched(ctx context.Context) error {
	if c.footer.ready || c.meta.Gzip() || !c.fadvise.RandomAccess() {
		return nil
	}
	firstByte, _ := footerRegion(c.meta.Size, c.opts.MinRangeRequestSize, c.opts.FooterPrefetchSize)
	if c.position < firstByte {
		return nil
	}
	return c.fetchFooter(ctx)
}

func (c *ReadChannel) fetchFooter(ctx context.Context) error {
	obj := transport.Object{Bucket: c.handle.Bucket, Name: c.handle.Object, Generation: c.handle.Generation}
	if err := c.footer.fetch(ctx, c.transport, obj, c.meta.Size, c.opts.MinRangeRequestSize, c.opts.FooterPrefetchSize); err != nil {
		return classifyFooterError(err)
	}
	if c.opts.Stats != nil {
		start, end := c.footer.region()
		if end > start {
			c.opts.Stats.NetworkRange(start, end-1)
		}
	}
	c.log.WithFields(logrus.Fields{"object": c.handle.String()}).Debug("gcsio: footer prefetched")
	return nil
}

func classifyFooterError(err error) error {
	switch {
	case errors.Is(err, transport.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrFileNotFound, err)
	case errors.Is(err, transport.ErrTransient):
		return fmt.Errorf("%w: %s", ErrTransient, err)
	case errors.Is(err, transport.ErrFatal):
		return fmt.Errorf("%w: %s", ErrFatal, err)
	default:
		return err
	}
}

// openStream asks C5 for a range and opens it via C2 under C1's backoff,
// per spec §4.6 step 4. bufferHint is the caller's current read buffer size,
// which in RANDOM mode lower-bounds the requested range alongside
// MinRangeRequestSize (spec §4.5).
func (c *ReadChannel) openStream(ctx context.Context, bufferHint int64) error {
	footerStart, _ := footerRegion(c.meta.Size, c.opts.MinRangeRequestSize, c.opts.FooterPrefetchSize)
	plan := planOpen(c.position, c.meta.Size, c.fadvise.RandomAccess(), c.opts.MinRangeRequestSize, bufferHint, footerStart, c.footer.ready)

	obj := transport.Object{Bucket: c.handle.Bucket, Name: c.handle.Object, Generation: c.handle.Generation}
	seq := backoff.New(c.opts.Backoff)
	for {
		rs, err := c.transport.OpenRange(ctx, obj, plan.FirstByte, plan.LastByte)
		if err == nil {
			c.stream = rs.Body
			c.streamStart = rs.ActualFirstByte
			c.streamEnd = plan.LastByte
			if c.opts.Stats != nil {
				c.opts.Stats.StreamOpened()
				last := plan.LastByte
				if last < 0 {
					last = c.meta.Size - 1
				}
				c.opts.Stats.NetworkRange(rs.ActualFirstByte, last)
			}
			c.log.WithFields(logrus.Fields{
				"object": c.handle.String(), "first": plan.FirstByte, "last": plan.LastByte,
			}).Debug("gcsio: stream opened")
			return nil
		}

		classified := classifyTransportError(err)
		if classified != nil {
			return classified
		}
		delay, ok := seq.Next()
		if !ok {
			return fmt.Errorf("%w: open range exhausted retries: %s", ErrTransient, err)
		}
		c.log.WithError(err).WithField("attempt", seq.Attempt()).Warn("gcsio: retrying range open")
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *ReadChannel) invalidateStream() {
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
	c.streamStart = 0
	c.streamEnd = -1
}

// Close releases the live stream and footer buffer. A second call is a
// no-op, never an error.
func (c *ReadChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.invalidateStream()
	c.footer.release()
	c.closed = true
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return nil
}
