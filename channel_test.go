package gcsio

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hail-is/gcsio/backoff"
)

// fastTestBackoff keeps retry tests from sleeping on the spec's real-world
// default intervals.
func fastTestBackoff() backoff.Policy {
	p := backoff.DefaultPolicy()
	p.InitialInterval = time.Millisecond
	p.MaxInterval = 5 * time.Millisecond
	return p
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

func testData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestReadEmptyBufferReturnsZeroWithoutIO(t *testing.T) {
	tr := &fakeTransport{data: testData(10)}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr, WithFailOnNotFound(false))
	require.NoError(t, err)

	n, err := ch.Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, tr.openRangeCall)
}

func TestReadAtEOFReturnsImmediately(t *testing.T) {
	tr := &fakeTransport{data: testData(4)}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr)
	require.NoError(t, err)

	require.NoError(t, ch.Seek(context.Background(), 4))
	n, err := ch.Read(context.Background(), make([]byte, 1))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSeekPurityNoBytesConsumed(t *testing.T) {
	tr := &fakeTransport{data: testData(10)}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr)
	require.NoError(t, err)

	require.NoError(t, ch.Seek(context.Background(), 6))
	pos, err := ch.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
	assert.Equal(t, 0, tr.openRangeCall)
}

func TestIdempotentClose(t *testing.T) {
	tr := &fakeTransport{data: testData(4)}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr)
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, 0, tr.openRangeCall)

	_, err = ch.Read(context.Background(), make([]byte, 1))
	assert.ErrorIs(t, err, ErrChannelClosed)

	_, err = ch.Position()
	assert.ErrorIs(t, err, ErrChannelClosed)

	err = ch.Seek(context.Background(), 0)
	assert.ErrorIs(t, err, ErrChannelClosed)

	_, err = ch.Size(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestSequentialReadAcrossMultipleCalls(t *testing.T) {
	data := testData(10)
	tr := &fakeTransport{data: data}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr, WithFadvise(Sequential))
	require.NoError(t, err)

	got := make([]byte, 0, 10)
	buf := make([]byte, 3)
	for {
		n, err := ch.Read(context.Background(), buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, data, got)
	// SEQUENTIAL opens exactly one unbounded stream.
	assert.Equal(t, 1, tr.openRangeCall)
	assert.Equal(t, int64(-1), tr.lastLast)
}

// Scenario 1 of spec §8: AUTO -> RANDOM on a forward jump larger than
// inplaceSeekLimit.
func TestScenarioAutoTransitionsOnForwardJump(t *testing.T) {
	data := testData(10)
	tr := &fakeTransport{data: data}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr,
		WithFadvise(Auto), WithMinRangeRequestSize(1), WithInplaceSeekLimit(2), WithFooterPrefetchSize(1))
	require.NoError(t, err)

	require.NoError(t, ch.Seek(context.Background(), 1))
	buf := make([]byte, 1)
	n, err := ch.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, byte(1), buf[0])
	assert.Equal(t, 1, n)

	require.NoError(t, ch.Seek(context.Background(), 5))
	n, err = ch.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, byte(5), buf[0])

	require.Len(t, tr.firstBytes, 2)
	assert.Equal(t, []int64{1, 5}, tr.firstBytes)
	assert.Equal(t, []int64{-1, 5}, tr.lastBytes)
}

// Scenario 2 of spec §8: AUTO -> RANDOM on a backward jump.
func TestScenarioAutoTransitionsOnBackwardJump(t *testing.T) {
	data := testData(10)
	tr := &fakeTransport{data: data}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr,
		WithFadvise(Auto), WithMinRangeRequestSize(1), WithFooterPrefetchSize(1))
	require.NoError(t, err)

	require.NoError(t, ch.Seek(context.Background(), 5))
	buf := make([]byte, 1)
	_, err = ch.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, byte(5), buf[0])

	require.NoError(t, ch.Seek(context.Background(), 0))
	_, err = ch.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0), buf[0])

	assert.Equal(t, []int64{5, 0}, tr.firstBytes)
	assert.Equal(t, []int64{-1, 0}, tr.lastBytes)
}

// Scenario 3 of spec §8: footer reuse serves the second read's overlap from
// the cache, issuing exactly one byte of additional network range.
func TestScenarioFooterReuse(t *testing.T) {
	data := testData(10)
	tr := &fakeTransport{data: data}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr,
		WithFadvise(Random), WithMinRangeRequestSize(2), WithFooterPrefetchSize(2))
	require.NoError(t, err)

	require.NoError(t, ch.Seek(context.Background(), 8))
	first := make([]byte, 2)
	_, err = io.ReadFull(readerFunc(func(p []byte) (int, error) {
		return ch.Read(context.Background(), p)
	}), first)
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 9}, first)
	// The footer prefetch itself answers this read: no separate stream open.
	assert.Equal(t, 1, tr.openRangeCall)

	require.NoError(t, ch.Seek(context.Background(), 7))
	second := make([]byte, 2)
	_, err = io.ReadFull(readerFunc(func(p []byte) (int, error) {
		return ch.Read(context.Background(), p)
	}), second)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8}, second)

	// One additional network range request ("bytes=7-7"): byte 8 is served
	// from the already-cached footer.
	assert.Equal(t, 2, tr.openRangeCall)
}

func TestGenerationMismatchSurfacesAtOpen(t *testing.T) {
	tr := &fakeTransport{data: testData(4), generation: 342}
	_, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o", Generation: 5}, tr)
	assert.ErrorIs(t, err, ErrGenerationMismatch)
}

func TestGenerationMismatchSurfacesFromLazySize(t *testing.T) {
	tr := &fakeTransport{data: testData(4), generation: 342}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o", Generation: 5}, tr, WithFailOnNotFound(false))
	require.NoError(t, err)

	_, err = ch.Size(context.Background())
	assert.ErrorIs(t, err, ErrGenerationMismatch)
}

func TestGzipFailsOpenByDefault(t *testing.T) {
	tr := &fakeTransport{data: testData(4), contentEnc: "gzip"}
	_, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr)
	assert.ErrorIs(t, err, ErrGzipUnsupported)
}

func TestGzipAllowedWithFailOnGzipFalseReportsSentinelUntilEOF(t *testing.T) {
	data := testData(4)
	tr := &fakeTransport{data: data, contentEnc: "gzip"}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr, WithFailOnGzip(false))
	require.NoError(t, err)

	size, err := ch.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(GzipSentinelSize), size)

	buf := make([]byte, 10)
	total := 0
	for {
		n, err := ch.Read(context.Background(), buf[total:])
		total += n
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, len(data), total)
}

// A transient failure during lazy metadata resolution is retried within a
// single Size() call under the backoff policy (spec §7), transparently to
// the caller.
func TestRetryAfterTransientFailureInLazyMode(t *testing.T) {
	tr := &fakeTransport{data: testData(10), metaFailuresLeft: 1}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr,
		WithFailOnNotFound(false), WithBackoff(fastTestBackoff()))
	require.NoError(t, err)

	size, err := ch.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
	assert.Equal(t, 2, tr.metaCall)
}

// Scenario 8 of spec §8 (literal form): the first external Size() call
// observes a terminal FileNotFound and is not retried; a later Size() call,
// once the object exists, succeeds because a failed resolve never cached
// metadata.
func TestScenario8SizeFailsNotFoundThenSucceedsOnRetry(t *testing.T) {
	tr := &fakeTransport{data: testData(10), notFound: true}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr, WithFailOnNotFound(false))
	require.NoError(t, err)

	_, err = ch.Size(context.Background())
	assert.ErrorIs(t, err, ErrFileNotFound)

	tr.notFound = false
	size, err := ch.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
}

func TestInplaceSeekDiscardsWithoutReopen(t *testing.T) {
	data := testData(20)
	tr := &fakeTransport{data: data}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr, WithFadvise(Sequential))
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = ch.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0), buf[0])

	require.NoError(t, ch.Seek(context.Background(), 5))
	_, err = ch.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, byte(5), buf[0])

	// One stream opened at position 0; the seek to 5 discarded in place.
	assert.Equal(t, 1, tr.openRangeCall)
}

// Invariant 5 of the data model: a gzip-encoded object forbids arbitrary
// seeks, since stored byte offsets don't correspond to decoded offsets.
func TestGzipSeekToArbitraryPositionIsInvalidArgument(t *testing.T) {
	tr := &fakeTransport{data: testData(4), contentEnc: "gzip"}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr, WithFailOnGzip(false))
	require.NoError(t, err)

	err = ch.Seek(context.Background(), 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Seeking back to the start is allowed.
	require.NoError(t, ch.Seek(context.Background(), 0))
}

func TestNegativeSeekIsInvalidArgument(t *testing.T) {
	tr := &fakeTransport{data: testData(4)}
	ch, err := Open(context.Background(), ObjectHandle{Bucket: "b", Object: "o"}, tr)
	require.NoError(t, err)

	err = ch.Seek(context.Background(), -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
