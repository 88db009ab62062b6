package gcsio

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hail-is/gcsio/transport"
)

// fakeTransport is a minimal in-memory transport.Transport backed by a byte
// slice, used to test C4/C5/C6 without network I/O.
type fakeTransport struct {
	data          []byte
	generation    int64
	contentEnc    string
	openRangeCall int
	metaCall      int
	firstBytes    []int64
	lastBytes     []int64
	lastFirst     int64
	lastLast      int64
	notFound      bool

	metaFailuresLeft  int
	rangeFailuresLeft int
}

func (f *fakeTransport) FetchMetadata(ctx context.Context, obj transport.Object) (transport.Metadata, error) {
	f.metaCall++
	if f.notFound {
		return transport.Metadata{}, transport.ErrNotFound
	}
	if f.metaFailuresLeft > 0 {
		f.metaFailuresLeft--
		return transport.Metadata{}, transport.ErrTransient
	}
	return transport.Metadata{Size: int64(len(f.data)), Generation: f.generation, ContentEncoding: f.contentEnc}, nil
}

func (f *fakeTransport) OpenRange(ctx context.Context, obj transport.Object, firstByte, lastByte int64) (transport.RangeStream, error) {
	f.openRangeCall++
	f.lastFirst, f.lastLast = firstByte, lastByte
	f.firstBytes = append(f.firstBytes, firstByte)
	f.lastBytes = append(f.lastBytes, lastByte)
	if f.notFound {
		return transport.RangeStream{}, transport.ErrNotFound
	}
	if f.rangeFailuresLeft > 0 {
		f.rangeFailuresLeft--
		return transport.RangeStream{}, transport.ErrTransient
	}
	end := lastByte
	if end < 0 || end >= int64(len(f.data)) {
		end = int64(len(f.data)) - 1
	}
	if firstByte > end {
		return transport.RangeStream{Body: io.NopCloser(nil), ActualFirstByte: firstByte}, nil
	}
	return transport.RangeStream{
		Body:            io.NopCloser(newSliceReader(f.data[firstByte : end+1])),
		ActualFirstByte: firstByte,
	}, nil
}

type sliceReader struct {
	data []byte
	pos  int
}

func newSliceReader(b []byte) *sliceReader { return &sliceReader{data: b} }

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func TestFooterCacheFetchAndContains(t *testing.T) {
	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	tr := &fakeTransport{data: data}

	var f footerCache
	err := f.fetch(context.Background(), tr, transport.Object{}, int64(len(data)), 2, 2)
	require.NoError(t, err)

	assert.True(t, f.contains(8))
	assert.True(t, f.contains(9))
	assert.False(t, f.contains(7))

	buf := make([]byte, 2)
	n := f.readAt(8, buf)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{8, 9}, buf)

	assert.Equal(t, 1, tr.openRangeCall)
	assert.Equal(t, int64(8), tr.lastFirst)
}

func TestFooterCacheReleaseClearsReady(t *testing.T) {
	var f footerCache
	f.ready = true
	f.buf = []byte{1, 2, 3}
	f.n = 3

	f.release()
	assert.False(t, f.ready)
	assert.False(t, f.contains(0))
}

func TestFooterCacheZeroSizeObject(t *testing.T) {
	tr := &fakeTransport{data: nil}
	var f footerCache
	err := f.fetch(context.Background(), tr, transport.Object{}, 0, 2, 2)
	require.NoError(t, err)
	assert.False(t, f.contains(0))
	assert.Equal(t, 0, tr.openRangeCall)
}
