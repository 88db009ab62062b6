package gcsio

import (
	"github.com/sirupsen/logrus"

	"github.com/hail-is/gcsio/backoff"
)

const (
	defaultInplaceSeekLimit   int64 = 8 * 1024 * 1024
	defaultMinRangeRequestSz  int64 = 2 * 1024 * 1024
	defaultFooterPrefetchSize int64 = 2 * 1024 * 1024
)

// ReadOptions is the flat, builder-friendly configuration record for a
// channel (Design Notes §9: "immutable option records with many fields; a
// builder or options-struct pattern reproduces this without reflection").
// It is a plain value type, following the teacher's own DownloadManager
// shape, and is populated with sane defaults by NewReadOptions; callers
// typically don't construct it directly but go through the functional
// Option helpers passed to Open.
type ReadOptions struct {
	// Backoff parameters for C1. See backoff.Policy for field semantics.
	Backoff backoff.Policy

	// FailOnNotFound, when true (the default), resolves metadata eagerly at
	// Open time, so a missing object is reported immediately. When false,
	// resolution is deferred to the first size-dependent operation.
	FailOnNotFound bool

	// FailOnGzip, when true (the default), fails Open if the object's
	// Content-Encoding is gzip. When false, the channel allows sequential
	// reads of a gzip object, reporting GzipSentinelSize until EOF.
	FailOnGzip bool

	// InplaceSeekLimit bounds how many bytes a forward seek may discard from
	// the live stream before the channel prefers to open a new range.
	InplaceSeekLimit int64

	// Fadvise is the initial fadvise state. Defaults to Sequential.
	Fadvise FadviseState

	// MinRangeRequestSize lower-bounds the span of a RANDOM-mode ranged GET
	// and the footer prefetch size.
	MinRangeRequestSize int64

	// FooterPrefetchSize is the size of the footer region prefetched on
	// first access, subject to the MinRangeRequestSize floor and the object
	// size ceiling (spec §4.4: footerSize = max(minRangeRequestSize,
	// FooterPrefetchSize), capped at Size).
	FooterPrefetchSize int64

	// Logger receives structured, Debug/Warn-level diagnostics about
	// metadata resolution, stream opens, fadvise transitions, footer
	// prefetches, and retries. A nil
	// Logger is replaced with a disabled logger that discards output, so the
	// core never forces logging on an embedding application.
	Logger logrus.FieldLogger

	// Stats, if non-nil, observes byte ranges and events for this channel's
	// lifetime. See the stats package; the core never constructs one itself.
	Stats StatsSink
}

// NewReadOptions returns a ReadOptions populated with the spec's defaults:
// 200ms initial backoff, 1.5 multiplier, 0.5 randomisation, 10s max
// interval, 120s max elapsed, FailOnNotFound=true, FailOnGzip=true, an 8MiB
// in-place seek limit, SEQUENTIAL fadvise, and a 2MiB minimum range/footer
// size.
func NewReadOptions() ReadOptions {
	return ReadOptions{
		Backoff:             backoff.DefaultPolicy(),
		FailOnNotFound:      true,
		FailOnGzip:          true,
		InplaceSeekLimit:    defaultInplaceSeekLimit,
		Fadvise:             Sequential,
		MinRangeRequestSize: defaultMinRangeRequestSz,
		FooterPrefetchSize:  defaultFooterPrefetchSize,
		Logger:              disabledLogger(),
	}
}

// Option mutates a ReadOptions value under construction. Functions rather
// than struct literals so zero-value fields the caller didn't set keep
// NewReadOptions' defaults.
type Option func(*ReadOptions)

// WithFadvise sets the initial fadvise state.
func WithFadvise(state FadviseState) Option {
	return func(o *ReadOptions) { o.Fadvise = state }
}

// WithBackoff overrides the retry policy.
func WithBackoff(p backoff.Policy) Option {
	return func(o *ReadOptions) { o.Backoff = p }
}

// WithInplaceSeekLimit overrides the in-place seek threshold.
func WithInplaceSeekLimit(bytes int64) Option {
	return func(o *ReadOptions) { o.InplaceSeekLimit = bytes }
}

// WithMinRangeRequestSize overrides the RANDOM-mode / footer minimum range
// size.
func WithMinRangeRequestSize(bytes int64) Option {
	return func(o *ReadOptions) { o.MinRangeRequestSize = bytes }
}

// WithFooterPrefetchSize overrides the footer prefetch size.
func WithFooterPrefetchSize(bytes int64) Option {
	return func(o *ReadOptions) { o.FooterPrefetchSize = bytes }
}

// WithFailOnNotFound overrides eager/lazy metadata resolution.
func WithFailOnNotFound(fail bool) Option {
	return func(o *ReadOptions) { o.FailOnNotFound = fail }
}

// WithFailOnGzip overrides gzip tolerance.
func WithFailOnGzip(fail bool) Option {
	return func(o *ReadOptions) { o.FailOnGzip = fail }
}

// WithLogger attaches a structured logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *ReadOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithStats attaches a stats sink.
func WithStats(s StatsSink) Option {
	return func(o *ReadOptions) { o.Stats = s }
}

func disabledLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	l.SetLevel(logrus.PanicLevel)
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
