// Package gcsio exposes a seekable, POSIX-like read channel over a single
// remote object addressed by bucket, name, and an optional pinned
// generation. It is built over HTTP range semantics rather than
// downloading an object whole: a fadvise state machine chooses between
// streaming and ranged-GET strategies, a footer cache short-circuits tail
// probes of columnar files, and a backoff sequencer absorbs transient
// transport failures.
//
// Construct a channel with Open, passing a transport.Transport (either
// transport.NewHTTPTransport or transport.NewRPCTransport) and any Option
// values to override the defaults returned by NewReadOptions. Simple offers
// a one-line convenience constructor for plain object URLs.
//
// A ReadChannel is not safe for concurrent use: callers must serialise
// Size, Position, Seek, Read, and Close.
package gcsio
