package gcsio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hail-is/gcsio/transport"
)

// Simple opens a channel for a plain object URL, mirroring the teacher's
// Simple(u string) factory but without its process-wide local-file cache
// (that behaviour belongs to the cross-object cache the core explicitly
// does not implement; spec §1 non-goals). Two URL forms are accepted:
//
//   - "gs://bucket/object/path" — parsed directly into an ObjectHandle.
//   - "https://storage.googleapis.com/bucket/object/path" — the GCS public
//     object URL form, whose path is split into bucket and object.
//
// The returned channel uses an HTTP/JSON transport (C7) against
// http.DefaultClient; callers needing the streaming RPC transport (C8) or a
// custom *http.Client should call Open directly.
func Simple(ctx context.Context, rawURL string, opts ...Option) (*ReadChannel, error) {
	handle, err := parseObjectURL(rawURL)
	if err != nil {
		return nil, err
	}
	tr := transport.NewHTTPTransport(http.DefaultClient)
	return Open(ctx, handle, tr, opts...)
}

func parseObjectURL(rawURL string) (ObjectHandle, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ObjectHandle{}, fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}

	switch u.Scheme {
	case "gs":
		object := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || object == "" {
			return ObjectHandle{}, fmt.Errorf("%w: %q is not a valid gs:// object URL", ErrInvalidArgument, rawURL)
		}
		return ObjectHandle{Bucket: u.Host, Object: object}, nil
	case "https", "http":
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return ObjectHandle{}, fmt.Errorf("%w: %q is not a valid storage object URL", ErrInvalidArgument, rawURL)
		}
		return ObjectHandle{Bucket: parts[0], Object: parts[1]}, nil
	default:
		return ObjectHandle{}, fmt.Errorf("%w: unsupported URL scheme %q", ErrInvalidArgument, u.Scheme)
	}
}
