package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Wire messages of the streaming RPC transport. Grounded in gazette-core's
// pb.ReadRequest/pb.ReadResponse (broker/client/reader.go) but reduced to
// plain, gob-codec-friendly structs (see rpc_codec.go) since there is no
// .proto/codegen step in this module.
type rpcMetadataRequest struct {
	Bucket, Object string
	Generation     int64
}

type rpcMetadataResponse struct {
	Size            int64
	Generation      int64
	ContentEncoding string
	Status          int32 // grpc codes.Code, for in-band terminal failures
}

type rpcRangeRequest struct {
	Bucket, Object      string
	Generation          int64
	FirstByte, LastByte int64 // LastByte < 0 means unbounded
}

type rpcRangeFrame struct {
	Content         []byte
	Offset          int64
	ContentEncoding string
	Status          int32
	Done            bool
}

const (
	methodFetchMetadata = "/gcsio.Reader/FetchMetadata"
	methodOpenRange     = "/gcsio.Reader/OpenRange"
)

// RPCTransport is the second concrete C2 adapter (Design Notes §9: "Two
// transport adapters exist (HTTP/JSON and streaming RPC). They are
// interchangeable behind C2's contract"), grounded in gazette-core's
// broker/client.Reader: a server-streaming RPC of framed responses, drained
// by serving buffered remainder before issuing the next receive.
type RPCTransport struct {
	Conn *grpc.ClientConn
}

// NewRPCTransport returns an RPCTransport issuing calls over conn.
func NewRPCTransport(conn *grpc.ClientConn) *RPCTransport {
	return &RPCTransport{Conn: conn}
}

var _ Transport = (*RPCTransport)(nil)

// FetchMetadata implements Transport.
func (t *RPCTransport) FetchMetadata(ctx context.Context, obj Object) (Metadata, error) {
	req := rpcMetadataRequest{Bucket: obj.Bucket, Object: obj.Name, Generation: obj.Generation}
	var resp rpcMetadataResponse
	if err := t.Conn.Invoke(ctx, methodFetchMetadata, &req, &resp, grpc.CallContentSubtype(gobCodecName)); err != nil {
		return Metadata{}, classifyGRPCError(err)
	}
	if kind := statusCodeToError(codes.Code(resp.Status)); kind != nil {
		return Metadata{}, kind
	}
	return Metadata{
		Size:            resp.Size,
		Generation:      resp.Generation,
		ContentEncoding: resp.ContentEncoding,
	}, nil
}

// OpenRange implements Transport.
func (t *RPCTransport) OpenRange(ctx context.Context, obj Object, firstByte, lastByte int64) (RangeStream, error) {
	stream, err := t.Conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, methodOpenRange, grpc.CallContentSubtype(gobCodecName))
	if err != nil {
		return RangeStream{}, classifyGRPCError(err)
	}

	req := rpcRangeRequest{
		Bucket: obj.Bucket, Object: obj.Name, Generation: obj.Generation,
		FirstByte: firstByte, LastByte: lastByte,
	}
	if err := stream.SendMsg(&req); err != nil {
		return RangeStream{}, classifyGRPCError(err)
	}
	if err := stream.CloseSend(); err != nil {
		return RangeStream{}, classifyGRPCError(err)
	}

	var first rpcRangeFrame
	if err := stream.RecvMsg(&first); err != nil {
		return RangeStream{}, classifyGRPCError(err)
	}
	if kind := statusCodeToError(codes.Code(first.Status)); kind != nil {
		return RangeStream{}, kind
	}

	return RangeStream{
		Body:            &rpcStreamReader{stream: stream, pending: first.Content, done: first.Done},
		ActualFirstByte: first.Offset,
		ContentEncoding: first.ContentEncoding,
	}, nil
}

// rpcStreamReader adapts a server-streaming sequence of rpcRangeFrame values
// to io.ReadCloser: buffered remainder from the last frame is served before
// the next RecvMsg is issued, the same discipline gazette's Reader.Read
// applies to pb.ReadResponse.Content.
type rpcStreamReader struct {
	stream  grpc.ClientStream
	pending []byte
	done    bool
	err     error
}

func (r *rpcStreamReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.done {
			if r.err != nil {
				return 0, r.err
			}
			return 0, io.EOF
		}
		var frame rpcRangeFrame
		if err := r.stream.RecvMsg(&frame); err != nil {
			r.done = true
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			r.err = classifyGRPCError(err)
			return 0, r.err
		}
		if kind := statusCodeToError(codes.Code(frame.Status)); kind != nil {
			r.done = true
			r.err = kind
			return 0, kind
		}
		r.pending = frame.Content
		if frame.Done {
			r.done = true
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *rpcStreamReader) Close() error {
	return r.stream.CloseSend()
}

func classifyGRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTransient, err)
	}
	kind := statusCodeToError(st.Code())
	if kind == nil {
		kind = ErrFatal
	}
	return fmt.Errorf("%w: %s", kind, err)
}

// statusCodeToError maps a grpc status code to the C2 error taxonomy, or nil
// for codes.OK.
func statusCodeToError(code codes.Code) error {
	switch code {
	case codes.OK:
		return nil
	case codes.NotFound:
		return ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return ErrTransient
	default:
		return ErrFatal
	}
}
