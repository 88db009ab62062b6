package transport

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// gobCodecName is the grpc content-subtype under which the RPC transport's
// wire messages travel. This core ships no protoc/buf toolchain to generate
// real protobuf stubs, so the streaming RPC adapter (rpc.go) registers a
// small gob-based codec instead of depending on generated .pb.go code — a
// supported grpc extension point (google.golang.org/grpc/encoding), not a
// protobuf substitute pretending to be one. See DESIGN.md.
const gobCodecName = "gcsio-gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return gobCodecName }
