package grpcserver

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a grpc encoding.Codec that marshals request/response
// messages as JSON instead of protobuf wire format. The operator command
// surface is spoken only between this node's own gRPC server and its own
// CLI client, so there is no interoperability requirement that would
// justify a .proto build step; ForceServerCodec (service.go) pins every
// RPC on this server to this codec regardless of what a client
// negotiates, the same way projects that swap in vtprotobuf or jsonpb
// codecs do.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("grpcserver: marshaling %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpcserver: unmarshaling into %T: %w", v, err)
	}
	return nil
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
