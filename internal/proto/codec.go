// Package proto defines the wire contract of the tokenauth.v1.Identity gRPC
// service: request/response messages, the JSON codec that carries them, the
// service descriptor and a client.
package proto

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype negotiated for every call
// ("application/grpc+json").
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

// Codec returns the JSON codec for use with grpc.ForceServerCodec or
// grpc.ForceCodec.
func Codec() encoding.Codec {
	return jsonCodec{}
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
