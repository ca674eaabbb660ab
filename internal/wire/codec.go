// Package wire provides the serialization layer for the RPC envelope.
//
// The teacher (BX-D-mini-RPC/codec) exposes a Codec interface with a
// pluggable CodecType so its binary protocol frame can carry either JSON
// or a hand-rolled binary encoding. This host's wire format is fixed to
// JSON-RPC 2.0 text by the spec, so only the JSON side of that interface
// survives here — generalized to encode/decode the rpc.Request /
// rpc.Response types instead of the teacher's ServiceMethod/Payload
// envelope.
package wire

import "encoding/json"

// Codec serializes a value to/from the bytes carried on the wire.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONCodec is the only codec the host needs: the wire format is
// JSON-RPC 2.0 text (spec §6).
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
