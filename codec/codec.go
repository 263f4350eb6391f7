// Package codec provides the message codecs that turn frame payloads into
// rpc.Request / rpc.Response values and back.
//
// Two encodings are available:
//
//   - "proto": protobuf wire format (the default). Request fields are
//     1 request_id, 2 subsystem, 3 method, 4 payload; Response fields add
//     5 error. Unknown fields are skipped.
//   - "cbor": a CBOR map with small integer keys using the same numbering,
//     encoded with Core Deterministic Encoding.
//
// Each codec implements both sides of the schema: the device side
// (rpc.MessageCodec) and the host side (EncodeRequest / DecodeResponse).
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/go-studiorpc/rpc"
)

var (
	// ErrMalformed indicates a payload that does not follow the schema.
	ErrMalformed = errors.New("codec: malformed message")

	// ErrUnknownCodec indicates an unsupported codec name.
	ErrUnknownCodec = errors.New("codec: unknown codec")

	// ErrNilMessage indicates a nil request or response.
	ErrNilMessage = errors.New("codec: nil message")
)

// Codec is a full message codec usable on both ends of a link.
type Codec interface {
	rpc.MessageCodec

	// Name returns the codec name accepted by ByName.
	Name() string
	// EncodeRequest encodes a request for transmission to a device.
	EncodeRequest(req *rpc.Request) ([]byte, error)
	// DecodeResponse decodes a response received from a device.
	DecodeResponse(data []byte) (*rpc.Response, error)
}

// Field numbers shared by both encodings.
const (
	fieldRequestID = 1
	fieldSubsystem = 2
	fieldMethod    = 3
	fieldPayload   = 4
	fieldError     = 5
)

// ByName returns the codec registered under name ("proto" or "cbor").
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProtoName, "protobuf":
		return NewProto(), nil
	case CBORName:
		return NewCBOR()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
