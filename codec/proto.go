package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/arloliu/go-studiorpc/rpc"
)

// ProtoName is the name of the protobuf wire format codec.
const ProtoName = "proto"

// Proto encodes messages in protobuf wire format.
type Proto struct{}

var _ Codec = Proto{}

// NewProto returns the protobuf wire format codec.
func NewProto() Proto { return Proto{} }

// Name returns ProtoName.
func (Proto) Name() string { return ProtoName }

// EncodeRequest marshals req. Zero-valued fields are omitted.
func (Proto) EncodeRequest(req *rpc.Request) ([]byte, error) {
	if req == nil {
		return nil, ErrNilMessage
	}

	b := make([]byte, 0, 16+len(req.Payload))
	b = appendVarintField(b, fieldRequestID, uint64(req.RequestID))
	b = appendVarintField(b, fieldSubsystem, uint64(req.Subsystem))
	b = appendVarintField(b, fieldMethod, uint64(req.Method))
	b = appendBytesField(b, fieldPayload, req.Payload)

	return b, nil
}

// DecodeRequest unmarshals a request, skipping unknown fields.
func (Proto) DecodeRequest(data []byte) (*rpc.Request, error) {
	req := &rpc.Request{}

	err := walkFields(data, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case fieldRequestID:
			id, err := toUint32(num, v)
			req.RequestID = id

			return err
		case fieldSubsystem:
			id, err := toUint32(num, v)
			req.Subsystem = rpc.SubsystemID(id)

			return err
		case fieldMethod:
			id, err := toUint32(num, v)
			req.Method = rpc.MethodID(id)

			return err
		case fieldPayload:
			req.Payload = append([]byte{}, raw...)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

// EncodeResponse marshals resp as its single active variant.
func (Proto) EncodeResponse(resp *rpc.Response) ([]byte, error) {
	if resp == nil {
		return nil, ErrNilMessage
	}

	b := make([]byte, 0, 20+len(resp.Payload))
	b = appendVarintField(b, fieldRequestID, uint64(resp.RequestID))
	b = appendVarintField(b, fieldSubsystem, uint64(resp.Subsystem))
	b = appendVarintField(b, fieldMethod, uint64(resp.Method))
	if resp.IsError() {
		b = appendVarintField(b, fieldError, uint64(resp.Error))
	} else {
		b = appendBytesField(b, fieldPayload, resp.Payload)
	}

	return b, nil
}

// DecodeResponse unmarshals a response, skipping unknown fields.
func (Proto) DecodeResponse(data []byte) (*rpc.Response, error) {
	resp := &rpc.Response{}

	err := walkFields(data, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case fieldRequestID:
			id, err := toUint32(num, v)
			resp.RequestID = id

			return err
		case fieldSubsystem:
			id, err := toUint32(num, v)
			resp.Subsystem = rpc.SubsystemID(id)

			return err
		case fieldMethod:
			id, err := toUint32(num, v)
			resp.Method = rpc.MethodID(id)

			return err
		case fieldPayload:
			resp.Payload = append([]byte{}, raw...)
		case fieldError:
			code, err := toUint32(num, v)
			resp.Error = rpc.ErrorCode(code)

			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// appendVarintField omits zero values, like proto3 scalars.
func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, v)
}

// fieldFunc receives one known field. v is set for varint fields, raw for
// length-delimited fields.
type fieldFunc func(num protowire.Number, v uint64, raw []byte) error

// walkFields parses data as a protobuf message, calling fn for fields 1..5 with
// the expected wire type and skipping everything else.
func walkFields(data []byte, fn fieldFunc) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: tag: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		want, known := expectedType(num)
		if known && typ != want {
			return fmt.Errorf("%w: field %d has wire type %d, want %d", ErrMalformed, num, typ, want)
		}

		switch {
		case known && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(m))
			}
			data = data[m:]
			if err := fn(num, v, nil); err != nil {
				return err
			}

		case known && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(m))
			}
			data = data[m:]
			if err := fn(num, 0, raw); err != nil {
				return err
			}

		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}

	return nil
}

func expectedType(num protowire.Number) (protowire.Type, bool) {
	switch num {
	case fieldRequestID, fieldSubsystem, fieldMethod, fieldError:
		return protowire.VarintType, true
	case fieldPayload:
		return protowire.BytesType, true
	default:
		return 0, false
	}
}

func toUint32(num protowire.Number, v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: field %d value %d overflows uint32", ErrMalformed, num, v)
	}

	return uint32(v), nil
}
