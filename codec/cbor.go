package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/arloliu/go-studiorpc/rpc"
)

// CBORName is the name of the CBOR codec.
const CBORName = "cbor"

type cborRequest struct {
	RequestID uint32 `cbor:"1,keyasint,omitempty"`
	Subsystem uint32 `cbor:"2,keyasint,omitempty"`
	Method    uint32 `cbor:"3,keyasint,omitempty"`
	Payload   []byte `cbor:"4,keyasint,omitempty"`
}

type cborResponse struct {
	RequestID uint32 `cbor:"1,keyasint,omitempty"`
	Subsystem uint32 `cbor:"2,keyasint,omitempty"`
	Method    uint32 `cbor:"3,keyasint,omitempty"`
	Payload   []byte `cbor:"4,keyasint,omitempty"`
	Error     uint32 `cbor:"5,keyasint,omitempty"`
}

// CBOR encodes messages as CBOR maps keyed by field number.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec = (*CBOR)(nil)

// NewCBOR creates the CBOR codec.
func NewCBOR() (*CBOR, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("codec: cbor encoder: %w", err)
	}

	dec, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 16,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("codec: cbor decoder: %w", err)
	}

	return &CBOR{enc: enc, dec: dec}, nil
}

// Name returns CBORName.
func (*CBOR) Name() string { return CBORName }

// EncodeRequest marshals req with core deterministic encoding.
func (c *CBOR) EncodeRequest(req *rpc.Request) ([]byte, error) {
	if req == nil {
		return nil, ErrNilMessage
	}

	return c.enc.Marshal(cborRequest{
		RequestID: req.RequestID,
		Subsystem: uint32(req.Subsystem),
		Method:    uint32(req.Method),
		Payload:   req.Payload,
	})
}

// DecodeRequest unmarshals a request map.
func (c *CBOR) DecodeRequest(data []byte) (*rpc.Request, error) {
	var m cborRequest
	if err := c.dec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return &rpc.Request{
		RequestID: m.RequestID,
		Subsystem: rpc.SubsystemID(m.Subsystem),
		Method:    rpc.MethodID(m.Method),
		Payload:   m.Payload,
	}, nil
}

// EncodeResponse marshals resp with core deterministic encoding.
func (c *CBOR) EncodeResponse(resp *rpc.Response) ([]byte, error) {
	if resp == nil {
		return nil, ErrNilMessage
	}

	m := cborResponse{
		RequestID: resp.RequestID,
		Subsystem: uint32(resp.Subsystem),
		Method:    uint32(resp.Method),
	}
	if resp.IsError() {
		m.Error = uint32(resp.Error)
	} else {
		m.Payload = resp.Payload
	}

	return c.enc.Marshal(m)
}

// DecodeResponse unmarshals a response map.
func (c *CBOR) DecodeResponse(data []byte) (*rpc.Response, error) {
	var m cborResponse
	if err := c.dec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return &rpc.Response{
		RequestID: m.RequestID,
		Subsystem: rpc.SubsystemID(m.Subsystem),
		Method:    rpc.MethodID(m.Method),
		Payload:   m.Payload,
		Error:     rpc.ErrorCode(m.Error),
	}, nil
}
