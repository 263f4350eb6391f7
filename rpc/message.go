package rpc

import "fmt"

// SubsystemID identifies a group of related methods.
type SubsystemID uint32

// MethodID identifies a method within a subsystem.
type MethodID uint32

// ErrorCode is the error variant carried by a Response.
type ErrorCode uint32

const (
	// ErrorNone marks a successful Response.
	ErrorNone ErrorCode = iota
	// ErrorGeneric reports a handler failure.
	ErrorGeneric
	// ErrorUnsupportedRequest reports that no handler is registered for the
	// request's (subsystem, method) pair.
	ErrorUnsupportedRequest
	// ErrorBadRequest reports a method payload the handler could not parse.
	ErrorBadRequest
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "none"
	case ErrorGeneric:
		return "generic"
	case ErrorUnsupportedRequest:
		return "unsupported_request"
	case ErrorBadRequest:
		return "bad_request"
	default:
		return fmt.Sprintf("error(%d)", uint32(c))
	}
}

// Request is a decoded RPC request.
type Request struct {
	// RequestID is chosen by the host and echoed in the Response.
	RequestID uint32
	Subsystem SubsystemID
	Method    MethodID
	// Payload holds the method-specific fields, encoded by the method's owner.
	Payload []byte
}

// Reply builds a successful Response for r.
func (r Request) Reply(payload []byte) Response {
	return Response{
		RequestID: r.RequestID,
		Subsystem: r.Subsystem,
		Method:    r.Method,
		Payload:   payload,
	}
}

// ReplyError builds an error Response for r.
func (r Request) ReplyError(code ErrorCode) Response {
	return Response{
		RequestID: r.RequestID,
		Subsystem: r.Subsystem,
		Method:    r.Method,
		Error:     code,
	}
}

// Response is the result of dispatching a Request. Exactly one of Payload and
// Error is meaningful: a Response with Error != ErrorNone carries no payload.
type Response struct {
	RequestID uint32
	Subsystem SubsystemID
	Method    MethodID
	Payload   []byte
	Error     ErrorCode
}

// IsError reports whether the Response carries an error variant.
func (r Response) IsError() bool {
	return r.Error != ErrorNone
}

// MessageCodec converts frame payloads to Requests and Responses to frame
// payloads. It is the device side of the message schema.
type MessageCodec interface {
	DecodeRequest(data []byte) (*Request, error)
	EncodeResponse(resp *Response) ([]byte, error)
}

// Dispatcher routes a Request to its handler.
type Dispatcher interface {
	Dispatch(req Request) Response
}
