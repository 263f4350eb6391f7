package rpc

import (
	"io"
	"sync"
	"testing"

	"github.com/arloliu/go-studiorpc/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder() *Builder {
	return NewBuilder().WithLogger(logger.NewSlogWithOptions(logger.ErrorLevel, logger.WithOutput(io.Discard)))
}

func echoHandler(req Request) Response {
	return req.Reply(append([]byte{0xEE}, req.Payload...))
}

func TestRegistry_Dispatch(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.Register(1, 1, echoHandler))

	reg, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	resp := reg.Dispatch(Request{RequestID: 42, Subsystem: 1, Method: 1, Payload: []byte{0x01}})
	assert.False(t, resp.IsError())
	assert.Equal(t, uint32(42), resp.RequestID)
	assert.Equal(t, SubsystemID(1), resp.Subsystem)
	assert.Equal(t, MethodID(1), resp.Method)
	assert.Equal(t, []byte{0xEE, 0x01}, resp.Payload)
}

func TestRegistry_UnsupportedRequest(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.Register(1, 1, echoHandler))
	reg, err := b.Build()
	require.NoError(t, err)

	tests := []struct {
		name      string
		subsystem SubsystemID
		method    MethodID
	}{
		{"unknown subsystem", 9, 1},
		{"unknown method", 1, 9},
		{"zero pair", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{RequestID: 7, Subsystem: tt.subsystem, Method: tt.method}

			var resp Response
			require.NotPanics(t, func() { resp = reg.Dispatch(req) })
			assert.Equal(t, ErrorUnsupportedRequest, resp.Error)
			assert.Equal(t, uint32(7), resp.RequestID)
			assert.Equal(t, tt.subsystem, resp.Subsystem)
			assert.Equal(t, tt.method, resp.Method)
			assert.Nil(t, resp.Payload)
		})
	}
}

func TestRegistry_EmptyRegistry(t *testing.T) {
	reg, err := newTestBuilder().Build()
	require.NoError(t, err)

	resp := reg.Dispatch(Request{Subsystem: 1, Method: 1})
	assert.Equal(t, ErrorUnsupportedRequest, resp.Error)
}

func TestRegistry_IdentityFieldsForced(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.Register(2, 3, func(Request) Response {
		return Response{RequestID: 999, Subsystem: 8, Method: 8, Payload: []byte{1}}
	}))
	reg, err := b.Build()
	require.NoError(t, err)

	resp := reg.Dispatch(Request{RequestID: 5, Subsystem: 2, Method: 3})
	assert.Equal(t, uint32(5), resp.RequestID)
	assert.Equal(t, SubsystemID(2), resp.Subsystem)
	assert.Equal(t, MethodID(3), resp.Method)
	assert.Equal(t, []byte{1}, resp.Payload)
}

func TestRegistry_HandlerPanicBecomesGenericError(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.Register(1, 2, func(Request) Response { panic("boom") }))
	reg, err := b.Build()
	require.NoError(t, err)

	resp := reg.Dispatch(Request{Subsystem: 1, Method: 2})
	assert.Equal(t, ErrorGeneric, resp.Error)
}

func TestRegistry_ErrorResponseDropsPayload(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.Register(1, 2, func(req Request) Response {
		resp := req.ReplyError(ErrorBadRequest)
		resp.Payload = []byte{0x01}

		return resp
	}))
	reg, err := b.Build()
	require.NoError(t, err)

	resp := reg.Dispatch(Request{Subsystem: 1, Method: 2})
	assert.Equal(t, ErrorBadRequest, resp.Error)
	assert.Nil(t, resp.Payload)
}

func TestBuilder_Errors(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.Register(1, 1, echoHandler))

	err := b.Register(1, 1, echoHandler)
	require.ErrorIs(t, err, ErrDuplicateHandler)

	err = b.Register(1, 2, nil)
	require.ErrorIs(t, err, ErrNilHandler)

	_, err = b.Build()
	require.NoError(t, err)

	err = b.Register(1, 3, echoHandler)
	require.ErrorIs(t, err, ErrRegistrySealed)

	_, err = b.Build()
	require.ErrorIs(t, err, ErrRegistrySealed)
}

func TestBuilder_AddSubsystem(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.AddSubsystem(Subsystem{
		ID:   3,
		Name: "core",
		Methods: []Method{
			{ID: 1, Name: "get_lock_status", Handler: echoHandler},
			{ID: 2, Name: "lock", Handler: echoHandler},
		},
	}))
	require.NoError(t, b.Register(3, 3, echoHandler))

	err := b.AddSubsystem(Subsystem{ID: 3, Methods: []Method{{ID: 1, Handler: echoHandler}}})
	require.ErrorIs(t, err, ErrDuplicateHandler)

	reg, err := b.Build()
	require.NoError(t, err)

	entries := reg.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "get_lock_status", entries[0].MethodName)
	assert.Equal(t, "core", entries[2].SubsystemName, "late registrations inherit the subsystem name")

	_, ok := reg.Lookup(3, 2)
	assert.True(t, ok)
	_, ok = reg.Lookup(4, 2)
	assert.False(t, ok)
}

func TestRegistry_ConcurrentDispatch(t *testing.T) {
	b := newTestBuilder()
	require.NoError(t, b.Register(1, 1, echoHandler))
	reg, err := b.Build()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			resp := reg.Dispatch(Request{RequestID: id, Subsystem: 1, Method: 1})
			assert.Equal(t, id, resp.RequestID)
		}(uint32(i))
	}
	wg.Wait()
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "none", ErrorNone.String())
	assert.Equal(t, "unsupported_request", ErrorUnsupportedRequest.String())
	assert.Equal(t, "error(77)", ErrorCode(77).String())
}
