package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-studiorpc/codec"
	"github.com/arloliu/go-studiorpc/framing"
	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
)

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, codec.NewProto(), echoDispatcher{})
	require.ErrorIs(t, err, ErrNilCollaborator)

	_, err = NewService(newRecordNotifier(), codec.NewProto(), echoDispatcher{}, WithMaxMessageSize(8))
	require.Error(t, err)

	_, err = NewService(newRecordNotifier(), codec.NewProto(), echoDispatcher{},
		WithMarkers(framing.Markers{SOF: 1, ESC: 1, EOF: 2}))
	require.ErrorIs(t, err, framing.ErrInvalidMarkers)

	_, err = NewService(newRecordNotifier(), codec.NewProto(), echoDispatcher{}, WithLogger(nil))
	require.Error(t, err)
}

func TestService_WriteRequestNotifiesResponse(t *testing.T) {
	n := newRecordNotifier()
	svc := newTestService(t, n)
	svc.Connected(1)

	frame := frameRequest(t, &rpc.Request{RequestID: 42, Subsystem: 1, Method: 3, Payload: []byte{framing.DefaultESC}})
	assert.Equal(t, len(frame), svc.WriteRequest(1, frame))

	frames := n.frames(1)
	require.Len(t, frames, 1)

	resps := decodeResponses(t, frames[0])
	require.Len(t, resps, 1)
	assert.Equal(t, uint32(42), resps[0].RequestID)
	assert.Equal(t, []byte{framing.DefaultESC}, resps[0].Payload)
	assert.Equal(t, uint64(1), svc.Metrics().NotifySendCount.Load())
}

func TestService_FrameSplitAcrossWrites(t *testing.T) {
	n := newRecordNotifier()
	svc := newTestService(t, n)

	frame := frameRequest(t, &rpc.Request{RequestID: 7, Payload: []byte("split me")})
	half := len(frame) / 2

	assert.Equal(t, half, svc.WriteRequest(1, frame[:half]))
	assert.Empty(t, n.frames(1))

	svc.WriteRequest(1, frame[half:])
	require.Len(t, n.frames(1), 1)
}

func TestService_MultipleFramesInOneWrite(t *testing.T) {
	n := newRecordNotifier()
	svc := newTestService(t, n)

	var stream []byte
	for i := uint32(1); i <= 3; i++ {
		stream = append(stream, frameRequest(t, &rpc.Request{RequestID: i})...)
	}
	svc.WriteRequest(1, stream)

	frames := n.frames(1)
	require.Len(t, frames, 3)
	for i, f := range frames {
		resps := decodeResponses(t, f)
		require.Len(t, resps, 1)
		assert.Equal(t, uint32(i+1), resps[0].RequestID)
	}
}

func TestService_SessionsAreIsolated(t *testing.T) {
	n := newRecordNotifier()
	svc := newTestService(t, n)
	svc.Connected(1)
	svc.Connected(2)

	a := frameRequest(t, &rpc.Request{RequestID: 100, Payload: []byte("from a")})
	b := frameRequest(t, &rpc.Request{RequestID: 200, Payload: []byte("from b")})

	// interleave partial frames of both peers
	svc.WriteRequest(1, a[:3])
	svc.WriteRequest(2, b[:4])
	svc.WriteRequest(1, a[3:])
	svc.WriteRequest(2, b[4:])

	ra := decodeResponses(t, n.frames(1)[0])
	rb := decodeResponses(t, n.frames(2)[0])
	require.Len(t, ra, 1)
	require.Len(t, rb, 1)
	assert.Equal(t, uint32(100), ra[0].RequestID)
	assert.Equal(t, []byte("from a"), ra[0].Payload)
	assert.Equal(t, uint32(200), rb[0].RequestID)
	assert.Equal(t, []byte("from b"), rb[0].Payload)
}

func TestService_SessionLifecycle(t *testing.T) {
	svc := newTestService(t, newRecordNotifier())

	svc.Connected(1)
	svc.Connected(1)
	assert.Equal(t, 1, svc.SessionCount())
	assert.Equal(t, int64(1), svc.Metrics().ActiveConnGauge.Load())

	// lazily created on first write
	svc.WriteRequest(2, []byte{0x00})
	assert.Equal(t, 2, svc.SessionCount())
	assert.Equal(t, int64(2), svc.Metrics().ActiveConnGauge.Load())

	svc.Disconnected(1)
	svc.Disconnected(2)
	svc.Disconnected(3)
	assert.Zero(t, svc.SessionCount())
	assert.Zero(t, svc.Metrics().ActiveConnGauge.Load())
}

func TestService_ReconnectDropsPartialFrame(t *testing.T) {
	n := newRecordNotifier()
	svc := newTestService(t, n)

	frame := frameRequest(t, &rpc.Request{RequestID: 1, Payload: []byte("abc")})
	svc.Connected(1)
	svc.WriteRequest(1, frame[:len(frame)-1])
	svc.Disconnected(1)

	svc.Connected(1)
	// the tail alone is garbage for a fresh session
	svc.WriteRequest(1, frame[len(frame)-1:])
	assert.Empty(t, n.frames(1))

	svc.WriteRequest(1, frame)
	assert.Len(t, n.frames(1), 1)
}

func TestService_DecodeFailure(t *testing.T) {
	mockLogger := logger.NewMockLogger().Lenient()
	n := newRecordNotifier()
	svc := newTestService(t, n, WithLogger(mockLogger))

	enc, err := framing.NewEncoder()
	require.NoError(t, err)

	svc.WriteRequest(1, enc.AppendFrame(nil, []byte{0xFF}))

	assert.Empty(t, n.frames(1))
	assert.Equal(t, uint64(1), svc.Metrics().DecodeErrCount.Load())
	assert.Equal(t, uint64(1), svc.Metrics().FrameRecvCount.Load())
	mockLogger.AssertCalled(t, "Warn", "gatt: failed to decode request", mock.Anything)
}

func TestService_NotifyFailureIsCounted(t *testing.T) {
	n := newRecordNotifier()
	n.fail = true
	svc := newTestService(t, n)

	svc.WriteRequest(1, frameRequest(t, &rpc.Request{RequestID: 1}))

	assert.Equal(t, uint64(1), svc.Metrics().NotifyErrCount.Load())
	assert.Zero(t, svc.Metrics().NotifySendCount.Load())
}

func TestService_ResponseTooLarge(t *testing.T) {
	n := newRecordNotifier()
	big := dispatcherFunc(func(req rpc.Request) rpc.Response {
		return req.Reply(make([]byte, 100))
	})
	svc, err := NewService(n, codec.NewProto(), big,
		WithLogger(quietLogger()), WithMaxMessageSize(MinMaxMessageSize))
	require.NoError(t, err)

	svc.WriteRequest(1, frameRequest(t, &rpc.Request{RequestID: 1}))

	assert.Equal(t, uint64(1), svc.Metrics().FrameRecvCount.Load())
	assert.Equal(t, uint64(1), svc.Metrics().EncodeErrCount.Load())
	assert.Empty(t, n.frames(1))
}

func TestService_UnsupportedRequest(t *testing.T) {
	reg, err := rpc.NewBuilder().WithLogger(quietLogger()).Build()
	require.NoError(t, err)

	n := newRecordNotifier()
	svc, err := NewService(n, codec.NewProto(), reg, WithLogger(quietLogger()))
	require.NoError(t, err)

	svc.WriteRequest(5, frameRequest(t, &rpc.Request{RequestID: 3, Subsystem: 9, Method: 9}))

	resps := decodeResponses(t, n.frames(5)[0])
	require.Len(t, resps, 1)
	assert.Equal(t, rpc.ErrorUnsupportedRequest, resps[0].Error)
	assert.Equal(t, rpc.SubsystemID(9), resps[0].Subsystem)
}

func TestService_ReadAndSubscription(t *testing.T) {
	svc := newTestService(t, newRecordNotifier())

	assert.Nil(t, svc.ReadResponse(1, 0))
	assert.False(t, svc.NotificationsEnabled())

	svc.SubscriptionChanged(CCCNotify)
	assert.True(t, svc.NotificationsEnabled())

	svc.SubscriptionChanged(0)
	assert.False(t, svc.NotificationsEnabled())
}

func TestConnID_String(t *testing.T) {
	assert.Equal(t, "conn-12", ConnID(12).String())
}

type dispatcherFunc func(rpc.Request) rpc.Response

func (f dispatcherFunc) Dispatch(req rpc.Request) rpc.Response { return f(req) }

func TestAttributeIdentifiers(t *testing.T) {
	assert.Equal(t, "00000000-0196-6107-c967-c5cfb1c2482a", ServiceUUID.String())
	assert.Equal(t, "00000001-0196-6107-c967-c5cfb1c2482a", RPCCharacteristicUUID.String())
	// the identifiers differ only in the leading 32-bit word
	assert.Equal(t, ServiceUUID[4:], RPCCharacteristicUUID[4:])
	assert.NotEqual(t, ServiceUUID, RPCCharacteristicUUID)
}
