package core

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
)

func newTestRegistry(t *testing.T, opts ...Option) (*rpc.Registry, *Core) {
	t.Helper()

	quiet := logger.NewSlogWithOptions(logger.ErrorLevel, logger.WithOutput(io.Discard))

	b := rpc.NewBuilder().WithLogger(quiet)
	c, err := Register(b, append([]Option{WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)

	reg, err := b.Build()
	require.NoError(t, err)

	return reg, c
}

func call(t *testing.T, reg *rpc.Registry, method rpc.MethodID) rpc.Response {
	t.Helper()

	resp := reg.Dispatch(rpc.Request{RequestID: 5, Subsystem: SubsystemID, Method: method})
	require.False(t, resp.IsError(), "method %d failed: %s", method, resp.Error)
	assert.Equal(t, uint32(5), resp.RequestID)

	return resp
}

func TestCore_LockedByDefault(t *testing.T) {
	reg, c := newTestRegistry(t)
	assert.True(t, c.Locked())

	locked, err := DecodeLockStatus(call(t, reg, MethodGetLockStatus).Payload)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestCore_LockUnlock(t *testing.T) {
	reg, c := newTestRegistry(t)

	locked, err := DecodeLockStatus(call(t, reg, MethodUnlock).Payload)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.False(t, c.Locked())

	locked, err = DecodeLockStatus(call(t, reg, MethodGetLockStatus).Payload)
	require.NoError(t, err)
	assert.False(t, locked)

	locked, err = DecodeLockStatus(call(t, reg, MethodLock).Payload)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.True(t, c.Locked())
}

func TestCore_WithUnlocked(t *testing.T) {
	_, c := newTestRegistry(t, WithUnlocked())
	assert.False(t, c.Locked())
}

func TestCore_GetDeviceInfo(t *testing.T) {
	reg, _ := newTestRegistry(t, WithDeviceName("kb-01"), WithSerialNumber([]byte{0xDE, 0xAD}))

	info, err := DecodeDeviceInfo(call(t, reg, MethodGetDeviceInfo).Payload)
	require.NoError(t, err)
	assert.Equal(t, "kb-01", info.Name)
	assert.Equal(t, []byte{0xDE, 0xAD}, info.SerialNumber)
}

func TestCore_DefaultDeviceInfo(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultDeviceName, c.Info().Name)
	assert.Empty(t, c.Info().SerialNumber)
}

func TestRegister_Twice(t *testing.T) {
	b := rpc.NewBuilder()
	_, err := Register(b)
	require.NoError(t, err)

	_, err = Register(b)
	require.ErrorIs(t, err, rpc.ErrDuplicateHandler)
}

func TestCore_UnknownMethodUnsupported(t *testing.T) {
	reg, _ := newTestRegistry(t)

	resp := reg.Dispatch(rpc.Request{Subsystem: SubsystemID, Method: 99})
	assert.Equal(t, rpc.ErrorUnsupportedRequest, resp.Error)
}

func TestDecodeLockStatus(t *testing.T) {
	locked, err := DecodeLockStatus(nil)
	require.NoError(t, err)
	assert.False(t, locked)

	// unknown fields are skipped
	data := protowire.AppendTag(nil, 9, protowire.Fixed32Type)
	data = protowire.AppendFixed32(data, 7)
	data = append(data, EncodeLockStatus(true)...)
	locked, err = DecodeLockStatus(data)
	require.NoError(t, err)
	assert.True(t, locked)

	wrongType := protowire.AppendTag(nil, fieldLocked, protowire.BytesType)
	wrongType = protowire.AppendBytes(wrongType, []byte{1})
	_, err = DecodeLockStatus(wrongType)
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodeLockStatus([]byte{0x08})
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodeDeviceInfo_Malformed(t *testing.T) {
	bad := protowire.AppendTag(nil, fieldName, protowire.VarintType)
	bad = protowire.AppendVarint(bad, 1)
	_, err := DecodeDeviceInfo(bad)
	require.ErrorIs(t, err, ErrMalformedPayload)

	info, err := DecodeDeviceInfo(EncodeDeviceInfo(DeviceInfo{}))
	require.NoError(t, err)
	assert.Empty(t, info.Name)
}
