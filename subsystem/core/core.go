// Package core implements the core RPC subsystem: device lock state and device
// identity.
//
// Method payloads use the protobuf wire format:
//
//	LockStatus { 1: locked (bool) }
//	DeviceInfo { 1: name (string), 2: serial_number (bytes) }
//
// GetLockStatus, Lock and Unlock take no request payload and reply with a
// LockStatus. GetDeviceInfo takes no request payload and replies with a
// DeviceInfo.
package core

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
)

// SubsystemID is the identifier of the core subsystem.
const SubsystemID rpc.SubsystemID = 1

// Method identifiers.
const (
	MethodGetLockStatus rpc.MethodID = 1
	MethodLock          rpc.MethodID = 2
	MethodUnlock        rpc.MethodID = 3
	MethodGetDeviceInfo rpc.MethodID = 4
)

// DefaultDeviceName is reported by GetDeviceInfo unless overridden.
const DefaultDeviceName = "studio-device"

// ErrMalformedPayload indicates a method payload that does not follow its schema.
var ErrMalformedPayload = errors.New("core: malformed payload")

// DeviceInfo identifies the device.
type DeviceInfo struct {
	Name         string
	SerialNumber []byte
}

// Core holds the state served by the core subsystem.
type Core struct {
	locked atomic.Bool
	info   DeviceInfo
	logger logger.Logger
}

// Option configures the core subsystem.
type Option func(*Core)

// WithDeviceName sets the name reported by GetDeviceInfo.
func WithDeviceName(name string) Option {
	return func(c *Core) { c.info.Name = name }
}

// WithSerialNumber sets the serial number reported by GetDeviceInfo.
func WithSerialNumber(sn []byte) Option {
	return func(c *Core) { c.info.SerialNumber = append([]byte(nil), sn...) }
}

// WithUnlocked starts the device unlocked. The device is locked by default.
func WithUnlocked() Option {
	return func(c *Core) { c.locked.Store(false) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Core) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates the core subsystem state.
func New(opts ...Option) *Core {
	c := &Core{
		info:   DeviceInfo{Name: DefaultDeviceName},
		logger: logger.GetLogger(),
	}
	c.locked.Store(true)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register creates the core subsystem and adds its methods to b.
func Register(b *rpc.Builder, opts ...Option) (*Core, error) {
	c := New(opts...)
	if err := b.AddSubsystem(c.Subsystem()); err != nil {
		return nil, fmt.Errorf("core: register: %w", err)
	}

	return c, nil
}

// Subsystem returns the method table of c.
func (c *Core) Subsystem() rpc.Subsystem {
	return rpc.Subsystem{
		ID:   SubsystemID,
		Name: "core",
		Methods: []rpc.Method{
			{ID: MethodGetLockStatus, Name: "get_lock_status", Handler: c.getLockStatus},
			{ID: MethodLock, Name: "lock", Handler: c.lock},
			{ID: MethodUnlock, Name: "unlock", Handler: c.unlock},
			{ID: MethodGetDeviceInfo, Name: "get_device_info", Handler: c.getDeviceInfo},
		},
	}
}

// Locked reports the current lock state.
func (c *Core) Locked() bool { return c.locked.Load() }

// Info returns the device identity.
func (c *Core) Info() DeviceInfo { return c.info }

func (c *Core) getLockStatus(req rpc.Request) rpc.Response {
	return req.Reply(EncodeLockStatus(c.locked.Load()))
}

func (c *Core) lock(req rpc.Request) rpc.Response {
	if !c.locked.Swap(true) {
		c.logger.Info("core: device locked")
	}

	return req.Reply(EncodeLockStatus(true))
}

func (c *Core) unlock(req rpc.Request) rpc.Response {
	if c.locked.Swap(false) {
		c.logger.Info("core: device unlocked")
	}

	return req.Reply(EncodeLockStatus(false))
}

func (c *Core) getDeviceInfo(req rpc.Request) rpc.Response {
	return req.Reply(EncodeDeviceInfo(c.info))
}
