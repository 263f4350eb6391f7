package uart

import (
	"errors"
	"fmt"
	"io"
	"time"

	tarm "github.com/tarm/serial"
)

// Default serial line settings.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

// Port is the byte in / byte out primitive of a serial line.
//
// Read may return (0, nil) when no data arrived within the port's own read
// timeout. A Port that also implements io.Closer is closed by Adapter.Stop.
type Port interface {
	io.Reader
	io.Writer
}

// DeviceConfig describes a serial device.
type DeviceConfig struct {
	// Name is the device path, e.g. "/dev/ttyACM0" or "COM3".
	Name string
	// Baud is the line rate. Zero selects DefaultBaudRate.
	Baud int
	// ReadTimeout bounds a single read. Zero selects DefaultReadTimeout.
	ReadTimeout time.Duration
}

// OpenDevice opens a serial device. The returned error wraps ErrDeviceNotReady.
func OpenDevice(dc DeviceConfig) (Port, error) {
	if dc.Name == "" {
		return nil, fmt.Errorf("%w: empty device name", ErrDeviceNotReady)
	}
	if dc.Baud == 0 {
		dc.Baud = DefaultBaudRate
	}
	if dc.ReadTimeout == 0 {
		dc.ReadTimeout = DefaultReadTimeout
	}

	p, err := tarm.OpenPort(&tarm.Config{
		Name:        dc.Name,
		Baud:        dc.Baud,
		ReadTimeout: dc.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceNotReady, dc.Name, err)
	}

	return &serialPort{port: p}, nil
}

// serialPort adapts a tarm port, which reports an expired read timeout as
// io.EOF, to the Port contract.
type serialPort struct {
	port *tarm.Port
}

func (p *serialPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}

	return n, err
}

func (p *serialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *serialPort) Close() error {
	return p.port.Close()
}
