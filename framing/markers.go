package framing

import (
	"errors"
	"fmt"
)

// Default control bytes.
const (
	DefaultSOF byte = 0xAB
	DefaultESC byte = 0xAC
	DefaultEOF byte = 0xAD
)

var (
	// ErrBufferTooSmall indicates the destination cannot hold the encoded frame.
	ErrBufferTooSmall = errors.New("framing: destination buffer too small")

	// ErrInvalidMarkers indicates a control byte set with duplicated values.
	ErrInvalidMarkers = errors.New("framing: control bytes must be distinct")

	// ErrInvalidMaxSize indicates a non-positive maximum payload size.
	ErrInvalidMaxSize = errors.New("framing: max size must be positive")
)

// Markers is the set of reserved control bytes shared by both peers.
type Markers struct {
	SOF byte
	ESC byte
	EOF byte
}

// DefaultMarkers returns the standard control byte set.
func DefaultMarkers() Markers {
	return Markers{SOF: DefaultSOF, ESC: DefaultESC, EOF: DefaultEOF}
}

// Validate reports whether the three control bytes are distinct.
func (m Markers) Validate() error {
	if m.SOF == m.ESC || m.SOF == m.EOF || m.ESC == m.EOF {
		return fmt.Errorf("%w: sof=0x%02X esc=0x%02X eof=0x%02X", ErrInvalidMarkers, m.SOF, m.ESC, m.EOF)
	}

	return nil
}

// IsControl reports whether b is one of the reserved control bytes.
func (m Markers) IsControl(b byte) bool {
	return b == m.SOF || b == m.ESC || b == m.EOF
}
