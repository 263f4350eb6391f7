package gatt

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-studiorpc/framing"
	"github.com/arloliu/go-studiorpc/logger"
)

// Range limits of the maximum message size.
const (
	MinMaxMessageSize = 16
	MaxMaxMessageSize = 65535
)

type options struct {
	maxMessageSize int
	markers        framing.Markers
	logger         logger.Logger
}

// Option configures a Service.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error { return f(o) }

// WithMaxMessageSize sets the per-connection maximum decoded payload size.
// Range: [16, 65535]. The default is framing.DefaultMaxSize.
func WithMaxMessageSize(n int) Option {
	return optFunc(func(o *options) error {
		if n < MinMaxMessageSize || n > MaxMaxMessageSize {
			return fmt.Errorf("gatt: max message size %d out of range [%d, %d]",
				n, MinMaxMessageSize, MaxMaxMessageSize)
		}
		o.maxMessageSize = n

		return nil
	})
}

// WithMarkers overrides the framing control bytes.
func WithMarkers(m framing.Markers) Option {
	return optFunc(func(o *options) error {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("gatt: %w", err)
		}
		o.markers = m

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) error {
		if l == nil {
			return errors.New("gatt: logger must not be nil")
		}
		o.logger = l

		return nil
	})
}
