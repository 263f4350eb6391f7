package framing

import (
	"errors"

	"github.com/arloliu/go-studiorpc/logger"
)

// DefaultMaxSize is the default maximum decoded payload size in bytes.
const DefaultMaxSize = 256

type options struct {
	markers Markers
	maxSize int
	logger  logger.Logger
}

func defaultOptions() *options {
	return &options{
		markers: DefaultMarkers(),
		maxSize: DefaultMaxSize,
		logger:  logger.GetLogger(),
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Option configures a Decoder or an Encoder.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error { return f(o) }

// WithMaxSize sets the maximum payload size a Decoder buffers.
// Encoders ignore it.
func WithMaxSize(n int) Option {
	return optFunc(func(o *options) error {
		if n <= 0 {
			return ErrInvalidMaxSize
		}
		o.maxSize = n

		return nil
	})
}

// WithMarkers overrides the control bytes.
func WithMarkers(m Markers) Option {
	return optFunc(func(o *options) error {
		if err := m.Validate(); err != nil {
			return err
		}
		o.markers = m

		return nil
	})
}

// WithLogger sets the logger used for framing warnings.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) error {
		if l == nil {
			return errors.New("framing: logger must not be nil")
		}
		o.logger = l

		return nil
	})
}
