package uart

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-studiorpc/framing"
	"github.com/arloliu/go-studiorpc/logger"
)

// Default values.
const (
	DefaultMaxMessageSize = framing.DefaultMaxSize
	DefaultQueueSize      = 10
	DefaultPushTimeout    = 1 * time.Millisecond
	DefaultReadBufferSize = 64
)

// Range limits.
const (
	MinMaxMessageSize = 16
	MaxMaxMessageSize = 65535

	MaxPushTimeout    = 1 * time.Second
	MaxReadBufferSize = 64 * 1024
)

// Config holds the configuration of a serial Adapter.
type Config struct {
	// maxMessageSize bounds a decoded frame payload; the transmit buffer is
	// sized for the worst case encoding of a payload this large.
	maxMessageSize int

	queueSize   int
	pushTimeout time.Duration

	readBufferSize int

	markers framing.Markers

	logger logger.Logger
}

// NewConfig creates an adapter configuration. opts are applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		maxMessageSize: DefaultMaxMessageSize,
		queueSize:      DefaultQueueSize,
		pushTimeout:    DefaultPushTimeout,
		readBufferSize: DefaultReadBufferSize,
		markers:        framing.DefaultMarkers(),
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// MaxMessageSize returns the maximum decoded payload size.
func (cfg *Config) MaxMessageSize() int { return cfg.maxMessageSize }

// TxBufferSize returns the size of the response transmit buffer.
func (cfg *Config) TxBufferSize() int { return framing.MaxEncodedLen(cfg.maxMessageSize) }

// QueueSize returns the pending request queue capacity.
func (cfg *Config) QueueSize() int { return cfg.queueSize }

// PushTimeout returns how long the reader waits for queue room.
func (cfg *Config) PushTimeout() time.Duration { return cfg.pushTimeout }

// ReadBufferSize returns the size of a single port read.
func (cfg *Config) ReadBufferSize() int { return cfg.readBufferSize }

// Markers returns the framing control bytes.
func (cfg *Config) Markers() framing.Markers { return cfg.markers }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithMaxMessageSize sets the maximum decoded payload size.
// Range: [16, 65535].
func WithMaxMessageSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < MinMaxMessageSize || n > MaxMaxMessageSize {
			return fmt.Errorf("uart: max message size %d out of range [%d, %d]",
				n, MinMaxMessageSize, MaxMaxMessageSize)
		}
		cfg.maxMessageSize = n

		return nil
	})
}

// WithQueueSize sets the pending request queue capacity. Must be at least 1.
func WithQueueSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 {
			return fmt.Errorf("uart: queue size %d must be at least 1", n)
		}
		cfg.queueSize = n

		return nil
	})
}

// WithPushTimeout sets how long the reader waits for room in a full queue
// before dropping the request. Range: (0, 1s].
func WithPushTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 || d > MaxPushTimeout {
			return fmt.Errorf("uart: push timeout %v out of range (0, %v]", d, MaxPushTimeout)
		}
		cfg.pushTimeout = d

		return nil
	})
}

// WithReadBufferSize sets the size of a single port read. Range: [1, 65536].
func WithReadBufferSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxReadBufferSize {
			return fmt.Errorf("uart: read buffer size %d out of range [1, %d]", n, MaxReadBufferSize)
		}
		cfg.readBufferSize = n

		return nil
	})
}

// WithMarkers overrides the framing control bytes.
func WithMarkers(m framing.Markers) Option {
	return optFunc(func(cfg *Config) error {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("uart: %w", err)
		}
		cfg.markers = m

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("uart: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
