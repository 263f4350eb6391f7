// Package config loads the daemon configuration from a YAML or TOML file and
// converts it into component options.
//
// The file format is chosen by extension: ".yaml" and ".yml" are read with
// gopkg.in/yaml.v3, ".toml" with github.com/BurntSushi/toml. Keys missing from
// the file keep their defaults; unknown keys are rejected.
//
//	log:
//	  level: info
//	  format: console
//	codec: proto
//	uart:
//	  enabled: true
//	  device: /dev/ttyACM0
//	  queue_size: 10
//	gatt:
//	  enabled: true
//	  listen: 127.0.0.1:7070
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-studiorpc/codec"
	"github.com/arloliu/go-studiorpc/framing"
	"github.com/arloliu/go-studiorpc/gatt"
	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/subsystem/core"
	"github.com/arloliu/go-studiorpc/uart"
)

var (
	// ErrUnsupportedFormat indicates a file extension other than yaml, yml or toml.
	ErrUnsupportedFormat = errors.New("config: unsupported file format")

	// ErrInvalid indicates a configuration value out of range.
	ErrInvalid = errors.New("config: invalid configuration")
)

// Config is the daemon configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" toml:"log"`
	Framing FramingConfig `yaml:"framing" toml:"framing"`
	// Codec names the message codec: "proto" or "cbor".
	Codec  string       `yaml:"codec" toml:"codec"`
	UART   UARTConfig   `yaml:"uart" toml:"uart"`
	GATT   GATTConfig   `yaml:"gatt" toml:"gatt"`
	Device DeviceConfig `yaml:"device" toml:"device"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error, fatal.
	Level string `yaml:"level" toml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format" toml:"format"`
	// Source adds the caller location to every record.
	Source bool `yaml:"source" toml:"source"`
}

// FramingConfig configures the byte framing shared by both transports.
type FramingConfig struct {
	SOF            uint8 `yaml:"sof" toml:"sof"`
	ESC            uint8 `yaml:"esc" toml:"esc"`
	EOF            uint8 `yaml:"eof" toml:"eof"`
	MaxMessageSize int   `yaml:"max_message_size" toml:"max_message_size"`
}

// UARTConfig configures the serial transport.
type UARTConfig struct {
	Enabled        bool          `yaml:"enabled" toml:"enabled"`
	Device         string        `yaml:"device" toml:"device"`
	Baud           int           `yaml:"baud" toml:"baud"`
	ReadTimeout    time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	QueueSize      int           `yaml:"queue_size" toml:"queue_size"`
	PushTimeout    time.Duration `yaml:"push_timeout" toml:"push_timeout"`
	ReadBufferSize int           `yaml:"read_buffer_size" toml:"read_buffer_size"`
}

// GATTConfig configures the attribute transport emulation.
type GATTConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Listen is the TCP address of the stream peripheral.
	Listen string `yaml:"listen" toml:"listen"`
}

// DeviceConfig configures the core subsystem.
type DeviceConfig struct {
	Name string `yaml:"name" toml:"name"`
	// SerialNumber is hex encoded.
	SerialNumber string `yaml:"serial_number" toml:"serial_number"`
	// Unlocked starts the device unlocked.
	Unlocked bool `yaml:"unlocked" toml:"unlocked"`
}

// Default returns the configuration used for keys missing from a file.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: string(logger.JSONFormat),
		},
		Framing: FramingConfig{
			SOF:            framing.DefaultSOF,
			ESC:            framing.DefaultESC,
			EOF:            framing.DefaultEOF,
			MaxMessageSize: uart.DefaultMaxMessageSize,
		},
		Codec: codec.ProtoName,
		UART: UARTConfig{
			Baud:           uart.DefaultBaudRate,
			ReadTimeout:    uart.DefaultReadTimeout,
			QueueSize:      uart.DefaultQueueSize,
			PushTimeout:    uart.DefaultPushTimeout,
			ReadBufferSize: uart.DefaultReadBufferSize,
		},
		GATT: GATTConfig{
			Listen: "127.0.0.1:7070",
		},
		Device: DeviceConfig{
			Name: core.DefaultDeviceName,
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes data in the format named by ext (".yaml", ".yml" or ".toml")
// on top of Default and validates the result.
func Parse(data []byte, ext string) (Config, error) {
	cfg := Default()

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// an empty document leaves the defaults in place
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("decode yaml: %w", err)
		}

	case "toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("decode toml: unknown key %q", undecoded[0].String())
		}

	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every value against the ranges the components accept.
func (c Config) Validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}

	switch logger.Format(c.Log.Format) {
	case logger.JSONFormat, logger.ConsoleFormat:
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}

	if err := c.Markers().Validate(); err != nil {
		return fmt.Errorf("%w: framing: %w", ErrInvalid, err)
	}

	if _, err := codec.ByName(c.Codec); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if _, err := uart.NewConfig(c.UARTOptions(logger.GetLogger())...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if c.UART.Enabled && c.UART.Device == "" {
		return fmt.Errorf("%w: uart.device is required when uart is enabled", ErrInvalid)
	}

	if c.GATT.Enabled && c.GATT.Listen == "" {
		return fmt.Errorf("%w: gatt.listen is required when gatt is enabled", ErrInvalid)
	}

	if _, err := hex.DecodeString(c.Device.SerialNumber); err != nil {
		return fmt.Errorf("%w: device.serial_number: %w", ErrInvalid, err)
	}

	return nil
}

// Markers returns the framing control bytes.
func (c Config) Markers() framing.Markers {
	return framing.Markers{SOF: c.Framing.SOF, ESC: c.Framing.ESC, EOF: c.Framing.EOF}
}

// NewLogger builds the process logger.
func (c Config) NewLogger() (logger.Logger, error) {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	return logger.NewSlogWithOptions(level,
		logger.WithFormat(logger.Format(c.Log.Format)),
		logger.WithSource(c.Log.Source),
	), nil
}

// NewCodec returns the configured message codec.
func (c Config) NewCodec() (codec.Codec, error) {
	return codec.ByName(c.Codec)
}

// UARTOptions converts the serial section into adapter options.
func (c Config) UARTOptions(l logger.Logger) []uart.Option {
	return []uart.Option{
		uart.WithMaxMessageSize(c.Framing.MaxMessageSize),
		uart.WithQueueSize(c.UART.QueueSize),
		uart.WithPushTimeout(c.UART.PushTimeout),
		uart.WithReadBufferSize(c.UART.ReadBufferSize),
		uart.WithMarkers(c.Markers()),
		uart.WithLogger(l),
	}
}

// UARTDevice returns the serial device settings.
func (c Config) UARTDevice() uart.DeviceConfig {
	return uart.DeviceConfig{
		Name:        c.UART.Device,
		Baud:        c.UART.Baud,
		ReadTimeout: c.UART.ReadTimeout,
	}
}

// GATTOptions converts the attribute section into service options.
func (c Config) GATTOptions(l logger.Logger) []gatt.Option {
	return []gatt.Option{
		gatt.WithMaxMessageSize(c.Framing.MaxMessageSize),
		gatt.WithMarkers(c.Markers()),
		gatt.WithLogger(l),
	}
}

// CoreOptions converts the device section into core subsystem options.
func (c Config) CoreOptions(l logger.Logger) []core.Option {
	// Validate has checked the encoding
	sn, _ := hex.DecodeString(c.Device.SerialNumber)

	opts := []core.Option{
		core.WithDeviceName(c.Device.Name),
		core.WithSerialNumber(sn),
		core.WithLogger(l),
	}
	if c.Device.Unlocked {
		opts = append(opts, core.WithUnlocked())
	}

	return opts
}
