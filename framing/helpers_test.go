package framing

import (
	"io"
	"testing"

	"github.com/arloliu/go-studiorpc/logger"
)

const (
	sof = DefaultSOF
	esc = DefaultESC
	eof = DefaultEOF
)

func quietLogger() logger.Logger {
	return logger.NewSlogWithOptions(logger.ErrorLevel, logger.WithOutput(io.Discard))
}

func newTestDecoder(t testing.TB, opts ...Option) *Decoder {
	t.Helper()

	d, err := NewDecoder(append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("newTestDecoder: %v", err)
	}

	return d
}

func newTestEncoder(t testing.TB, opts ...Option) *Encoder {
	t.Helper()

	e, err := NewEncoder(opts...)
	if err != nil {
		t.Fatalf("newTestEncoder: %v", err)
	}

	return e
}

// decodeAll feeds stream into d and returns copies of every completed payload.
func decodeAll(d *Decoder, stream []byte) [][]byte {
	payloads := [][]byte{}
	d.Write(stream, func(p []byte) {
		payloads = append(payloads, append([]byte{}, p...))
	})

	return payloads
}
