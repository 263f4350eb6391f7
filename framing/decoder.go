package framing

import (
	"fmt"
	"log/slog"

	"github.com/arloliu/go-studiorpc/logger"
)

// Stats holds the counters of a Decoder.
type Stats struct {
	// Frames is the number of completed frames.
	Frames uint64
	// ProtocolErrors is the number of unescaped SOF bytes seen mid-frame.
	ProtocolErrors uint64
	// DroppedBytes counts bytes discarded outside a frame, in the Error state,
	// or because the buffer was full.
	DroppedBytes uint64
	// Truncated is the number of completed frames that lost bytes to the size limit.
	Truncated uint64
}

// Decoder turns a byte stream into frame payloads.
type Decoder struct {
	markers Markers
	maxSize int
	logger  logger.Logger

	state     State
	buf       []byte
	truncated bool
	stats     Stats
}

// NewDecoder creates a Decoder in the Idle state.
func NewDecoder(opts ...Option) (*Decoder, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Decoder{
		markers: o.markers,
		maxSize: o.maxSize,
		logger:  o.logger,
		buf:     make([]byte, 0, o.maxSize),
	}, nil
}

// State returns the current decoder state.
func (d *Decoder) State() State { return d.state }

// Len returns the number of buffered payload bytes.
func (d *Decoder) Len() int { return len(d.buf) }

// MaxSize returns the buffer limit.
func (d *Decoder) MaxSize() int { return d.maxSize }

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() Stats { return d.stats }

// Reset empties the buffer. The state is left untouched.
//
// Callers must call Reset after consuming a payload returned by Feed, since the
// payload aliases the internal buffer.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.truncated = false
}

// Feed advances the state machine by one byte.
//
// When c completes a frame, Feed returns the payload and true; the payload is
// valid until the next call to Reset.
func (d *Decoder) Feed(c byte) ([]byte, bool) {
	m := d.markers

	switch d.state {
	case StateIdle:
		if c == m.SOF {
			d.Reset()
			d.state = StateAwaitingData

			return nil, false
		}
		d.stats.DroppedBytes++
		d.logger.Warn("framing: expected SOF", "byte", hexByte(c))

	case StateAwaitingData:
		switch c {
		case m.SOF:
			d.stats.ProtocolErrors++
			d.logger.Warn("framing: unescaped SOF mid-frame", "buffered", len(d.buf))
			d.Reset()
			d.state = StateError
		case m.ESC:
			d.state = StateEscaped
		case m.EOF:
			d.state = StateIdle
			d.stats.Frames++
			if d.truncated {
				d.stats.Truncated++
			}
			d.logger.Debug("framing: frame complete", "len", len(d.buf))

			return d.buf, true
		default:
			d.append(c)
		}

	case StateEscaped:
		d.append(c)
		d.state = StateAwaitingData

	case StateError:
		switch c {
		case m.EOF:
			d.Reset()
			d.state = StateIdle
		case m.SOF:
			d.Reset()
			d.state = StateAwaitingData
		default:
			d.stats.DroppedBytes++
			d.logger.Warn("framing: discarding byte in error state", "byte", hexByte(c))
		}

	default:
		// unreachable unless the state was corrupted; recover to Idle
		d.Reset()
		d.state = StateIdle
	}

	return nil, false
}

// Write feeds p byte by byte. fn is called with each completed payload and the
// buffer is reset once fn returns, so fn must not retain the slice.
func (d *Decoder) Write(p []byte, fn func(payload []byte)) {
	for _, c := range p {
		payload, ok := d.Feed(c)
		if !ok {
			continue
		}

		if fn != nil {
			fn(payload)
		}
		d.Reset()
	}
}

func (d *Decoder) append(c byte) {
	if len(d.buf) >= d.maxSize {
		d.stats.DroppedBytes++
		if !d.truncated {
			d.truncated = true
			d.logger.Warn("framing: frame exceeds max size, dropping bytes", "maxSize", d.maxSize)
		}

		return
	}

	d.buf = append(d.buf, c)
}

// hexByte formats a byte attribute only when the record is emitted.
type hexByte byte

func (b hexByte) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("0x%02X", byte(b)))
}
