package framing

import "fmt"

// MaxEncodedLen returns the worst case frame size for an n-byte payload.
func MaxEncodedLen(n int) int {
	return 2*n + 2
}

// Encoder writes payloads as frames.
type Encoder struct {
	markers Markers
}

// NewEncoder creates an Encoder. Only WithMarkers is meaningful.
func NewEncoder(opts ...Option) (*Encoder, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Encoder{markers: o.markers}, nil
}

// EncodedLen returns the exact frame size of payload.
func (e *Encoder) EncodedLen(payload []byte) int {
	n := len(payload) + 2
	for _, c := range payload {
		if e.markers.IsControl(c) {
			n++
		}
	}

	return n
}

// Encode writes the frame of payload into dst and returns the number of bytes
// written. It returns ErrBufferTooSmall, writing nothing, when dst is too short.
func (e *Encoder) Encode(dst, payload []byte) (int, error) {
	need := e.EncodedLen(payload)
	if len(dst) < need {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, need, len(dst))
	}

	m := e.markers
	n := 0
	dst[n] = m.SOF
	n++

	for _, c := range payload {
		if m.IsControl(c) {
			dst[n] = m.ESC
			n++
		}
		dst[n] = c
		n++
	}

	dst[n] = m.EOF
	n++

	return n, nil
}

// AppendFrame appends the frame of payload to dst and returns the extended slice.
func (e *Encoder) AppendFrame(dst, payload []byte) []byte {
	m := e.markers

	dst = append(dst, m.SOF)
	for _, c := range payload {
		if m.IsControl(c) {
			dst = append(dst, m.ESC)
		}
		dst = append(dst, c)
	}

	return append(dst, m.EOF)
}
