// Package client is the host side of the RPC link. A Client frames requests,
// writes them to a device link and reads frames until the response carrying
// the same request id arrives.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-studiorpc/codec"
	"github.com/arloliu/go-studiorpc/framing"
	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
)

var (
	// ErrNilRequest indicates a nil request.
	ErrNilRequest = errors.New("client: nil request")

	// ErrLinkClosed indicates the link reached EOF before the response arrived.
	ErrLinkClosed = errors.New("client: link closed")
)

// RemoteError is returned by Invoke when the device answered with an error
// variant.
type RemoteError struct {
	Code rpc.ErrorCode
}

func (e *RemoteError) Error() string {
	return "client: device returned error " + e.Code.String()
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Client issues requests over a byte link, one call at a time.
type Client struct {
	rw     io.ReadWriter
	codec  codec.Codec
	logger logger.Logger

	mu      sync.Mutex
	encoder *framing.Encoder
	decoder *framing.Decoder
	readBuf []byte
	txBuf   []byte

	nextID atomic.Uint32
}

type options struct {
	codec          codec.Codec
	markers        framing.Markers
	maxMessageSize int
	logger         logger.Logger
}

// Option configures a Client.
type Option func(*options)

// WithCodec sets the message codec. The default is the protobuf wire codec.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithMarkers overrides the framing control bytes.
func WithMarkers(m framing.Markers) Option {
	return func(o *options) { o.markers = m }
}

// WithMaxMessageSize sets the maximum accepted response payload size.
func WithMaxMessageSize(n int) Option {
	return func(o *options) { o.maxMessageSize = n }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a Client on rw.
func New(rw io.ReadWriter, opts ...Option) (*Client, error) {
	o := &options{
		codec:          codec.NewProto(),
		markers:        framing.DefaultMarkers(),
		maxMessageSize: framing.DefaultMaxSize,
		logger:         logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if rw == nil || o.codec == nil || o.logger == nil {
		return nil, errors.New("client: link, codec and logger must not be nil")
	}

	decoder, err := framing.NewDecoder(
		framing.WithMaxSize(o.maxMessageSize),
		framing.WithMarkers(o.markers),
		framing.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	encoder, err := framing.NewEncoder(framing.WithMarkers(o.markers))
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	return &Client{
		rw:      rw,
		codec:   o.codec,
		logger:  o.logger,
		encoder: encoder,
		decoder: decoder,
		readBuf: make([]byte, 256),
	}, nil
}

// Invoke calls (subsystem, method) with payload under a fresh request id and
// returns the response payload. An error variant is returned as *RemoteError.
func (c *Client) Invoke(ctx context.Context, subsystem rpc.SubsystemID, method rpc.MethodID, payload []byte) ([]byte, error) {
	resp, err := c.Call(ctx, &rpc.Request{
		RequestID: c.nextID.Add(1),
		Subsystem: subsystem,
		Method:    method,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, &RemoteError{Code: resp.Error}
	}

	return resp.Payload, nil
}

// Call sends req and waits for the response with the same request id.
// Frames that fail to decode or answer another request are skipped.
func (c *Client) Call(ctx context.Context, req *rpc.Request) (*rpc.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := c.codec.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("client: encode request: %w", err)
	}

	if dl, ok := c.rw.(deadliner); ok {
		stop := c.bindDeadline(ctx, dl)
		defer stop()
	}

	c.txBuf = c.encoder.AppendFrame(c.txBuf[:0], payload)
	if _, err := c.rw.Write(c.txBuf); err != nil {
		return nil, c.linkError(ctx, "write", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := c.rw.Read(c.readBuf)

		var resp *rpc.Response
		c.decoder.Write(c.readBuf[:n], func(frame []byte) {
			if resp != nil {
				c.logger.Debug("client: discarding extra frame", "len", len(frame))
				return
			}

			r, err := c.codec.DecodeResponse(frame)
			if err != nil {
				c.logger.Warn("client: failed to decode response", "error", err)
				return
			}
			if r.RequestID != req.RequestID {
				c.logger.Debug("client: skipping response", "requestID", r.RequestID, "want", req.RequestID)
				return
			}
			resp = r
		})

		if resp != nil {
			return resp, nil
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) && ctx.Err() == nil {
				return nil, ErrLinkClosed
			}

			return nil, c.linkError(ctx, "read", readErr)
		}
	}
}

// bindDeadline applies the context deadline to dl and interrupts blocked I/O
// when ctx is cancelled. The returned function clears both.
func (c *Client) bindDeadline(ctx context.Context, dl deadliner) func() {
	deadline, _ := ctx.Deadline()
	_ = dl.SetReadDeadline(deadline)
	_ = dl.SetWriteDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = dl.SetReadDeadline(now)
		_ = dl.SetWriteDeadline(now)
	})

	return func() {
		stop()
		_ = dl.SetReadDeadline(time.Time{})
		_ = dl.SetWriteDeadline(time.Time{})
	}
}

// linkError prefers the context error over the I/O error it caused.
func (c *Client) linkError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	// the link deadline mirrors the context deadline and may fire first
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		<-ctx.Done()
		return ctx.Err()
	}

	return fmt.Errorf("client: %s: %w", op, err)
}
