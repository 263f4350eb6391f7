package uart

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-studiorpc/codec"
	"github.com/arloliu/go-studiorpc/framing"
	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
)

// newTestConfig creates a Config with a silent logger.
func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	defaults := []Option{
		WithLogger(logger.NewSlogWithOptions(logger.ErrorLevel, logger.WithOutput(io.Discard))),
	}

	cfg, err := NewConfig(append(defaults, opts...)...)
	require.NoError(t, err)

	return cfg
}

// newTestAdapter creates an adapter on port and registers Stop as cleanup.
func newTestAdapter(t *testing.T, port Port, d rpc.Dispatcher, cfg *Config) *Adapter {
	t.Helper()

	a, err := NewAdapter(context.Background(), port, codec.NewProto(), d, cfg)
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	return a
}

// newPipeConn creates a net.Pipe pair and registers cleanup.
func newPipeConn(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	return local, remote
}

// recordPort is a Port that records every write. Read blocks until Close.
type recordPort struct {
	mu        sync.Mutex
	out       bytes.Buffer
	writes    int
	writeErr  error
	closed    chan struct{}
	closeOnce sync.Once
}

func newRecordPort() *recordPort {
	return &recordPort{closed: make(chan struct{})}
}

func (p *recordPort) Read([]byte) (int, error) {
	<-p.closed
	return 0, io.EOF
}

func (p *recordPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *recordPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes++

	return p.out.Write(b)
}

func (p *recordPort) bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return bytes.Clone(p.out.Bytes())
}

// frameRequest encodes req and wraps it in a frame.
func frameRequest(t *testing.T, req *rpc.Request) []byte {
	t.Helper()

	payload, err := codec.NewProto().EncodeRequest(req)
	require.NoError(t, err)

	enc, err := framing.NewEncoder()
	require.NoError(t, err)

	return enc.AppendFrame(nil, payload)
}

// decodeResponses decodes every response frame found in stream.
func decodeResponses(t *testing.T, stream []byte) []*rpc.Response {
	t.Helper()

	dec, err := framing.NewDecoder(framing.WithMaxSize(MaxMaxMessageSize))
	require.NoError(t, err)

	var out []*rpc.Response
	dec.Write(stream, func(payload []byte) {
		resp, err := codec.NewProto().DecodeResponse(payload)
		require.NoError(t, err)
		out = append(out, resp)
	})

	return out
}

// readResponses reads from r until n response frames arrived.
func readResponses(t *testing.T, r net.Conn, n int) []*rpc.Response {
	t.Helper()

	require.NoError(t, r.SetReadDeadline(time.Now().Add(2*time.Second)))

	var stream []byte
	buf := make([]byte, 256)
	for {
		if resps := decodeResponses(t, stream); len(resps) >= n {
			return resps
		}

		m, err := r.Read(buf)
		require.NoError(t, err)
		stream = append(stream, buf[:m]...)
	}
}

// echoDispatcher replies with the request payload.
type echoDispatcher struct{}

func (echoDispatcher) Dispatch(req rpc.Request) rpc.Response {
	return req.Reply(req.Payload)
}

// gateDispatcher blocks every Dispatch until release is closed, and signals
// entered on each call.
type gateDispatcher struct {
	entered chan rpc.Request
	release chan struct{}
}

func newGateDispatcher() *gateDispatcher {
	return &gateDispatcher{
		entered: make(chan rpc.Request, 64),
		release: make(chan struct{}),
	}
}

func (g *gateDispatcher) Dispatch(req rpc.Request) rpc.Response {
	g.entered <- req
	<-g.release

	return req.Reply(nil)
}

// mustWrite writes data to w, failing the test on error.
func mustWrite(t *testing.T, w io.Writer, data []byte) {
	t.Helper()

	_, err := w.Write(data)
	require.NoError(t, err)
}
