package gatt

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-studiorpc/codec"
	"github.com/arloliu/go-studiorpc/framing"
	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
)

func quietLogger() logger.Logger {
	return logger.NewSlogWithOptions(logger.ErrorLevel, logger.WithOutput(io.Discard))
}

// recordNotifier records every notification per connection.
type recordNotifier struct {
	mu   sync.Mutex
	sent map[ConnID][][]byte
	fail bool
}

func newRecordNotifier() *recordNotifier {
	return &recordNotifier{sent: make(map[ConnID][][]byte)}
}

func (n *recordNotifier) Notify(conn ConnID, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fail {
		return errors.New("notify failed")
	}
	n.sent[conn] = append(n.sent[conn], append([]byte(nil), data...))

	return nil
}

func (n *recordNotifier) frames(conn ConnID) [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.sent[conn]
}

// echoDispatcher replies with the request payload.
type echoDispatcher struct{}

func (echoDispatcher) Dispatch(req rpc.Request) rpc.Response {
	return req.Reply(req.Payload)
}

func newTestService(t *testing.T, n Notifier, opts ...Option) *Service {
	t.Helper()

	svc, err := NewService(n, codec.NewProto(), echoDispatcher{}, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)

	return svc
}

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

	dec, err := framing.NewDecoder(framing.WithMaxSize(MaxMaxMessageSize), framing.WithLogger(quietLogger()))
	require.NoError(t, err)

	var out []*rpc.Response
	dec.Write(stream, func(payload []byte) {
		resp, err := codec.NewProto().DecodeResponse(payload)
		require.NoError(t, err)
		out = append(out, resp)
	})

	return out
}
