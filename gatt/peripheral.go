package gatt

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-studiorpc/internal/task"
	"github.com/arloliu/go-studiorpc/logger"
)

// Stream peripheral defaults.
const (
	DefaultAcceptTimeout  = 200 * time.Millisecond
	DefaultReadBufferSize = 244 // typical ATT payload of a negotiated 247-byte MTU
	DefaultNotifyTimeout  = 3 * time.Second
)

var (
	// ErrPeripheralClosed indicates Serve on a closed StreamPeripheral.
	ErrPeripheralClosed = errors.New("gatt: peripheral closed")

	// ErrAlreadyServing indicates a second call to Serve.
	ErrAlreadyServing = errors.New("gatt: peripheral already serving")
)

// StreamPeripheral emulates the attribute endpoint over a stream listener.
// Each accepted connection is one peer; every chunk read from it is a write of
// the RPC characteristic and every notification is written back to it.
type StreamPeripheral struct {
	logger  logger.Logger
	taskMgr *task.Manager

	listenerMu sync.Mutex
	listener   net.Listener
	handler    AttributeHandler

	conns  *xsync.MapOf[ConnID, net.Conn]
	nextID atomic.Uint64

	acceptTimeout  time.Duration
	notifyTimeout  time.Duration
	readBufferSize int
}

var _ Notifier = (*StreamPeripheral)(nil)

// NewStreamPeripheral creates a peripheral whose tasks stop with ctx.
func NewStreamPeripheral(ctx context.Context, l logger.Logger) *StreamPeripheral {
	if l == nil {
		l = logger.GetLogger()
	}

	return &StreamPeripheral{
		logger:         l,
		taskMgr:        task.NewManager(ctx, l),
		conns:          xsync.NewMapOf[ConnID, net.Conn](),
		acceptTimeout:  DefaultAcceptTimeout,
		notifyTimeout:  DefaultNotifyTimeout,
		readBufferSize: DefaultReadBufferSize,
	}
}

// Listen opens a TCP listener on address and serves it with h.
func (p *StreamPeripheral) Listen(address string, h AttributeHandler) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(p.taskMgr.Context(), "tcp", address)
	if err != nil {
		p.logger.Error("gatt: failed to listen", "address", address, "error", err)
		return err
	}

	if err := p.Serve(listener, h); err != nil {
		_ = listener.Close()
		return err
	}

	return nil
}

// Serve accepts peers from listener and forwards their events to h.
// The peripheral takes ownership of listener.
func (p *StreamPeripheral) Serve(listener net.Listener, h AttributeHandler) error {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	select {
	case <-p.taskMgr.Context().Done():
		return ErrPeripheralClosed
	default:
	}

	if p.listener != nil {
		return ErrAlreadyServing
	}

	p.listener = listener
	p.handler = h

	p.logger.Info("gatt: stream peripheral listening", "address", listener.Addr())

	return p.taskMgr.Start("gattAccept", p.acceptTask)
}

// Addr returns the listener address, or nil before Serve.
func (p *StreamPeripheral) Addr() net.Addr {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	if p.listener == nil {
		return nil
	}

	return p.listener.Addr()
}

// ConnCount returns the number of connected peers.
func (p *StreamPeripheral) ConnCount() int { return p.conns.Size() }

// Notify writes data to the peer conn.
func (p *StreamPeripheral) Notify(conn ConnID, data []byte) error {
	c, ok := p.conns.Load(conn)
	if !ok {
		return ErrUnknownConn
	}

	if err := c.SetWriteDeadline(time.Now().Add(p.notifyTimeout)); err != nil {
		return err
	}

	_, err := c.Write(data)

	return err
}

// Close stops accepting, disconnects every peer and waits for all tasks.
func (p *StreamPeripheral) Close() error {
	p.taskMgr.Stop()

	var err error

	p.listenerMu.Lock()
	if p.listener != nil {
		err = p.listener.Close()
	}
	p.listenerMu.Unlock()

	p.conns.Range(func(_ ConnID, c net.Conn) bool {
		_ = c.Close()
		return true
	})

	p.taskMgr.Wait()

	if isClosedErr(err) {
		return nil
	}

	return err
}

// acceptTask accepts one connection. It returns false to stop accepting.
func (p *StreamPeripheral) acceptTask() bool {
	p.listenerMu.Lock()
	listener := p.listener
	p.listenerMu.Unlock()

	if tcpListener, ok := listener.(*net.TCPListener); ok {
		if err := tcpListener.SetDeadline(time.Now().Add(p.acceptTimeout)); err != nil {
			p.logger.Error("gatt: failed to set accept deadline", "error", err)
			return false
		}
	}

	conn, err := listener.Accept()
	if err != nil {
		return p.handleAcceptError(err)
	}

	id := ConnID(p.nextID.Add(1))
	p.conns.Store(id, conn)
	p.handler.Connected(id)

	p.logger.Debug("gatt: peer accepted", "conn", id, "remoteAddr", conn.RemoteAddr())

	if err := p.taskMgr.Go("gattConn-"+id.String(), func(ctx context.Context) {
		p.serveConn(ctx, id, conn)
	}); err != nil {
		p.dropConn(id, conn)
		return false
	}

	return true
}

// handleAcceptError returns true to retry, false to stop the accept loop.
func (p *StreamPeripheral) handleAcceptError(err error) bool {
	select {
	case <-p.taskMgr.Context().Done():
		return false
	default:
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if isClosedErr(err) {
		return false
	}

	p.logger.Error("gatt: accept failed", "error", err)

	return true
}

// serveConn turns every chunk read from conn into a characteristic write.
func (p *StreamPeripheral) serveConn(ctx context.Context, id ConnID, conn net.Conn) {
	defer p.dropConn(id, conn)

	buf := make([]byte, p.readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			p.handler.WriteRequest(id, buf[:n])
		}

		if err != nil {
			if ctx.Err() == nil && !isClosedErr(err) {
				p.logger.Debug("gatt: peer read ended", "conn", id, "error", err)
			}

			return
		}
	}
}

func (p *StreamPeripheral) dropConn(id ConnID, conn net.Conn) {
	p.conns.Delete(id)
	_ = conn.Close()
	p.handler.Disconnected(id)
}

func isClosedErr(err error) bool {
	return err != nil && errors.Is(err, net.ErrClosed)
}
