package uart

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-studiorpc/framing"
	"github.com/arloliu/go-studiorpc/internal/queue"
	"github.com/arloliu/go-studiorpc/internal/task"
	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
)

var (
	// ErrDeviceNotReady indicates the serial device is absent or failed to open.
	ErrDeviceNotReady = errors.New("uart: device not ready")

	// ErrAlreadyStarted indicates a second call to Start.
	ErrAlreadyStarted = errors.New("uart: adapter already started")

	// ErrNilCollaborator indicates a nil codec or dispatcher.
	ErrNilCollaborator = errors.New("uart: codec and dispatcher must not be nil")
)

// Adapter connects a serial Port to a Dispatcher.
type Adapter struct {
	cfg        *Config
	port       Port
	codec      rpc.MessageCodec
	dispatcher rpc.Dispatcher
	logger     logger.Logger
	metrics    Metrics

	// rxMu serializes producers; the decoder belongs to the byte-arrival side.
	rxMu    sync.Mutex
	decoder *framing.Decoder
	rxBuf   []byte

	pending *queue.Bounded[*rpc.Request]
	kick    chan struct{}

	// encoder and txBuf are used by the worker only.
	encoder *framing.Encoder
	txBuf   []byte

	taskMgr  *task.Manager
	started  atomic.Bool
	disabled bool
}

// NewAdapter creates a serial adapter. A nil cfg selects the defaults.
//
// A nil port yields a disabled adapter whose Start returns ErrDeviceNotReady.
func NewAdapter(ctx context.Context, port Port, codec rpc.MessageCodec, dispatcher rpc.Dispatcher, cfg *Config) (*Adapter, error) {
	if codec == nil || dispatcher == nil {
		return nil, ErrNilCollaborator
	}

	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	a := &Adapter{
		cfg:        cfg,
		port:       port,
		codec:      codec,
		dispatcher: dispatcher,
		logger:     cfg.logger,
		taskMgr:    task.NewManager(ctx, cfg.logger),
	}

	if port == nil {
		a.disabled = true
		a.logger.Error("uart: device not ready, adapter disabled")

		return a, nil
	}

	decoder, err := framing.NewDecoder(
		framing.WithMaxSize(cfg.maxMessageSize),
		framing.WithMarkers(cfg.markers),
		framing.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, err
	}

	encoder, err := framing.NewEncoder(framing.WithMarkers(cfg.markers))
	if err != nil {
		return nil, err
	}

	a.decoder = decoder
	a.encoder = encoder
	a.rxBuf = make([]byte, cfg.readBufferSize)
	a.txBuf = make([]byte, cfg.TxBufferSize())
	a.pending = queue.NewBounded[*rpc.Request](cfg.queueSize)
	a.kick = make(chan struct{}, 1)

	return a, nil
}

// Disabled reports whether the adapter was created without a device.
func (a *Adapter) Disabled() bool { return a.disabled }

// Metrics returns the adapter counters.
func (a *Adapter) Metrics() *Metrics { return &a.metrics }

// Pending returns the number of queued requests.
func (a *Adapter) Pending() int {
	if a.disabled {
		return 0
	}

	return a.pending.Len()
}

// Start launches the worker and the reader tasks.
func (a *Adapter) Start() error {
	if a.disabled {
		return ErrDeviceNotReady
	}

	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := a.taskMgr.StartWorker("uartWorker", a.kick, a.drain); err != nil {
		return err
	}

	return a.taskMgr.Start("uartReader", a.readTask)
}

// Stop terminates the tasks, closing the port when it implements io.Closer,
// and waits for them to exit.
func (a *Adapter) Stop() {
	a.taskMgr.Stop()

	if closer, ok := a.port.(io.Closer); ok && a.started.Load() {
		if err := closer.Close(); err != nil {
			a.logger.Debug("uart: close port", "error", err)
		}
	}

	a.taskMgr.Wait()
}

// ReceiveBytes is the byte-arrival entry point. It decodes the frames found in
// p, queues their requests and activates the worker. It never blocks for
// longer than the configured push timeout per completed frame.
func (a *Adapter) ReceiveBytes(p []byte) {
	if a.disabled || len(p) == 0 {
		return
	}

	a.rxMu.Lock()
	defer a.rxMu.Unlock()

	a.decoder.Write(p, a.handleFrame)
}

func (a *Adapter) handleFrame(payload []byte) {
	a.metrics.incFrameRecvCount()

	req, err := a.codec.DecodeRequest(payload)
	if err != nil {
		a.metrics.incDecodeErrCount()
		a.logger.Warn("uart: failed to decode request", "len", len(payload), "error", err)

		return
	}

	if !a.pending.Push(req, a.cfg.pushTimeout) {
		a.metrics.incQueueDropCount()
		a.logger.Warn("uart: queue full, dropping request",
			"requestID", req.RequestID,
			"subsystem", req.Subsystem,
			"method", req.Method)

		return
	}

	a.activate()
}

// activate wakes the worker. A pending activation absorbs this one.
func (a *Adapter) activate() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// readTask reads one chunk from the port. It returns false to stop reading.
func (a *Adapter) readTask() bool {
	n, err := a.port.Read(a.rxBuf)
	if n > 0 {
		a.ReceiveBytes(a.rxBuf[:n])
	}

	if err != nil {
		select {
		case <-a.taskMgr.Context().Done():
		default:
			a.logger.Error("uart: read failed, reader stopped", "error", err)
		}

		return false
	}

	return true
}

// drain processes every queued request.
func (a *Adapter) drain() {
	a.metrics.incWorkerRunCount()

	n := a.pending.Drain(a.process)
	a.logger.Debug("uart: queue drained", "count", n)
}

func (a *Adapter) process(req *rpc.Request) {
	a.metrics.incRequestCount()

	resp := a.dispatcher.Dispatch(*req)

	payload, err := a.codec.EncodeResponse(&resp)
	if err != nil {
		a.metrics.incEncodeErrCount()
		a.logger.Error("uart: failed to encode response", "requestID", req.RequestID, "error", err)

		return
	}

	n, err := a.encoder.Encode(a.txBuf, payload)
	if err != nil {
		a.metrics.incEncodeErrCount()
		a.logger.Error("uart: failed to frame response", "requestID", req.RequestID, "error", err)

		return
	}

	if _, err := a.port.Write(a.txBuf[:n]); err != nil {
		a.metrics.incWriteErrCount()
		a.logger.Error("uart: failed to write response", "requestID", req.RequestID, "error", err)

		return
	}

	a.metrics.incResponseSendCount()
}
