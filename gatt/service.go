package gatt

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-studiorpc/framing"
	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
)

// Attribute identifiers of the RPC service.
var (
	ServiceUUID           = uuid.MustParse("00000000-0196-6107-c967-c5cfb1c2482a")
	RPCCharacteristicUUID = uuid.MustParse("00000001-0196-6107-c967-c5cfb1c2482a")
)

// CCCNotify is the client characteristic configuration value that enables
// notifications.
const CCCNotify uint16 = 0x0001

var (
	// ErrNilCollaborator indicates a nil notifier, codec or dispatcher.
	ErrNilCollaborator = errors.New("gatt: notifier, codec and dispatcher must not be nil")

	// ErrUnknownConn indicates a notification to a connection that is gone.
	ErrUnknownConn = errors.New("gatt: unknown connection")
)

// ConnID identifies a peer connection.
type ConnID uint64

func (id ConnID) String() string {
	return "conn-" + strconv.FormatUint(uint64(id), 10)
}

// Notifier sends one notification of the RPC characteristic to a peer.
// Notify must not retain data after it returns.
type Notifier interface {
	Notify(conn ConnID, data []byte) error
}

// AttributeHandler receives the events of the RPC characteristic.
// Service implements it.
type AttributeHandler interface {
	Connected(conn ConnID)
	Disconnected(conn ConnID)
	WriteRequest(conn ConnID, data []byte) int
}

// session is the framing state of one connection.
type session struct {
	decoder *framing.Decoder
	txBuf   []byte
}

// Service is the RPC characteristic of the attribute transport.
type Service struct {
	notifier   Notifier
	codec      rpc.MessageCodec
	dispatcher rpc.Dispatcher
	logger     logger.Logger

	decoderOpts []framing.Option
	encoder     *framing.Encoder
	txBufSize   int

	sessions      *xsync.MapOf[ConnID, *session]
	notifyEnabled atomic.Bool
	metrics       Metrics
}

var _ AttributeHandler = (*Service)(nil)

// NewService creates the RPC service. Responses are sent through notifier.
func NewService(notifier Notifier, codec rpc.MessageCodec, dispatcher rpc.Dispatcher, opts ...Option) (*Service, error) {
	if notifier == nil || codec == nil || dispatcher == nil {
		return nil, ErrNilCollaborator
	}

	o := &options{
		maxMessageSize: framing.DefaultMaxSize,
		markers:        framing.DefaultMarkers(),
		logger:         logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}

	encoder, err := framing.NewEncoder(framing.WithMarkers(o.markers))
	if err != nil {
		return nil, err
	}

	decoderOpts := []framing.Option{
		framing.WithMaxSize(o.maxMessageSize),
		framing.WithMarkers(o.markers),
		framing.WithLogger(o.logger),
	}
	if _, err := framing.NewDecoder(decoderOpts...); err != nil {
		return nil, err
	}

	return &Service{
		notifier:    notifier,
		codec:       codec,
		dispatcher:  dispatcher,
		logger:      o.logger,
		decoderOpts: decoderOpts,
		encoder:     encoder,
		txBufSize:   framing.MaxEncodedLen(o.maxMessageSize),
		sessions:    xsync.NewMapOf[ConnID, *session](),
	}, nil
}

// Metrics returns the service counters.
func (s *Service) Metrics() *Metrics { return &s.metrics }

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int { return s.sessions.Size() }

// Connected starts a fresh session for conn, replacing any stale one.
func (s *Service) Connected(conn ConnID) {
	if _, loaded := s.sessions.LoadAndStore(conn, s.newSession()); !loaded {
		s.metrics.incActiveConnGauge()
	}

	s.logger.Info("gatt: connected", "conn", conn)
}

// Disconnected drops the session of conn.
func (s *Service) Disconnected(conn ConnID) {
	if _, loaded := s.sessions.LoadAndDelete(conn); loaded {
		s.metrics.decActiveConnGauge()
	}

	s.logger.Info("gatt: disconnected", "conn", conn)
}

// WriteRequest handles a write to the RPC characteristic. Every completed frame
// is dispatched and its response notified before WriteRequest returns. The
// whole write is always accepted, so the return value is len(data).
func (s *Service) WriteRequest(conn ConnID, data []byte) int {
	sess := s.session(conn)

	sess.decoder.Write(data, func(payload []byte) {
		s.handleFrame(conn, sess, payload)
	})

	return len(data)
}

// ReadResponse handles a read of the RPC characteristic. Responses are only
// delivered by notification, so it returns no data.
func (s *Service) ReadResponse(conn ConnID, offset int) []byte {
	s.logger.Debug("gatt: read ignored", "conn", conn, "offset", offset)
	return nil
}

// SubscriptionChanged records a write of the characteristic's client
// configuration descriptor.
func (s *Service) SubscriptionChanged(value uint16) {
	enabled := value == CCCNotify
	s.notifyEnabled.Store(enabled)

	if enabled {
		s.logger.Info("gatt: notifications enabled")
	} else {
		s.logger.Info("gatt: notifications disabled", "ccc", value)
	}
}

// NotificationsEnabled reports the last subscription state.
func (s *Service) NotificationsEnabled() bool { return s.notifyEnabled.Load() }

func (s *Service) session(conn ConnID) *session {
	sess, loaded := s.sessions.LoadOrCompute(conn, s.newSession)
	if !loaded {
		s.metrics.incActiveConnGauge()
		s.logger.Debug("gatt: session created on first write", "conn", conn)
	}

	return sess
}

func (s *Service) newSession() *session {
	// the options were validated by NewService
	decoder, _ := framing.NewDecoder(s.decoderOpts...)

	return &session{
		decoder: decoder,
		txBuf:   make([]byte, s.txBufSize),
	}
}

func (s *Service) handleFrame(conn ConnID, sess *session, payload []byte) {
	s.metrics.incFrameRecvCount()

	req, err := s.codec.DecodeRequest(payload)
	if err != nil {
		s.metrics.incDecodeErrCount()
		s.logger.Warn("gatt: failed to decode request", "conn", conn, "len", len(payload), "error", err)

		return
	}

	resp := s.dispatcher.Dispatch(*req)

	out, err := s.codec.EncodeResponse(&resp)
	if err != nil {
		s.metrics.incEncodeErrCount()
		s.logger.Error("gatt: failed to encode response", "conn", conn, "requestID", req.RequestID, "error", err)

		return
	}

	n, err := s.encoder.Encode(sess.txBuf, out)
	if err != nil {
		s.metrics.incEncodeErrCount()
		s.logger.Error("gatt: failed to frame response", "conn", conn, "requestID", req.RequestID, "error", err)

		return
	}

	if err := s.notifier.Notify(conn, sess.txBuf[:n]); err != nil {
		s.metrics.incNotifyErrCount()
		s.logger.Warn("gatt: failed to notify response", "conn", conn, "requestID", req.RequestID, "error", err)

		return
	}

	s.metrics.incNotifySendCount()
}
