package rpc

import (
	"errors"
	"fmt"
	"slices"

	"github.com/arloliu/go-studiorpc/logger"
)

var (
	// ErrDuplicateHandler indicates a (subsystem, method) pair registered twice.
	ErrDuplicateHandler = errors.New("rpc: duplicate handler")

	// ErrNilHandler indicates a nil handler function.
	ErrNilHandler = errors.New("rpc: handler is nil")

	// ErrRegistrySealed indicates a registration after Build.
	ErrRegistrySealed = errors.New("rpc: registry already built")
)

// Handler computes the Response for one (subsystem, method) pair.
type Handler func(req Request) Response

// Method is a named handler within a subsystem.
type Method struct {
	ID      MethodID
	Name    string
	Handler Handler
}

// Subsystem groups the methods contributed by one component.
type Subsystem struct {
	ID      SubsystemID
	Name    string
	Methods []Method
}

// Entry is one registered handler.
type Entry struct {
	Subsystem     SubsystemID
	SubsystemName string
	Method        MethodID
	MethodName    string
	Handler       Handler
}

type handlerKey struct {
	subsystem SubsystemID
	method    MethodID
}

// Builder collects handler registrations before the Registry is built.
// A Builder is not goroutine-safe; registration happens once at startup.
type Builder struct {
	entries []Entry
	names   map[SubsystemID]string
	seen    map[handlerKey]struct{}
	sealed  bool
	logger  logger.Logger
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		names:  make(map[SubsystemID]string),
		seen:   make(map[handlerKey]struct{}),
		logger: logger.GetLogger(),
	}
}

// WithLogger sets the logger used by the built Registry.
func (b *Builder) WithLogger(l logger.Logger) *Builder {
	if l != nil {
		b.logger = l
	}

	return b
}

// Register adds a handler for (subsystem, method).
func (b *Builder) Register(subsystem SubsystemID, method MethodID, h Handler) error {
	return b.add(Entry{
		Subsystem:     subsystem,
		SubsystemName: b.names[subsystem],
		Method:        method,
		Handler:       h,
	})
}

// AddSubsystem registers every method of s. Registration stops at the first
// error; methods registered before it stay registered.
func (b *Builder) AddSubsystem(s Subsystem) error {
	if s.Name != "" {
		b.names[s.ID] = s.Name
	}

	for _, m := range s.Methods {
		err := b.add(Entry{
			Subsystem:     s.ID,
			SubsystemName: s.Name,
			Method:        m.ID,
			MethodName:    m.Name,
			Handler:       m.Handler,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *Builder) add(e Entry) error {
	if b.sealed {
		return ErrRegistrySealed
	}

	if e.Handler == nil {
		return fmt.Errorf("%w: subsystem %d method %d", ErrNilHandler, e.Subsystem, e.Method)
	}

	key := handlerKey{subsystem: e.Subsystem, method: e.Method}
	if _, ok := b.seen[key]; ok {
		return fmt.Errorf("%w: subsystem %d method %d", ErrDuplicateHandler, e.Subsystem, e.Method)
	}

	b.seen[key] = struct{}{}
	b.entries = append(b.entries, e)

	return nil
}

// Build seals the Builder and returns the immutable Registry.
func (b *Builder) Build() (*Registry, error) {
	if b.sealed {
		return nil, ErrRegistrySealed
	}
	b.sealed = true

	reg := &Registry{
		entries:  slices.Clone(b.entries),
		handlers: make(map[handlerKey]Handler, len(b.entries)),
		logger:   b.logger,
	}
	for _, e := range reg.entries {
		reg.handlers[handlerKey{subsystem: e.Subsystem, method: e.Method}] = e.Handler
	}

	return reg, nil
}

// Registry is the immutable handler table. It implements Dispatcher and is safe
// for concurrent use.
type Registry struct {
	entries  []Entry
	handlers map[handlerKey]Handler
	logger   logger.Logger
}

var _ Dispatcher = (*Registry)(nil)

// Len returns the number of registered handlers.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns the registered handlers in registration order.
func (r *Registry) Entries() []Entry {
	return slices.Clone(r.entries)
}

// Lookup returns the handler registered for (subsystem, method).
func (r *Registry) Lookup(subsystem SubsystemID, method MethodID) (Handler, bool) {
	h, ok := r.handlers[handlerKey{subsystem: subsystem, method: method}]
	return h, ok
}

// Dispatch invokes the handler for req and returns its Response. The identity
// fields of the Response always match req.
func (r *Registry) Dispatch(req Request) Response {
	h, ok := r.Lookup(req.Subsystem, req.Method)
	if !ok {
		r.logger.Warn("rpc: unsupported request",
			"requestID", req.RequestID,
			"subsystem", req.Subsystem,
			"method", req.Method)

		return req.ReplyError(ErrorUnsupportedRequest)
	}

	resp := r.invoke(h, req)
	resp.RequestID = req.RequestID
	resp.Subsystem = req.Subsystem
	resp.Method = req.Method
	if resp.IsError() {
		resp.Payload = nil
	}

	return resp
}

// invoke calls h with panic protection.
func (r *Registry) invoke(h Handler, req Request) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("rpc: panic in handler",
				"subsystem", req.Subsystem,
				"method", req.Method,
				"panic", p)
			resp = req.ReplyError(ErrorGeneric)
		}
	}()

	return h(req)
}
