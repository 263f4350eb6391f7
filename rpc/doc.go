// Package rpc defines the request/response model, the handler registry and the
// dispatcher shared by every transport adapter.
//
// Handlers are registered once at startup through a Builder. Build returns an
// immutable Registry that needs no synchronization and can be shared by any
// number of adapters:
//
//	b := rpc.NewBuilder()
//	_ = b.Register(1, 1, func(req rpc.Request) rpc.Response {
//	    return req.Reply([]byte{0x08, 0x01})
//	})
//	reg, _ := b.Build()
//	resp := reg.Dispatch(rpc.Request{Subsystem: 1, Method: 1})
//
// Dispatching an unknown (subsystem, method) pair yields a Response carrying
// ErrorUnsupportedRequest; it never fails otherwise. Handlers run synchronously
// on the adapter's goroutine and must complete promptly: they must never wait
// on a transport event.
//
// Delivery is best-effort and at-most-once. A request lost to a framing error,
// a decode error or a full queue gets no response, and the peer is not told.
package rpc
