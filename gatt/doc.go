// Package gatt implements the attribute transport adapter: one RPC
// characteristic that accepts framed requests through writes and returns framed
// responses through notifications.
//
// Every connection owns a session holding its own framing decoder and
// transmit buffer, so partial frames from different peers never mix. Sessions
// are created on Connected, or lazily on a connection's first write, and are
// dropped on Disconnected.
//
// Requests are dispatched inline on the write callback; handlers are expected
// to be prompt. The callbacks of one connection must not run concurrently;
// different connections may be served in parallel.
//
// Delivery is best effort and at most once: decode failures and notification
// failures are logged, counted and dropped.
//
// StreamPeripheral emulates the attribute endpoint over TCP for host tooling
// and tests: each accepted TCP connection is one peer.
package gatt
