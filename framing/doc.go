// Package framing implements the byte-level framing used on every go-studiorpc
// transport.
//
// A frame on the wire is
//
//	SOF (escaped payload byte)* EOF
//
// Three control bytes are reserved: SOF (start of frame), EOF (end of frame) and
// ESC (escape). A payload byte equal to any of them is sent as ESC followed by the
// byte itself; the decoder strips the ESC and keeps the next byte literally,
// whatever its value. The default control bytes are SOF=0xAB, ESC=0xAC and
// EOF=0xAD; peers must agree on them.
//
// # Decoding
//
// A Decoder is a four-state machine (Idle, AwaitingData, Escaped, Error) fed one
// byte at a time. Every (state, byte) pair has a defined transition, so no input
// can wedge the decoder: an unescaped SOF inside a frame moves it to Error, and
// the next SOF resynchronizes it. The decoder buffer is bounded; bytes beyond
// the configured maximum are dropped with a warning and the frame still
// completes on EOF with a truncated payload, which the message codec is then
// expected to reject.
//
// A Decoder is not goroutine-safe. Each framing session (one serial line, one
// attribute connection) owns its own Decoder.
//
// # Encoding
//
// Encoder.Encode writes a frame into a caller-provided buffer. The worst case
// size of an encoded frame is MaxEncodedLen(len(payload)) = 2*len(payload)+2.
package framing
