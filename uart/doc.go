// Package uart implements the serial transport adapter.
//
// The adapter splits the work between two tasks. The reader task feeds every
// received chunk into a framing.Decoder; each completed frame is decoded into
// an rpc.Request and pushed onto a bounded queue with a short bounded wait.
// A single worker task drains the queue, dispatches each request and writes
// the framed response back to the port.
//
// Worker activations coalesce: an activation raised while another is pending
// is absorbed, and every activation drains the whole queue, so no queued
// request is left behind.
//
// Delivery is best effort and at most once. A frame that fails to decode, a
// request that finds the queue full, a response that does not fit the
// transmit buffer and a failed port write are all dropped. Each drop is logged
// and counted in Metrics; nothing is retried.
//
// Escaping is done once, by the framing Encoder. The port is a plain byte sink.
//
// A nil port, typically the result of a failed OpenDevice, yields a disabled
// adapter: Start returns ErrDeviceNotReady and no task is ever started.
package uart
