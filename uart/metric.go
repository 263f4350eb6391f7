package uart

import "sync/atomic"

// Metrics contains atomic counters of a serial Adapter.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// FrameRecvCount indicates the number of completed frames.
	FrameRecvCount atomic.Uint64
	// DecodeErrCount indicates the number of frames that failed message decoding.
	DecodeErrCount atomic.Uint64
	// QueueDropCount indicates the number of requests dropped on a full queue.
	QueueDropCount atomic.Uint64
	// RequestCount indicates the number of dispatched requests.
	RequestCount atomic.Uint64
	// ResponseSendCount indicates the number of responses written to the port.
	ResponseSendCount atomic.Uint64
	// EncodeErrCount indicates the number of responses dropped while encoding.
	EncodeErrCount atomic.Uint64
	// WriteErrCount indicates the number of failed port writes.
	WriteErrCount atomic.Uint64
	// WorkerRunCount indicates the number of worker activations.
	WorkerRunCount atomic.Uint64
}

func (m *Metrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *Metrics) incDecodeErrCount() {
	m.DecodeErrCount.Add(1)
}

func (m *Metrics) incQueueDropCount() {
	m.QueueDropCount.Add(1)
}

func (m *Metrics) incRequestCount() {
	m.RequestCount.Add(1)
}

func (m *Metrics) incResponseSendCount() {
	m.ResponseSendCount.Add(1)
}

func (m *Metrics) incEncodeErrCount() {
	m.EncodeErrCount.Add(1)
}

func (m *Metrics) incWriteErrCount() {
	m.WriteErrCount.Add(1)
}

func (m *Metrics) incWorkerRunCount() {
	m.WorkerRunCount.Add(1)
}
