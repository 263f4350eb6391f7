package gatt

import "sync/atomic"

// Metrics contains atomic counters of a Service.
type Metrics struct {
	// FrameRecvCount indicates the number of completed frames.
	FrameRecvCount atomic.Uint64
	// DecodeErrCount indicates the number of frames that failed message decoding.
	DecodeErrCount atomic.Uint64
	// NotifySendCount indicates the number of responses notified.
	NotifySendCount atomic.Uint64
	// NotifyErrCount indicates the number of failed notifications.
	NotifyErrCount atomic.Uint64
	// EncodeErrCount indicates the number of responses dropped while encoding.
	EncodeErrCount atomic.Uint64
	// ActiveConnGauge indicates the number of live sessions.
	ActiveConnGauge atomic.Int64
}

func (m *Metrics) incFrameRecvCount()  { m.FrameRecvCount.Add(1) }
func (m *Metrics) incDecodeErrCount()  { m.DecodeErrCount.Add(1) }
func (m *Metrics) incNotifySendCount() { m.NotifySendCount.Add(1) }
func (m *Metrics) incNotifyErrCount()  { m.NotifyErrCount.Add(1) }
func (m *Metrics) incEncodeErrCount()  { m.EncodeErrCount.Add(1) }
func (m *Metrics) incActiveConnGauge() { m.ActiveConnGauge.Add(1) }
func (m *Metrics) decActiveConnGauge() { m.ActiveConnGauge.Add(-1) }
