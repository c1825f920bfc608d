package bridge

import (
	"sync/atomic"
)

// ServerMetrics contains atomic metrics for a bridge server.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ServerMetrics struct {
	// SessionCount indicates the number of client sessions accepted.
	SessionCount atomic.Uint64
	// DisconnectCount indicates the number of sessions ended by an orderly client disconnect.
	DisconnectCount atomic.Uint64
	// SessionErrCount indicates the number of sessions ended by a transport error.
	SessionErrCount atomic.Uint64
	// SessionGauge indicates whether a session is active (0 or 1).
	SessionGauge atomic.Int64

	// ClientToSerialBytes indicates the number of bytes relayed from the client to the device.
	ClientToSerialBytes atomic.Uint64
	// SerialToClientBytes indicates the number of bytes relayed from the device to the client.
	SerialToClientBytes atomic.Uint64
	// FilteredByteCount indicates the number of client bytes discarded by the TELNET filter.
	FilteredByteCount atomic.Uint64

	// BreakCount indicates the number of BRK commands received from clients.
	BreakCount atomic.Uint64
	// ResetErrCount indicates the number of reset pulses that failed.
	ResetErrCount atomic.Uint64

	// SendRetryCount indicates the total number of outbound send retries
	// caused by a blocked client channel.
	SendRetryCount atomic.Uint64
}

func (m *ServerMetrics) incSessionCount() {
	m.SessionCount.Add(1)
}

func (m *ServerMetrics) incDisconnectCount() {
	m.DisconnectCount.Add(1)
}

func (m *ServerMetrics) incSessionErrCount() {
	m.SessionErrCount.Add(1)
}

func (m *ServerMetrics) setSessionGauge(active bool) {
	if active {
		m.SessionGauge.Store(1)
	} else {
		m.SessionGauge.Store(0)
	}
}

func (m *ServerMetrics) incClientToSerialBytes() {
	m.ClientToSerialBytes.Add(1)
}

func (m *ServerMetrics) incSerialToClientBytes() {
	m.SerialToClientBytes.Add(1)
}

func (m *ServerMetrics) incFilteredByteCount() {
	m.FilteredByteCount.Add(1)
}

func (m *ServerMetrics) incBreakCount() {
	m.BreakCount.Add(1)
}

func (m *ServerMetrics) incResetErrCount() {
	m.ResetErrCount.Add(1)
}

func (m *ServerMetrics) incSendRetryCount() {
	m.SendRetryCount.Add(1)
}
