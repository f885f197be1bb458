package metrics

import "testing"

func TestNilMetricsRecordsNothing(t *testing.T) {
	// Every Record method must be safe on a nil receiver so packages under
	// test can skip metrics wiring entirely.
	var m *Metrics

	m.RecordIngestPacket()
	m.RecordIngestParseError()
	m.RecordIngestUnknownSession()
	m.RecordFrameAccepted()
	m.RecordFlush(960, 3)
	m.RecordSend(972, true)
	m.RecordSend(0, false)
	m.SetActiveSessions(1)
	m.RecordSessionStarted()
	m.RecordSessionStopped(12.5)
	m.RecordHTTPRequest("POST", "/unicast", "200", 0.001)
	m.RecordHTTPError("POST", "/unicast", "client_error")
}

func TestNewMetricsRegisters(t *testing.T) {
	m := NewMetrics()

	if m.IngestPackets == nil || m.Flushes == nil || m.DatagramsSent == nil ||
		m.ActiveSessions == nil || m.HTTPRequests == nil {
		t.Fatal("NewMetrics left collectors unset")
	}

	m.RecordFlush(960, 3)
	m.RecordSend(972, true)
	m.SetActiveSessions(2)
}
