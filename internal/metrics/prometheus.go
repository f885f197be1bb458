package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the unicast service.
// A nil *Metrics is valid and records nothing, which keeps the hot path
// free of wiring in tests.
type Metrics struct {
	// Ingest metrics
	IngestPackets     prometheus.Counter
	IngestParseErrors prometheus.Counter
	IngestUnknownID   prometheus.Counter

	// Buncher metrics
	FramesAccepted prometheus.Counter
	Flushes        prometheus.Counter
	FlushBytes     prometheus.Histogram
	FlushFrames    prometheus.Histogram

	// Transmit metrics
	DatagramsSent prometheus.Counter
	BytesSent     prometheus.Counter
	SendsAbsorbed prometheus.Counter

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	SessionDuration prometheus.Histogram

	// Control API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		IngestPackets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_ingest_packets_total",
			Help: "Total number of tap datagrams received",
		}),
		IngestParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_ingest_parse_errors_total",
			Help: "Total number of malformed tap datagrams",
		}),
		IngestUnknownID: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_ingest_unknown_session_total",
			Help: "Total number of tap datagrams dropped for unknown sessions",
		}),

		FramesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_frames_accepted_total",
			Help: "Total number of audio frames accepted into bunches",
		}),
		Flushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_flushes_total",
			Help: "Total number of bunch flushes",
		}),
		FlushBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "unicast_flush_bytes",
			Help:    "Size of flushed bunches in bytes",
			Buckets: prometheus.ExponentialBuckets(160, 2, 8), // one 20ms frame up to ~20KB
		}),
		FlushFrames: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "unicast_flush_frames",
			Help:    "Number of frames per flushed bunch",
			Buckets: prometheus.LinearBuckets(1, 1, 10), // 1 to MaxFramesPerPacket
		}),

		DatagramsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_datagrams_sent_total",
			Help: "Total number of datagrams handed to the kernel",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_bytes_sent_total",
			Help: "Total number of payload and header bytes sent",
		}),
		SendsAbsorbed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_sends_absorbed_total",
			Help: "Total number of send failures absorbed by the best-effort policy",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "unicast_active_sessions",
			Help: "Current number of active unicast sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionsStopped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unicast_sessions_stopped_total",
			Help: "Total number of sessions stopped",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "unicast_session_duration_seconds",
			Help:    "Duration of unicast sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "unicast_http_requests_total",
			Help: "Total number of control API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unicast_http_request_duration_seconds",
			Help:    "Duration of control API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "unicast_http_errors_total",
			Help: "Total number of control API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordIngestPacket increments the tap datagrams received counter
func (m *Metrics) RecordIngestPacket() {
	if m == nil {
		return
	}
	m.IngestPackets.Inc()
}

// RecordIngestParseError increments the malformed tap datagram counter
func (m *Metrics) RecordIngestParseError() {
	if m == nil {
		return
	}
	m.IngestParseErrors.Inc()
}

// RecordIngestUnknownSession increments the unknown-session drop counter
func (m *Metrics) RecordIngestUnknownSession() {
	if m == nil {
		return
	}
	m.IngestUnknownID.Inc()
}

// RecordFrameAccepted increments the accepted frame counter
func (m *Metrics) RecordFrameAccepted() {
	if m == nil {
		return
	}
	m.FramesAccepted.Inc()
}

// RecordFlush records one bunch flush with its size and frame count
func (m *Metrics) RecordFlush(bytes, frames int) {
	if m == nil {
		return
	}
	m.Flushes.Inc()
	m.FlushBytes.Observe(float64(bytes))
	m.FlushFrames.Observe(float64(frames))
}

// RecordSend records one datagram send attempt
func (m *Metrics) RecordSend(bytes int, sent bool) {
	if m == nil {
		return
	}
	if sent {
		m.DatagramsSent.Inc()
		m.BytesSent.Add(float64(bytes))
	} else {
		m.SendsAbsorbed.Inc()
	}
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordSessionStopped increments the sessions stopped counter and records
// the session duration
func (m *Metrics) RecordSessionStopped(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsStopped.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records a control API request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records a control API error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
