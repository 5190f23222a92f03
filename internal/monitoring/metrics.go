// Package monitoring exposes Prometheus metrics for the client core:
// stream traffic, reconnect behavior, and query throughput.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection state gauge values.
const (
	StateDisconnected = 0
	StateConnecting   = 1
	StateConnected    = 2
	StateError        = 3
)

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Stream metrics
	EnvelopesReceived *prometheus.CounterVec
	EnvelopesSent     *prometheus.CounterVec
	FramesDropped     prometheus.Counter
	ConnectionState   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	Reconnects        prometheus.Counter

	// Conversation metrics
	QueriesSent    prometheus.Counter
	TokensAppended prometheus.Counter

	// REST collaborator metrics
	RESTRequests *prometheus.CounterVec
	RESTDuration *prometheus.HistogramVec

	startTime time.Time
}

// New creates a metrics collector registered against reg. Pass
// prometheus.NewRegistry() in tests to keep registrations isolated.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		EnvelopesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groundplan_envelopes_received_total",
				Help: "Total envelopes received from the reasoning service",
			},
			[]string{"type"},
		),
		EnvelopesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groundplan_envelopes_sent_total",
				Help: "Total envelopes sent to the reasoning service",
			},
			[]string{"type"},
		),
		FramesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "groundplan_frames_dropped_total",
				Help: "Frames dropped due to decode failures or send gating",
			},
		),
		ConnectionState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "groundplan_connection_state",
				Help: "Connection state (0 disconnected, 1 connecting, 2 connected, 3 error)",
			},
		),
		ReconnectAttempts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "groundplan_reconnect_attempts_total",
				Help: "Reconnection attempts scheduled after unclean closes",
			},
		),
		Reconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "groundplan_reconnects_total",
				Help: "Reconnections that reached the connected state",
			},
		),
		QueriesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "groundplan_queries_sent_total",
				Help: "User queries submitted over the stream",
			},
		),
		TokensAppended: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "groundplan_tokens_appended_total",
				Help: "Streamed answer fragments appended to the accumulator",
			},
		),
		RESTRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groundplan_rest_requests_total",
				Help: "REST collaborator requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		RESTDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groundplan_rest_request_duration_seconds",
				Help:    "REST collaborator request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
	}
}

// RecordEnvelopeReceived counts one inbound envelope.
func (m *Metrics) RecordEnvelopeReceived(msgType string) {
	m.EnvelopesReceived.WithLabelValues(msgType).Inc()
}

// RecordEnvelopeSent counts one outbound envelope.
func (m *Metrics) RecordEnvelopeSent(msgType string) {
	m.EnvelopesSent.WithLabelValues(msgType).Inc()
}

// RecordRESTRequest counts a REST call and its latency.
func (m *Metrics) RecordRESTRequest(operation, status string, duration time.Duration) {
	m.RESTRequests.WithLabelValues(operation, status).Inc()
	m.RESTDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetConnectionState publishes the connection lifecycle state.
func (m *Metrics) SetConnectionState(state int) {
	m.ConnectionState.Set(float64(state))
}

// Uptime returns how long this collector has been alive.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
