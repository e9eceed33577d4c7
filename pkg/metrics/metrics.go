// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks gateway HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Gateway HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total gateway HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total gateway HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// UpstreamRequestsTotal tracks requests issued to the chat backend.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total requests issued to the chat backend",
		},
		[]string{"method", "status"},
	)

	// StreamDuration tracks chat stream duration by outcome.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_stream_duration_seconds",
			Help:    "Chat stream duration from request to terminal frame",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120, 300},
		},
		[]string{"outcome"},
	)

	// StreamChunksTotal tracks chunk frames received.
	StreamChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_stream_chunks_total",
			Help: "Total chunk frames received from chat streams",
		},
	)

	// StreamMalformedLinesTotal tracks skipped stream lines.
	StreamMalformedLinesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_stream_malformed_lines_total",
			Help: "Stream lines skipped because they could not be decoded",
		},
	)

	// StreamsActive tracks in-flight chat streams.
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_streams_active",
			Help: "Number of in-flight chat streams",
		},
	)

	// SendsTotal tracks message sends by mode and outcome.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sends_total",
			Help: "Total message sends",
		},
		[]string{"mode", "outcome"},
	)

	// UsageGateBlockedTotal tracks sends refused by the usage gate.
	UsageGateBlockedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_gate_blocked_total",
			Help: "Sends refused because a token limit was reached",
		},
	)

	// SSEConnectionsActive tracks active gateway SSE subscribers.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for a gateway HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStream records the outcome of a finished chat stream.
func RecordStream(outcome string, duration float64) {
	StreamDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordSend records the outcome of a message send.
func RecordSend(mode, outcome string) {
	SendsTotal.WithLabelValues(mode, outcome).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
