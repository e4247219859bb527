// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the plugflow gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// PluginBuckets covers plugin dispatch latencies from 5ms to 30s.
var PluginBuckets = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Circuit state gauge values.
const (
	CircuitClosed   = 0
	CircuitOpen     = 1
	CircuitHalfOpen = 2
)

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugflow_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plugflow_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// SSEConnections tracks open SSE connections at the HTTP layer.
	SSEConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plugflow_sse_connections_active",
			Help: "Active SSE connections",
		},
	)

	// StreamsActive tracks orchestrations that have not yet emitted final.
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plugflow_streams_active",
			Help: "Active orchestration streams",
		},
	)

	// StreamEventsTotal counts emitted stream events by type.
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugflow_stream_events_total",
			Help: "Stream events emitted",
		},
		[]string{"type"},
	)

	// ProviderRequestsTotal counts streaming completions sent to the model
	// provider.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugflow_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records time to the end of a provider stream.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plugflow_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// PluginInvocationsTotal counts governed plugin invocations by outcome.
	// Outcome is "ok" or an error kind such as "RateLimited".
	PluginInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugflow_plugin_invocations_total",
			Help: "Plugin invocations",
		},
		[]string{"plugin", "outcome"},
	)

	// PluginDuration records plugin dispatch time including retries.
	PluginDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plugflow_plugin_duration_seconds",
			Help:    "Plugin dispatch duration",
			Buckets: PluginBuckets,
		},
		[]string{"plugin"},
	)

	// PluginRetriesTotal counts retry attempts after transient failures.
	PluginRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugflow_plugin_retries_total",
			Help: "Plugin retry attempts",
		},
		[]string{"plugin"},
	)

	// CircuitState reports the current breaker state per plugin.
	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plugflow_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"plugin"},
	)

	// CircuitTransitionsTotal counts breaker state transitions.
	CircuitTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugflow_circuit_transitions_total",
			Help: "Circuit breaker transitions",
		},
		[]string{"plugin", "to"},
	)

	// RateLimitRejectedTotal counts invocations rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugflow_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"plugin"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SSEConnections,
		StreamsActive,
		StreamEventsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		PluginInvocationsTotal,
		PluginDuration,
		PluginRetriesTotal,
		CircuitState,
		CircuitTransitionsTotal,
		RateLimitRejectedTotal,
	)
}
