package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestMetricsRegistered verifies that every collector is present in the
// default registry once it has been observed.
func TestMetricsRegistered(t *testing.T) {
	expected := map[string]bool{
		"plugflow_requests_total":            false,
		"plugflow_request_duration_seconds":  false,
		"plugflow_sse_connections_active":    false,
		"plugflow_streams_active":            false,
		"plugflow_stream_events_total":       false,
		"plugflow_provider_requests_total":   false,
		"plugflow_provider_latency_seconds":  false,
		"plugflow_plugin_invocations_total":  false,
		"plugflow_plugin_duration_seconds":   false,
		"plugflow_plugin_retries_total":      false,
		"plugflow_circuit_state":             false,
		"plugflow_circuit_transitions_total": false,
		"plugflow_ratelimit_rejected_total":  false,
	}

	// Vectors only appear after their first observation.
	RequestsTotal.WithLabelValues("GET", "2xx").Inc()
	RequestDuration.WithLabelValues("GET").Observe(0.1)
	StreamEventsTotal.WithLabelValues("content").Inc()
	ProviderRequestsTotal.WithLabelValues("openai", "test", "ok").Inc()
	ProviderLatency.WithLabelValues("openai", "test").Observe(0.1)
	PluginInvocationsTotal.WithLabelValues("test_plugin", "ok").Inc()
	PluginDuration.WithLabelValues("test_plugin").Observe(0.01)
	PluginRetriesTotal.WithLabelValues("test_plugin").Inc()
	CircuitState.WithLabelValues("test_plugin").Set(CircuitClosed)
	CircuitTransitionsTotal.WithLabelValues("test_plugin", "open").Inc()
	RateLimitRejectedTotal.WithLabelValues("test_plugin").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestMiddlewareRecordsRequestCount(t *testing.T) {
	before := counterValue(t, RequestsTotal, "GET", "2xx")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/plugins", nil))

	if after := counterValue(t, RequestsTotal, "GET", "2xx"); after-before != 1 {
		t.Errorf("expected request count to increase by 1, got delta=%f", after-before)
	}
}

func TestMiddlewareRecordsDuration(t *testing.T) {
	before := histogramCount(t, RequestDuration, "POST")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/chat/stream", nil))

	if after := histogramCount(t, RequestDuration, "POST"); after-before != 1 {
		t.Errorf("expected histogram sample count to increase by 1, got delta=%d", after-before)
	}
}

// TestMiddlewareSSEGauge verifies the SSE gauge is raised only while the
// handler runs.
func TestMiddlewareSSEGauge(t *testing.T) {
	baseline := gaugeValue(t, SSEConnections)

	inHandler := make(chan float64, 1)
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler <- gaugeValue(t, SSEConnections)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/v1/chat/stream", nil)
	req.Header.Set("Accept", "text/event-stream")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if during := <-inHandler; during != baseline+1 {
		t.Errorf("expected SSE gauge=%f during request, got %f", baseline+1, during)
	}
	if after := gaugeValue(t, SSEConnections); after != baseline {
		t.Errorf("expected SSE gauge=%f after request, got %f", baseline, after)
	}
}

func TestMiddlewareCapturesStatusCode(t *testing.T) {
	before := counterValue(t, RequestsTotal, "POST", "4xx")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/chat/stream", nil))

	if after := counterValue(t, RequestsTotal, "POST", "4xx"); after-before != 1 {
		t.Errorf("expected 4xx count to increase by 1, got delta=%f", after-before)
	}
}

func TestStatusWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	sw.Flush()
	if !rec.Flushed {
		t.Error("expected underlying writer to be flushed")
	}
}

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("writing gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}
