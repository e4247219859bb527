package http

import (
	"context"
	"io"
	"net"
	gohttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/plugflow/pkg/api"
	"github.com/rhuss/plugflow/pkg/transport"
)

func finalOnly() transport.StreamHandler {
	return transport.StreamHandlerFunc(func(ctx context.Context, _ *api.ChatRequest, w transport.EventWriter) error {
		if err := w.WriteEvent(ctx, api.ContentDelta("hi")); err != nil {
			return err
		}
		return w.WriteEvent(ctx, api.Final())
	})
}

func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeOn(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return "http://" + ln.Addr().String()
}

func TestServerStartsAndAcceptsRequests(t *testing.T) {
	srv := NewServer(finalOnly(), nil, nil, WithAddr("127.0.0.1:0"))
	base := startServer(t, srv)

	resp, err := gohttp.Post(base+"/v1/chat/stream", "application/json",
		chatBody(t, helloRequest()))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, gohttp.StatusOK)
	}
	events := readEvents(t, readBody(t, resp.Body))
	if len(events) != 2 || !events[1].IsFinal() {
		t.Errorf("events = %+v", events)
	}
}

func TestServerShutdownEndsStreamsWithFinal(t *testing.T) {
	started := make(chan struct{})
	srv := NewServer(blockingHandler(started), nil, nil,
		WithAddr("127.0.0.1:0"),
		WithShutdownTimeout(5*time.Second),
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	base := "http://" + ln.Addr().String()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ServeOn(ctx, ln) }()

	bodyCh := make(chan string, 1)
	go func() {
		resp, err := gohttp.Post(base+"/v1/chat/stream", "application/json", chatBody(t, helloRequest()))
		if err != nil {
			bodyCh <- ""
			return
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		bodyCh <- string(data)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not start")
	}
	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("ServeOn returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	events := readEvents(t, <-bodyCh)
	if len(events) == 0 || !events[len(events)-1].IsFinal() {
		t.Errorf("stream did not end with final: %+v", events)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	srv := NewServer(finalOnly(), nil, nil, WithMetrics("/metrics"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != gohttp.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp.Body); !strings.Contains(body, "plugflow_requests_total") {
		t.Error("metrics output missing plugflow_requests_total")
	}
}

func TestServerWithoutMetrics(t *testing.T) {
	srv := NewServer(finalOnly(), nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != gohttp.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServerCORS(t *testing.T) {
	srv := NewServer(finalOnly(), nil, nil, WithCORSOrigins("https://app.example.com"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Browsers send the requested header names lowercased.
	preflight := func(origin, headers string) *gohttp.Response {
		req, _ := gohttp.NewRequest(gohttp.MethodOptions, ts.URL+"/v1/chat/stream", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", gohttp.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", headers)
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("OPTIONS error: %v", err)
		}
		resp.Body.Close()
		return resp
	}

	tests := []struct {
		name    string
		origin  string
		headers string
		want    string
	}{
		{"allowed origin", "https://app.example.com", "content-type", "https://app.example.com"},
		{"allowed origin with request id", "https://app.example.com", "content-type,x-request-id", "https://app.example.com"},
		{"disallowed origin", "https://evil.example.com", "content-type", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preflight(tt.origin, tt.headers).Header.Get("Access-Control-Allow-Origin")
			if got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(finalOnly(), nil, nil,
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithReadTimeout(5*time.Second),
		WithWriteTimeout(time.Minute),
		WithShutdownTimeout(10*time.Second),
		WithCORSOrigins("*"),
		WithMetrics("/m"),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.adapter.config.MaxBodySize != 1024 {
		t.Errorf("adapter max body size = %d, want %d", srv.adapter.config.MaxBodySize, 1024)
	}
	if srv.httpServer.ReadTimeout != 5*time.Second || srv.httpServer.WriteTimeout != time.Minute {
		t.Errorf("timeouts = %v/%v", srv.httpServer.ReadTimeout, srv.httpServer.WriteTimeout)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
	if srv.config.MetricsPath != "/m" || len(srv.config.CORSOrigins) != 1 {
		t.Errorf("config = %+v", srv.config)
	}
}
