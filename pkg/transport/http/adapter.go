package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/rhuss/plugflow/pkg/api"
	"github.com/rhuss/plugflow/pkg/audit"
	"github.com/rhuss/plugflow/pkg/engine"
	"github.com/rhuss/plugflow/pkg/transport"
)

// maxRequestIDLen bounds client-supplied X-Request-ID values.
const maxRequestIDLen = 128

// PluginLister reports the status of registered plugins.
type PluginLister interface {
	Plugins() []engine.PluginStatus
}

// AuditLister lists audit records.
type AuditLister interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Record, error)
}

// Adapter serves the plugflow API over HTTP.
type Adapter struct {
	handler  transport.StreamHandler
	plugins  PluginLister // nil disables GET /v1/plugins
	audit    AuditLister  // nil disables GET /v1/audit
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
	logger   *slog.Logger
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Validation  api.ValidationConfig
	Logger      *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
		Validation:  api.DefaultValidationConfig(),
	}
}

// NewAdapter creates an HTTP adapter. plugins and store are optional.
// Middleware is applied to the handler in the given order.
func NewAdapter(handler transport.StreamHandler, plugins PluginLister, store AuditLister, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		handler:  handler,
		plugins:  plugins,
		audit:    store,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
		logger:   logger,
	}

	a.mux.HandleFunc("POST /v1/chat/stream", a.handleChatStream)
	a.mux.HandleFunc("DELETE /v1/streams/{id}", a.handleCancelStream)
	a.mux.HandleFunc("GET /v1/plugins", a.handleListPlugins)
	a.mux.HandleFunc("GET /v1/audit", a.handleListAudit)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)

	return a
}

// Handler returns the http.Handler for this adapter, including request ID
// propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// InFlight returns the registry of running streams.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware takes the request ID from X-Request-ID or
// generates one, stores it in the context, and echoes it in the response
// header. The ID is the correlation ID of any stream the request starts.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID(id) {
			id = api.NewCorrelationID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// handleChatStream handles POST /v1/chat/stream.
func (a *Adapter) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}
	if apiErr := api.ValidateChatRequest(&req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	id := transport.RequestIDFromContext(r.Context())
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	token, ok := a.inflight.Register(id, cancel)
	if !ok {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("X-Request-ID", "a stream with this request ID is already running"),
			http.StatusConflict,
		)
		return
	}
	defer a.inflight.Remove(id, token)

	rw := newSSEWriter(w)
	if err := a.handler.Stream(ctx, &req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleCancelStream handles DELETE /v1/streams/{id}. The stream ends with
// its final event; the caller receives 204.
func (a *Adapter) handleCancelStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.inflight.Cancel(id) {
		transport.WriteAPIError(w, api.NewNotFoundError("stream "+id+" not found"))
		return
	}
	a.logger.Info("stream cancelled by client", "request_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type pluginList struct {
	Object string                `json:"object"`
	Data   []engine.PluginStatus `json:"data"`
}

// handleListPlugins handles GET /v1/plugins.
func (a *Adapter) handleListPlugins(w http.ResponseWriter, _ *http.Request) {
	if a.plugins == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "plugin introspection is not available"),
			http.StatusNotImplemented,
		)
		return
	}
	writeJSON(w, pluginList{Object: "list", Data: a.plugins.Plugins()})
}

type auditList struct {
	Object string         `json:"object"`
	Data   []audit.Record `json:"data"`
}

// handleListAudit handles GET /v1/audit.
func (a *Adapter) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "audit listing is not available (no audit store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	f, apiErr := parseAuditFilter(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	records, err := a.audit.List(r.Context(), f)
	if err != nil {
		a.logger.Error("audit list failed", "request_id", transport.RequestIDFromContext(r.Context()), "error", err)
		transport.WriteAPIError(w, api.NewServerError("audit store unavailable"))
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, auditList{Object: "list", Data: records})
}

// parseAuditFilter extracts plugin, correlation_id and limit from the query.
func parseAuditFilter(r *http.Request) (audit.Filter, *api.APIError) {
	q := r.URL.Query()
	f := audit.Filter{
		Plugin:        q.Get("plugin"),
		CorrelationID: q.Get("correlation_id"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > audit.MaxLimit {
			return f, api.NewInvalidRequestError("limit",
				fmt.Sprintf("limit must be an integer between 1 and %d", audit.MaxLimit))
		}
		f.Limit = n
	}
	return f, nil
}

func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeHandlerError reports a handler error. Before the first event it is
// a JSON error response; once streaming has begun the stream is closed
// with a final event if it does not have one yet.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError("internal server error")
	}

	if rw.started() {
		if !rw.completed() {
			rw.WriteEvent(context.Background(), api.Final())
		}
		return
	}
	transport.WriteAPIError(w, apiErr)
}
