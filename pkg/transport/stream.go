package transport

import (
	"context"
	"log/slog"

	"github.com/rhuss/plugflow/pkg/api"
	"github.com/rhuss/plugflow/pkg/debug"
	"github.com/rhuss/plugflow/pkg/engine"
	"github.com/rhuss/plugflow/pkg/provider"
	"github.com/rhuss/plugflow/pkg/security"
)

// Orchestrator is the part of engine.Orchestrator the stream handler uses.
type Orchestrator interface {
	Stream(ctx context.Context, req *engine.Request) <-chan api.StreamEvent
}

type engineHandler struct {
	o       Orchestrator
	plugins []string
	logger  *slog.Logger
}

// NewStreamHandler returns a StreamHandler backed by the orchestrator.
// defaultPlugins is offered to the model when a request names none.
func NewStreamHandler(o Orchestrator, defaultPlugins []string, logger *slog.Logger) StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &engineHandler{
		o:       o,
		plugins: append([]string(nil), defaultPlugins...),
		logger:  logger,
	}
}

// Stream drains the orchestrator channel into w. When the client stops
// accepting events the stream is cancelled, and draining continues until
// the channel closes so the producer goroutine can exit.
func (h *engineHandler) Stream(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := h.o.Stream(ctx, ToEngineRequest(RequestIDFromContext(ctx), req, h.plugins))

	var writeErr error
	for ev := range events {
		if writeErr != nil {
			continue
		}
		if err := w.WriteEvent(ctx, ev); err != nil {
			writeErr = err
			h.logger.Debug("client stopped reading stream", "request_id", RequestIDFromContext(ctx), "error", err)
			cancel()
			continue
		}
		debug.Log(debug.Streaming, "event written", "request_id", RequestIDFromContext(ctx), "type", ev.Type)
	}
	return nil
}

// ToEngineRequest converts a validated chat request. The request's plugins
// default to defaultPlugins, and its confirmed plugins become the
// confirmation predicate.
func ToEngineRequest(correlationID string, req *api.ChatRequest, defaultPlugins []string) *engine.Request {
	msgs := make([]provider.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, provider.Message{Role: m.Role, Content: m.Content})
	}
	plugins := req.Plugins
	if len(plugins) == 0 {
		plugins = defaultPlugins
	}
	out := &engine.Request{
		CorrelationID: correlationID,
		Model:         req.Model,
		Messages:      msgs,
		Plugins:       append([]string(nil), plugins...),
	}
	if len(req.ConfirmedPlugins) > 0 {
		out.Confirm = security.ConfirmList(req.ConfirmedPlugins)
	}
	return out
}
