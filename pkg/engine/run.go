package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/plugflow/pkg/api"
	"github.com/rhuss/plugflow/pkg/debug"
	"github.com/rhuss/plugflow/pkg/observability"
	"github.com/rhuss/plugflow/pkg/provider"
	"github.com/rhuss/plugflow/pkg/resilience"
)

// run is the state of one stream. It is owned by the producer goroutine.
type run struct {
	o       *Orchestrator
	req     *Request
	ec      ExecutionContext
	out     chan<- api.StreamEvent
	offered map[string]struct{}
	logger  *slog.Logger
}

// turnResult is what one model turn contributes to the conversation.
type turnResult struct {
	text      strings.Builder
	calls     []provider.ToolCall
	toolMsgs  []provider.Message
	terminate bool
}

// emit sends ev unless ctx is done. It reports whether the event was sent.
func (r *run) emit(ctx context.Context, ev api.StreamEvent) bool {
	select {
	case r.out <- ev:
		observability.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *run) execute(ctx context.Context) {
	messages := append([]provider.Message(nil), r.req.Messages...)
	tools := r.o.toolSpecs(r.req.Plugins)

	r.logger.Info("stream started",
		"provider", r.ec.Provider, "model", r.ec.Model, "plugins", len(tools))

	for turn := 0; ; turn++ {
		if ctx.Err() != nil {
			r.logger.Info("stream cancelled", "turn", turn)
			return
		}
		res := r.turn(ctx, turn, messages, tools)
		if res.terminate || ctx.Err() != nil || len(res.calls) == 0 {
			return
		}
		messages = append(messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   res.text.String(),
			ToolCalls: res.calls,
		})
		messages = append(messages, res.toolMsgs...)
	}
}

// turn streams one model completion. Calls are governed as soon as they
// are assembled; content that arrives while a call is still being
// assembled is held back until the call's events are out.
func (r *run) turn(ctx context.Context, turn int, messages []provider.Message, tools []provider.ToolSpec) *turnResult {
	res := &turnResult{}

	// Cancelling the turn context releases the provider's reader when the
	// turn ends early.
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	deltas, err := r.o.provider.StreamCompletion(turnCtx, &provider.Request{
		Model:    r.ec.Model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		r.providerDone(start, "error")
		if ctx.Err() == nil {
			r.logger.Error("provider stream failed to start", "turn", turn, "error", err)
		}
		res.terminate = true
		return res
	}

	acc := NewAccumulator()
	var held []string
	flush := func() {
		for _, text := range held {
			r.emit(ctx, api.ContentDelta(text))
		}
		held = nil
	}

	for {
		var (
			d  provider.Delta
			ok bool
		)
		select {
		case <-ctx.Done():
			r.providerDone(start, "cancelled")
			res.terminate = true
			return res
		case d, ok = <-deltas:
		}
		if !ok {
			break
		}

		switch d.Kind {
		case provider.DeltaText:
			res.text.WriteString(d.Text)
			if acc.Len() > 0 {
				held = append(held, d.Text)
				continue
			}
			r.emit(ctx, api.ContentDelta(d.Text))

		case provider.DeltaFunctionCall, provider.DeltaCallComplete:
			inv, complete := acc.Feed(d)
			if !complete {
				continue
			}
			debug.Log(debug.Engine, "function call assembled",
				"correlation_id", r.ec.CorrelationID, "plugin", inv.Name, "call_id", inv.CallID)
			r.emit(ctx, api.FunctionCallDetected(inv.Name, inv.Arguments))

			if turn+1 > r.o.cfg.maxChainDepth() {
				r.logger.Warn("function call chain limit exceeded",
					"plugin", inv.Name, "max_chain_depth", r.o.cfg.maxChainDepth())
				r.emit(ctx, api.FunctionFailed(inv.Name, api.ErrorKindChainLimitExceeded, false))
				r.record(ctx, inv.CallID, inv.Name, callStats{kind: api.ErrorKindChainLimitExceeded})
				r.providerDone(start, "success")
				res.terminate = true
				return res
			}

			content, cancelled := r.invoke(ctx, inv)
			if cancelled {
				r.providerDone(start, "cancelled")
				res.terminate = true
				return res
			}
			res.calls = append(res.calls, provider.ToolCall{ID: inv.CallID, Name: inv.Name, Arguments: inv.Arguments})
			res.toolMsgs = append(res.toolMsgs, toolMessage(inv.CallID, inv.Name, content))
			if acc.Len() == 0 {
				flush()
			}

		case provider.DeltaError:
			r.providerDone(start, "error")
			if ctx.Err() == nil {
				r.logger.Error("provider stream failed", "turn", turn, "error", d.Err)
			}
			r.failPending(ctx, acc, res)
			flush()
			res.terminate = true
			return res
		}
	}

	r.providerDone(start, "success")
	r.failPending(ctx, acc, res)
	flush()
	return res
}

// failPending reports every call whose arguments never became valid JSON.
// The model receives a fallback note for each so the conversation can go on.
func (r *run) failPending(ctx context.Context, acc *Accumulator, res *turnResult) {
	for _, p := range acc.Pending() {
		callID := p.CallID
		if callID == "" {
			callID = api.NewCallID()
		}
		r.logger.Warn("malformed function call arguments",
			"plugin", p.Name, "call_id", callID, "args", debug.Truncate(p.Args, 200))
		r.emit(ctx, api.FunctionCallDetected(p.Name, json.RawMessage(p.Args)))
		r.emit(ctx, api.FunctionFailed(p.Name, api.ErrorKindMalformedArguments, true))
		r.record(ctx, callID, p.Name, callStats{kind: api.ErrorKindMalformedArguments, degraded: true})

		res.calls = append(res.calls, provider.ToolCall{ID: callID, Name: p.Name, Arguments: json.RawMessage("{}")})
		res.toolMsgs = append(res.toolMsgs, toolMessage(callID, p.Name,
			resilience.FallbackResponse(p.Name, api.ErrorKindMalformedArguments)))
	}
}

func (r *run) providerDone(start time.Time, status string) {
	observability.ProviderRequestsTotal.WithLabelValues(r.ec.Provider, r.ec.Model, status).Inc()
	observability.ProviderLatency.WithLabelValues(r.ec.Provider, r.ec.Model).Observe(time.Since(start).Seconds())
}

func toolMessage(callID, name, content string) provider.Message {
	return provider.Message{Role: provider.RoleTool, ToolCallID: callID, Name: name, Content: content}
}
