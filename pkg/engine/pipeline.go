package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/plugflow/pkg/api"
	"github.com/rhuss/plugflow/pkg/audit"
	"github.com/rhuss/plugflow/pkg/debug"
	"github.com/rhuss/plugflow/pkg/observability"
	"github.com/rhuss/plugflow/pkg/plugin"
	"github.com/rhuss/plugflow/pkg/resilience"
)

// Metric outcome labels for plugin invocations.
const (
	outcomeSuccess   = "success"
	outcomeDegraded  = "degraded"
	outcomeRejected  = "rejected"
	outcomeCancelled = "cancelled"
)

type callStats struct {
	kind      api.ErrorKind
	attempts  int
	degraded  bool
	rejected  bool
	cancelled bool
	duration  time.Duration
}

// invoke runs the governed pipeline for one invocation and returns the
// content of the tool message fed back to the model. cancelled is true when
// the request context ended; no further events should be produced then.
//
// Order: offered plugins, security policy (with confirmation), rate limit,
// argument schema, then Breaker(Retry(invoke)) with fallback.
func (r *run) invoke(ctx context.Context, inv plugin.Invocation) (content string, cancelled bool) {
	ctx, span := r.o.tracer.Start(ctx, "plugin.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("plugflow.plugin", inv.Name),
			attribute.String("plugflow.call_id", inv.CallID),
			attribute.String("plugflow.correlation_id", r.ec.CorrelationID),
		),
	)
	defer span.End()

	reject := func(kind api.ErrorKind, reason string) (string, bool) {
		r.logger.Info("plugin invocation rejected", "plugin", inv.Name, "call_id", inv.CallID, "reason", reason)
		span.SetStatus(codes.Error, string(kind))
		span.SetAttributes(attribute.String("plugflow.error_kind", string(kind)))
		r.emit(ctx, api.FunctionFailed(inv.Name, kind, true))
		r.record(ctx, inv.CallID, inv.Name, callStats{kind: kind, rejected: true})
		return resilience.FallbackResponse(inv.Name, kind), false
	}

	if _, ok := r.offered[inv.Name]; !ok {
		return reject(api.ErrorKindPolicyRejected, "not offered for this request")
	}
	if err := r.o.validator.Authorize(ctx, inv, r.req.Confirm); err != nil {
		if ctx.Err() != nil {
			r.record(ctx, inv.CallID, inv.Name, callStats{cancelled: true})
			return "", true
		}
		return reject(api.ErrorKindPolicyRejected, err.Error())
	}
	if !r.o.limiter.Allow(inv.Name) {
		return reject(api.ErrorKindRateLimited, "rate limit exceeded")
	}
	if err := r.o.registry.ValidateArguments(inv.Name, inv.Arguments); err != nil {
		r.logger.Warn("plugin arguments rejected", "plugin", inv.Name, "call_id", inv.CallID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(api.ErrorKindPermanentPluginFailure))
		r.emit(ctx, api.FunctionFailed(inv.Name, api.ErrorKindPermanentPluginFailure, true))
		r.record(ctx, inv.CallID, inv.Name, callStats{kind: api.ErrorKindPermanentPluginFailure, degraded: true})
		return resilience.FallbackResponse(inv.Name, api.ErrorKindPermanentPluginFailure), false
	}

	start := time.Now()
	outcome := r.o.guard.ExecuteNotify(ctx, inv.Name, r.attempt(inv), r.o.transient, func() {
		r.emit(ctx, api.FunctionExecuting(inv.Name, inv.Arguments))
	})
	elapsed := time.Since(start)
	observability.PluginDuration.WithLabelValues(inv.Name).Observe(elapsed.Seconds())
	span.SetAttributes(attribute.Int("plugflow.attempts", outcome.Attempts))

	stats := callStats{attempts: outcome.Attempts, duration: elapsed}
	switch {
	case outcome.Err != nil && !outcome.Degraded:
		stats.cancelled = true
		r.record(ctx, inv.CallID, inv.Name, stats)
		return "", true

	case outcome.Degraded:
		kind := resilience.Classify(outcome.Err, r.o.transient)
		r.logger.Warn("plugin invocation failed",
			"plugin", inv.Name, "call_id", inv.CallID, "error_kind", kind,
			"attempts", outcome.Attempts, "error", outcome.Err)
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, string(kind))
		stats.kind = kind
		stats.degraded = true
		r.emit(ctx, api.FunctionFailed(inv.Name, kind, true))
		r.record(ctx, inv.CallID, inv.Name, stats)
		return outcome.Result, false

	default:
		debug.Log(debug.Plugins, "plugin invocation completed",
			"correlation_id", r.ec.CorrelationID, "plugin", inv.Name,
			"attempts", outcome.Attempts, "duration", elapsed)
		debug.Trace(debug.Plugins, "plugin result", "plugin", inv.Name, "result", debug.Truncate(outcome.Result, 500))
		r.emit(ctx, api.FunctionCompleted(inv.Name, outcome.Result, elapsed))
		r.record(ctx, inv.CallID, inv.Name, stats)
		return outcome.Result, false
	}
}

// attempt returns the operation run by the retrier: one invoker call under
// the per-attempt deadline.
func (r *run) attempt(inv plugin.Invocation) resilience.Op {
	timeout := r.o.cfg.pluginTimeout()
	return func(ctx context.Context) (string, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return r.o.invoker.Invoke(ctx, inv.Name, inv.Arguments)
	}
}

// record writes the audit entry and invocation metric for one call.
// Audit failures are logged and never affect the stream.
func (r *run) record(ctx context.Context, callID, name string, s callStats) {
	rec := audit.Record{
		CorrelationID: r.ec.CorrelationID,
		CallID:        callID,
		Plugin:        name,
		ErrorKind:     s.kind,
		Attempts:      s.attempts,
		Degraded:      s.degraded,
		Duration:      s.duration,
	}
	label := outcomeSuccess
	switch {
	case s.cancelled:
		rec.Outcome = audit.OutcomeCancelled
		label = outcomeCancelled
	case s.rejected:
		rec.Outcome = audit.OutcomeRejected
		label = outcomeRejected
	case s.kind != "":
		rec.Outcome = audit.OutcomeFailed
		label = outcomeDegraded
	default:
		rec.Outcome = audit.OutcomeCompleted
	}
	observability.PluginInvocationsTotal.WithLabelValues(name, label).Inc()

	// The request context may already be cancelled; the record is still wanted.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.o.recorder.Record(actx, rec); err != nil && !errors.Is(err, audit.ErrClosed) {
		r.logger.Warn("audit record failed", "plugin", name, "call_id", callID, "error", err)
	}
}
