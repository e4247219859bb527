package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/plugflow/pkg/api"
	"github.com/rhuss/plugflow/pkg/audit"
	"github.com/rhuss/plugflow/pkg/observability"
	"github.com/rhuss/plugflow/pkg/plugin"
	"github.com/rhuss/plugflow/pkg/provider"
	"github.com/rhuss/plugflow/pkg/ratelimit"
	"github.com/rhuss/plugflow/pkg/resilience"
	"github.com/rhuss/plugflow/pkg/security"
)

const tracerName = "github.com/rhuss/plugflow/pkg/engine"

// Request is one conversational request.
type Request struct {
	// CorrelationID tags every log line and audit record of the request.
	// A fresh ID is generated when empty.
	CorrelationID string

	// Model overrides Config.DefaultModel.
	Model string

	Messages []provider.Message

	// Plugins names the plugins offered to the model for this request. A
	// call to any other plugin is rejected by policy.
	Plugins []string

	// Confirm approves plugins that require confirmation. Nil denies them.
	Confirm security.ConfirmFunc
}

// Orchestrator runs streams. It is safe for concurrent use; plugin state
// shared across requests lives in the injected limiter and breaker.
type Orchestrator struct {
	provider  provider.Provider
	registry  *plugin.Registry
	invoker   plugin.Invoker
	validator *security.Validator
	limiter   *ratelimit.Limiter
	guard     *resilience.Guard
	recorder  audit.Recorder
	tracer    trace.Tracer
	logger    *slog.Logger
	transient func(error) bool
	cfg       Config
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithValidator sets the security validator. The default allows every
// registered plugin without confirmation.
func WithValidator(v *security.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithLimiter sets the rate limiter. The default has no limits.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithGuard sets the breaker and retrier pair.
func WithGuard(g *resilience.Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithRecorder sets the audit recorder.
func WithRecorder(r audit.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTracer sets the tracer used for plugin invocation spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClassifier replaces plugin.IsTransient as the retry classifier.
func WithClassifier(isTransient func(error) bool) Option {
	return func(o *Orchestrator) { o.transient = isTransient }
}

// New creates an Orchestrator. Provider, registry and invoker are required.
func New(p provider.Provider, reg *plugin.Registry, inv plugin.Invoker, cfg Config, opts ...Option) (*Orchestrator, error) {
	if p == nil {
		return nil, errors.New("engine: provider must not be nil")
	}
	if reg == nil {
		return nil, errors.New("engine: plugin registry must not be nil")
	}
	if inv == nil {
		return nil, errors.New("engine: plugin invoker must not be nil")
	}
	o := &Orchestrator{
		provider:  p,
		registry:  reg,
		invoker:   inv,
		cfg:       cfg,
		transient: plugin.IsTransient,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.validator == nil {
		o.validator = security.NewValidator(security.NewPolicy(reg.Names(), nil, nil, nil), o.logger)
	}
	if o.limiter == nil {
		o.limiter = ratelimit.NewLimiter(nil, ratelimit.WithLogger(o.logger))
	}
	if o.guard == nil {
		o.guard = resilience.NewGuard(
			resilience.NewBreaker(resilience.DefaultBreakerConfig(), resilience.WithBreakerLogger(o.logger)),
			resilience.NewRetrier(resilience.DefaultRetryConfig(), resilience.WithRetrierLogger(o.logger)),
		)
	}
	if o.recorder == nil {
		o.recorder = audit.Nop{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o, nil
}

// Stream starts the request and returns its event channel. The channel is
// closed right after the final event. Callers must drain it until it is
// closed; once ctx is cancelled every event except final is dropped, so
// draining finishes promptly.
func (o *Orchestrator) Stream(ctx context.Context, req *Request) <-chan api.StreamEvent {
	out := make(chan api.StreamEvent, eventBuffer)

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = api.NewCorrelationID()
	}
	model := req.Model
	if model == "" {
		model = o.cfg.DefaultModel
	}
	ec := ExecutionContext{CorrelationID: correlationID, Provider: o.provider.Name(), Model: model}

	r := &run{
		o:       o,
		req:     req,
		ec:      ec,
		out:     out,
		offered: make(map[string]struct{}, len(req.Plugins)),
		logger:  o.logger.With("correlation_id", correlationID),
	}
	for _, name := range req.Plugins {
		r.offered[name] = struct{}{}
	}

	observability.StreamsActive.Inc()
	go func() {
		defer close(out)
		defer observability.StreamsActive.Dec()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("orchestrator panic", "panic", fmt.Sprint(p))
			}
			// Blocking send: final is never dropped.
			out <- api.Final()
			observability.StreamEventsTotal.WithLabelValues(string(api.EventFinal)).Inc()
		}()
		r.execute(WithExecutionContext(ctx, ec))
	}()
	return out
}

// Registry returns the plugin registry the orchestrator dispatches against.
func (o *Orchestrator) Registry() *plugin.Registry {
	return o.registry
}

// Validator returns the security validator.
func (o *Orchestrator) Validator() *security.Validator {
	return o.validator
}

// Limiter returns the rate limiter.
func (o *Orchestrator) Limiter() *ratelimit.Limiter {
	return o.limiter
}

// Breaker returns the circuit breaker.
func (o *Orchestrator) Breaker() *resilience.Breaker {
	return o.guard.Breaker
}

func (o *Orchestrator) toolSpecs(names []string) []provider.ToolSpec {
	var specs []provider.ToolSpec
	for _, name := range names {
		d, ok := o.registry.Lookup(name)
		if !ok {
			continue
		}
		specs = append(specs, provider.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema(),
		})
	}
	return specs
}
