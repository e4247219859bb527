package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/plugflow/pkg/arena"
	"github.com/rhuss/plugflow/pkg/observability"
)

// ErrCircuitOpen matches every *CircuitOpenError via errors.Is.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitOpenError is returned when a plugin's circuit rejects a call.
type CircuitOpenError struct {
	Plugin     string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit for plugin %q is open (retry after %s)", e.Plugin, e.RetryAfter.Round(time.Millisecond))
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// State is a circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// closed circuit.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit rejects calls before it
	// admits a trial.
	RecoveryTimeout time.Duration
}

// DefaultBreakerConfig returns a threshold of 5 and a 60s recovery timeout.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute}
}

// Circuit is the per-plugin breaker state held in the arena.
type Circuit struct {
	State               State
	ConsecutiveFailures int
	LastFailureAt       time.Time

	trialInFlight bool
}

// NewArena returns an empty circuit arena suitable for [WithArena].
func NewArena() *arena.Arena[Circuit] {
	return arena.New[Circuit](nil)
}

// Breaker is a per-plugin circuit breaker. All plugins share one Breaker;
// each plugin's circuit is locked independently.
type Breaker struct {
	cfg     BreakerConfig
	circuit *arena.Arena[Circuit]
	now     func() time.Time
	logger  *slog.Logger
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithArena injects the circuit state arena.
func WithArena(a *arena.Arena[Circuit]) BreakerOption {
	return func(b *Breaker) { b.circuit = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithBreakerLogger sets the logger used for state transitions.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(b *Breaker) { b.logger = logger }
}

// NewBreaker creates a Breaker. Zero config fields take their defaults.
func NewBreaker(cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	b := &Breaker{cfg: cfg, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if b.circuit == nil {
		b.circuit = NewArena()
	}
	return b
}

// Execute runs op unless the plugin's circuit is open. An open circuit whose
// recovery timeout has elapsed moves to half-open and admits exactly one
// trial; concurrent callers are rejected until the trial settles.
func (b *Breaker) Execute(ctx context.Context, name string, op func(context.Context) (string, error)) (string, error) {
	trial, err := b.admit(name)
	if err != nil {
		return "", err
	}

	result, opErr := op(ctx)
	b.settle(ctx, name, trial, opErr)
	return result, opErr
}

// State returns a snapshot of the plugin's circuit.
func (b *Breaker) State(name string) Circuit {
	c := b.circuit.Snapshot(name)
	c.trialInFlight = false
	return c
}

func (b *Breaker) admit(name string) (trial bool, err error) {
	var transitioned bool
	b.circuit.With(name, func(c *Circuit) {
		switch c.State {
		case Closed:
			return
		case Open:
			elapsed := b.now().Sub(c.LastFailureAt)
			if elapsed < b.cfg.RecoveryTimeout {
				err = &CircuitOpenError{Plugin: name, RetryAfter: b.cfg.RecoveryTimeout - elapsed}
				return
			}
			c.State = HalfOpen
			c.trialInFlight = true
			trial, transitioned = true, true
		case HalfOpen:
			if c.trialInFlight {
				err = &CircuitOpenError{Plugin: name}
				return
			}
			// A previous trial was cancelled; admit a new one.
			c.trialInFlight = true
			trial = true
		}
	})
	if transitioned {
		b.transition(name, HalfOpen)
	}
	return trial, err
}

func (b *Breaker) settle(ctx context.Context, name string, trial bool, opErr error) {
	cancelled := opErr != nil && (ctx.Err() != nil || errors.Is(opErr, context.Canceled))

	var to State
	var transitioned bool
	b.circuit.With(name, func(c *Circuit) {
		if trial {
			c.trialInFlight = false
		}
		if cancelled {
			return
		}
		if opErr == nil {
			if trial || c.State == Closed {
				c.ConsecutiveFailures = 0
			}
			if trial {
				c.State, to, transitioned = Closed, Closed, true
			}
			return
		}

		switch {
		case trial:
			c.State, to, transitioned = Open, Open, true
			c.LastFailureAt = b.now()
		case c.State == Closed:
			c.ConsecutiveFailures++
			c.LastFailureAt = b.now()
			if c.ConsecutiveFailures >= b.cfg.FailureThreshold {
				c.State, to, transitioned = Open, Open, true
			}
		}
	})
	if transitioned {
		b.transition(name, to)
	}
}

func (b *Breaker) transition(name string, to State) {
	level := slog.LevelInfo
	if to == Open {
		level = slog.LevelWarn
	}
	b.logger.Log(context.Background(), level, "circuit breaker state change", "plugin", name, "state", to.String())
	observability.CircuitTransitionsTotal.WithLabelValues(name, to.String()).Inc()
	observability.CircuitState.WithLabelValues(name).Set(gaugeValue(to))
}

func gaugeValue(s State) float64 {
	switch s {
	case Open:
		return observability.CircuitOpen
	case HalfOpen:
		return observability.CircuitHalfOpen
	default:
		return observability.CircuitClosed
	}
}
