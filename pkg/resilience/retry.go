package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rhuss/plugflow/pkg/observability"
)

// RetryConfig configures the retry loop.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the wait before the first retry. Attempt n waits
	// BaseDelay * 2^n.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns 3 retries starting at 1s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Op is a unit of work producing a model-visible result.
type Op func(ctx context.Context) (string, error)

// Outcome is the result of a degraded execution. Exactly one of the
// following holds: Err is nil and Result is the op's result; Degraded is
// true and Result is a fallback message; or Err carries the cancellation.
type Outcome struct {
	Result   string
	Err      error
	Degraded bool
	Attempts int
}

// Retrier retries transient failures with exponential backoff.
type Retrier struct {
	cfg    RetryConfig
	wait   func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithWait replaces the backoff wait. Tests use it to skip real sleeps.
func WithWait(wait func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.wait = wait }
}

// WithRetrierLogger sets the logger for retry messages.
func WithRetrierLogger(logger *slog.Logger) RetrierOption {
	return func(r *Retrier) { r.logger = logger }
}

// NewRetrier creates a Retrier. A negative MaxRetries disables retries.
func NewRetrier(cfg RetryConfig, opts ...RetrierOption) *Retrier {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	r := &Retrier{cfg: cfg, wait: sleep, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retry runs op, retrying while isTransient reports true and retries remain.
// It returns the last error unchanged, or the context error once ctx is
// done. The returned count is the number of times op ran.
func (r *Retrier) Retry(ctx context.Context, name string, op Op, isTransient func(error) bool) (string, int, error) {
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, attempt + 1, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", attempt + 1, ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return "", attempt + 1, err
		}
		if !isTransient(err) || attempt >= r.cfg.MaxRetries {
			return "", attempt + 1, err
		}

		delay := r.backoff(attempt)
		r.logger.Debug("retrying plugin after transient failure",
			"plugin", name, "attempt", attempt+1, "delay", delay, "error", err)
		observability.PluginRetriesTotal.WithLabelValues(name).Inc()
		if err := r.wait(ctx, delay); err != nil {
			return "", attempt + 1, err
		}
	}
}

// ExecuteWithRetry runs op with retries and degrades a surviving failure to
// a fallback message. Cancellation is returned in Outcome.Err and is never
// degraded.
func (r *Retrier) ExecuteWithRetry(ctx context.Context, name string, op Op, isTransient func(error) bool) Outcome {
	result, attempts, err := r.Retry(ctx, name, op, isTransient)
	return degrade(ctx, name, result, attempts, err, isTransient)
}

func (r *Retrier) backoff(attempt int) time.Duration {
	d := r.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		if r.cfg.MaxDelay > 0 && d >= r.cfg.MaxDelay {
			break
		}
		d *= 2
	}
	if r.cfg.MaxDelay > 0 && d > r.cfg.MaxDelay {
		d = r.cfg.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func degrade(ctx context.Context, name, result string, attempts int, err error, isTransient func(error) bool) Outcome {
	if err == nil {
		return Outcome{Result: result, Attempts: attempts}
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return Outcome{Err: err, Attempts: attempts}
	}
	kind := Classify(err, isTransient)
	return Outcome{
		Result:   FallbackResponse(name, kind),
		Err:      err,
		Degraded: true,
		Attempts: attempts,
	}
}
