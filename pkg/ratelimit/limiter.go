// Package ratelimit enforces per-plugin sliding-window invocation budgets.
//
// Each plugin owns an ordered list of invocation timestamps inside the
// trailing window. The list is pruned lazily on every check. State lives in
// an [arena.Arena], so plugins are locked independently and budgets are
// shared by all concurrent requests.
package ratelimit

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rhuss/plugflow/pkg/arena"
	"github.com/rhuss/plugflow/pkg/observability"
)

// ErrRateLimited is returned when a plugin's budget is exhausted.
var ErrRateLimited = errors.New("rate limit exceeded")

// Window is the per-plugin state held in the arena: invocation timestamps
// in ascending order.
type Window struct {
	stamps []time.Time
}

// NewArena returns an empty arena suitable for [WithArena].
func NewArena() *arena.Arena[Window] {
	return arena.New[Window](nil)
}

// Limiter tracks invocation budgets for a static set of plugin rates.
// Plugins without a configured rate always pass.
type Limiter struct {
	rates  map[string]Rate
	state  *arena.Arena[Window]
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger for rejection messages.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithArena injects the state arena, letting several limiters built from
// the same policy share windows. Without it the limiter allocates its own.
func WithArena(a *arena.Arena[Window]) Option {
	return func(l *Limiter) { l.state = a }
}

// NewLimiter creates a limiter for the given per-plugin rates. The map is
// copied.
func NewLimiter(rates map[string]Rate, opts ...Option) *Limiter {
	l := &Limiter{
		rates:  make(map[string]Rate, len(rates)),
		now:    time.Now,
		logger: slog.Default(),
	}
	for name, r := range rates {
		if !r.IsZero() {
			l.rates[name] = r
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.state == nil {
		l.state = NewArena()
	}
	return l
}

// IsWithinLimit reports whether one more invocation of name fits the budget.
// It does not record anything.
func (l *Limiter) IsWithinLimit(name string) bool {
	rate, ok := l.rates[name]
	if !ok {
		return true
	}
	within := false
	l.state.With(name, func(w *Window) {
		w.prune(l.now(), rate.Window)
		within = len(w.stamps) < rate.Limit
	})
	return within
}

// RecordInvocation appends an invocation timestamp for name.
func (l *Limiter) RecordInvocation(name string) {
	rate, ok := l.rates[name]
	if !ok {
		return
	}
	l.state.With(name, func(w *Window) {
		now := l.now()
		w.prune(now, rate.Window)
		w.stamps = append(w.stamps, now)
	})
}

// Allow checks and records under a single lock acquisition, so two
// concurrent callers can never both take the last slot. Rejected calls are
// not recorded.
func (l *Limiter) Allow(name string) bool {
	rate, ok := l.rates[name]
	if !ok {
		return true
	}
	allowed := false
	l.state.With(name, func(w *Window) {
		now := l.now()
		w.prune(now, rate.Window)
		if len(w.stamps) < rate.Limit {
			w.stamps = append(w.stamps, now)
			allowed = true
		}
	})
	if !allowed {
		observability.RateLimitRejectedTotal.WithLabelValues(name).Inc()
		l.logger.Info("plugin rate limited", "plugin", name, "limit", rate.String())
	}
	return allowed
}

// Status describes the remaining budget of one plugin.
type Status struct {
	Rate      Rate
	Remaining int
	Limited   bool
}

// Status returns the remaining budget for name. Unlimited plugins report
// Limited=false.
func (l *Limiter) Status(name string) Status {
	rate, ok := l.rates[name]
	if !ok {
		return Status{}
	}
	var used int
	l.state.With(name, func(w *Window) {
		w.prune(l.now(), rate.Window)
		used = len(w.stamps)
	})
	return Status{Rate: rate, Remaining: max(rate.Limit-used, 0), Limited: true}
}

// prune drops timestamps that fell out of the trailing window. Timestamps
// are appended in order, so the first one still inside ends the scan.
func (w *Window) prune(now time.Time, d time.Duration) {
	cutoff := now.Add(-d)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
