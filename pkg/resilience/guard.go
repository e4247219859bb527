package resilience

import "context"

// Guard composes a Breaker around a Retrier: Breaker(Retry(op)), with the
// fallback applied outside so the breaker observes real failures.
type Guard struct {
	Breaker *Breaker
	Retrier *Retrier
}

// NewGuard returns a Guard over the given breaker and retrier.
func NewGuard(b *Breaker, r *Retrier) *Guard {
	return &Guard{Breaker: b, Retrier: r}
}

// Execute runs op for the named plugin and always returns a usable Outcome.
func (g *Guard) Execute(ctx context.Context, name string, op Op, isTransient func(error) bool) Outcome {
	return g.ExecuteNotify(ctx, name, op, isTransient, nil)
}

// ExecuteNotify is Execute with a hook that runs once the breaker has
// admitted the call, before the first attempt. The hook does not run when
// the circuit rejects the call.
func (g *Guard) ExecuteNotify(ctx context.Context, name string, op Op, isTransient func(error) bool, admitted func()) Outcome {
	attempts := 0
	result, err := g.Breaker.Execute(ctx, name, func(ctx context.Context) (string, error) {
		if admitted != nil {
			admitted()
		}
		res, n, err := g.Retrier.Retry(ctx, name, op, isTransient)
		attempts = n
		return res, err
	})
	return degrade(ctx, name, result, attempts, err, isTransient)
}
