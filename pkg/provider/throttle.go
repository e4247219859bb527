package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// throttled wraps a Provider with a token bucket so a burst of concurrent
// requests cannot overrun the backend's request budget.
type throttled struct {
	next    Provider
	limiter *rate.Limiter
}

// Throttle limits p to rps turns per second with the given burst. A
// non-positive rps returns p unchanged. Waiting for a token honours ctx, so
// a cancelled request leaves the queue immediately.
func Throttle(p Provider, rps float64, burst int) Provider {
	if p == nil || rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &throttled{next: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *throttled) Name() string {
	return t.next.Name()
}

func (t *throttled) StreamCompletion(ctx context.Context, req *Request) (<-chan Delta, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("provider throttle: %w", err)
	}
	return t.next.StreamCompletion(ctx, req)
}
