package engine

import "context"

// ExecutionContext identifies one inbound request while its stream runs.
// Cancellation travels in the accompanying context.Context.
type ExecutionContext struct {
	CorrelationID string
	Provider      string
	Model         string
}

type execContextKey struct{}

// WithExecutionContext returns a context carrying ec.
func WithExecutionContext(ctx context.Context, ec ExecutionContext) context.Context {
	return context.WithValue(ctx, execContextKey{}, ec)
}

// ExecutionContextFrom returns the ExecutionContext stored in ctx, if any.
// Plugin invokers use it to tag upstream calls with the correlation ID.
func ExecutionContextFrom(ctx context.Context) (ExecutionContext, bool) {
	ec, ok := ctx.Value(execContextKey{}).(ExecutionContext)
	return ec, ok
}
