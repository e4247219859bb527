package transport

import (
	"context"

	"github.com/rhuss/plugflow/pkg/api"
)

// RequestID returns middleware that assigns a request ID to each request
// that does not carry one yet. The ID doubles as the stream's correlation
// ID in logs and audit records.
func RequestID() Middleware {
	return func(next StreamHandler) StreamHandler {
		return StreamHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, api.NewCorrelationID())
			}
			return next.Stream(ctx, req, w)
		})
	}
}
