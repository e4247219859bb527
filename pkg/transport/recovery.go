package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/plugflow/pkg/api"
)

// Recovery returns middleware that converts a handler panic into a server
// error. The panic value is logged, never sent to the client.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next StreamHandler) StreamHandler {
		return StreamHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("stream handler panic",
						"request_id", RequestIDFromContext(ctx), "panic", fmt.Sprint(r))
					retErr = api.NewServerError("internal server error")
				}
			}()
			return next.Stream(ctx, req, w)
		})
	}
}
