package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/plugflow/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// stream with the request ID, model, offered plugin count and duration.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next StreamHandler) StreamHandler {
		return StreamHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
			start := time.Now()

			err := next.Stream(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("model", req.Model),
				slog.Int("messages", len(req.Messages)),
				slog.Int("plugins", len(req.Plugins)),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "stream failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "stream completed", attrs...)
			}
			return err
		})
	}
}
