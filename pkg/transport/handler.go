package transport

import (
	"context"

	"github.com/rhuss/plugflow/pkg/api"
)

// StreamHandler runs one chat request and writes its events to w.
// Implementations return an error only when nothing useful could be
// streamed; once the first event is written, failures travel as events.
type StreamHandler interface {
	Stream(ctx context.Context, req *api.ChatRequest, w EventWriter) error
}

// StreamHandlerFunc is an adapter that allows using an ordinary function
// as a StreamHandler.
type StreamHandlerFunc func(ctx context.Context, req *api.ChatRequest, w EventWriter) error

// Stream calls f(ctx, req, w).
func (f StreamHandlerFunc) Stream(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
	return f(ctx, req, w)
}

// EventWriter delivers stream events to the client.
//
// WriteEvent after the final event returns an error. Errors from WriteEvent
// usually mean the client has gone away.
type EventWriter interface {
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// Flush ensures buffered data is sent to the client.
	Flush() error
}
