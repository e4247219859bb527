// Package transport defines the handler contract and middleware chain for
// the plugflow HTTP/SSE surface.
//
// A StreamHandler turns one api.ChatRequest into a sequence of
// api.StreamEvent values written to an EventWriter. The engine-backed
// implementation returned by NewStreamHandler converts the request for the
// orchestrator and drains its event channel; the HTTP adapter in
// pkg/transport/http supplies an EventWriter that frames each event as an
// SSE data line.
//
// # Middleware
//
// The middleware chain wraps a StreamHandler with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID, also used as the correlation ID of the stream), and
// structured logging via log/slog.
//
// # In-flight streams
//
// InFlightRegistry maps correlation IDs of running streams to their cancel
// functions so that DELETE /v1/streams/{id} can stop a stream. Cancelled
// streams still end with their final event.
package transport
