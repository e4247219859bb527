// Package api defines the wire-level types shared by the plugflow engine and
// its transports.
//
// The central type is [StreamEvent], the tagged union the orchestrator emits
// for every request: content deltas, function call lifecycle events, and the
// terminating final event. Each event serializes to a single SSE data line.
//
// Core types:
//   - [StreamEvent]: one event of a streamed conversation turn
//   - [ErrorKind]: failure taxonomy reported in function_failed events
//   - [ChatRequest]: inbound request accepted by the HTTP transport
//   - [APIError]: structured error with type, code, param, and message
package api
