package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the variant of a StreamEvent.
type EventType string

const (
	EventContent           EventType = "content"
	EventFunctionCall      EventType = "function_call"
	EventFunctionExecuting EventType = "function_executing"
	EventFunctionCompleted EventType = "function_completed"
	EventFunctionFailed    EventType = "function_failed"
	EventFinal             EventType = "final"
)

// ErrorKind classifies why a function invocation did not produce a result.
type ErrorKind string

const (
	// ErrorKindPolicyRejected: plugin disabled, not allowlisted, or
	// confirmation denied. Never retried.
	ErrorKindPolicyRejected ErrorKind = "PolicyRejected"

	// ErrorKindRateLimited: the plugin's sliding-window budget is spent.
	ErrorKindRateLimited ErrorKind = "RateLimited"

	// ErrorKindCircuitOpen: the plugin is isolated after repeated failures.
	ErrorKindCircuitOpen ErrorKind = "CircuitOpen"

	// ErrorKindTransientPluginFailure: timeouts and upstream 5xx/429 that
	// survived every retry.
	ErrorKindTransientPluginFailure ErrorKind = "TransientPluginFailure"

	// ErrorKindPermanentPluginFailure: bad arguments, unknown plugin, and
	// other errors a retry cannot fix.
	ErrorKindPermanentPluginFailure ErrorKind = "PermanentPluginFailure"

	// ErrorKindMalformedArguments: the streamed argument fragments never
	// formed valid JSON.
	ErrorKindMalformedArguments ErrorKind = "MalformedArguments"

	// ErrorKindChainLimitExceeded: the model kept calling functions past the
	// configured chain depth. The stream terminates.
	ErrorKindChainLimitExceeded ErrorKind = "ChainLimitExceeded"
)

// StreamEvent is the sole output type of the orchestrator. Exactly one of
// the variant constructors below produces each value; the Type field is the
// discriminator.
type StreamEvent struct {
	Type EventType

	// Content holds the text of a content delta.
	Content string

	// FunctionName is set on every function_* event.
	FunctionName string

	// Arguments holds the assembled argument JSON on function_call and
	// function_executing events.
	Arguments json.RawMessage

	// Result is the plugin output on function_completed.
	Result string

	// Duration is the dispatch duration on function_completed.
	Duration time.Duration

	// ErrorKind and Recovered are set on function_failed. Recovered is true
	// when the model received a fallback note and the conversation went on.
	ErrorKind ErrorKind
	Recovered bool
}

// ContentDelta returns a content event carrying a chunk of model text.
func ContentDelta(text string) StreamEvent {
	return StreamEvent{Type: EventContent, Content: text}
}

// FunctionCallDetected returns the event emitted once a function call has
// been fully assembled from the provider stream.
func FunctionCallDetected(name string, rawArgs json.RawMessage) StreamEvent {
	return StreamEvent{Type: EventFunctionCall, FunctionName: name, Arguments: rawArgs}
}

// FunctionExecuting returns the event emitted immediately before dispatch.
func FunctionExecuting(name string, args json.RawMessage) StreamEvent {
	return StreamEvent{Type: EventFunctionExecuting, FunctionName: name, Arguments: args}
}

// FunctionCompleted returns the event emitted after a successful dispatch.
func FunctionCompleted(name, result string, d time.Duration) StreamEvent {
	return StreamEvent{Type: EventFunctionCompleted, FunctionName: name, Result: result, Duration: d}
}

// FunctionFailed returns the event emitted when a call was rejected or
// failed.
func FunctionFailed(name string, kind ErrorKind, recovered bool) StreamEvent {
	return StreamEvent{Type: EventFunctionFailed, FunctionName: name, ErrorKind: kind, Recovered: recovered}
}

// Final returns the terminal event.
func Final() StreamEvent {
	return StreamEvent{Type: EventFinal}
}

// IsFinal reports whether the event terminates the stream.
func (e StreamEvent) IsFinal() bool {
	return e.Type == EventFinal
}

// wireEvent is the JSON shape of a StreamEvent on the SSE wire.
type wireEvent struct {
	Type         EventType       `json:"type"`
	Content      string          `json:"content,omitempty"`
	FunctionName string          `json:"functionName,omitempty"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	Result       string          `json:"result,omitempty"`
	Error        ErrorKind       `json:"error,omitempty"`
	DurationMs   *int64          `json:"durationMs,omitempty"`
	Recovered    *bool           `json:"recovered,omitempty"`
	IsFinal      bool            `json:"isFinal"`
}

// MarshalJSON encodes the event in its wire shape. Arguments that are not
// valid JSON are encoded as a JSON string so the line stays parseable.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Type:         e.Type,
		Content:      e.Content,
		FunctionName: e.FunctionName,
		Result:       e.Result,
		Error:        e.ErrorKind,
		IsFinal:      e.IsFinal(),
	}
	if len(e.Arguments) > 0 {
		if json.Valid(e.Arguments) {
			w.Arguments = e.Arguments
		} else {
			quoted, err := json.Marshal(string(e.Arguments))
			if err != nil {
				return nil, err
			}
			w.Arguments = quoted
		}
	}
	switch e.Type {
	case EventFunctionCompleted:
		ms := e.Duration.Milliseconds()
		w.DurationMs = &ms
	case EventFunctionFailed:
		recovered := e.Recovered
		w.Recovered = &recovered
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an event from its wire shape.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case EventContent, EventFunctionCall, EventFunctionExecuting,
		EventFunctionCompleted, EventFunctionFailed, EventFinal:
	default:
		return fmt.Errorf("unknown stream event type %q", w.Type)
	}
	*e = StreamEvent{
		Type:         w.Type,
		Content:      w.Content,
		FunctionName: w.FunctionName,
		Arguments:    w.Arguments,
		Result:       w.Result,
		ErrorKind:    w.Error,
	}
	if w.DurationMs != nil {
		e.Duration = time.Duration(*w.DurationMs) * time.Millisecond
	}
	if w.Recovered != nil {
		e.Recovered = *w.Recovered
	}
	return nil
}
