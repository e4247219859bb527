package provider

import (
	"encoding/json"
	"fmt"
)

// Message roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Request is the backend-facing request for a single model turn.
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolSpec
}

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that requested invocations.
	ToolCalls []ToolCall

	// ToolCallID and Name are set on tool messages carrying a result.
	ToolCallID string
	Name       string
}

// ToolCall is an invocation request recorded in an assistant message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolSpec advertises a callable plugin to the model. Parameters is a JSON
// schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// DeltaKind discriminates the Delta union.
type DeltaKind int

const (
	// DeltaText carries a chunk of model text in Text.
	DeltaText DeltaKind = iota

	// DeltaFunctionCall carries a fragment of a function call. The first
	// fragment for an Index usually carries CallID and Name; later fragments
	// append to Args.
	DeltaFunctionCall

	// DeltaCallComplete signals that the call at Index received its last
	// fragment.
	DeltaCallComplete

	// DeltaError terminates the stream with Err.
	DeltaError
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaText:
		return "text"
	case DeltaFunctionCall:
		return "function_call"
	case DeltaCallComplete:
		return "call_complete"
	case DeltaError:
		return "error"
	default:
		return fmt.Sprintf("DeltaKind(%d)", int(k))
	}
}

// Delta is one element of a provider stream.
type Delta struct {
	Kind DeltaKind

	Text string

	Index  int
	CallID string
	Name   string
	Args   string

	Err error
}

// TextDelta returns a DeltaText value.
func TextDelta(text string) Delta {
	return Delta{Kind: DeltaText, Text: text}
}

// CallDelta returns a DeltaFunctionCall fragment.
func CallDelta(index int, callID, name, args string) Delta {
	return Delta{Kind: DeltaFunctionCall, Index: index, CallID: callID, Name: name, Args: args}
}

// CallComplete returns a DeltaCallComplete marker for index.
func CallComplete(index int) Delta {
	return Delta{Kind: DeltaCallComplete, Index: index}
}

// ErrorDelta returns a terminal DeltaError.
func ErrorDelta(err error) Delta {
	return Delta{Kind: DeltaError, Err: err}
}
