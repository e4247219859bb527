package engine

import (
	"encoding/json"
	"strings"

	"github.com/rhuss/plugflow/pkg/api"
	"github.com/rhuss/plugflow/pkg/plugin"
	"github.com/rhuss/plugflow/pkg/provider"
)

// PendingCall is a function call that never assembled into valid JSON.
type PendingCall struct {
	Index  int
	CallID string
	Name   string
	Args   string
}

type callBuffer struct {
	index    int
	callID   string
	name     string
	args     strings.Builder
	complete bool
}

// Accumulator reassembles function calls from fragmented provider deltas,
// keyed by the provider-assigned call index. It is used by a single
// goroutine for a single model turn.
type Accumulator struct {
	calls map[int]*callBuffer
	order []int

	// emitted maps finished indices to their call IDs so late fragments for
	// a finished call are dropped.
	emitted map[int]string
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		calls:   make(map[int]*callBuffer),
		emitted: make(map[int]string),
	}
}

// Feed consumes one delta. It returns an invocation once the call at the
// delta's index is complete: either the provider signalled completion and
// the buffered arguments are valid JSON (empty arguments count as {}), or
// the buffer already holds a complete JSON object, which no further
// fragment could extend into valid JSON. Text and error deltas are ignored.
func (a *Accumulator) Feed(d provider.Delta) (plugin.Invocation, bool) {
	switch d.Kind {
	case provider.DeltaFunctionCall:
		if id, done := a.emitted[d.Index]; done {
			if d.CallID == "" || d.CallID == id {
				return plugin.Invocation{}, false
			}
			// The provider reused the index for a new call.
			delete(a.emitted, d.Index)
		}
		buf := a.buffer(d.Index)
		if d.CallID != "" {
			buf.callID = d.CallID
		}
		if d.Name != "" {
			buf.name = d.Name
		}
		buf.args.WriteString(d.Args)
		if isJSONObject(buf.args.String()) {
			return a.finish(buf), true
		}
	case provider.DeltaCallComplete:
		if _, done := a.emitted[d.Index]; done {
			return plugin.Invocation{}, false
		}
		buf, ok := a.calls[d.Index]
		if !ok {
			return plugin.Invocation{}, false
		}
		buf.complete = true
		args := strings.TrimSpace(buf.args.String())
		if args == "" || json.Valid([]byte(args)) {
			return a.finish(buf), true
		}
	}
	return plugin.Invocation{}, false
}

// Len returns the number of calls still being assembled.
func (a *Accumulator) Len() int {
	return len(a.calls)
}

// Pending returns the unfinished calls in arrival order. At stream end each
// of them is reported as MalformedArguments.
func (a *Accumulator) Pending() []PendingCall {
	out := make([]PendingCall, 0, len(a.calls))
	for _, idx := range a.order {
		buf, ok := a.calls[idx]
		if !ok {
			continue
		}
		out = append(out, PendingCall{
			Index:  idx,
			CallID: buf.callID,
			Name:   buf.name,
			Args:   buf.args.String(),
		})
	}
	return out
}

func (a *Accumulator) buffer(index int) *callBuffer {
	buf, ok := a.calls[index]
	if !ok {
		buf = &callBuffer{index: index}
		a.calls[index] = buf
		a.order = append(a.order, index)
	}
	return buf
}

func (a *Accumulator) finish(buf *callBuffer) plugin.Invocation {
	delete(a.calls, buf.index)
	for i, idx := range a.order {
		if idx == buf.index {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	if buf.callID == "" {
		buf.callID = api.NewCallID()
	}
	a.emitted[buf.index] = buf.callID

	args := strings.TrimSpace(buf.args.String())
	if args == "" {
		args = "{}"
	}
	return plugin.Invocation{
		CallID:    buf.callID,
		Name:      buf.name,
		Arguments: json.RawMessage(args),
	}
}

func isJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && json.Valid([]byte(s))
}
