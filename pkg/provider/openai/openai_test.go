package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/rhuss/plugflow/pkg/provider"
)

// sseServer replays chunks as a Chat Completions stream and records the
// decoded request body.
func sseServer(t *testing.T, chunks []string, got *goopenai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, ch <-chan provider.Delta) []provider.Delta {
	t.Helper()
	var out []provider.Delta
	timeout := time.After(5 * time.Second)
	for {
		select {
		case d, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, d)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestStreamText(t *testing.T) {
	srv := sseServer(t, []string{
		`{"id":"c1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	}, nil)

	p := New(Config{BaseURL: srv.URL + "/v1", APIKey: "test"}, nil)
	ch, err := p.StreamCompletion(context.Background(), &provider.Request{
		Model:    "m",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	deltas := collect(t, ch)

	var text strings.Builder
	for _, d := range deltas {
		if d.Kind != provider.DeltaText {
			t.Fatalf("unexpected delta kind %s", d.Kind)
		}
		text.WriteString(d.Text)
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q, want %q", text.String(), "Hello")
	}
}

func TestStreamToolCall(t *testing.T) {
	var req goopenai.ChatCompletionRequest
	srv := sseServer(t, []string{
		`{"id":"c2","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"WeatherPlugin","arguments":""}}]}}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Paris\"}"}}]}}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	}, &req)

	p := New(Config{Name: "mock", BaseURL: srv.URL + "/v1/"}, nil)
	if p.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", p.Name())
	}
	ch, err := p.StreamCompletion(context.Background(), &provider.Request{
		Model: "m",
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: "weather?"},
		},
		Tools: []provider.ToolSpec{{
			Name:        "WeatherPlugin",
			Description: "Current weather",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	deltas := collect(t, ch)

	var args strings.Builder
	var complete int
	for _, d := range deltas {
		switch d.Kind {
		case provider.DeltaFunctionCall:
			if d.Index != 0 {
				t.Errorf("index = %d, want 0", d.Index)
			}
			args.WriteString(d.Args)
		case provider.DeltaCallComplete:
			complete++
		default:
			t.Errorf("unexpected delta %+v", d)
		}
	}
	if deltas[0].CallID != "call_1" || deltas[0].Name != "WeatherPlugin" {
		t.Errorf("first fragment = %+v", deltas[0])
	}
	if args.String() != `{"city":"Paris"}` {
		t.Errorf("args = %q", args.String())
	}
	if complete != 1 {
		t.Errorf("call complete markers = %d, want 1", complete)
	}
	if deltas[len(deltas)-1].Kind != provider.DeltaCallComplete {
		t.Error("call complete should be the last delta")
	}

	if !req.Stream {
		t.Error("request should ask for a stream")
	}
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "WeatherPlugin" {
		t.Errorf("tools not forwarded: %+v", req.Tools)
	}
}

func TestStreamSetupError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL + "/v1"}, nil)
	_, err := p.StreamCompletion(context.Background(), &provider.Request{Model: "m"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := StatusCode(err); code != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", code)
	}
	var apiErr *goopenai.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("error should wrap *openai.APIError, got %T", err)
	}
}

func TestTranslateRequestToolHistory(t *testing.T) {
	out := translateRequest(&provider.Request{
		Model: "m",
		Messages: []provider.Message{
			{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "call_1", Name: "ClockPlugin"}}},
			{Role: provider.RoleTool, ToolCallID: "call_1", Name: "ClockPlugin", Content: `{"time":"12:00"}`},
		},
	})
	if len(out.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(out.Messages))
	}
	tc := out.Messages[0].ToolCalls
	if len(tc) != 1 || tc[0].Function.Arguments != "{}" || tc[0].Type != goopenai.ToolTypeFunction {
		t.Errorf("assistant tool call = %+v", tc)
	}
	if out.Messages[1].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", out.Messages[1])
	}
}

func TestTranslatorParallelCalls(t *testing.T) {
	zero, one := 0, 1
	tr := newTranslator()
	got := tr.translate(goopenai.ChatCompletionStreamResponse{Choices: []goopenai.ChatCompletionStreamChoice{{
		Delta: goopenai.ChatCompletionStreamChoiceDelta{ToolCalls: []goopenai.ToolCall{
			{Index: &zero, ID: "a", Function: goopenai.FunctionCall{Name: "A", Arguments: "{}"}},
			{Index: &one, ID: "b", Function: goopenai.FunctionCall{Name: "B", Arguments: "{}"}},
		}},
		FinishReason: goopenai.FinishReasonToolCalls,
	}}})

	want := []provider.Delta{
		provider.CallDelta(0, "a", "A", "{}"),
		provider.CallDelta(1, "b", "B", "{}"),
		provider.CallComplete(0),
		provider.CallComplete(1),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d deltas, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delta %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if len(tr.open) != 0 {
		t.Error("open calls should be cleared after finish")
	}
}
