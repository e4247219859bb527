package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/plugflow/pkg/api"
)

// readEvents parses an SSE body into events.
func readEvents(t *testing.T, body string) []api.StreamEvent {
	t.Helper()
	var events []api.StreamEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			t.Fatalf("unexpected SSE line %q", line)
		}
		var ev api.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("parse event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestWriteEventSSEFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEWriter(rec)

	if err := rw.WriteEvent(context.Background(), api.ContentDelta("Hello")); err != nil {
		t.Fatalf("WriteEvent error: %v", err)
	}

	body := rec.Body.String()
	want := `data: {"type":"content","content":"Hello","isFinal":false}` + "\n\n"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
	if !rec.Flushed {
		t.Error("event was not flushed")
	}
}

func TestWriteEventSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEWriter(rec)

	rw.WriteEvent(context.Background(), api.ContentDelta("x"))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want %q", cc, "no-cache")
	}
	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestWriteEventFunctionLifecycle(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEWriter(rec)
	ctx := context.Background()

	args := json.RawMessage(`{"city":"Tokyo"}`)
	for _, ev := range []api.StreamEvent{
		api.FunctionCallDetected("WeatherPlugin", args),
		api.FunctionExecuting("WeatherPlugin", args),
		api.FunctionCompleted("WeatherPlugin", `{"temperature":21}`, 1500*time.Millisecond),
		api.FunctionFailed("WeatherPlugin", api.ErrorKindRateLimited, true),
		api.Final(),
	} {
		if err := rw.WriteEvent(ctx, ev); err != nil {
			t.Fatalf("WriteEvent(%s): %v", ev.Type, err)
		}
	}

	events := readEvents(t, rec.Body.String())
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
	if string(events[0].Arguments) != `{"city":"Tokyo"}` {
		t.Errorf("arguments = %s", events[0].Arguments)
	}
	if events[2].Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", events[2].Duration)
	}
	if events[3].ErrorKind != api.ErrorKindRateLimited || !events[3].Recovered {
		t.Errorf("failed event = %+v", events[3])
	}
	if !events[4].IsFinal() {
		t.Error("last event should be final")
	}
	if !strings.Contains(rec.Body.String(), `"isFinal":true`) {
		t.Error("final event should carry isFinal=true")
	}
}

func TestWriteEventAfterFinalReturnsError(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEWriter(rec)

	if err := rw.WriteEvent(context.Background(), api.Final()); err != nil {
		t.Fatalf("WriteEvent(final): %v", err)
	}
	if !rw.completed() {
		t.Error("writer should be completed after final")
	}
	if err := rw.WriteEvent(context.Background(), api.ContentDelta("late")); err == nil {
		t.Error("expected error writing after final")
	}
	if strings.Contains(rec.Body.String(), "late") {
		t.Error("event after final reached the wire")
	}
}

func TestSSEWriterStartedState(t *testing.T) {
	rw := newSSEWriter(httptest.NewRecorder())
	if rw.started() {
		t.Error("new writer should not be started")
	}
	rw.WriteEvent(context.Background(), api.ContentDelta("x"))
	if !rw.started() || rw.completed() {
		t.Errorf("started=%v completed=%v after one content event", rw.started(), rw.completed())
	}
}
