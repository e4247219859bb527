// Command demo runs one plugin-calling conversation in-process and prints
// the resulting event stream in its SSE wire form. A scripted provider
// stands in for the model: its first turn calls WeatherPlugin with
// arguments split across fragments, its second turn answers in text.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rhuss/plugflow/pkg/audit"
	"github.com/rhuss/plugflow/pkg/audit/memory"
	"github.com/rhuss/plugflow/pkg/engine"
	"github.com/rhuss/plugflow/pkg/plugin"
	"github.com/rhuss/plugflow/pkg/plugin/builtin"
	"github.com/rhuss/plugflow/pkg/provider"
)

// scripted answers the first turn with a weather call and later turns with
// a summary of the last tool result.
type scripted struct{}

func (scripted) Name() string { return "scripted" }

func (scripted) StreamCompletion(ctx context.Context, req *provider.Request) (<-chan provider.Delta, error) {
	var deltas []provider.Delta
	last := req.Messages[len(req.Messages)-1]
	if last.Role == provider.RoleTool {
		for _, w := range strings.Fields("Here is the forecast: " + last.Content) {
			deltas = append(deltas, provider.TextDelta(w+" "))
		}
	} else {
		deltas = []provider.Delta{
			provider.TextDelta("Let me check. "),
			provider.CallDelta(0, "call_demo", "WeatherPlugin", `{"city":`),
			provider.CallDelta(0, "", "", `"Paris"}`),
			provider.CallComplete(0),
		}
	}

	ch := make(chan provider.Delta)
	go func() {
		defer close(ch)
		for _, d := range deltas {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "demo failed:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	backend := builtin.NewBackend(builtin.Defaults()...)
	reg, err := plugin.NewRegistry(backend.Descriptors()...)
	if err != nil {
		return err
	}
	router := plugin.NewRouter(reg)
	router.Handle(plugin.BackendBuiltin, backend)

	store := memory.New(100)
	orch, err := engine.New(scripted{}, reg, router,
		engine.Config{DefaultModel: "demo-model"},
		engine.WithRecorder(store),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()
	fmt.Println("=== plugflow demo: event stream ===")
	for ev := range orch.Stream(ctx, &engine.Request{
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "What's the weather in Paris?"}},
		Plugins:  reg.Names(),
	}) {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		fmt.Printf("data: %s\n\n", data)
	}

	records, err := store.List(ctx, audit.Filter{})
	if err != nil {
		return err
	}
	fmt.Println("=== audit ===")
	for _, rec := range records {
		fmt.Printf("%s %s outcome=%s attempts=%d\n", rec.CorrelationID, rec.Plugin, rec.Outcome, rec.Attempts)
	}
	return nil
}
