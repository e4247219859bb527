package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ticketStore keeps created tickets in memory.
type ticketStore struct {
	mu      sync.Mutex
	next    int
	tickets map[string]string
}

func newTicketStore() *ticketStore {
	return &ticketStore{next: 1, tickets: make(map[string]string)}
}

func (s *ticketStore) create(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("TCK-%04d", s.next)
	s.next++
	s.tickets[id] = title
	return id
}

func (s *ticketStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

type echoInput struct {
	Message string `json:"message" jsonschema:"the message to echo back"`
}

type ticketInput struct {
	Title    string `json:"title" jsonschema:"short summary of the issue"`
	Priority string `json:"priority,omitempty" jsonschema:"low, normal or high"`
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func newServer(tickets *ticketStore) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "plugflow-mcp-plugins", Version: "v1.0.0"},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_time",
		Description: "Returns the current UTC time",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return textResult("Current time: %s", time.Now().UTC().Format(time.RFC3339)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echoes the provided message back",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, any, error) {
		return textResult("Echo: %s", in.Message), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_ticket",
		Description: "Opens a support ticket and returns its ID",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in ticketInput) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(in.Title) == "" {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: "title must not be empty"}},
			}, nil, nil
		}
		priority := in.Priority
		if priority == "" {
			priority = "normal"
		}
		id := tickets.create(in.Title)
		return textResult("Created ticket %s (%s priority): %s", id, priority, in.Title), nil, nil
	})

	return server
}

func newMux(server *mcp.Server) *http.ServeMux {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return mux
}
