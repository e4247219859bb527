package api

import (
	"strings"
	"testing"
)

func TestValidateChatRequest(t *testing.T) {
	cfg := DefaultValidationConfig()
	user := []Message{{Role: RoleUser, Content: "hi"}}

	tests := []struct {
		name      string
		req       ChatRequest
		wantParam string
	}{
		{"valid", ChatRequest{Messages: user, Plugins: []string{"WeatherPlugin"}}, ""},
		{"no messages", ChatRequest{}, "messages"},
		{"bad role", ChatRequest{Messages: []Message{{Role: "tool", Content: "x"}}}, "messages[0].role"},
		{"empty plugin", ChatRequest{Messages: user, Plugins: []string{" "}}, "plugins[0]"},
		{"duplicate plugin", ChatRequest{Messages: user, Plugins: []string{"a", "a"}}, "plugins[1]"},
		{"duplicate confirmed", ChatRequest{Messages: user, ConfirmedPlugins: []string{"a", "b", "b"}}, "confirmedPlugins[2]"},
		{
			"oversized content",
			ChatRequest{Messages: []Message{{Role: RoleUser, Content: strings.Repeat("x", cfg.MaxContentSize+1)}}},
			"messages[0].content",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatRequest(&tt.req, cfg)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error for param %q", tt.wantParam)
			}
			if err.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", err.Param, tt.wantParam)
			}
			if err.Type != ErrorTypeInvalidRequest {
				t.Errorf("Type = %q, want %q", err.Type, ErrorTypeInvalidRequest)
			}
		})
	}
}

func TestChatRequestConfirmed(t *testing.T) {
	req := ChatRequest{ConfirmedPlugins: []string{"FileWriter"}}
	if !req.Confirmed("FileWriter") {
		t.Error("FileWriter should be confirmed")
	}
	if req.Confirmed("Shell") {
		t.Error("Shell should not be confirmed")
	}
}
