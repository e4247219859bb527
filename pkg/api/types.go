package api

// Role values accepted in ChatRequest messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversational turn supplied by the caller.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /v1/chat/stream.
type ChatRequest struct {
	// Model overrides the configured default model when set.
	Model string `json:"model,omitempty"`

	Messages []Message `json:"messages"`

	// Plugins lists the plugin names made available to the model for this
	// request. Empty means every registered plugin.
	Plugins []string `json:"plugins,omitempty"`

	// ConfirmedPlugins lists the plugins the caller pre-approved. It backs
	// the confirmation predicate for plugins that require confirmation.
	ConfirmedPlugins []string `json:"confirmedPlugins,omitempty"`
}

// Confirmed reports whether the caller pre-approved the named plugin.
func (r *ChatRequest) Confirmed(name string) bool {
	for _, p := range r.ConfirmedPlugins {
		if p == name {
			return true
		}
	}
	return false
}
