package openai

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/rhuss/plugflow/pkg/provider"
)

func translateRequest(req *provider.Request) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Stream:   true,
	}
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			args := string(tc.Arguments)
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		out.Messages = append(out.Messages, msg)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// translator turns Chat Completions chunks into deltas. It remembers which
// tool-call indices are open so a finish_reason can close them in order.
type translator struct {
	open []int
	seen map[int]bool
}

func newTranslator() *translator {
	return &translator{seen: make(map[int]bool)}
}

func (t *translator) translate(chunk openai.ChatCompletionStreamResponse) []provider.Delta {
	if len(chunk.Choices) == 0 {
		return nil
	}
	// Only the first choice is consumed; n>1 is never requested.
	choice := chunk.Choices[0]

	var out []provider.Delta
	if choice.Delta.Content != "" {
		out = append(out, provider.TextDelta(choice.Delta.Content))
	}
	for pos, tc := range choice.Delta.ToolCalls {
		idx := pos
		if tc.Index != nil {
			idx = *tc.Index
		}
		if !t.seen[idx] {
			t.seen[idx] = true
			t.open = append(t.open, idx)
		}
		out = append(out, provider.CallDelta(idx, tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	if choice.FinishReason != "" {
		for _, idx := range t.open {
			out = append(out, provider.CallComplete(idx))
		}
		t.open = nil
		t.seen = make(map[int]bool)
	}
	return out
}
