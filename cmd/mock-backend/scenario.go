package main

import (
	"fmt"
	"regexp"
	"strings"
)

// chunk is one chat.completion.chunk.
type chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int     `json:"index"`
	Delta        delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []toolCallDelta `json:"tool_calls,omitempty"`
}

type toolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function functionDelta `json:"function"`
}

type functionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

var cityRE = regexp.MustCompile(`\bin ([A-Z][\p{L}]+(?: [A-Z][\p{L}]+)?)`)

// respond picks the scenario for req and returns its chunks.
func respond(req *chatRequest) []chunk {
	b := &builder{model: req.Model}

	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == "tool" {
		return b.text("Here is what I found: ", req.Messages[n-1].Content)
	}

	question := lastUserMessage(req)
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "weather") && req.offers("WeatherPlugin"):
		city := "Paris"
		if m := cityRE.FindStringSubmatch(question); m != nil {
			city = m[1]
		}
		return b.toolCall("WeatherPlugin", `{"city":`, fmt.Sprintf("%q}", city))
	case strings.Contains(lower, "time") && req.offers("ClockPlugin"):
		return b.toolCall("ClockPlugin", `{"timezone":`, `"UTC"}`)
	}
	return b.text("Hello", ", ", "nice", " ", "day", "!")
}

type builder struct {
	model string
}

func (b *builder) chunk(d delta, finish string) chunk {
	c := chunk{
		ID:      "chatcmpl-mock-stream",
		Object:  "chat.completion.chunk",
		Model:   b.model,
		Choices: []chunkChoice{{Delta: d}},
	}
	if finish != "" {
		c.Choices[0].FinishReason = &finish
	}
	return c
}

func (b *builder) text(tokens ...string) []chunk {
	out := []chunk{b.chunk(delta{Role: "assistant"}, "")}
	for _, t := range tokens {
		out = append(out, b.chunk(delta{Content: t}, ""))
	}
	return append(out, b.chunk(delta{}, "stop"))
}

// toolCall streams one call whose arguments arrive in the given fragments.
func (b *builder) toolCall(name string, fragments ...string) []chunk {
	out := []chunk{
		b.chunk(delta{Role: "assistant"}, ""),
		b.chunk(delta{ToolCalls: []toolCallDelta{{
			ID:       "call_mock_1",
			Type:     "function",
			Function: functionDelta{Name: name},
		}}}, ""),
	}
	for _, f := range fragments {
		out = append(out, b.chunk(delta{ToolCalls: []toolCallDelta{{
			Function: functionDelta{Arguments: f},
		}}}, ""))
	}
	return append(out, b.chunk(delta{}, "tool_calls"))
}

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}
