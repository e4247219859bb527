// Package openai adapts OpenAI-compatible Chat Completions backends (OpenAI,
// vLLM, LiteLLM, the bundled mock backend) to provider.Provider using
// github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rhuss/plugflow/pkg/debug"
	"github.com/rhuss/plugflow/pkg/provider"
)

const defaultName = "openai"

// Config configures the adapter.
type Config struct {
	// Name is the provider identifier used in metrics and logs.
	Name string

	// BaseURL is the API root including the version segment, for example
	// "http://localhost:8000/v1". Empty uses the public OpenAI endpoint.
	BaseURL string

	APIKey string

	// Timeout bounds connection setup and response headers. Streaming
	// bodies are bounded by the request context instead.
	Timeout time.Duration

	HTTPClient *http.Client
}

// Provider streams Chat Completions and translates chunks into
// provider.Delta values.
type Provider struct {
	name   string
	client *openai.Client
	logger *slog.Logger
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider from cfg.
func New(cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	switch {
	case cfg.HTTPClient != nil:
		oc.HTTPClient = cfg.HTTPClient
	case cfg.Timeout > 0:
		oc.HTTPClient = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
			TLSHandshakeTimeout:   cfg.Timeout,
		}}
	}
	name := cfg.Name
	if name == "" {
		name = defaultName
	}
	return &Provider{name: name, client: openai.NewClientWithConfig(oc), logger: logger}
}

// Name returns the configured provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// StreamCompletion opens a streaming Chat Completions request. Setup
// failures (unreachable backend, 4xx/5xx before the first chunk) are
// returned directly; failures after that arrive as a DeltaError.
func (p *Provider) StreamCompletion(ctx context.Context, req *provider.Request) (<-chan provider.Delta, error) {
	chatReq := translateRequest(req)
	debug.Log(debug.Providers, "opening stream",
		"provider", p.name, "model", chatReq.Model,
		"messages", len(chatReq.Messages), "tools", len(chatReq.Tools))

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, wrapError(err)
	}

	ch := make(chan provider.Delta, 16)
	go p.pump(ctx, stream, ch)
	return ch, nil
}

// pump reads chunks until EOF, the first error, or cancellation. It owns
// and closes both stream and ch.
func (p *Provider) pump(ctx context.Context, stream *openai.ChatCompletionStream, ch chan<- provider.Delta) {
	defer close(ch)
	defer stream.Close()

	tr := newTranslator()
	send := func(d provider.Delta) bool {
		select {
		case ch <- d:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("provider stream failed", "provider", p.name, "error", err)
			send(provider.ErrorDelta(wrapError(err)))
			return
		}
		for _, d := range tr.translate(chunk) {
			debug.Trace(debug.Providers, "delta", "kind", d.Kind.String(), "index", d.Index)
			if !send(d) {
				return
			}
		}
	}
}

// StatusCode extracts the HTTP status carried by an adapter error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func wrapError(err error) error {
	if code := StatusCode(err); code != 0 {
		return fmt.Errorf("chat completions stream (status %d): %w", code, err)
	}
	return fmt.Errorf("chat completions stream: %w", err)
}
