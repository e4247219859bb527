package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/plugflow/pkg/plugin"
)

// ToolError is a tool-level failure reported by the server. It is permanent.
type ToolError struct {
	Server string
	Tool   string
	Text   string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %s/%s failed: %s", e.Server, e.Tool, e.Text)
}

// Client is a connection to one MCP server. It is a plugin.Invoker for the
// plugins discovered on that server.
type Client struct {
	cfg    ServerConfig
	logger *slog.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
}

var _ plugin.Invoker = (*Client)(nil)

// NewClient creates a client for cfg. Call Connect before use.
func NewClient(cfg ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger.With("mcp_server", cfg.Name)}
}

// Name returns the server name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Connect performs the MCP handshake over the configured transport.
func (c *Client) Connect(ctx context.Context) error {
	transport, err := c.transport()
	if err != nil {
		return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
	}
	return c.ConnectWithTransport(ctx, transport)
}

// ConnectWithTransport performs the handshake over an explicit transport.
// Tests use it with in-memory transports.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	client := mcp.NewClient(
		&mcp.Implementation{Name: "plugflow", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return nil
}

func (c *Client) transport() (mcp.Transport, error) {
	hc := httpClient(c.cfg)
	switch c.cfg.Transport {
	case "sse":
		t := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if hc != nil {
			t.HTTPClient = hc
		}
		return t, nil
	case "streamable-http", "":
		t := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if hc != nil {
			t.HTTPClient = hc
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

func (c *Client) currentSession() (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}
	return c.session, nil
}

// Discover lists the server's tools and converts them to descriptors.
func (c *Client) Discover(ctx context.Context) ([]plugin.Descriptor, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(c.cfg.Tools))
	for _, n := range c.cfg.Tools {
		wanted[n] = true
	}

	var descs []plugin.Descriptor
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		if len(wanted) > 0 && !wanted[tool.Name] {
			continue
		}
		d, err := c.descriptor(tool)
		if err != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, err)
		}
		descs = append(descs, d)
	}
	c.logger.Info("discovered MCP tools", "count", len(descs))
	return descs, nil
}

// inputSchema is the subset of a tool's JSON Schema mapped to parameters.
type inputSchema struct {
	Properties map[string]struct {
		Type        json.RawMessage `json:"type"`
		Description string          `json:"description"`
	} `json:"properties"`
	Required []string `json:"required"`
}

func (c *Client) descriptor(t *mcp.Tool) (plugin.Descriptor, error) {
	d := plugin.Descriptor{
		Name:        t.Name,
		Description: t.Description,
		RiskTier:    c.cfg.RiskTier,
		Backend:     c.cfg.Name,
	}
	if t.InputSchema == nil {
		return d, nil
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return d, fmt.Errorf("marshaling input schema: %w", err)
	}
	var schema inputSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return d, fmt.Errorf("parsing input schema: %w", err)
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	for name, prop := range schema.Properties {
		d.Parameters = append(d.Parameters, plugin.Parameter{
			Name:        name,
			Type:        schemaType(prop.Type),
			Required:    required[name],
			Description: prop.Description,
		})
	}
	sort.Slice(d.Parameters, func(i, j int) bool { return d.Parameters[i].Name < d.Parameters[j].Name })
	return d, nil
}

// schemaType reduces a JSON Schema "type" (string or array) to one
// parameter type. Untyped properties are treated as strings.
func schemaType(raw json.RawMessage) string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, t := range many {
			if t != "null" {
				return t
			}
		}
	}
	return "string"
}

// Invoke calls the named tool. Transport failures are transient; IsError
// results are permanent *ToolError values.
func (c *Client) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	session, err := c.currentSession()
	if err != nil {
		return "", plugin.Transient(err)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("%w: %v", plugin.ErrInvalidArguments, err)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", plugin.Transient(fmt.Errorf("calling %s on %q: %w", name, c.cfg.Name, err))
	}

	text := resultText(result)
	if result.IsError {
		return "", &ToolError{Server: c.cfg.Name, Tool: name, Text: text}
	}
	return text, nil
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Close closes the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// ConnectAll connects to every server, discovers its tools, and returns the
// clients with the combined descriptors. Servers that fail are logged and
// skipped so one unreachable server does not block startup.
func ConnectAll(ctx context.Context, servers []ServerConfig, logger *slog.Logger) ([]*Client, []plugin.Descriptor) {
	if logger == nil {
		logger = slog.Default()
	}
	var clients []*Client
	var descs []plugin.Descriptor
	for _, cfg := range servers {
		c := NewClient(cfg, logger)
		if err := c.Connect(ctx); err != nil {
			logger.Error("failed to connect MCP server", "mcp_server", cfg.Name, "error", err)
			continue
		}
		found, err := c.Discover(ctx)
		if err != nil {
			logger.Error("failed to discover MCP tools", "mcp_server", cfg.Name, "error", err)
			_ = c.Close()
			continue
		}
		clients = append(clients, c)
		descs = append(descs, found...)
	}
	return clients, descs
}
