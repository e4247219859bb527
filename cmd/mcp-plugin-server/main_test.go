package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/plugflow/pkg/plugin"
	pluginmcp "github.com/rhuss/plugflow/pkg/plugin/mcp"
)

func connect(t *testing.T, tickets *ticketStore) *pluginmcp.Client {
	t.Helper()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = newServer(tickets).Run(ctx, serverTransport) }()

	c := pluginmcp.NewClient(pluginmcp.ServerConfig{Name: "helpdesk", RiskTier: plugin.SystemModifying}, nil)
	require.NoError(t, c.ConnectWithTransport(ctx, clientTransport))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestToolsImportAsPlugins(t *testing.T) {
	c := connect(t, newTicketStore())

	descs, err := c.Discover(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.Name)
		assert.Equal(t, "helpdesk", d.Backend)
		assert.Equal(t, plugin.SystemModifying, d.RiskTier)
	}
	assert.ElementsMatch(t, []string{"get_time", "echo", "create_ticket"}, names)

	reg, err := plugin.NewRegistry(descs...)
	require.NoError(t, err)
	require.NoError(t, reg.ValidateArguments("create_ticket", json.RawMessage(`{"title":"printer on fire"}`)))
}

func TestCreateTicket(t *testing.T) {
	tickets := newTicketStore()
	c := connect(t, tickets)
	_, err := c.Discover(context.Background())
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), "create_ticket", json.RawMessage(`{"title":"VPN down","priority":"high"}`))
	require.NoError(t, err)
	assert.Equal(t, "Created ticket TCK-0001 (high priority): VPN down", out)
	assert.Equal(t, 1, tickets.len())

	_, err = c.Invoke(context.Background(), "create_ticket", json.RawMessage(`{"title":"  "}`))
	require.Error(t, err)
	assert.Equal(t, 1, tickets.len())
}

func TestEcho(t *testing.T) {
	c := connect(t, newTicketStore())
	_, err := c.Discover(context.Background())
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Echo: hi"))
}
