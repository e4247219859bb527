package mcp

import (
	"errors"
	"fmt"

	"github.com/rhuss/plugflow/pkg/plugin"
)

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name identifies the server and is the Backend of its plugins.
	Name string `yaml:"name" json:"name"`

	// Transport is "streamable-http" (default) or "sse".
	Transport string `yaml:"transport" json:"transport"`

	URL string `yaml:"url" json:"url"`

	// Headers are sent with every request, typically for API keys.
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`

	Auth AuthConfig `yaml:"auth" json:"auth,omitempty"`

	// Tools restricts which discovered tools become plugins. Empty imports
	// all of them.
	Tools []string `yaml:"tools" json:"tools,omitempty"`

	// RiskTier is assigned to every plugin imported from this server.
	RiskTier plugin.RiskTier `yaml:"risk_tier" json:"riskTier"`
}

// AuthConfig selects dynamic authentication for a server.
type AuthConfig struct {
	// Type is "" (none) or "oauth_client_credentials".
	Type         string   `yaml:"type" json:"type,omitempty"`
	TokenURL     string   `yaml:"token_url" json:"tokenUrl,omitempty"`
	ClientID     string   `yaml:"client_id" json:"clientId,omitempty"`
	ClientSecret string   `yaml:"client_secret" json:"-"`
	Scopes       []string `yaml:"scopes" json:"scopes,omitempty"`
}

// Validate checks the server configuration.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Name == plugin.BackendBuiltin {
		errs = append(errs, fmt.Errorf("name %q is reserved", plugin.BackendBuiltin))
	}
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	switch c.Transport {
	case "", "streamable-http", "sse":
	default:
		errs = append(errs, fmt.Errorf("unsupported transport %q", c.Transport))
	}
	switch c.Auth.Type {
	case "":
	case "oauth_client_credentials":
		if c.Auth.TokenURL == "" || c.Auth.ClientID == "" {
			errs = append(errs, errors.New("oauth_client_credentials requires token_url and client_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported auth type %q", c.Auth.Type))
	}
	if len(errs) > 0 {
		return fmt.Errorf("mcp server %q: %w", c.Name, errors.Join(errs...))
	}
	return nil
}
