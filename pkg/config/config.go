// Package config provides unified configuration for the plugflow server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (PLUGFLOW_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/rhuss/plugflow/pkg/plugin/mcp"
	"github.com/rhuss/plugflow/pkg/ratelimit"
)

// Config holds all configuration for the plugflow server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Plugins       PluginsConfig       `yaml:"plugins"`
	Security      SecurityConfig      `yaml:"security"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	MCP           MCPConfig           `yaml:"mcp"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 0 (streams are long-lived)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	CORSOrigins     []string      `yaml:"cors_origins"`     // empty disables CORS handling
}

// EngineConfig holds provider and orchestration settings.
type EngineConfig struct {
	Provider        string        `yaml:"provider"`         // "openai", default: "openai"
	BackendURL      string        `yaml:"backend_url"`      // required
	APIKey          string        `yaml:"api_key"`          // optional
	APIKeyFile      string        `yaml:"api_key_file"`     // _file variant for api_key
	DefaultModel    string        `yaml:"default_model"`    // optional
	ProviderTimeout time.Duration `yaml:"provider_timeout"` // default: 0 (no client timeout)
	ProviderRPS     float64       `yaml:"provider_rps"`     // 0 disables throttling
	ProviderBurst   int           `yaml:"provider_burst"`   // default: 1
	MaxChainDepth   int           `yaml:"max_chain_depth"`  // default: 10
	PluginTimeout   time.Duration `yaml:"plugin_timeout"`   // default: 30s
}

// PluginsConfig selects the built-in plugins.
type PluginsConfig struct {
	// Builtin names the built-in plugins to register. Empty registers all.
	Builtin []string `yaml:"builtin"`
}

// SecurityConfig is the static plugin policy.
type SecurityConfig struct {
	// Allowlist names the plugins that may run. Empty allows every
	// registered plugin.
	Allowlist           []string `yaml:"allowlist"`
	RequireConfirmation []string `yaml:"require_confirmation"`
	Disabled            []string `yaml:"disabled"`

	// RateLimits maps plugin names to "N/unit" budgets, e.g. "10/minute".
	RateLimits map[string]string `yaml:"rate_limits"`

	// ConfirmSystemModifying adds every system_modifying plugin to
	// RequireConfirmation. Default: true.
	ConfirmSystemModifying bool `yaml:"confirm_system_modifying"`
}

// ResilienceConfig holds circuit breaker and retry settings.
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"` // default: 5
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`  // default: 60s
	MaxRetries       int           `yaml:"max_retries"`       // default: 3
	BaseDelay        time.Duration `yaml:"base_delay"`        // default: 1s
	MaxDelay         time.Duration `yaml:"max_delay"`         // default: 30s
}

// MCPConfig holds MCP (Model Context Protocol) plugin server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	mcp.ServerConfig `yaml:",inline"`

	// ClientSecretFile is the _file variant for auth.client_secret.
	ClientSecretFile string `yaml:"client_secret_file" json:"clientSecretFile,omitempty"`
}

// AuditConfig selects the invocation audit ledger.
type AuditConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// ObservabilityConfig holds monitoring and logging settings.
type ObservabilityConfig struct {
	Metrics   MetricsConfig `yaml:"metrics"`
	LogLevel  string        `yaml:"log_level"`  // default: "info"
	LogFormat string        `yaml:"log_format"` // "text" or "json", default: "text"

	// Debug is a comma-separated list of debug categories.
	Debug string `yaml:"debug"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			Provider:      "openai",
			ProviderBurst: 1,
			MaxChainDepth: 10,
			PluginTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			ConfirmSystemModifying: true,
		},
		Resilience: ResilienceConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			MaxRetries:       3,
			BaseDelay:        time.Second,
			MaxDelay:         30 * time.Second,
		},
		Audit: AuditConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// MCPServers returns the resolved MCP server configurations.
func (c *Config) MCPServers() []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, 0, len(c.MCP.Servers))
	for _, s := range c.MCP.Servers {
		out = append(out, s.ServerConfig)
	}
	return out
}

// Limits parses the configured rate limits.
func (s SecurityConfig) Limits() (map[string]ratelimit.Rate, error) {
	names := make([]string, 0, len(s.RateLimits))
	for name := range s.RateLimits {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]ratelimit.Rate, len(names))
	for _, name := range names {
		r, err := ratelimit.ParseRate(s.RateLimits[name])
		if err != nil {
			return nil, fmt.Errorf("security.rate_limits.%s: %w", name, err)
		}
		out[name] = r
	}
	return out, nil
}
