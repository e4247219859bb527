package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All failures are returned together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	if c.Engine.BackendURL == "" {
		errs = append(errs, fmt.Errorf("engine.backend_url is required"))
	}
	switch c.Engine.Provider {
	case "openai", "":
	default:
		errs = append(errs, fmt.Errorf("engine.provider must be \"openai\", got %q", c.Engine.Provider))
	}
	if c.Engine.MaxChainDepth <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_chain_depth must be > 0, got %d", c.Engine.MaxChainDepth))
	}
	if c.Engine.ProviderRPS < 0 {
		errs = append(errs, fmt.Errorf("engine.provider_rps must be >= 0, got %g", c.Engine.ProviderRPS))
	}
	if c.Engine.ProviderRPS > 0 && c.Engine.ProviderBurst <= 0 {
		errs = append(errs, fmt.Errorf("engine.provider_burst must be > 0 when provider_rps is set"))
	}

	if _, err := c.Security.Limits(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, validateNames("security.allowlist", c.Security.Allowlist)...)
	errs = append(errs, validateNames("security.disabled", c.Security.Disabled)...)
	errs = append(errs, validateNames("security.require_confirmation", c.Security.RequireConfirmation)...)

	if c.Resilience.FailureThreshold <= 0 {
		errs = append(errs, fmt.Errorf("resilience.failure_threshold must be > 0, got %d", c.Resilience.FailureThreshold))
	}
	if c.Resilience.RecoveryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("resilience.recovery_timeout must be > 0, got %s", c.Resilience.RecoveryTimeout))
	}
	if c.Resilience.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_retries must be >= 0, got %d", c.Resilience.MaxRetries))
	}
	if c.Resilience.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("resilience.base_delay must be >= 0, got %s", c.Resilience.BaseDelay))
	}

	seen := make(map[string]bool, len(c.MCP.Servers))
	for i, s := range c.MCP.Servers {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mcp.servers[%d]: %w", i, err))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("mcp.servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
	}

	switch c.Audit.Type {
	case "none", "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("audit.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Audit.Type))
	}
	if c.Audit.Type == "postgres" && c.Audit.Postgres.DSN == "" && c.Audit.Postgres.DSNFile == "" {
		errs = append(errs, fmt.Errorf("audit.postgres.dsn or audit.postgres.dsn_file is required when audit.type is \"postgres\""))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with /, got %q", c.Observability.Metrics.Path))
	}
	switch strings.ToUpper(c.Observability.LogLevel) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("observability.log_level must be one of trace, debug, info, warn, error; got %q", c.Observability.LogLevel))
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.log_format must be \"text\" or \"json\", got %q", c.Observability.LogFormat))
	}

	return errors.Join(errs...)
}

func validateNames(field string, names []string) []error {
	var errs []error
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			errs = append(errs, fmt.Errorf("%s[%d] must not be empty", field, i))
		}
	}
	return errs
}
