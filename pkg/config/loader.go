package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, PLUGFLOW_CONFIG env, ./config.yaml, /etc/plugflow/config.yaml)
//  3. PLUGFLOW_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. PLUGFLOW_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/plugflow/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("PLUGFLOW_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/plugflow/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so typos in policy settings do not pass
// silently.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps PLUGFLOW_* environment variables to config fields.
// Malformed values are reported together.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	num("PLUGFLOW_PORT", &cfg.Server.Port)
	list("PLUGFLOW_CORS_ORIGINS", &cfg.Server.CORSOrigins)

	str("PLUGFLOW_PROVIDER", &cfg.Engine.Provider)
	str("PLUGFLOW_BACKEND_URL", &cfg.Engine.BackendURL)
	str("PLUGFLOW_API_KEY", &cfg.Engine.APIKey)
	str("PLUGFLOW_MODEL", &cfg.Engine.DefaultModel)
	num("PLUGFLOW_MAX_CHAIN_DEPTH", &cfg.Engine.MaxChainDepth)
	dur("PLUGFLOW_PLUGIN_TIMEOUT", &cfg.Engine.PluginTimeout)
	if v := os.Getenv("PLUGFLOW_PROVIDER_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLUGFLOW_PROVIDER_RPS: %w", err))
		} else {
			cfg.Engine.ProviderRPS = rps
		}
	}

	list("PLUGFLOW_BUILTIN_PLUGINS", &cfg.Plugins.Builtin)
	list("PLUGFLOW_ALLOWED_PLUGINS", &cfg.Security.Allowlist)
	list("PLUGFLOW_DISABLED_PLUGINS", &cfg.Security.Disabled)
	list("PLUGFLOW_CONFIRM_PLUGINS", &cfg.Security.RequireConfirmation)

	num("PLUGFLOW_MAX_RETRIES", &cfg.Resilience.MaxRetries)
	num("PLUGFLOW_FAILURE_THRESHOLD", &cfg.Resilience.FailureThreshold)

	str("PLUGFLOW_AUDIT", &cfg.Audit.Type)
	num("PLUGFLOW_AUDIT_SIZE", &cfg.Audit.MaxSize)
	str("PLUGFLOW_POSTGRES_DSN", &cfg.Audit.Postgres.DSN)

	str("PLUGFLOW_METRICS_PATH", &cfg.Observability.Metrics.Path)
	str("PLUGFLOW_LOG_FORMAT", &cfg.Observability.LogFormat)

	// PLUGFLOW_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("PLUGFLOW_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLUGFLOW_MCP_SERVERS: %w", err))
		} else if len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	if cfg.Engine.APIKeyFile != "" && cfg.Engine.APIKey == "" {
		val, err := readSecretFile(cfg.Engine.APIKeyFile)
		if err != nil {
			return fmt.Errorf("engine.api_key_file: %w", err)
		}
		cfg.Engine.APIKey = val
	}

	if cfg.Audit.Postgres.DSNFile != "" && cfg.Audit.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Audit.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("audit.postgres.dsn_file: %w", err)
		}
		cfg.Audit.Postgres.DSN = val
	}

	for i := range cfg.MCP.Servers {
		s := &cfg.MCP.Servers[i]
		if s.ClientSecretFile != "" && s.Auth.ClientSecret == "" {
			val, err := readSecretFile(s.ClientSecretFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].client_secret_file: %w", i, err)
			}
			s.Auth.ClientSecret = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
