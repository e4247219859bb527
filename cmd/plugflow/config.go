package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/plugflow/pkg/config"
)

const redacted = "<redacted>"

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.Load(*configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redact(*cfg))
		},
	})
	return cmd
}

// redact blanks secret values. cfg is a copy; slices are cloned before
// modification.
func redact(cfg config.Config) config.Config {
	if cfg.Engine.APIKey != "" {
		cfg.Engine.APIKey = redacted
	}
	if cfg.Audit.Postgres.DSN != "" {
		cfg.Audit.Postgres.DSN = redacted
	}
	servers := make([]config.MCPServerConfig, len(cfg.MCP.Servers))
	for i, s := range cfg.MCP.Servers {
		if s.Auth.ClientSecret != "" {
			s.Auth.ClientSecret = redacted
		}
		if len(s.Headers) > 0 {
			h := make(map[string]string, len(s.Headers))
			for k := range s.Headers {
				h[k] = redacted
			}
			s.Headers = h
		}
		servers[i] = s
	}
	cfg.MCP.Servers = servers
	return cfg
}
