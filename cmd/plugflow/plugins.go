package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rhuss/plugflow/pkg/config"
	"github.com/rhuss/plugflow/pkg/engine"
)

func pluginsCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List registered plugins with their effective policy",
		Long: `Connect to the configured MCP servers, register all plugins and print
each one with its risk tier, backend and the decision of the security policy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			logger := initLogging(cfg)

			app, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			plugins := app.orchestrator.Plugins()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plugins)
			}
			return printPlugins(cmd.OutOrStdout(), plugins)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printPlugins(out io.Writer, plugins []engine.PluginStatus) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBACKEND\tRISK\tPOLICY\tRATE LIMIT")
	for _, p := range plugins {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.Descriptor.Name,
			p.Descriptor.Backend,
			p.Descriptor.RiskTier,
			policyLabel(p),
			rateLabel(p),
		)
	}
	return tw.Flush()
}

func policyLabel(p engine.PluginStatus) string {
	switch {
	case !p.Policy.Allowed:
		return "denied"
	case p.Policy.RequiresConfirmation:
		return "confirm"
	default:
		return "allowed"
	}
}

func rateLabel(p engine.PluginStatus) string {
	if p.RateLimit == nil {
		return "-"
	}
	return p.RateLimit.Limit
}
