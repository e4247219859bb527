// Command plugflow runs the plugin-calling chat gateway.
//
//	plugflow serve --config config.yaml
//	plugflow plugins
//	plugflow config validate
//
// Without --config the file is discovered from PLUGFLOW_CONFIG,
// ./config.yaml and /etc/plugflow/config.yaml. PLUGFLOW_* environment
// variables override file values.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "plugflow",
		Short:         "Plugin-calling chat gateway",
		Long:          `plugflow streams chat completions and executes the functions the model calls through governed plugins.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(pluginsCmd(&configPath))
	rootCmd.AddCommand(configCmd(&configPath))

	return rootCmd
}
