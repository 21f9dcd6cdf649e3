package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/pmdeck/pkg/client"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := createRootCommand(flags)
	root.AddCommand(
		createServeCommand(flags),
		createMCPCommand(flags),
		createListCommand(flags),
		createGetCommand(flags),
		createLifecycleCommand(flags, "start", "Start a process or all processes"),
		createLifecycleCommand(flags, "stop", "Stop a process or all processes"),
		createLifecycleCommand(flags, "restart", "Restart a process or all processes"),
		createAddCommand(flags),
		createUpdateCommand(flags),
		createDeleteCommand(flags),
		createLogsCommand(flags),
		createMetricsCommand(flags),
		createVersionCommand(flags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "pmdeck",
		Short: "Process supervisor with an HTTP and MCP control surface",
		Long: `pmdeck keeps a registry of long-running processes, starts and stops them,
captures their output and reports resource usage.

Examples:
  pmdeck serve --config pmdeck.toml
  pmdeck add --name web --script "node server.js" --cwd /srv/web --autostart
  pmdeck list
  pmdeck restart 3
  pmdeck stop --all
  pmdeck logs 3 --lines 50`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", client.DefaultBaseURL, "pmdeck API base URL")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "timeout", client.DefaultTimeout, "API request timeout")
	return root
}
