// Package main provides the entry point for the deltasched scheduling proxy.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deltasched/scheduler/cmd/scheduler/commands"
	"github.com/deltasched/scheduler/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "deltasched",
		Short: "deltasched - client-side scheduling proxy for remote function execution",
		Long: `deltasched routes function-execution calls across a fleet of configured
remote compute endpoints, choosing among them with a learned runtime/transfer/
queue model, and tracks every task through to its result.

Commands:
  serve      Run the scheduling proxy daemon
  endpoints  Print the configured endpoint fleet as a table
  chart      Render a transfer-predictor snapshot's transfer times as an HTML chart`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewEndpointsCommand())
	rootCmd.AddCommand(commands.NewChartCommand())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "deltasched %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
