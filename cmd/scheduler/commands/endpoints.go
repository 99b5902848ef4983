package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/deltasched/scheduler/internal/config"
)

type endpointsOptions struct {
	configFile    string
	endpointsFile string
}

// NewEndpointsCommand prints the configured endpoint fleet as a table,
// without starting the daemon.
func NewEndpointsCommand() *cobra.Command {
	opts := &endpointsOptions{}

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Print the configured endpoint fleet as a table",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runEndpoints(opts)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "Configuration file path (default: built-in defaults + env)")
	cmd.Flags().StringVar(&opts.endpointsFile, "endpoints", "", "Endpoints file path (overrides config's endpoints_file)")

	return cmd
}

func runEndpoints(opts *endpointsOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	endpointsFile := cfg.EndpointsFile
	if opts.endpointsFile != "" {
		endpointsFile = opts.endpointsFile
	}

	specs, err := config.LoadEndpoints(endpointsFile)
	if err != nil {
		return fmt.Errorf("load endpoints: %w", err)
	}

	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Endpoint", "Name", "Group", "Transfer Group", "Globus", "Launch Time (s)"})

	for _, id := range ids {
		spec := specs[id]
		tbl.AppendRow(table.Row{id, spec.Name, spec.Group, spec.TransferGroup, spec.Globus, spec.LaunchTime})
	}

	tbl.AppendFooter(table.Row{"", "", "", "", "Total", len(ids)})
	tbl.Render()

	return nil
}
