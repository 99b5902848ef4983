package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"

	"github.com/deltasched/scheduler/pkg/mathutil"
	"github.com/deltasched/scheduler/pkg/predictor"
)

type chartOptions struct {
	snapshotPath string
	output       string
}

// NewChartCommand renders a transfer-predictor snapshot's learned
// (source group, destination group) transfer-time history as an HTML line
// chart, one series per (source group, destination group) pair.
func NewChartCommand() *cobra.Command {
	opts := &chartOptions{}

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render transfer-group transfer-time history as an HTML chart",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runChart(opts)
		},
	}

	cmd.Flags().StringVar(&opts.snapshotPath, "snapshot", "", "Transfer-predictor snapshot file (required)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "transfer_history.html", "Output HTML file path")
	_ = cmd.MarkFlagRequired("snapshot")

	return cmd
}

func runChart(cliOpts *chartOptions) error {
	tp := predictor.NewTransferPredictor(1)

	if err := predictor.LoadSnapshotFile(tp, cliOpts.snapshotPath); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	snap := tp.ToSnapshot()

	srcGroups := make([]string, 0, len(snap.Times))
	for src := range snap.Times {
		srcGroups = append(srcGroups, src)
	}

	sort.Strings(srcGroups)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "500px"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithTitleOpts(opts.Title{Title: "Observed Transfer Times", Subtitle: "seconds, per sample index, by source -> destination group"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	maxSamples := 0

	for _, src := range srcGroups {
		for _, times := range snap.Times[src] {
			maxSamples = mathutil.Max(maxSamples, len(times))
		}
	}

	labels := make([]string, maxSamples)
	for i := range labels {
		labels[i] = fmt.Sprintf("%d", i)
	}

	line.SetXAxis(labels)

	for _, src := range srcGroups {
		dstGroups := make([]string, 0, len(snap.Times[src]))
		for dst := range snap.Times[src] {
			dstGroups = append(dstGroups, dst)
		}

		sort.Strings(dstGroups)

		for _, dst := range dstGroups {
			times := snap.Times[src][dst]

			data := make([]opts.LineData, len(times))
			for i, t := range times {
				data[i] = opts.LineData{Value: t}
			}

			line.AddSeries(fmt.Sprintf("%s -> %s", src, dst), data)
		}
	}

	f, err := os.Create(cliOpts.output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}

	fmt.Fprintf(os.Stdout, "wrote %s\n", cliOpts.output)

	return nil
}
