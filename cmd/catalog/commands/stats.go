package commands

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/catalog/types"
)

// StatsCmd shows collection totals and aggregates over a filtered execution set
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	Long: `Show collection totals and aggregate execution statistics.

Filter flags narrow the aggregate section; totals always cover the whole catalog.

Examples:
  catalog stats
  catalog stats --algorithm pagerank --since 2026-01-01
  catalog stats --epoch 3f2a... --output json`,
	RunE: runStats,
}

var statsFilter executionFilterFlags

func init() {
	statsFilter.register(StatsCmd)
}

type statsReport struct {
	Catalog    *types.CatalogStatistics `json:"catalog"`
	Executions *types.QueryStatistics   `json:"executions"`
}

func runStats(cmd *cobra.Command, args []string) error {
	filter, err := statsFilter.build()
	if err != nil {
		return err
	}
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	totals, err := e.catalog.GetStatistics(ctx)
	if err != nil {
		return err
	}
	agg, err := e.engine().GetStatistics(ctx, filter)
	if err != nil {
		return err
	}

	report := statsReport{Catalog: totals, Executions: agg}
	if done, err := printStructured(report); done {
		return err
	}

	pterm.DefaultSection.Println("Catalog")
	if err := renderKeyValues([][2]string{
		{"Executions", strconv.Itoa(totals.TotalExecutions)},
		{"Epochs", strconv.Itoa(totals.TotalEpochs)},
		{"Requirements", strconv.Itoa(totals.TotalRequirements)},
		{"Use cases", strconv.Itoa(totals.TotalUseCases)},
		{"Templates", strconv.Itoa(totals.TotalTemplates)},
		{"By algorithm", formatCounts(totals.ExecutionsByAlgorithm)},
		{"By status", formatCounts(totals.ExecutionsByStatus)},
	}); err != nil {
		return err
	}

	pterm.DefaultSection.Println("Executions")
	span := "-"
	if agg.TimeRange.Start != nil {
		span = formatTime(*agg.TimeRange.Start) + " .. " + formatTime(*agg.TimeRange.End)
	}
	return renderKeyValues([][2]string{
		{"Matched", strconv.Itoa(agg.TotalCount)},
		{"Time range", span},
		{"Algorithms", formatCounts(agg.Algorithms)},
		{"Statuses", formatCounts(agg.Statuses)},
		{"Total time (s)", fmt.Sprintf("%.2f", agg.TotalExecutionTime)},
		{"Avg time (s)", fmt.Sprintf("%.2f", agg.AvgExecutionTime)},
		{"Total cost", fmt.Sprintf("$%.4f", agg.TotalCost)},
		{"Avg cost", fmt.Sprintf("$%.4f (%d reporting)", agg.AvgCost, agg.CostReportingCount)},
	})
}
