package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/query"
	"github.com/teranos/catalog/types"
)

// ExecCmd groups execution queries and writes
var ExecCmd = &cobra.Command{
	Use:   "exec",
	Short: "Query and record algorithm executions",
	Long: `Query and record algorithm executions.

Examples:
  catalog exec ls --algorithm pagerank --sort cost --page 2
  catalog exec show 7c1e...
  catalog exec recent --hours 6
  catalog exec compare pagerank --versions ">= 2.0"
  catalog exec track run.json`,
}

var execLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List executions, sorted and paginated",
	RunE:  runExecLs,
}

var execShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecShow,
}

var execTrackCmd = &cobra.Command{
	Use:   "track <file.json>",
	Short: "Validate and record an execution from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecTrack,
}

var execStatusCmd = &cobra.Command{
	Use:   "status <execution-id> <status>",
	Short: "Update an execution's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runExecStatus,
}

var execRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Executions from the last N hours",
	RunE:  runExecRecent,
}

var execFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Failed executions, newest first",
	RunE:  runExecFailed,
}

var execSlowestCmd = &cobra.Command{
	Use:   "slowest",
	Short: "Executions with the longest run time",
	RunE:  runExecSlowest,
}

var execExpensiveCmd = &cobra.Command{
	Use:   "expensive",
	Short: "Executions with the highest reported cost",
	RunE:  runExecExpensive,
}

var execCompareCmd = &cobra.Command{
	Use:   "compare <algorithm>",
	Short: "Summarize performance across runs of one algorithm",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecCompare,
}

var (
	execFilter    executionFilterFlags
	execPage      int
	execPageSize  int
	execSortField string
	execAscending bool

	execAlgorithm string
	execLimit     int
	execHours     int

	execStatusMessage string

	compareSince    string
	compareVersions string
)

func init() {
	execFilter.register(execLsCmd)
	execLsCmd.Flags().IntVar(&execPage, "page", 1, "Page number, starting at 1")
	execLsCmd.Flags().IntVar(&execPageSize, "page-size", 20, "Items per page (1-1000)")
	execLsCmd.Flags().StringVar(&execSortField, "sort", query.SortTimestamp,
		"Sort field: timestamp, execution_time, cost, algorithm, result_count, or a metadata key")
	execLsCmd.Flags().BoolVar(&execAscending, "asc", false, "Sort ascending")

	for _, c := range []*cobra.Command{execRecentCmd, execFailedCmd, execSlowestCmd, execExpensiveCmd} {
		c.Flags().StringVarP(&execAlgorithm, "algorithm", "a", "", "Only this algorithm")
		c.Flags().IntVarP(&execLimit, "limit", "l", 10, "Maximum number of results")
	}
	execRecentCmd.Flags().IntVar(&execHours, "hours", 24, "Look back this many hours")

	execStatusCmd.Flags().StringVarP(&execStatusMessage, "message", "m", "", "Error message to record")

	execCompareCmd.Flags().StringVar(&compareSince, "since", "", "Only runs at or after this time (RFC3339 or YYYY-MM-DD)")
	execCompareCmd.Flags().StringVar(&compareVersions, "versions", "", `Only runs whose algorithm_version satisfies this constraint, e.g. ">= 2.0, < 3"`)

	ExecCmd.AddCommand(execLsCmd, execShowCmd, execTrackCmd, execStatusCmd,
		execRecentCmd, execFailedCmd, execSlowestCmd, execExpensiveCmd, execCompareCmd)
}

func runExecLs(cmd *cobra.Command, args []string) error {
	filter, err := execFilter.build()
	if err != nil {
		return err
	}
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.engine().QueryWithPagination(cmd.Context(), filter,
		&query.Sort{Field: execSortField, Ascending: execAscending}, execPage, execPageSize)
	if err != nil {
		return err
	}
	if done, err := printStructured(res); done {
		return err
	}
	if err := renderTable(executionHeader, executionRows(res.Items)); err != nil {
		return err
	}
	pterm.Printf("Page %d of %d (%d executions)\n", res.Page, res.TotalPages, res.TotalCount)
	return nil
}

func runExecShow(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	exec, err := e.catalog.GetExecution(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if done, err := printStructured(exec); done {
		return err
	}

	pairs := [][2]string{
		{"ID", exec.ID},
		{"Timestamp", formatTime(exec.Timestamp)},
		{"Algorithm", strings.TrimSpace(exec.Algorithm + " " + exec.AlgorithmVersion)},
		{"Status", string(exec.Status)},
		{"Template", exec.TemplateID},
		{"Use case", types.Deref(exec.UseCaseID)},
		{"Requirements", types.Deref(exec.RequirementsID)},
		{"Epoch", types.Deref(exec.EpochID)},
		{"Graph", exec.GraphConfig.GraphName},
		{"Results", fmt.Sprintf("%d at %s", exec.ResultCount, exec.ResultsLocation)},
		{"Time (s)", fmt.Sprintf("%.2f", exec.Performance.ExecutionTimeSeconds)},
		{"Cost", formatCost(exec)},
	}
	if exec.ErrorMessage != nil {
		pairs = append(pairs, [2]string{"Error", *exec.ErrorMessage})
	}
	return renderKeyValues(pairs)
}

func runExecTrack(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}
	var exec types.Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return errors.Mark(errors.Wrapf(err, "%s is not a valid execution", args[0]), errors.ErrValidation)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.catalog.TrackExecution(cmd.Context(), &exec)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Tracked execution %s\n", id)
	return nil
}

func runExecStatus(cmd *cobra.Command, args []string) error {
	status := types.ExecutionStatus(args[1])
	var message *string
	if execStatusMessage != "" {
		message = &execStatusMessage
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	exec, err := e.catalog.UpdateExecutionStatus(cmd.Context(), args[0], status, message)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Execution %s is now %s\n", exec.ID, exec.Status)
	return nil
}

// runView opens the catalog and prints what view returns
func runView(cmd *cobra.Command, view func(e *env) ([]*types.Execution, error)) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	execs, err := view(e)
	if err != nil {
		return err
	}
	return printExecutions(execs)
}

func runExecRecent(cmd *cobra.Command, args []string) error {
	return runView(cmd, func(e *env) ([]*types.Execution, error) {
		return e.engine().GetRecentExecutions(cmd.Context(), execHours, execAlgorithm, execLimit)
	})
}

func runExecFailed(cmd *cobra.Command, args []string) error {
	return runView(cmd, func(e *env) ([]*types.Execution, error) {
		return e.engine().GetFailedExecutions(cmd.Context(), execAlgorithm, execLimit)
	})
}

func runExecSlowest(cmd *cobra.Command, args []string) error {
	return runView(cmd, func(e *env) ([]*types.Execution, error) {
		return e.engine().GetSlowestExecutions(cmd.Context(), execAlgorithm, execLimit)
	})
}

func runExecExpensive(cmd *cobra.Command, args []string) error {
	return runView(cmd, func(e *env) ([]*types.Execution, error) {
		return e.engine().GetMostExpensiveExecutions(cmd.Context(), execAlgorithm, execLimit)
	})
}

func runExecCompare(cmd *cobra.Command, args []string) error {
	since, err := parseTimeFlag("since", compareSince)
	if err != nil {
		return err
	}
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	perf, err := e.engine().CompareAlgorithmPerformance(cmd.Context(), args[0], query.CompareOptions{
		StartDate:         since,
		VersionConstraint: compareVersions,
	})
	if err != nil {
		return err
	}
	if done, err := printStructured(perf); done {
		return err
	}

	span := "-"
	if perf.Oldest != nil {
		span = formatTime(*perf.Oldest) + " .. " + formatTime(*perf.Newest)
	}
	versions := strings.Join(perf.Versions, ", ")
	if versions == "" {
		versions = "-"
	}
	return renderKeyValues([][2]string{
		{"Algorithm", perf.Algorithm},
		{"Runs", fmt.Sprint(perf.Count)},
		{"Time range", span},
		{"Avg time (s)", fmt.Sprintf("%.2f", perf.AvgExecutionTime)},
		{"Min time (s)", fmt.Sprintf("%.2f", perf.MinExecutionTime)},
		{"Max time (s)", fmt.Sprintf("%.2f", perf.MaxExecutionTime)},
		{"Total cost", fmt.Sprintf("$%.4f", perf.TotalCost)},
		{"Avg cost", fmt.Sprintf("$%.4f", perf.AvgCost)},
		{"Versions", versions},
	})
}
