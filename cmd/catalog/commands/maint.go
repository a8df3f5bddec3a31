package commands

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/manager"
)

// MaintCmd groups catalog maintenance
var MaintCmd = &cobra.Command{
	Use:   "maint",
	Short: "Catalog maintenance: integrity, cleanup, usage",
	Long: `Catalog maintenance.

Batch operations never stop at the first failing item; failures are listed
at the end. Use --dry-run to see what would change.

Examples:
  catalog maint validate
  catalog maint repair --orphans --links
  catalog maint cleanup --older-than 30 --dry-run
  catalog maint delete --algorithm legacy_bfs --until 2025-12-31
  catalog maint usage`,
}

var maintValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every execution's references",
	RunE:  runMaintValidate,
}

var maintRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Fix what validate reports",
	RunE:  runMaintRepair,
}

var maintVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Delete executions whose template no longer exists",
	RunE:  runMaintVacuum,
}

var maintCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete failed executions older than a number of days",
	RunE:  runMaintCleanup,
}

var maintDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete every execution matching the filter flags",
	RunE:  runMaintDelete,
}

var maintUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show storage usage",
	RunE:  runMaintUsage,
}

var maintResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete everything in the catalog",
	RunE:  runMaintReset,
}

var (
	maintDryRun    bool
	maintOrphans   bool
	maintLinks     bool
	maintOlderThan int
	maintConfirm   bool
	maintFilter    executionFilterFlags
)

func init() {
	for _, c := range []*cobra.Command{maintVacuumCmd, maintCleanupCmd, maintDeleteCmd} {
		c.Flags().BoolVar(&maintDryRun, "dry-run", false, "Report without deleting")
	}
	maintRepairCmd.Flags().BoolVar(&maintOrphans, "orphans", false, "Delete executions whose template is missing")
	maintRepairCmd.Flags().BoolVar(&maintLinks, "links", false, "Clear dangling use case, requirements and epoch references")
	maintCleanupCmd.Flags().IntVar(&maintOlderThan, "older-than", -1, "Age in days (default: maintenance.failed_retention_days)")
	maintFilter.register(maintDeleteCmd)
	maintResetCmd.Flags().BoolVar(&maintConfirm, "yes", false, "Confirm deleting everything")

	MaintCmd.AddCommand(maintValidateCmd, maintRepairCmd, maintVacuumCmd, maintCleanupCmd,
		maintDeleteCmd, maintUsageCmd, maintResetCmd)
}

func runMaintValidate(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.manager().ValidateCatalogIntegrity(cmd.Context())
	if err != nil {
		return err
	}
	if done, err := printStructured(report); done {
		return err
	}
	printIntegrity(report)
	return nil
}

func printIntegrity(report *manager.IntegrityReport) {
	rows := make([][]string, 0, len(report.Errors)+len(report.Warnings))
	for _, issue := range report.Errors {
		rows = append(rows, []string{"error", issue.ExecutionID, issue.Field, issue.RefID})
	}
	for _, issue := range report.Warnings {
		rows = append(rows, []string{"warning", issue.ExecutionID, issue.Field, issue.RefID})
	}
	if len(rows) > 0 {
		_ = renderTable([]string{"SEVERITY", "EXECUTION", "FIELD", "MISSING"}, rows)
	}

	summary := fmt.Sprintf("%d executions checked: %d errors, %d warnings",
		report.ExecutionsChecked, len(report.Errors), len(report.Warnings))
	if report.Healthy {
		pterm.Success.Println(summary)
	} else {
		pterm.Error.Println(summary)
	}
}

func runMaintRepair(cmd *cobra.Command, args []string) error {
	if !maintOrphans && !maintLinks {
		return errors.WithHint(errors.NewValidationError("nothing to repair"), "pass --orphans, --links or both")
	}
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.manager().RepairCatalog(cmd.Context(), maintOrphans, maintLinks)
	if err != nil {
		return err
	}
	if done, err := printStructured(res); done {
		return err
	}
	pterm.Success.Printf("Deleted %d orphaned executions, cleared %d dangling references\n",
		res.OrphansDeleted, res.LinksCleared)
	printItemErrors(res.Errors)
	return nil
}

func runMaintVacuum(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.manager().VacuumOrphanedData(cmd.Context(), maintDryRun)
	if err != nil {
		return err
	}
	return printBatch(res)
}

func runMaintCleanup(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	days := maintOlderThan
	if days < 0 {
		days = e.cfg.Maintenance.FailedRetentionDays
	}
	res, err := e.manager().CleanupFailedExecutions(cmd.Context(), days, maintDryRun)
	if err != nil {
		return err
	}
	return printBatch(res)
}

func runMaintDelete(cmd *cobra.Command, args []string) error {
	filter, err := maintFilter.build()
	if err != nil {
		return err
	}
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.manager().BatchDeleteExecutions(cmd.Context(), filter, maintDryRun)
	if err != nil {
		return err
	}
	return printBatch(res)
}

func runMaintUsage(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	u, err := e.manager().GetStorageUsage(cmd.Context())
	if err != nil {
		return err
	}
	if done, err := printStructured(u); done {
		return err
	}

	location := u.Path
	if location == "" {
		location = "(in memory)"
	}
	pairs := [][2]string{
		{"Backend", u.Backend},
		{"Location", location},
		{"Executions", strconv.Itoa(u.Executions)},
		{"Epochs", strconv.Itoa(u.Epochs)},
		{"Result rows", strconv.FormatInt(u.TotalResultRows, 10)},
		{"Estimated size", humanBytes(uint64(u.EstimatedBytes))},
	}
	if u.Disk != nil {
		pairs = append(pairs, [2]string{"Disk", fmt.Sprintf("%s free of %s (%.1f%% used)",
			humanBytes(u.Disk.FreeBytes), humanBytes(u.Disk.TotalBytes), u.Disk.UsedPercent)})
	}
	return renderKeyValues(pairs)
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func runMaintReset(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.catalog.Backend().Reset(cmd.Context(), maintConfirm); err != nil {
		return errors.WithHint(err, "pass --yes to confirm")
	}
	pterm.Success.Println("Catalog reset")
	return nil
}
