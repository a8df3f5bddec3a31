package commands

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/catalog/catalog"
	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/manager"
	"github.com/teranos/catalog/types"
)

// EpochCmd manages epochs
var EpochCmd = &cobra.Command{
	Use:   "epoch",
	Short: "Manage epochs (named groups of executions)",
	Long: `Manage epochs, the named and timestamped groups executions belong to.

Examples:
  catalog epoch create 2026-01 --tag monthly
  catalog epoch ls --status active
  catalog epoch archive --older-than 90 --dry-run
  catalog epoch export <epoch-id> backups/2026-01.json`,
}

var epochCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an active epoch",
	Args:  cobra.ExactArgs(1),
	RunE:  runEpochCreate,
}

var epochLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List epochs, newest first",
	RunE:  runEpochLs,
}

var epochArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive active epochs older than a number of days",
	RunE:  runEpochArchive,
}

var epochDeleteCmd = &cobra.Command{
	Use:   "delete <epoch-id>",
	Short: "Delete an epoch, optionally with its executions",
	Args:  cobra.ExactArgs(1),
	RunE:  runEpochDelete,
}

var epochRefreshCmd = &cobra.Command{
	Use:   "refresh <epoch-id>",
	Short: "Recompute an epoch's cached execution count and ids",
	Args:  cobra.ExactArgs(1),
	RunE:  runEpochRefresh,
}

var epochExportCmd = &cobra.Command{
	Use:   "export <epoch-id> <path>",
	Short: "Write one epoch and its executions to a JSON file",
	Args:  cobra.ExactArgs(2),
	RunE:  runEpochExport,
}

var epochImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Restore an epoch written by 'epoch export'",
	Args:  cobra.ExactArgs(1),
	RunE:  runEpochImport,
}

var (
	epochDescription string
	epochTags        []string
	epochParent      string
	epochAt          string

	epochStatus   string
	epochTagsAll  []string
	epochNameLike string
	epochLimit    int

	epochOlderThan int
	epochDryRun    bool
	epochCascade   bool
	epochOverwrite bool
)

func init() {
	epochCreateCmd.Flags().StringVarP(&epochDescription, "description", "d", "", "Description")
	epochCreateCmd.Flags().StringSliceVarP(&epochTags, "tag", "t", nil, "Tag (repeatable)")
	epochCreateCmd.Flags().StringVar(&epochParent, "parent", "", "Parent epoch id")
	epochCreateCmd.Flags().StringVar(&epochAt, "at", "", "Epoch timestamp (RFC3339 or YYYY-MM-DD, default now)")

	epochLsCmd.Flags().StringVar(&epochStatus, "status", "", "Only this status (active, completed, archived)")
	epochLsCmd.Flags().StringSliceVarP(&epochTagsAll, "tag", "t", nil, "Only epochs carrying every tag")
	epochLsCmd.Flags().StringVar(&epochNameLike, "name", "", "Only epochs whose name contains this")
	epochLsCmd.Flags().IntVarP(&epochLimit, "limit", "l", 50, "Maximum number of results (0 = all)")

	epochArchiveCmd.Flags().IntVar(&epochOlderThan, "older-than", -1, "Age in days (default: maintenance.archive_after_days)")
	epochArchiveCmd.Flags().BoolVar(&epochDryRun, "dry-run", false, "Report without archiving")

	epochDeleteCmd.Flags().BoolVar(&epochCascade, "cascade", false, "Also delete the epoch's executions")

	epochImportCmd.Flags().BoolVar(&epochOverwrite, "overwrite", false, "Replace an existing epoch and executions")

	EpochCmd.AddCommand(epochCreateCmd, epochLsCmd, epochArchiveCmd, epochDeleteCmd,
		epochRefreshCmd, epochExportCmd, epochImportCmd)
}

func runEpochCreate(cmd *cobra.Command, args []string) error {
	at, err := parseTimeFlag("at", epochAt)
	if err != nil {
		return err
	}
	opts := catalog.EpochOptions{Timestamp: at, Tags: epochTags}
	if epochParent != "" {
		opts.ParentEpochID = &epochParent
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	epoch, err := e.catalog.CreateEpoch(cmd.Context(), args[0], epochDescription, opts)
	if err != nil {
		return err
	}
	if done, err := printStructured(epoch); done {
		return err
	}
	pterm.Success.Printf("Created epoch %q (%s)\n", epoch.Name, epoch.ID)
	return nil
}

func runEpochLs(cmd *cobra.Command, args []string) error {
	filter := &types.EpochFilter{
		Status:       types.EpochStatus(epochStatus),
		Tags:         epochTagsAll,
		NameContains: epochNameLike,
	}
	if epochStatus != "" && !filter.Status.Valid() {
		return errors.NewValidationError("unknown epoch status %q", epochStatus)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	epochs, err := e.catalog.QueryEpochs(cmd.Context(), filter, epochLimit, 0)
	if err != nil {
		return err
	}
	if done, err := printStructured(epochs); done {
		return err
	}

	rows := make([][]string, 0, len(epochs))
	for _, ep := range epochs {
		rows = append(rows, []string{
			ep.ID, ep.Name, formatTime(ep.Timestamp), string(ep.Status),
			strconv.Itoa(ep.ExecutionCount), strings.Join(ep.Tags, ","),
		})
	}
	return renderTable([]string{"ID", "NAME", "TIMESTAMP", "STATUS", "EXECUTIONS", "TAGS"}, rows)
}

func runEpochArchive(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	days := epochOlderThan
	if days < 0 {
		days = e.cfg.Maintenance.ArchiveAfterDays
	}
	res, err := e.manager().ArchiveOldEpochs(cmd.Context(), days, epochDryRun)
	if err != nil {
		return err
	}
	return printBatch(res)
}

func runEpochDelete(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.catalog.Backend().DeleteEpoch(cmd.Context(), args[0], epochCascade); err != nil {
		return err
	}
	pterm.Success.Printf("Deleted epoch %s\n", args[0])
	return nil
}

func runEpochRefresh(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	epoch, err := e.manager().RefreshEpochExecutionCache(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if done, err := printStructured(epoch); done {
		return err
	}
	pterm.Success.Printf("Epoch %s has %d executions\n", epoch.ID, epoch.ExecutionCount)
	return nil
}

func runEpochExport(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	export, err := e.manager().ExportEpoch(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	pterm.Success.Printf("Exported epoch %q with %d executions to %s\n",
		export.Epoch.Name, len(export.Executions), args[1])
	return nil
}

func runEpochImport(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.manager().ImportEpoch(cmd.Context(), args[0], epochOverwrite)
	if err != nil {
		return err
	}
	if done, err := printStructured(res); done {
		return err
	}
	pterm.Success.Printf("Imported epoch %s: %d executions\n", res.EpochID, res.Executions)
	printItemErrors(res.Errors)
	return nil
}

// printBatch reports a manager batch operation
func printBatch(r *manager.BatchResult) error {
	if done, err := printStructured(r); done {
		return err
	}
	if r.DryRun {
		pterm.Warning.Printf("Dry run: %s would affect %d items\n", r.Operation, r.Matched)
		for _, id := range r.IDs {
			pterm.Printf("  %s\n", id)
		}
		return nil
	}
	pterm.Success.Printf("%s: %d of %d items processed\n", r.Operation, r.Processed, r.Matched)
	printItemErrors(r.Errors)
	return nil
}

func printItemErrors(errs []types.ItemError) {
	if len(errs) == 0 {
		return
	}
	pterm.Error.Printf("%d items failed\n", len(errs))
	for _, ie := range errs {
		pterm.Printf("  %s: %s\n", ie.ID, ie.Error)
	}
}
