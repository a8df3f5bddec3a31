package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ExportCmd snapshots the whole catalog
var ExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write every collection to a JSON snapshot",
	Long: `Write every collection to a JSON snapshot.

Snapshots are backend neutral: one exported from sqlite imports into badger.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

// ImportCmd restores a snapshot
var ImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Upsert every record of a JSON snapshot by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.catalog.Backend().ExportCatalog(cmd.Context(), args[0]); err != nil {
		return err
	}
	pterm.Success.Printf("Exported catalog to %s\n", args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	summary, err := e.catalog.Backend().ImportCatalog(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if done, err := printStructured(summary); done {
		return err
	}
	pterm.Success.Printf("Imported %d records\n", summary.Total())
	pterm.Printf("  executions: %d, epochs: %d, requirements: %d, use cases: %d, templates: %d\n",
		summary.Executions, summary.Epochs, summary.Requirements, summary.UseCases, summary.Templates)
	return nil
}
