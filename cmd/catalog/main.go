package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teranos/catalog/cmd/catalog/commands"
	"github.com/teranos/catalog/logger"
)

var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "catalog - Analysis catalog for graph algorithm executions",
	Long: `catalog - Analysis catalog for graph algorithm executions.

Records every run of a graph algorithm together with the requirements,
use case and template that motivated it, groups runs into epochs and
answers questions about performance, cost and lineage.

Available commands:
  stats    - Catalog totals and execution aggregates
  exec     - Query and record executions
  epoch    - Manage epochs
  lineage  - Trace requirements → use case → template → execution
  maint    - Integrity checks, cleanup and storage usage
  export   - Snapshot the whole catalog to JSON
  import   - Restore a JSON snapshot
  am       - Show catalog configuration ("I am")

Examples:
  catalog am show                        # Show current configuration
  catalog exec ls --algorithm pagerank   # List pagerank runs
  catalog lineage coverage               # Requirement coverage
  catalog maint validate                 # Check references`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := commands.ValidateOutputFormat(commands.OutputFormat); err != nil {
			return err
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if !cmd.Flags().Changed("log-json") {
			// Config may be broken; 'am validate' should still get to report it
			if cfg, err := commands.LoadConfig(); err == nil {
				jsonLogs = cfg.Log.JSON
			}
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ctx := logger.WithRunID(cmd.Context(), uuid.NewString())
		cmd.SetContext(logger.WithComponent(ctx, cmd.CommandPath()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		commands.LogStorageMetrics(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON (default: log.json)")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigFile, "config", "", "Read configuration from this TOML file only")
	rootCmd.PersistentFlags().StringVarP(&commands.OutputFormat, "output", "o", commands.FormatTable, "Output format: table, json, yaml")

	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.ExecCmd)
	rootCmd.AddCommand(commands.EpochCmd)
	rootCmd.AddCommand(commands.LineageCmd)
	rootCmd.AddCommand(commands.MaintCmd)
	rootCmd.AddCommand(commands.ExportCmd)
	rootCmd.AddCommand(commands.ImportCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
