package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/catalog/lineage"
	"github.com/teranos/catalog/types"
)

// LineageCmd explores requirements → use case → template → execution chains
var LineageCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Trace executions back to the requirements that motivated them",
	Long: `Trace the lineage chain requirements → use case → template → execution.

Examples:
  catalog lineage show <execution-id> --epoch
  catalog lineage trace <requirements-id>
  catalog lineage trace --backward <execution-id>
  catalog lineage graph --epoch <epoch-id> --output json
  catalog lineage impact <use-case-id> --type use_case
  catalog lineage coverage --epoch <epoch-id> --all`,
}

var lineageShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show an execution with its resolved lineage",
	Args:  cobra.ExactArgs(1),
	RunE:  runLineageShow,
}

var lineageTraceCmd = &cobra.Command{
	Use:   "trace <id>",
	Short: "Trace a requirements id forward, or an execution id backward",
	Args:  cobra.ExactArgs(1),
	RunE:  runLineageTrace,
}

var lineageGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build the lineage graph of all executions or one epoch",
	RunE:  runLineageGraph,
}

var lineageImpactCmd = &cobra.Command{
	Use:   "impact <entity-id>",
	Short: "List everything downstream of a requirement, use case or template",
	Args:  cobra.ExactArgs(1),
	RunE:  runLineageImpact,
}

var lineageCoverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Report how many requirements reached execution",
	RunE:  runLineageCoverage,
}

var (
	lineageWithEpoch bool
	lineageBackward  bool
	lineageEpoch     string
	lineageType      string
	lineageAll       bool
)

func init() {
	lineageShowCmd.Flags().BoolVar(&lineageWithEpoch, "epoch", false, "Also resolve the execution's epoch")
	lineageTraceCmd.Flags().BoolVarP(&lineageBackward, "backward", "b", false, "Treat the id as an execution and walk back to its requirements")
	lineageGraphCmd.Flags().StringVar(&lineageEpoch, "epoch", "", "Only executions in this epoch")
	lineageImpactCmd.Flags().StringVarP(&lineageType, "type", "t", types.NodeRequirement, "Entity type: requirement, use_case, template")
	lineageCoverageCmd.Flags().StringVar(&lineageEpoch, "epoch", "", "Only executions in this epoch")
	lineageCoverageCmd.Flags().BoolVar(&lineageAll, "all", false, "Count every stored requirements record, not only those executions reference")

	LineageCmd.AddCommand(lineageShowCmd, lineageTraceCmd, lineageGraphCmd, lineageImpactCmd, lineageCoverageCmd)
}

func runLineageShow(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	lin, err := e.tracker().GetCompleteLineage(cmd.Context(), args[0], lineageWithEpoch)
	if err != nil {
		return err
	}
	if done, err := printStructured(lin); done {
		return err
	}

	missing := "(unresolved)"
	pairs := [][2]string{{"Execution", lin.Execution.ID + " " + lin.Execution.Algorithm}}
	if lin.Template != nil {
		pairs = append(pairs, [2]string{"Template", lin.Template.ID + " " + lin.Template.Name})
	} else {
		pairs = append(pairs, [2]string{"Template", lin.Execution.TemplateID + " " + missing})
	}
	if lin.UseCase != nil {
		pairs = append(pairs, [2]string{"Use case", lin.UseCase.ID + " " + lin.UseCase.Title})
	} else if id := types.Deref(lin.Execution.UseCaseID); id != "" {
		pairs = append(pairs, [2]string{"Use case", id + " " + missing})
	}
	if lin.Requirements != nil {
		pairs = append(pairs, [2]string{"Requirements", lin.Requirements.ID + " " + lin.Requirements.Domain})
	} else if id := types.Deref(lin.Execution.RequirementsID); id != "" {
		pairs = append(pairs, [2]string{"Requirements", id + " " + missing})
	}
	if lin.Epoch != nil {
		pairs = append(pairs, [2]string{"Epoch", lin.Epoch.ID + " " + lin.Epoch.Name})
	}
	return renderKeyValues(pairs)
}

func runLineageTrace(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if lineageBackward {
		trace, err := e.tracker().TraceExecutionBackward(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if done, err := printStructured(trace); done {
			return err
		}
		steps := make([]string, 0, len(trace.Path))
		for _, n := range trace.Path {
			steps = append(steps, fmt.Sprintf("%s %s", n.Type, n.ID))
		}
		pterm.Println(strings.Join(steps, " → "))
		if !trace.Complete {
			pterm.Warning.Println("Chain does not reach a requirements record")
		}
		return nil
	}

	trace, err := e.tracker().TraceRequirementForward(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if done, err := printStructured(trace); done {
		return err
	}
	pterm.Info.Printf("Requirements %s (%s): %d use cases, %d templates, %d executions\n",
		trace.Requirements.ID, trace.Requirements.Domain,
		len(trace.UseCases), len(trace.Templates), trace.ExecutionCount())
	return printExecutions(trace.Executions)
}

func runLineageGraph(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	graph, err := e.tracker().BuildLineageGraph(cmd.Context(), lineageEpoch)
	if err != nil {
		return err
	}
	if done, err := printStructured(graph); done {
		return err
	}

	rows := make([][]string, 0, len(graph.Edges))
	for _, edge := range graph.Edges {
		rows = append(rows, []string{edge.From, edge.Relation, edge.To})
	}
	pterm.Info.Printf("%d nodes, %d edges\n", len(graph.Nodes), len(graph.Edges))
	return renderTable([]string{"FROM", "RELATION", "TO"}, rows)
}

func runLineageImpact(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	impact, err := e.tracker().AnalyzeImpact(cmd.Context(), args[0], lineageType)
	if err != nil {
		return err
	}
	if done, err := printStructured(impact); done {
		return err
	}

	list := func(ids []string) string {
		if len(ids) == 0 {
			return "-"
		}
		return strings.Join(ids, ", ")
	}
	return renderKeyValues([][2]string{
		{"Entity", impact.EntityType + " " + impact.EntityID},
		{"Use cases", list(impact.UseCases)},
		{"Templates", list(impact.Templates)},
		{"Executions", list(impact.Executions)},
		{"Total impact", strconv.Itoa(impact.TotalImpact)},
	})
}

func runLineageCoverage(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.tracker().GetCoverageReport(cmd.Context(), lineageEpoch, lineage.CoverageOptions{EnumerateAll: lineageAll})
	if err != nil {
		return err
	}
	if done, err := printStructured(report); done {
		return err
	}

	uncovered := strings.Join(report.UncoveredRequirements, ", ")
	if uncovered == "" {
		uncovered = "-"
	}
	return renderKeyValues([][2]string{
		{"Requirements", strconv.Itoa(report.TotalRequirements)},
		{"Covered", strconv.Itoa(report.CoveredRequirements)},
		{"Coverage", fmt.Sprintf("%.1f%%", report.CoveragePercent)},
		{"Uncovered", uncovered},
		{"Executions scanned", strconv.Itoa(report.ExecutionsScanned)},
	})
}
