package commands

import (
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/types"
)

// executionFilterFlags binds the ExecutionFilter predicates to a command
type executionFilterFlags struct {
	epoch, algorithm, status string
	since, until             string
	graph, workflow          string
	requirements, useCase    string
	template                 string
	minResults               int64
	maxTime                  float64
}

func (f *executionFilterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.epoch, "epoch", "", "Only executions in this epoch id")
	fs.StringVarP(&f.algorithm, "algorithm", "a", "", "Only this algorithm")
	fs.StringVar(&f.status, "status", "", "Only this status (completed, failed, partial, running)")
	fs.StringVar(&f.since, "since", "", "Only executions at or after this time (RFC3339 or YYYY-MM-DD)")
	fs.StringVar(&f.until, "until", "", "Only executions at or before this time (RFC3339 or YYYY-MM-DD)")
	fs.StringVar(&f.graph, "graph", "", "Only executions over this graph")
	fs.StringVar(&f.workflow, "workflow", "", "Only this workflow mode")
	fs.StringVar(&f.requirements, "requirements", "", "Only executions referencing this requirements id")
	fs.StringVar(&f.useCase, "use-case", "", "Only executions referencing this use case id")
	fs.StringVar(&f.template, "template", "", "Only executions of this template id")
	fs.Int64Var(&f.minResults, "min-results", -1, "Only executions with at least this many results")
	fs.Float64Var(&f.maxTime, "max-time", -1, "Only executions that took at most this many seconds")
}

func (f *executionFilterFlags) build() (*types.ExecutionFilter, error) {
	filter := &types.ExecutionFilter{
		EpochID:        f.epoch,
		Algorithm:      f.algorithm,
		Status:         types.ExecutionStatus(f.status),
		GraphName:      f.graph,
		WorkflowMode:   f.workflow,
		RequirementsID: f.requirements,
		UseCaseID:      f.useCase,
		TemplateID:     f.template,
	}
	if f.status != "" && !filter.Status.Valid() {
		return nil, errors.NewValidationError("unknown execution status %q", f.status)
	}

	var err error
	if filter.StartDate, err = parseTimeFlag("since", f.since); err != nil {
		return nil, err
	}
	if filter.EndDate, err = parseTimeFlag("until", f.until); err != nil {
		return nil, err
	}
	if f.minResults >= 0 {
		filter.MinResultCount = &f.minResults
	}
	if f.maxTime >= 0 {
		filter.MaxExecutionTime = &f.maxTime
	}
	return filter, nil
}

// parseTimeFlag accepts RFC3339 or a bare date. Empty yields nil.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.NewValidationError("--%s: cannot parse %q as RFC3339 or YYYY-MM-DD", name, value)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
