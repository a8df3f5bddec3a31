package query

import (
	"context"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/types"
)

// GetStatistics aggregates the filtered set. An empty set yields zero values.
// The cost average covers only executions that report a cost.
func (e *Engine) GetStatistics(ctx context.Context, filter *types.ExecutionFilter) (*types.QueryStatistics, error) {
	execs, err := e.fetch(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Summarize(execs), nil
}

// Summarize computes QueryStatistics over execs
func Summarize(execs []*types.Execution) *types.QueryStatistics {
	stats := &types.QueryStatistics{
		TotalCount: len(execs),
		Algorithms: make(map[string]int),
		Statuses:   make(map[string]int),
	}

	for _, ex := range execs {
		stats.Algorithms[ex.Algorithm]++
		stats.Statuses[string(ex.Status)]++
		stats.TotalExecutionTime += ex.Performance.ExecutionTimeSeconds
		if cost, ok := ex.Cost(); ok {
			stats.TotalCost += cost
			stats.CostReportingCount++
		}
		extendRange(&stats.TimeRange, ex.Timestamp)
	}

	if stats.TotalCount > 0 {
		stats.AvgExecutionTime = stats.TotalExecutionTime / float64(stats.TotalCount)
	}
	if stats.CostReportingCount > 0 {
		stats.AvgCost = stats.TotalCost / float64(stats.CostReportingCount)
	}
	return stats
}

func extendRange(r *types.TimeRange, ts time.Time) {
	if r.Start == nil || ts.Before(*r.Start) {
		t := ts
		r.Start = &t
	}
	if r.End == nil || ts.After(*r.End) {
		t := ts
		r.End = &t
	}
}

// CompareOptions narrows CompareAlgorithmPerformance
type CompareOptions struct {
	// StartDate drops executions before it
	StartDate *time.Time
	// VersionConstraint keeps only executions whose algorithm_version
	// satisfies it, e.g. ">= 2.0". Unparseable versions never match.
	VersionConstraint string
}

// CompareAlgorithmPerformance summarizes every run of algorithm. No runs
// yields a zero-valued result, never an error.
func (e *Engine) CompareAlgorithmPerformance(ctx context.Context, algorithm string, opts CompareOptions) (*types.AlgorithmPerformance, error) {
	var constraint *semver.Constraints
	if opts.VersionConstraint != "" {
		c, err := semver.NewConstraint(opts.VersionConstraint)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "invalid version constraint %q", opts.VersionConstraint), errors.ErrQuery)
		}
		constraint = c
	}

	execs, err := e.fetch(ctx, &types.ExecutionFilter{
		Algorithm: algorithm,
		StartDate: opts.StartDate,
	})
	if err != nil {
		return nil, err
	}

	perf := &types.AlgorithmPerformance{Algorithm: algorithm}
	costed := 0
	versions := make(map[string]bool)
	for _, ex := range execs {
		if constraint != nil && !satisfies(constraint, ex.AlgorithmVersion) {
			continue
		}

		secs := ex.Performance.ExecutionTimeSeconds
		if perf.Count == 0 || secs < perf.MinExecutionTime {
			perf.MinExecutionTime = secs
		}
		if perf.Count == 0 || secs > perf.MaxExecutionTime {
			perf.MaxExecutionTime = secs
		}
		perf.AvgExecutionTime += secs
		perf.Count++

		if cost, ok := ex.Cost(); ok {
			perf.TotalCost += cost
			costed++
		}

		span := types.TimeRange{Start: perf.Oldest, End: perf.Newest}
		extendRange(&span, ex.Timestamp)
		perf.Oldest, perf.Newest = span.Start, span.End

		if ex.AlgorithmVersion != "" {
			versions[ex.AlgorithmVersion] = true
		}
	}

	if perf.Count > 0 {
		perf.AvgExecutionTime /= float64(perf.Count)
	}
	if costed > 0 {
		perf.AvgCost = perf.TotalCost / float64(costed)
	}
	perf.Versions = SortVersions(keys(versions))
	return perf, nil
}

func satisfies(c *semver.Constraints, version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// SortVersions orders semantic versions ascending. Strings that are not
// semantic versions follow, sorted lexically.
func SortVersions(versions []string) []string {
	parsed := make(map[string]*semver.Version, len(versions))
	for _, v := range versions {
		if sv, err := semver.NewVersion(v); err == nil {
			parsed[v] = sv
		}
	}

	sort.SliceStable(versions, func(i, j int) bool {
		a, b := parsed[versions[i]], parsed[versions[j]]
		switch {
		case a != nil && b != nil:
			if !a.Equal(b) {
				return a.LessThan(b)
			}
			return versions[i] < versions[j]
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return versions[i] < versions[j]
	})
	return versions
}
