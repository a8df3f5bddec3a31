package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/catalog/errors"
	catalogtest "github.com/teranos/catalog/internal/testing"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/storage/sqlitestore"
	"github.com/teranos/catalog/storage/storagetest"
	"github.com/teranos/catalog/types"
)

// untouchable panics on any storage call
type untouchable struct{ storage.Backend }

func newTestBackend(t *testing.T, execs ...*types.Execution) storage.Backend {
	t.Helper()
	b := sqlitestore.New(catalogtest.CreateTestDB(t), nil)
	for _, e := range execs {
		_, err := b.InsertExecution(context.Background(), e)
		require.NoError(t, err)
	}
	return b
}

func seedExecutions(n int) []*types.Execution {
	algos := []string{"pagerank", "wcc", "louvain"}
	execs := make([]*types.Execution, 0, n)
	for i := 0; i < n; i++ {
		e := storagetest.Execution(fmt.Sprintf("exec-%02d", i), algos[i%len(algos)], time.Duration(i)*time.Minute)
		e.Performance.ExecutionTimeSeconds = float64((i * 7) % 11)
		e.ResultCount = int64(i * 10)
		if i%2 == 0 {
			storagetest.WithCost(e, float64(i)/10)
		}
		e.Metadata = map[string]interface{}{"rank": float64(n - i)}
		execs = append(execs, e)
	}
	return execs
}

func TestQueryWithPagination_InvalidParams(t *testing.T) {
	engine := NewEngine(untouchable{}, Options{})

	tests := []struct {
		name     string
		page     int
		pageSize int
	}{
		{"zero page", 0, 10},
		{"negative page", -1, 10},
		{"zero page size", 1, 0},
		{"page size above max", 1, MaxPageSize + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.QueryWithPagination(context.Background(), nil, nil, tt.page, tt.pageSize)
			require.Error(t, err)
			assert.True(t, errors.IsQueryError(err))
		})
	}
}

func TestQueryWithPagination_PagesCoverSetOnce(t *testing.T) {
	ctx := context.Background()
	const n = 23
	engine := NewEngine(newTestBackend(t, seedExecutions(n)...), Options{})

	for _, pageSize := range []int{1, 5, 7, 23, 1000} {
		t.Run(fmt.Sprintf("page size %d", pageSize), func(t *testing.T) {
			order := &Sort{Field: SortExecutionTime}

			first, err := engine.QueryWithPagination(ctx, nil, order, 1, pageSize)
			require.NoError(t, err)
			assert.Equal(t, n, first.TotalCount)
			assert.Equal(t, (n+pageSize-1)/pageSize, first.TotalPages)
			assert.False(t, first.HasPrevious)

			var all []*types.Execution
			for page := 1; page <= first.TotalPages; page++ {
				res, err := engine.QueryWithPagination(ctx, nil, order, page, pageSize)
				require.NoError(t, err)
				assert.Equal(t, page < first.TotalPages, res.HasNext)
				assert.Equal(t, page > 1, res.HasPrevious)
				all = append(all, res.Items...)
			}

			require.Len(t, all, n)
			seen := map[string]bool{}
			for i, e := range all {
				assert.False(t, seen[e.ID], "execution %s repeated", e.ID)
				seen[e.ID] = true
				if i > 0 {
					assert.GreaterOrEqual(t, all[i-1].Performance.ExecutionTimeSeconds, e.Performance.ExecutionTimeSeconds)
				}
			}
		})
	}
}

func TestQueryWithPagination_PastEnd(t *testing.T) {
	engine := NewEngine(newTestBackend(t, seedExecutions(3)...), Options{})

	res, err := engine.QueryWithPagination(context.Background(), nil, nil, 5, 10)
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.Equal(t, 1, res.TotalPages)
	assert.False(t, res.HasNext)
	assert.True(t, res.HasPrevious)
}

func TestQueryWithPagination_Filter(t *testing.T) {
	engine := NewEngine(newTestBackend(t, seedExecutions(9)...), Options{})

	res, err := engine.QueryWithPagination(context.Background(), &types.ExecutionFilter{Algorithm: "wcc"}, nil, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalCount)
	for _, e := range res.Items {
		assert.Equal(t, "wcc", e.Algorithm)
	}
}

func TestQueryWithPagination_FetchCap(t *testing.T) {
	engine := NewEngine(newTestBackend(t, seedExecutions(12)...), Options{MaxFetch: 5})

	res, err := engine.QueryWithPagination(context.Background(), nil, nil, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalCount)
}

func TestSortExecutions(t *testing.T) {
	mk := func(id string, offset time.Duration, secs float64, cost *float64, meta interface{}) *types.Execution {
		e := storagetest.Execution(id, "algo-"+id, offset)
		e.Performance.ExecutionTimeSeconds = secs
		e.Performance.CostUSD = cost
		if meta != nil {
			e.Metadata = map[string]interface{}{"tier": meta}
		}
		return e
	}
	cost := func(v float64) *float64 { return &v }

	tests := []struct {
		name  string
		order *Sort
		want  []string
	}{
		{"nil order is newest first", nil, []string{"c", "b", "a"}},
		{"timestamp ascending", &Sort{Field: SortTimestamp, Ascending: true}, []string{"a", "b", "c"}},
		{"execution time", &Sort{Field: SortExecutionTime}, []string{"b", "a", "c"}},
		{"cost puts missing last", &Sort{Field: SortCost}, []string{"c", "a", "b"}},
		{"cost ascending still puts missing last", &Sort{Field: SortCost, Ascending: true}, []string{"a", "c", "b"}},
		{"algorithm ascending", &Sort{Field: SortAlgorithm, Ascending: true}, []string{"a", "b", "c"}},
		{"metadata key", &Sort{Field: "tier"}, []string{"b", "c", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			execs := []*types.Execution{
				mk("c", 2*time.Hour, 1, cost(3), float64(2)),
				mk("b", time.Hour, 9, nil, float64(5)),
				mk("a", 0, 4, cost(1), nil),
			}
			SortExecutions(execs, tt.order)

			var got []string
			for _, e := range execs {
				got = append(got, e.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortExecutions_StableOnTies(t *testing.T) {
	execs := []*types.Execution{
		storagetest.Execution("x1", "wcc", 0),
		storagetest.Execution("x2", "wcc", 0),
		storagetest.Execution("x3", "wcc", 0),
	}
	SortExecutions(execs, &Sort{Field: SortAlgorithm})
	assert.Equal(t, "x1", execs[0].ID)
	assert.Equal(t, "x2", execs[1].ID)
	assert.Equal(t, "x3", execs[2].ID)
}

func TestGetStatistics_EpochScenario(t *testing.T) {
	a := storagetest.WithCost(storagetest.WithEpoch(storagetest.Execution("A", "pagerank", 0), "2026-01"), 1.0)
	b := storagetest.WithCost(storagetest.WithEpoch(storagetest.Execution("B", "wcc", time.Hour), "2026-01"), 0.5)
	other := storagetest.WithCost(storagetest.WithEpoch(storagetest.Execution("C", "wcc", 0), "2026-02"), 9)
	engine := NewEngine(newTestBackend(t, a, b, other), Options{})

	stats, err := engine.GetStatistics(context.Background(), &types.ExecutionFilter{EpochID: "2026-01"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, map[string]int{"pagerank": 1, "wcc": 1}, stats.Algorithms)
	assert.Equal(t, map[string]int{"completed": 2}, stats.Statuses)
	assert.InDelta(t, 1.5, stats.TotalCost, 1e-9)
	assert.InDelta(t, 0.75, stats.AvgCost, 1e-9)
	assert.InDelta(t, 25.0, stats.TotalExecutionTime, 1e-9)
	assert.InDelta(t, 12.5, stats.AvgExecutionTime, 1e-9)
	require.NotNil(t, stats.TimeRange.Start)
	assert.True(t, stats.TimeRange.Start.Equal(storagetest.BaseTime))
	assert.True(t, stats.TimeRange.End.Equal(storagetest.BaseTime.Add(time.Hour)))
}

func TestGetStatistics_CostAverageSkipsCostless(t *testing.T) {
	execs := []*types.Execution{
		storagetest.WithCost(storagetest.Execution("a", "pagerank", 0), 2),
		storagetest.Execution("b", "pagerank", time.Minute),
	}
	stats := Summarize(execs)
	assert.Equal(t, 1, stats.CostReportingCount)
	assert.InDelta(t, 2.0, stats.AvgCost, 1e-9)
}

func TestGetStatistics_Empty(t *testing.T) {
	engine := NewEngine(newTestBackend(t), Options{})

	stats, err := engine.GetStatistics(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalCount)
	assert.Empty(t, stats.Algorithms)
	assert.Nil(t, stats.TimeRange.Start)
	assert.Zero(t, stats.AvgCost)
	assert.Zero(t, stats.AvgExecutionTime)
}

func TestConvenienceQueries(t *testing.T) {
	ctx := context.Background()
	now := storagetest.BaseTime.Add(3 * time.Hour)

	slow := storagetest.Execution("slow", "pagerank", 0)
	slow.Performance.ExecutionTimeSeconds = 300
	failed := storagetest.Execution("failed", "pagerank", 2*time.Hour)
	failed.Status = types.ExecutionStatusFailed
	pricey := storagetest.WithCost(storagetest.Execution("pricey", "wcc", time.Hour), 12)
	cheap := storagetest.WithCost(storagetest.Execution("cheap", "pagerank", 150*time.Minute), 0.1)

	engine := NewEngine(newTestBackend(t, slow, failed, pricey, cheap), Options{
		Now: func() time.Time { return now },
	})

	t.Run("recent", func(t *testing.T) {
		recent, err := engine.GetRecentExecutions(ctx, 2, "", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"cheap", "failed", "pricey"}, ids(recent))

		recent, err = engine.GetRecentExecutions(ctx, 2, "pagerank", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"cheap"}, ids(recent))

		_, err = engine.GetRecentExecutions(ctx, 0, "", 0)
		assert.True(t, errors.IsQueryError(err))
	})

	t.Run("failed", func(t *testing.T) {
		got, err := engine.GetFailedExecutions(ctx, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"failed"}, ids(got))

		got, err = engine.GetFailedExecutions(ctx, "wcc", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("slowest", func(t *testing.T) {
		got, err := engine.GetSlowestExecutions(ctx, "", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "slow", got[0].ID)
	})

	t.Run("most expensive excludes costless", func(t *testing.T) {
		got, err := engine.GetMostExpensiveExecutions(ctx, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"pricey", "cheap"}, ids(got))
	})
}

func TestCompareAlgorithmPerformance(t *testing.T) {
	ctx := context.Background()

	t.Run("empty catalog", func(t *testing.T) {
		engine := NewEngine(newTestBackend(t), Options{})
		perf, err := engine.CompareAlgorithmPerformance(ctx, "pagerank", CompareOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, perf.Count)
		assert.Zero(t, perf.AvgExecutionTime)
		assert.Zero(t, perf.MinExecutionTime)
		assert.Zero(t, perf.MaxExecutionTime)
		assert.Zero(t, perf.TotalCost)
		assert.Zero(t, perf.AvgCost)
		assert.Nil(t, perf.Oldest)
		assert.Nil(t, perf.Newest)
	})

	mk := func(id, version string, offset time.Duration, secs float64) *types.Execution {
		e := storagetest.Execution(id, "pagerank", offset)
		e.AlgorithmVersion = version
		e.Performance.ExecutionTimeSeconds = secs
		return e
	}
	execs := []*types.Execution{
		mk("p1", "1.10.0", 0, 10),
		storagetest.WithCost(mk("p2", "1.2.0", time.Hour, 30), 4),
		mk("p3", "2.0.0", 2*time.Hour, 20),
		mk("p4", "nightly", 3*time.Hour, 40),
		storagetest.Execution("w1", "wcc", 0),
	}
	engine := NewEngine(newTestBackend(t, execs...), Options{})

	t.Run("all runs", func(t *testing.T) {
		perf, err := engine.CompareAlgorithmPerformance(ctx, "pagerank", CompareOptions{})
		require.NoError(t, err)
		assert.Equal(t, 4, perf.Count)
		assert.InDelta(t, 25.0, perf.AvgExecutionTime, 1e-9)
		assert.InDelta(t, 10.0, perf.MinExecutionTime, 1e-9)
		assert.InDelta(t, 40.0, perf.MaxExecutionTime, 1e-9)
		assert.InDelta(t, 4.0, perf.TotalCost, 1e-9)
		assert.InDelta(t, 4.0, perf.AvgCost, 1e-9)
		assert.True(t, perf.Oldest.Equal(storagetest.BaseTime))
		assert.True(t, perf.Newest.Equal(storagetest.BaseTime.Add(3*time.Hour)))
		assert.Equal(t, []string{"1.2.0", "1.10.0", "2.0.0", "nightly"}, perf.Versions)
	})

	t.Run("start date", func(t *testing.T) {
		start := storagetest.BaseTime.Add(90 * time.Minute)
		perf, err := engine.CompareAlgorithmPerformance(ctx, "pagerank", CompareOptions{StartDate: &start})
		require.NoError(t, err)
		assert.Equal(t, 2, perf.Count)
	})

	t.Run("version constraint", func(t *testing.T) {
		perf, err := engine.CompareAlgorithmPerformance(ctx, "pagerank", CompareOptions{VersionConstraint: ">= 1.5, < 3"})
		require.NoError(t, err)
		assert.Equal(t, 2, perf.Count)
		assert.Equal(t, []string{"1.10.0", "2.0.0"}, perf.Versions)

		_, err = engine.CompareAlgorithmPerformance(ctx, "pagerank", CompareOptions{VersionConstraint: "not a constraint"})
		assert.True(t, errors.IsQueryError(err))
	})
}

func TestSortVersions(t *testing.T) {
	got := SortVersions([]string{"v2", "beta", "1.0.0-rc.1", "1.0.0", "0.9", "alpha"})
	assert.Equal(t, []string{"0.9", "1.0.0-rc.1", "1.0.0", "v2", "alpha", "beta"}, got)
}

func ids(execs []*types.Execution) []string {
	out := make([]string, 0, len(execs))
	for _, e := range execs {
		out = append(out, e.ID)
	}
	return out
}
