package storagetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

// Factory opens an empty backend, registering its cleanup on t
type Factory func(t *testing.T) storage.Backend

// RunBackendSuite checks the storage.Backend contract against fresh backends from newBackend
func RunBackendSuite(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b storage.Backend)
	}{
		{"ExecutionRoundTrip", testExecutionRoundTrip},
		{"DuplicateExecutionID", testDuplicateExecutionID},
		{"MissingEntities", testMissingEntities},
		{"QueryOrderingAndPaging", testQueryOrderingAndPaging},
		{"QueryFilters", testQueryFilters},
		{"UpdateExecution", testUpdateExecution},
		{"DeleteExecution", testDeleteExecution},
		{"EpochNameUnique", testEpochNameUnique},
		{"ConcurrentEpochNames", testConcurrentEpochNames},
		{"EpochQuery", testEpochQuery},
		{"UpdateEpochRename", testUpdateEpochRename},
		{"DeleteEpochCascade", testDeleteEpochCascade},
		{"DeleteEpochNoCascade", testDeleteEpochNoCascade},
		{"LineageChildren", testLineageChildren},
		{"Statistics", testStatistics},
		{"Reset", testReset},
		{"ExportImport", testExportImport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newBackend(t))
		})
	}
}

func ids(execs []*types.Execution) []string {
	out := make([]string, len(execs))
	for i, e := range execs {
		out[i] = e.ID
	}
	return out
}

func testExecutionRoundTrip(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	exec := WithCost(WithEpoch(Execution("exec-1", "pagerank", 0), "epoch-1"), 1.25)
	exec.ErrorMessage = ptr("none")
	exec.WorkflowMode = types.WorkflowModeAgentic
	exec.ResultSample = &types.ResultSample{
		TopResults:   []map[string]interface{}{{"node": "a", "score": 0.9}},
		SummaryStats: map[string]float64{"mean": 0.4},
		SampleSize:   1,
	}
	exec.Metadata = map[string]interface{}{"owner": "ops"}

	id, err := b.InsertExecution(ctx, exec)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)

	got, err := b.GetExecution(ctx, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, exec.ID, got.ID)
	assert.True(t, exec.Timestamp.Equal(got.Timestamp), "timestamp %s != %s", exec.Timestamp, got.Timestamp)
	assert.Equal(t, exec.Algorithm, got.Algorithm)
	assert.Equal(t, exec.AlgorithmVersion, got.AlgorithmVersion)
	assert.Equal(t, exec.Parameters, got.Parameters)
	assert.Equal(t, exec.TemplateID, got.TemplateID)
	assert.Equal(t, exec.ResultsLocation, got.ResultsLocation)
	assert.Equal(t, exec.ResultCount, got.ResultCount)
	assert.Equal(t, exec.GraphConfig, got.GraphConfig)
	assert.Equal(t, exec.Performance, got.Performance)
	assert.Equal(t, exec.ResultSample, got.ResultSample)
	assert.Equal(t, exec.Status, got.Status)
	assert.Equal(t, "none", types.Deref(got.ErrorMessage))
	assert.Equal(t, "epoch-1", types.Deref(got.EpochID))
	assert.Nil(t, got.RequirementsID)
	assert.Equal(t, types.WorkflowModeAgentic, got.WorkflowMode)
	assert.Equal(t, exec.Metadata, got.Metadata)
}

func testDuplicateExecutionID(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	_, err := b.InsertExecution(ctx, Execution("exec-1", "pagerank", 0))
	require.NoError(t, err)

	_, err = b.InsertExecution(ctx, Execution("exec-1", "wcc", time.Hour))
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateError(err), "got %v", err)

	got, err := b.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "pagerank", got.Algorithm)
}

func testMissingEntities(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	_, err := b.GetExecution(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = b.GetEpoch(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = b.GetEpochByName(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = b.GetRequirements(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = b.GetUseCase(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
	_, err = b.GetTemplate(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))

	err = b.UpdateExecution(ctx, Execution("nope", "pagerank", 0))
	assert.True(t, errors.IsNotFoundError(err))
	err = b.UpdateEpoch(ctx, Epoch("nope", "nope", 0))
	assert.True(t, errors.IsNotFoundError(err))
	err = b.DeleteExecution(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
	err = b.DeleteEpoch(ctx, "nope", false)
	assert.True(t, errors.IsNotFoundError(err))
	err = b.DeleteEpoch(ctx, "nope", true)
	assert.True(t, errors.IsNotFoundError(err))
}

func testQueryOrderingAndPaging(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	// exec-b and exec-c share a timestamp; ties break by id
	for _, e := range []*types.Execution{
		Execution("exec-a", "pagerank", 1*time.Hour),
		Execution("exec-c", "pagerank", 3*time.Hour),
		Execution("exec-b", "pagerank", 3*time.Hour),
		Execution("exec-d", "pagerank", 2*time.Hour),
	} {
		_, err := b.InsertExecution(ctx, e)
		require.NoError(t, err)
	}

	all, err := b.QueryExecutions(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-b", "exec-c", "exec-d", "exec-a"}, ids(all))

	page, err := b.QueryExecutions(ctx, &types.ExecutionFilter{}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-c", "exec-d"}, ids(page))

	past, err := b.QueryExecutions(ctx, nil, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, past)
	assert.NotNil(t, past)
}

func testQueryFilters(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	a := WithLineage(WithEpoch(Execution("a", "pagerank", 1*time.Hour), "e1"), "r1", "u1", "t1")
	a.ResultCount = 10
	a.Performance.ExecutionTimeSeconds = 5
	a.WorkflowMode = types.WorkflowModeAgentic

	bb := WithEpoch(Execution("b", "wcc", 2*time.Hour), "e1")
	bb.Status = types.ExecutionStatusFailed
	bb.ResultCount = 500
	bb.Performance.ExecutionTimeSeconds = 50

	c := WithLineage(Execution("c", "pagerank", 3*time.Hour), "r1", "u2", "t2")
	c.GraphConfig.GraphName = "finance"
	c.ResultCount = 1000
	c.Performance.ExecutionTimeSeconds = 100

	for _, e := range []*types.Execution{a, bb, c} {
		_, err := b.InsertExecution(ctx, e)
		require.NoError(t, err)
	}

	start := BaseTime.Add(2 * time.Hour)
	end := BaseTime.Add(3 * time.Hour)

	tests := []struct {
		name   string
		filter *types.ExecutionFilter
		want   []string
	}{
		{"epoch", &types.ExecutionFilter{EpochID: "e1"}, []string{"b", "a"}},
		{"epoch and algorithm", &types.ExecutionFilter{EpochID: "e1", Algorithm: "pagerank"}, []string{"a"}},
		{"algorithm", &types.ExecutionFilter{Algorithm: "pagerank"}, []string{"c", "a"}},
		{"status", &types.ExecutionFilter{Status: types.ExecutionStatusFailed}, []string{"b"}},
		{"inclusive date range", &types.ExecutionFilter{StartDate: &start, EndDate: &end}, []string{"c", "b"}},
		{"graph name", &types.ExecutionFilter{GraphName: "finance"}, []string{"c"}},
		{"requirements", &types.ExecutionFilter{RequirementsID: "r1"}, []string{"c", "a"}},
		{"use case", &types.ExecutionFilter{UseCaseID: "u2"}, []string{"c"}},
		{"template", &types.ExecutionFilter{TemplateID: "t1"}, []string{"a"}},
		{"workflow mode", &types.ExecutionFilter{WorkflowMode: types.WorkflowModeAgentic}, []string{"a"}},
		{"min result count", &types.ExecutionFilter{MinResultCount: ptr(int64(500))}, []string{"c", "b"}},
		{"max execution time", &types.ExecutionFilter{MaxExecutionTime: ptr(50.0)}, []string{"b", "a"}},
		{"no match", &types.ExecutionFilter{EpochID: "e1", GraphName: "finance"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.QueryExecutions(ctx, tt.filter, 0, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func testUpdateExecution(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	exec := WithEpoch(Execution("exec-1", "pagerank", 0), "e1")
	exec.Status = types.ExecutionStatusRunning
	_, err := b.InsertExecution(ctx, exec)
	require.NoError(t, err)

	exec.Status = types.ExecutionStatusFailed
	exec.ErrorMessage = ptr("engine crashed")
	exec.EpochID = ptr("e2")
	require.NoError(t, b.UpdateExecution(ctx, exec))

	got, err := b.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStatusFailed, got.Status)
	assert.Equal(t, "engine crashed", types.Deref(got.ErrorMessage))

	// filters see the new values only
	running, err := b.QueryExecutions(ctx, &types.ExecutionFilter{Status: types.ExecutionStatusRunning}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, running)
	old, err := b.QueryExecutions(ctx, &types.ExecutionFilter{EpochID: "e1"}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, old)
	moved, err := b.QueryExecutions(ctx, &types.ExecutionFilter{EpochID: "e2"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-1"}, ids(moved))
}

func testDeleteExecution(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	_, err := b.InsertExecution(ctx, Execution("exec-1", "pagerank", 0))
	require.NoError(t, err)

	require.NoError(t, b.DeleteExecution(ctx, "exec-1"))

	_, err = b.GetExecution(ctx, "exec-1")
	assert.True(t, errors.IsNotFoundError(err))
	got, err := b.QueryExecutions(ctx, &types.ExecutionFilter{Algorithm: "pagerank"}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testEpochNameUnique(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	_, err := b.InsertEpoch(ctx, Epoch("epoch-1", "2026-01", 0))
	require.NoError(t, err)

	_, err = b.InsertEpoch(ctx, Epoch("epoch-2", "2026-01", time.Hour))
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateError(err), "got %v", err)

	_, err = b.GetEpoch(ctx, "epoch-2")
	assert.True(t, errors.IsNotFoundError(err))

	got, err := b.GetEpochByName(ctx, "2026-01")
	require.NoError(t, err)
	assert.Equal(t, "epoch-1", got.ID)
}

func testConcurrentEpochNames(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	const writers = 8

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.InsertEpoch(ctx, Epoch(string(rune('a'+i)), "contested", 0))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.IsDuplicateError(err), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
}

func testEpochQuery(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	archived := Epoch("e3", "2026-03 Archive", 3*time.Hour, "monthly")
	archived.Status = types.EpochStatusArchived
	for _, e := range []*types.Epoch{
		Epoch("e1", "2026-01", 1*time.Hour, "monthly", "prod"),
		Epoch("e2", "2026-02 Étude", 2*time.Hour, "prod"),
		archived,
	} {
		_, err := b.InsertEpoch(ctx, e)
		require.NoError(t, err)
	}

	epochIDs := func(epochs []*types.Epoch) []string {
		out := make([]string, len(epochs))
		for i, e := range epochs {
			out[i] = e.ID
		}
		return out
	}
	start := BaseTime.Add(2 * time.Hour)

	tests := []struct {
		name   string
		filter *types.EpochFilter
		limit  int
		want   []string
	}{
		{"all", nil, 0, []string{"e3", "e2", "e1"}},
		{"limit", nil, 2, []string{"e3", "e2"}},
		{"every tag", &types.EpochFilter{Tags: []string{"monthly", "prod"}}, 0, []string{"e1"}},
		{"status", &types.EpochFilter{Status: types.EpochStatusArchived}, 0, []string{"e3"}},
		{"name contains ignores case", &types.EpochFilter{NameContains: "archive"}, 0, []string{"e3"}},
		{"name contains folds non-ascii", &types.EpochFilter{NameContains: "étude"}, 0, []string{"e2"}},
		{"name contains is literal", &types.EpochFilter{NameContains: "2026_0"}, 0, []string{}},
		{"name contains with limit", &types.EpochFilter{NameContains: "2026-0"}, 2, []string{"e3", "e2"}},
		{"start date", &types.EpochFilter{StartDate: &start}, 0, []string{"e3", "e2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.QueryEpochs(ctx, tt.filter, tt.limit, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, epochIDs(got))
		})
	}
}

func testUpdateEpochRename(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	_, err := b.InsertEpoch(ctx, Epoch("e1", "first", 0))
	require.NoError(t, err)
	_, err = b.InsertEpoch(ctx, Epoch("e2", "second", 0))
	require.NoError(t, err)

	renamed := Epoch("e1", "renamed", 0)
	renamed.Status = types.EpochStatusArchived
	require.NoError(t, b.UpdateEpoch(ctx, renamed))

	got, err := b.GetEpochByName(ctx, "renamed")
	require.NoError(t, err)
	assert.Equal(t, types.EpochStatusArchived, got.Status)
	_, err = b.GetEpochByName(ctx, "first")
	assert.True(t, errors.IsNotFoundError(err))

	// the freed name can be claimed again, a taken one cannot
	_, err = b.InsertEpoch(ctx, Epoch("e3", "first", 0))
	require.NoError(t, err)
	err = b.UpdateEpoch(ctx, Epoch("e1", "second", 0))
	assert.True(t, errors.IsDuplicateError(err), "got %v", err)
}

func seedEpochWithExecutions(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	_, err := b.InsertEpoch(ctx, Epoch("epoch-1", "2026-01", 0))
	require.NoError(t, err)
	for _, e := range []*types.Execution{
		WithEpoch(Execution("in-1", "pagerank", 0), "epoch-1"),
		WithEpoch(Execution("in-2", "wcc", time.Minute), "epoch-1"),
		WithEpoch(Execution("out-1", "pagerank", 0), "epoch-2"),
		Execution("out-2", "pagerank", 0),
	} {
		_, err := b.InsertExecution(ctx, e)
		require.NoError(t, err)
	}
}

func testDeleteEpochCascade(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	seedEpochWithExecutions(t, b)

	require.NoError(t, b.DeleteEpoch(ctx, "epoch-1", true))

	_, err := b.GetEpoch(ctx, "epoch-1")
	assert.True(t, errors.IsNotFoundError(err))
	remaining, err := b.QueryExecutions(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"out-1", "out-2"}, ids(remaining))

	// the name is free again
	_, err = b.InsertEpoch(ctx, Epoch("epoch-9", "2026-01", 0))
	assert.NoError(t, err)
}

func testDeleteEpochNoCascade(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	seedEpochWithExecutions(t, b)

	require.NoError(t, b.DeleteEpoch(ctx, "epoch-1", false))

	_, err := b.GetEpoch(ctx, "epoch-1")
	assert.True(t, errors.IsNotFoundError(err))
	dangling, err := b.QueryExecutions(ctx, &types.ExecutionFilter{EpochID: "epoch-1"}, 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"in-1", "in-2"}, ids(dangling))
}

func testLineageChildren(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	_, err := b.InsertRequirements(ctx, Requirements("req-1"))
	require.NoError(t, err)
	_, err = b.InsertRequirements(ctx, Requirements("req-1"))
	assert.True(t, errors.IsDuplicateError(err))

	for _, uc := range []*types.GeneratedUseCase{UseCase("uc-1", "req-1"), UseCase("uc-2", "req-1"), UseCase("uc-3", "req-2")} {
		_, err := b.InsertUseCase(ctx, uc)
		require.NoError(t, err)
	}
	for _, tmpl := range []*types.AnalysisTemplate{Template("t-1", "uc-1", "req-1"), Template("t-2", "uc-1", "req-1")} {
		_, err := b.InsertTemplate(ctx, tmpl)
		require.NoError(t, err)
	}

	req, err := b.GetRequirements(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, Requirements("req-1").Objectives, req.Objectives)
	assert.Equal(t, Requirements("req-1").Requirements, req.Requirements)

	useCases, err := b.QueryUseCasesByRequirements(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, useCases, 2)
	assert.Equal(t, "uc-1", useCases[0].ID)
	assert.Equal(t, "uc-2", useCases[1].ID)

	templates, err := b.QueryTemplatesByUseCase(ctx, "uc-1")
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "req-1", templates[0].RequirementsID)
	assert.Equal(t, Template("t-1", "uc-1", "req-1").Parameters, templates[0].Parameters)

	none, err := b.QueryTemplatesByUseCase(ctx, "uc-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testStatistics(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	seedEpochWithExecutions(t, b)
	_, err := b.InsertRequirements(ctx, Requirements("req-1"))
	require.NoError(t, err)
	_, err = b.InsertUseCase(ctx, UseCase("uc-1", "req-1"))
	require.NoError(t, err)

	failed := Execution("failed-1", "wcc", 0)
	failed.Status = types.ExecutionStatusFailed
	_, err = b.InsertExecution(ctx, failed)
	require.NoError(t, err)

	stats, err := b.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalExecutions)
	assert.Equal(t, 1, stats.TotalEpochs)
	assert.Equal(t, 1, stats.TotalRequirements)
	assert.Equal(t, 1, stats.TotalUseCases)
	assert.Equal(t, 0, stats.TotalTemplates)
	assert.Equal(t, map[string]int{"pagerank": 3, "wcc": 2}, stats.ExecutionsByAlgorithm)
	assert.Equal(t, map[string]int{"completed": 4, "failed": 1}, stats.ExecutionsByStatus)
}

func testReset(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	seedEpochWithExecutions(t, b)

	err := b.Reset(ctx, false)
	assert.True(t, errors.IsValidationError(err))
	stats, err := b.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalExecutions)

	require.NoError(t, b.Reset(ctx, true))
	stats, err = b.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalExecutions)
	assert.Zero(t, stats.TotalEpochs)
	assert.Empty(t, stats.ExecutionsByAlgorithm)
}

func testExportImport(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	seedEpochWithExecutions(t, b)
	_, err := b.InsertRequirements(ctx, Requirements("req-1"))
	require.NoError(t, err)
	_, err = b.InsertUseCase(ctx, UseCase("uc-1", "req-1"))
	require.NoError(t, err)
	_, err = b.InsertTemplate(ctx, Template("t-1", "uc-1", "req-1"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export", "catalog.json")
	require.NoError(t, b.ExportCatalog(ctx, path))

	snap, err := storage.ReadSnapshot(path)
	require.NoError(t, err)
	assert.Len(t, snap.Executions, 4)
	assert.Len(t, snap.Epochs, 1)
	assert.Len(t, snap.Templates, 1)

	// change a record so the import has something to overwrite, and drop one to re-create
	changed := WithEpoch(Execution("in-1", "pagerank", 0), "epoch-1")
	changed.Status = types.ExecutionStatusFailed
	require.NoError(t, b.UpdateExecution(ctx, changed))
	require.NoError(t, b.DeleteExecution(ctx, "out-2"))

	summary, err := b.ImportCatalog(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Executions)
	assert.Equal(t, 1, summary.Epochs)
	assert.Equal(t, 1, summary.Requirements)
	assert.Equal(t, 1, summary.UseCases)
	assert.Equal(t, 1, summary.Templates)
	assert.Equal(t, 8, summary.Total())

	restored, err := b.GetExecution(ctx, "in-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStatusCompleted, restored.Status)
	_, err = b.GetExecution(ctx, "out-2")
	assert.NoError(t, err)

	failed, err := b.QueryExecutions(ctx, &types.ExecutionFilter{Status: types.ExecutionStatusFailed}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, failed)

	_, err = b.ImportCatalog(ctx, filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.IsNotFoundError(err))
}
