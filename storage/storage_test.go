package storage_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/catalog/errors"
	catalogtest "github.com/teranos/catalog/internal/testing"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/storage/sqlitestore"
	"github.com/teranos/catalog/storage/storagetest"
	"github.com/teranos/catalog/types"
)

func newBackend(t *testing.T) storage.Backend {
	return sqlitestore.New(catalogtest.CreateTestDB(t), nil)
}

func TestAsyncWriter_InsertsConcurrently(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	w := storage.NewAsyncWriter(b, 3, nil)

	var pending []*storage.PendingWrite
	for i := 0; i < 20; i++ {
		pending = append(pending, w.InsertExecution(ctx, storagetest.Execution(fmt.Sprintf("exec-%02d", i), "pagerank", time.Duration(i)*time.Minute)))
	}
	pending = append(pending,
		w.InsertEpoch(ctx, storagetest.Epoch("e1", "2026-01", 0)),
		w.InsertRequirements(ctx, storagetest.Requirements("req-1")),
		w.InsertUseCase(ctx, storagetest.UseCase("uc-1", "req-1")),
		w.InsertTemplate(ctx, storagetest.Template("t-1", "uc-1", "req-1")),
	)

	for _, p := range pending {
		id, err := p.Wait(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}
	w.Close()

	stats, err := b.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.TotalExecutions)
	assert.Equal(t, 1, stats.TotalEpochs)
	assert.Equal(t, 1, stats.TotalTemplates)
}

func TestAsyncWriter_SurfacesBackendErrors(t *testing.T) {
	ctx := context.Background()
	w := storage.NewAsyncWriter(newBackend(t), 1, nil)
	defer w.Close()

	_, err := w.InsertEpoch(ctx, storagetest.Epoch("e1", "dup", 0)).Wait(ctx)
	require.NoError(t, err)

	_, err = w.InsertEpoch(ctx, storagetest.Epoch("e2", "dup", 0)).Wait(ctx)
	assert.True(t, errors.IsDuplicateError(err), "got %v", err)
}

func TestAsyncWriter_RejectsAfterClose(t *testing.T) {
	ctx := context.Background()
	w := storage.NewAsyncWriter(newBackend(t), 2, nil)
	w.Close()

	p := w.InsertExecution(ctx, storagetest.Execution("late", "pagerank", 0))
	select {
	case <-p.Done():
	default:
		t.Fatal("write after Close should fail immediately")
	}
	_, err := p.Wait(ctx)
	assert.True(t, errors.Is(err, storage.ErrWriterClosed))
	assert.True(t, errors.IsStorageError(err))
}

func TestAsyncWriter_CloseDrainsInFlight(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	w := storage.NewAsyncWriter(b, 2, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.InsertExecution(ctx, storagetest.Execution(fmt.Sprintf("exec-%d", i), "wcc", 0))
		}(i)
	}
	wg.Wait()
	w.Close()

	execs, err := b.QueryExecutions(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.Len(t, execs, 10)
}

func TestFailed(t *testing.T) {
	p := storage.Failed(errors.New("boom"))
	select {
	case <-p.Done():
	default:
		t.Fatal("Failed handle must be done")
	}
	_, err := p.Wait(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestAsyncWriter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := storage.NewAsyncWriter(newBackend(t), 1, nil)
	defer w.Close()

	_, err := w.InsertExecution(ctx, storagetest.Execution("x", "wcc", 0)).Wait(context.Background())
	assert.Error(t, err)
}

func TestInstrument_CountsOutcomes(t *testing.T) {
	ctx := context.Background()
	const name = "instrument-test"
	b := storage.Instrument(newBackend(t), name)

	_, err := b.InsertEpoch(ctx, storagetest.Epoch("e1", "2026-01", 0))
	require.NoError(t, err)
	_, err = b.InsertEpoch(ctx, storagetest.Epoch("e2", "2026-01", 0))
	require.Error(t, err)
	_, err = b.GetExecution(ctx, "missing")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(storage.OperationCount(name, "insert_epoch", storage.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(storage.OperationCount(name, "insert_epoch", storage.OutcomeDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(storage.OperationCount(name, "get_execution", storage.OutcomeNotFound)))

	named, ok := b.(storage.Named)
	require.True(t, ok)
	assert.Equal(t, name, named.Name())
	locator, ok := b.(storage.Locator)
	require.True(t, ok)
	assert.Empty(t, locator.Path())
}

func TestSummarizeOperations(t *testing.T) {
	ctx := context.Background()
	const name = "summary-test"
	b := storage.Instrument(newBackend(t), name)

	_, err := b.GetEpoch(ctx, "missing")
	require.Error(t, err)
	_, err = b.InsertEpoch(ctx, storagetest.Epoch("e1", "2026-01", 0))
	require.NoError(t, err)
	_, err = b.GetEpoch(ctx, "e1")
	require.NoError(t, err)
	_, err = b.GetEpoch(ctx, "e1")
	require.NoError(t, err)

	all, err := storage.SummarizeOperations(prometheus.DefaultGatherer)
	require.NoError(t, err)

	var mine []storage.OperationSummary
	for _, s := range all {
		if s.Backend == name {
			mine = append(mine, s)
		}
	}
	assert.Equal(t, []storage.OperationSummary{
		{Backend: name, Operation: "get_epoch", Outcome: storage.OutcomeNotFound, Count: 1},
		{Backend: name, Operation: "get_epoch", Outcome: storage.OutcomeOK, Count: 2},
		{Backend: name, Operation: "insert_epoch", Outcome: storage.OutcomeOK, Count: 1},
	}, mine)
}

func TestInstrument_PassesBackendSuite(t *testing.T) {
	storagetest.RunBackendSuite(t, func(t *testing.T) storage.Backend {
		return storage.Instrument(newBackend(t), "suite")
	})
}

func TestSnapshot_EmptyCollectionsAreArrays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.json")
	require.NoError(t, storage.WriteSnapshot(path, &storage.Snapshot{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{"exported_at", "executions", "epochs", "requirements", "use_cases", "templates"} {
		assert.Contains(t, string(data), `"`+key+`"`)
	}
	assert.NotContains(t, string(data), "null")
}

func TestReadSnapshot_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := storage.ReadSnapshot(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.IsNotFoundError(err))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = storage.ReadSnapshot(bad)
	assert.True(t, errors.IsValidationError(err))
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	tests := []struct {
		name          string
		limit, offset int
		want          []int
	}{
		{"unbounded", 0, 0, []int{1, 2, 3, 4, 5}},
		{"negative limit is unbounded", -1, 2, []int{3, 4, 5}},
		{"window", 2, 1, []int{2, 3}},
		{"limit past end", 10, 3, []int{4, 5}},
		{"offset past end", 2, 5, []int{}},
		{"negative offset", 1, -3, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.Page(items, tt.limit, tt.offset))
		})
	}
}

func TestSortExecutions_TiesByID(t *testing.T) {
	execs := []*types.Execution{
		storagetest.Execution("b", "wcc", 0),
		storagetest.Execution("c", "wcc", time.Hour),
		storagetest.Execution("a", "wcc", 0),
	}
	storage.SortExecutions(execs)
	assert.Equal(t, "c", execs[0].ID)
	assert.Equal(t, "a", execs[1].ID)
	assert.Equal(t, "b", execs[2].ID)
}

func TestCapability_UnwrapsInstrumented(t *testing.T) {
	b := storage.Instrument(newBackend(t), "capability-test")

	lister, ok := storage.Capability[storage.LineageLister](b)
	require.True(t, ok)
	reqs, err := lister.ListRequirements(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reqs)

	named, ok := storage.Capability[storage.Named](b)
	require.True(t, ok)
	assert.Equal(t, "capability-test", named.Name())

	_, ok = storage.Capability[interface{ Vacuum(context.Context) error }](storage.Backend(nil))
	assert.False(t, ok)
}
