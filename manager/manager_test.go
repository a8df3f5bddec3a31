package manager

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/catalog/catalog"
	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	catalogtest "github.com/teranos/catalog/internal/testing"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/storage/badgerstore"
	"github.com/teranos/catalog/storage/sqlitestore"
	"github.com/teranos/catalog/storage/storagetest"
	"github.com/teranos/catalog/types"
)

// now is 40 days after the fixtures' base time
var now = storagetest.BaseTime.Add(40 * 24 * time.Hour)

func newTestManager(t *testing.T, b storage.Backend, opts Options) *Manager {
	t.Helper()
	if b == nil {
		b = sqlitestore.New(catalogtest.CreateTestDB(t), nil)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return now }
	}
	return New(catalog.New(b, catalog.Options{}), opts)
}

func insertExecutions(t *testing.T, b storage.Backend, execs ...*types.Execution) {
	t.Helper()
	for _, e := range execs {
		_, err := b.InsertExecution(context.Background(), e)
		require.NoError(t, err)
	}
}

func exists(t *testing.T, b storage.Backend, id string) bool {
	t.Helper()
	_, err := b.GetExecution(context.Background(), id)
	if errors.IsNotFoundError(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

// failingDeletes rejects deletes of one execution id
type failingDeletes struct {
	storage.Backend
	failID string
}

func (f *failingDeletes) DeleteExecution(ctx context.Context, id string) error {
	if id == f.failID {
		return errors.NewStorageError("disk on fire deleting %s", id)
	}
	return f.Backend.DeleteExecution(ctx, id)
}

func TestBatchDeleteExecutions(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})
	b := m.backend
	insertExecutions(t, b,
		storagetest.Execution("exec-1", "pagerank", 0),
		storagetest.Execution("exec-2", "pagerank", time.Hour),
		storagetest.Execution("exec-3", "wcc", 2*time.Hour),
	)

	t.Run("empty filter refused", func(t *testing.T) {
		_, err := m.BatchDeleteExecutions(ctx, nil, false)
		assert.True(t, errors.IsValidationError(err))
		_, err = m.BatchDeleteExecutions(ctx, &types.ExecutionFilter{}, true)
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("dry run", func(t *testing.T) {
		r, err := m.BatchDeleteExecutions(ctx, &types.ExecutionFilter{Algorithm: "pagerank"}, true)
		require.NoError(t, err)
		assert.True(t, r.DryRun)
		assert.Equal(t, 2, r.Matched)
		assert.Zero(t, r.Processed)
		assert.ElementsMatch(t, []string{"exec-1", "exec-2"}, r.IDs)
		assert.True(t, exists(t, b, "exec-1"))
	})

	t.Run("delete", func(t *testing.T) {
		r, err := m.BatchDeleteExecutions(ctx, &types.ExecutionFilter{Algorithm: "pagerank"}, false)
		require.NoError(t, err)
		assert.Equal(t, 2, r.Processed)
		assert.Empty(t, r.Errors)
		assert.False(t, exists(t, b, "exec-1"))
		assert.False(t, exists(t, b, "exec-2"))
		assert.True(t, exists(t, b, "exec-3"))
	})
}

func TestBatchDeleteExecutions_ItemErrors(t *testing.T) {
	ctx := context.Background()
	inner := sqlitestore.New(catalogtest.CreateTestDB(t), nil)
	m := newTestManager(t, &failingDeletes{Backend: inner, failID: "exec-2"}, Options{})
	insertExecutions(t, inner,
		storagetest.Execution("exec-1", "pagerank", 0),
		storagetest.Execution("exec-2", "pagerank", time.Hour),
		storagetest.Execution("exec-3", "pagerank", 2*time.Hour),
	)

	r, err := m.BatchDeleteExecutions(ctx, &types.ExecutionFilter{Algorithm: "pagerank"}, false)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Matched)
	assert.Equal(t, 2, r.Processed)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "exec-2", r.Errors[0].ID)
	assert.Contains(t, r.Errors[0].Error, "disk on fire")
	assert.True(t, exists(t, inner, "exec-2"))
}

func TestDeleteThrottle(t *testing.T) {
	m := newTestManager(t, nil, Options{DeleteRatePerSecond: 0.001})
	insertExecutions(t, m.backend,
		storagetest.Execution("exec-1", "pagerank", 0),
		storagetest.Execution("exec-2", "pagerank", time.Hour),
	)

	// The burst allows one delete; the next would wait far past the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r, err := m.BatchDeleteExecutions(ctx, &types.ExecutionFilter{Algorithm: "pagerank"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Processed)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0].Error, "delete throttle")
}

func TestArchiveOldEpochs(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})
	b := m.backend

	old := storagetest.Epoch("e-old", "january", 0)
	recent := storagetest.Epoch("e-recent", "february", 35*24*time.Hour)
	done := storagetest.Epoch("e-done", "december", -24*time.Hour)
	done.Status = types.EpochStatusCompleted
	for _, e := range []*types.Epoch{old, recent, done} {
		_, err := b.InsertEpoch(ctx, e)
		require.NoError(t, err)
	}

	r, err := m.ArchiveOldEpochs(ctx, 30, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"e-old"}, r.IDs)
	got, err := b.GetEpoch(ctx, "e-old")
	require.NoError(t, err)
	assert.Equal(t, types.EpochStatusActive, got.Status)

	r, err = m.ArchiveOldEpochs(ctx, 30, false)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Processed)

	for id, want := range map[string]types.EpochStatus{
		"e-old":    types.EpochStatusArchived,
		"e-recent": types.EpochStatusActive,
		"e-done":   types.EpochStatusCompleted,
	} {
		got, err := b.GetEpoch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, id)
	}

	_, err = m.ArchiveOldEpochs(ctx, -1, false)
	assert.True(t, errors.IsValidationError(err))
}

func TestCleanupFailedExecutions(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})

	oldFailed := storagetest.Execution("exec-old-failed", "pagerank", 0)
	oldFailed.Status = types.ExecutionStatusFailed
	newFailed := storagetest.Execution("exec-new-failed", "pagerank", 39*24*time.Hour)
	newFailed.Status = types.ExecutionStatusFailed
	insertExecutions(t, m.backend, oldFailed, newFailed, storagetest.Execution("exec-ok", "pagerank", 0))

	r, err := m.CleanupFailedExecutions(ctx, 30, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-old-failed"}, r.IDs)
	assert.Equal(t, 1, r.Processed)
	assert.False(t, exists(t, m.backend, "exec-old-failed"))
	assert.True(t, exists(t, m.backend, "exec-new-failed"))
	assert.True(t, exists(t, m.backend, "exec-ok"))
}

// seedIntegrity stores one fully resolvable execution
func seedIntegrity(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	_, err := b.InsertRequirements(ctx, storagetest.Requirements("req-1"))
	require.NoError(t, err)
	_, err = b.InsertUseCase(ctx, storagetest.UseCase("uc-1", "req-1"))
	require.NoError(t, err)
	_, err = b.InsertTemplate(ctx, storagetest.Template("tmpl-1", "uc-1", "req-1"))
	require.NoError(t, err)
	_, err = b.InsertEpoch(ctx, storagetest.Epoch("e1", "january", 0))
	require.NoError(t, err)
	insertExecutions(t, b, storagetest.WithEpoch(
		storagetest.WithLineage(storagetest.Execution("exec-1", "wcc", 0), "req-1", "uc-1", "tmpl-1"), "e1"))
}

func TestValidateCatalogIntegrity(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})
	seedIntegrity(t, m.backend)

	report, err := m.ValidateCatalogIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	assert.Equal(t, 1, report.ExecutionsChecked)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)

	insertExecutions(t, m.backend,
		storagetest.WithLineage(storagetest.Execution("exec-orphan", "wcc", time.Hour), "", "", "tmpl-gone"),
		storagetest.WithEpoch(storagetest.WithLineage(storagetest.Execution("exec-loose", "wcc", 2*time.Hour), "req-gone", "uc-1", "tmpl-1"), "e-gone"),
	)

	report, err = m.ValidateCatalogIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, IntegrityIssue{
		ExecutionID: "exec-orphan",
		Field:       RefTemplate,
		RefID:       "tmpl-gone",
		Message:     "template tmpl-gone does not exist",
	}, report.Errors[0])

	var warned []string
	for _, w := range report.Warnings {
		assert.Equal(t, "exec-loose", w.ExecutionID)
		warned = append(warned, w.Field)
	}
	assert.ElementsMatch(t, []string{RefRequirements, RefEpoch}, warned)
}

func TestRepairCatalog(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})
	seedIntegrity(t, m.backend)
	insertExecutions(t, m.backend,
		storagetest.WithLineage(storagetest.Execution("exec-orphan", "wcc", time.Hour), "", "", "tmpl-gone"),
		storagetest.WithEpoch(storagetest.WithLineage(storagetest.Execution("exec-loose", "wcc", 2*time.Hour), "req-gone", "uc-1", "tmpl-1"), "e-gone"),
	)

	t.Run("no fixes", func(t *testing.T) {
		res, err := m.RepairCatalog(ctx, false, false)
		require.NoError(t, err)
		assert.Zero(t, res.OrphansDeleted)
		assert.Zero(t, res.LinksCleared)
		assert.True(t, exists(t, m.backend, "exec-orphan"))
	})

	t.Run("fix both", func(t *testing.T) {
		res, err := m.RepairCatalog(ctx, true, true)
		require.NoError(t, err)
		assert.Equal(t, 1, res.OrphansDeleted)
		assert.Equal(t, 2, res.LinksCleared)
		assert.Empty(t, res.Errors)
		assert.False(t, exists(t, m.backend, "exec-orphan"))

		loose, err := m.backend.GetExecution(ctx, "exec-loose")
		require.NoError(t, err)
		assert.Nil(t, loose.RequirementsID)
		assert.Nil(t, loose.EpochID)
		assert.Equal(t, "uc-1", types.Deref(loose.UseCaseID))

		report, err := m.ValidateCatalogIntegrity(ctx)
		require.NoError(t, err)
		assert.True(t, report.Healthy)
		assert.Empty(t, report.Warnings)
	})
}

func TestVacuumOrphanedData(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})
	seedIntegrity(t, m.backend)
	insertExecutions(t, m.backend,
		storagetest.WithLineage(storagetest.Execution("exec-orphan-1", "wcc", time.Hour), "", "", "tmpl-gone"),
		storagetest.WithLineage(storagetest.Execution("exec-orphan-2", "wcc", 2*time.Hour), "", "", "tmpl-gone"),
	)

	r, err := m.VacuumOrphanedData(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Matched)
	assert.Zero(t, r.Processed)

	r, err = m.VacuumOrphanedData(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Processed)
	assert.ElementsMatch(t, []string{"exec-orphan-1", "exec-orphan-2"}, r.IDs)
	assert.True(t, exists(t, m.backend, "exec-1"))
}

func TestRefCache(t *testing.T) {
	calls := map[string]int{}
	c := newRefCache(func(id string) error {
		calls[id]++
		switch id {
		case "present":
			return nil
		case "broken":
			return errors.NewStorageError("io failure")
		}
		return errors.NewNotFoundError("%s missing", id)
	})

	for i := 0; i < 2; i++ {
		ok, err := c.resolves("present")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = c.resolves("absent")
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = c.resolves("broken")
		assert.True(t, errors.IsStorageError(err))
	}
	ok, err := c.resolves("")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, map[string]int{"present": 1, "absent": 1, "broken": 2}, calls)
}

func seedEpoch(t *testing.T, b storage.Backend) {
	t.Helper()
	_, err := b.InsertEpoch(context.Background(), storagetest.Epoch("e1", "january", 0, "monthly"))
	require.NoError(t, err)
	insertExecutions(t, b,
		storagetest.WithEpoch(storagetest.Execution("exec-1", "pagerank", 0), "e1"),
		storagetest.WithEpoch(storagetest.Execution("exec-2", "wcc", time.Hour), "e1"),
		storagetest.Execution("exec-other", "wcc", 2*time.Hour),
	)
}

func TestExportImportEpoch(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})
	seedEpoch(t, m.backend)
	path := filepath.Join(t.TempDir(), "exports", "e1.json")

	export, err := m.ExportEpoch(ctx, "e1", path)
	require.NoError(t, err)
	assert.Equal(t, now, export.ExportedAt)
	assert.Len(t, export.Executions, 2)

	t.Run("into empty catalog", func(t *testing.T) {
		fresh := newTestManager(t, nil, Options{})
		res, err := fresh.ImportEpoch(ctx, path, false)
		require.NoError(t, err)
		assert.Equal(t, "e1", res.EpochID)
		assert.False(t, res.Replaced)
		assert.Equal(t, 2, res.Executions)
		assert.Empty(t, res.Errors)

		epoch, err := fresh.backend.GetEpoch(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "january", epoch.Name)
		assert.Equal(t, []string{"monthly"}, epoch.Tags)
		assert.True(t, exists(t, fresh.backend, "exec-1"))
		assert.False(t, exists(t, fresh.backend, "exec-other"))
	})

	t.Run("existing epoch without overwrite", func(t *testing.T) {
		_, err := m.ImportEpoch(ctx, path, false)
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("overwrite", func(t *testing.T) {
		res, err := m.ImportEpoch(ctx, path, true)
		require.NoError(t, err)
		assert.True(t, res.Replaced)
		assert.Equal(t, 2, res.Executions)
		assert.Empty(t, res.Errors)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := m.ImportEpoch(ctx, filepath.Join(t.TempDir(), "nope.json"), false)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("missing epoch", func(t *testing.T) {
		_, err := m.ExportEpoch(ctx, "e-missing", path)
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestImportEpoch_InvalidExecution(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})

	bad := storagetest.WithEpoch(storagetest.Execution("exec-bad", "", 0), "e1")
	data, err := json.Marshal(EpochExport{
		ExportedAt: now,
		Epoch:      storagetest.Epoch("e1", "january", 0),
		Executions: []*types.Execution{
			storagetest.WithEpoch(storagetest.Execution("exec-1", "pagerank", 0), "e1"),
			bad,
		},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "e1.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	res, err := m.ImportEpoch(ctx, path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executions)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "exec-bad", res.Errors[0].ID)
	assert.False(t, exists(t, m.backend, "exec-bad"))
}

func TestImportEpoch_InvalidEpoch(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.Backend{
		"sqlite": func(t *testing.T) storage.Backend {
			return sqlitestore.New(catalogtest.CreateTestDB(t), nil)
		},
		"badger": func(t *testing.T) storage.Backend {
			s, err := badgerstore.Open(badgerstore.InMemoryConfig())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	blankName := storagetest.Epoch("ep-x", "   ", 0)
	badStatus := storagetest.Epoch("ep-x", "january", 0)
	badStatus.Status = "bogus"

	for backendName, open := range backends {
		for caseName, epoch := range map[string]*types.Epoch{
			"blank name": blankName,
			"bad status": badStatus,
		} {
			t.Run(backendName+"/"+caseName, func(t *testing.T) {
				ctx := context.Background()
				m := newTestManager(t, open(t), Options{})

				data, err := json.Marshal(EpochExport{
					ExportedAt: now,
					Epoch:      epoch,
					Executions: []*types.Execution{storagetest.WithEpoch(storagetest.Execution("exec-1", "pagerank", 0), "ep-x")},
				})
				require.NoError(t, err)
				path := filepath.Join(t.TempDir(), "ep-x.json")
				require.NoError(t, os.WriteFile(path, data, 0644))

				_, err = m.ImportEpoch(ctx, path, false)
				assert.True(t, errors.IsValidationError(err), "got %v", err)
				assert.False(t, errors.IsStorageError(err))

				_, err = m.backend.GetEpoch(ctx, "ep-x")
				assert.True(t, errors.IsNotFoundError(err))
				assert.False(t, exists(t, m.backend, "exec-1"))
			})
		}
	}
}

func TestImportEpoch_Malformed(t *testing.T) {
	m := newTestManager(t, nil, Options{})
	dir := t.TempDir()

	for name, body := range map[string]string{
		"garbage":  "{not json",
		"no epoch": `{"executions": []}`,
	} {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		_, err := m.ImportEpoch(context.Background(), path, false)
		assert.True(t, errors.IsValidationError(err), name)
	}
}

func TestGetStorageUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("in memory", func(t *testing.T) {
		m := newTestManager(t, nil, Options{BytesPerResultRow: 10})
		seedEpoch(t, m.backend)

		u, err := m.GetStorageUsage(ctx)
		require.NoError(t, err)
		assert.Equal(t, sqlitestore.BackendName, u.Backend)
		assert.Equal(t, 3, u.Executions)
		assert.Equal(t, 1, u.Epochs)
		assert.Equal(t, int64(300), u.TotalResultRows)
		assert.Equal(t, int64(3000), u.EstimatedBytes)
		assert.Empty(t, u.Path)
		assert.Nil(t, u.Disk)
	})

	t.Run("file backed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.db")
		store, err := sqlitestore.Open(path, nil)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		m := newTestManager(t, store, Options{})

		u, err := m.GetStorageUsage(ctx)
		require.NoError(t, err)
		assert.Equal(t, path, u.Path)
		assert.Zero(t, u.EstimatedBytes)
		require.NotNil(t, u.Disk)
		assert.NotZero(t, u.Disk.TotalBytes)
	})

	t.Run("instrumented", func(t *testing.T) {
		inner := sqlitestore.New(catalogtest.CreateTestDB(t), nil)
		m := newTestManager(t, storage.Instrument(inner, "sqlite"), Options{})

		u, err := m.GetStorageUsage(ctx)
		require.NoError(t, err)
		assert.Equal(t, sqlitestore.BackendName, u.Backend)
	})
}

func TestRefreshEpochExecutionCache(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})
	seedEpoch(t, m.backend)

	epoch, err := m.RefreshEpochExecutionCache(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, epoch.ExecutionCount)
	// Newest first
	assert.Equal(t, []string{"exec-2", "exec-1"}, epoch.ExecutionIDs)

	stored, err := m.backend.GetEpoch(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ExecutionCount)

	_, err = m.RefreshEpochExecutionCache(ctx, "e-missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestBatchLogCarriesRunFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := newTestManager(t, nil, Options{Logger: zap.New(core).Sugar()})
	insertExecutions(t, m.backend, storagetest.Execution("exec-1", "pagerank", 0))

	ctx := logger.WithRunID(context.Background(), "run-7")
	_, err := m.BatchDeleteExecutions(ctx, &types.ExecutionFilter{Algorithm: "pagerank"}, true)
	require.NoError(t, err)

	entries := logs.FilterMessage("Batch operation finished").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-7", fields[logger.FieldRunID])
	assert.Equal(t, "batch_delete", fields[logger.FieldOperation])
	assert.Equal(t, true, fields[logger.FieldDryRun])
}
