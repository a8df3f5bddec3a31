package sqlitestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/catalog/errors"
	catalogtest "github.com/teranos/catalog/internal/testing"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/storage/storagetest"
	"github.com/teranos/catalog/types"
)

func TestBackendSuite(t *testing.T) {
	storagetest.RunBackendSuite(t, func(t *testing.T) storage.Backend {
		return New(catalogtest.CreateTestDB(t), nil)
	})
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	assert.Equal(t, BackendName, s.Name())

	_, err = s.InsertExecution(ctx, storagetest.Execution("exec-1", "pagerank", 0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "pagerank", got.Algorithm)
	require.NoError(t, s.Vacuum(ctx))
}

func TestPath_InMemory(t *testing.T) {
	s := New(catalogtest.CreateTestDB(t), nil)
	assert.Empty(t, s.Path())
	assert.NoError(t, s.Close(), "wrapped databases are not closed by the store")
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"fixed width", "2026-01-15T10:00:00.000000000Z", storagetest.BaseTime, false},
		{"rfc3339 with offset", "2026-01-15T12:00:00+02:00", storagetest.BaseTime, false},
		{"garbage", "yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTime(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestFormatTime_SortsAsText(t *testing.T) {
	earlier := formatTime(storagetest.BaseTime)
	later := formatTime(storagetest.BaseTime.Add(1500 * time.Millisecond))
	assert.Less(t, earlier, later)
	assert.Len(t, later, len(earlier))
}

func TestQueryEpochs_NameContainsIsLiteral(t *testing.T) {
	ctx := context.Background()
	s := New(catalogtest.CreateTestDB(t), nil)

	_, err := s.InsertEpoch(ctx, storagetest.Epoch("e1", "run_1", 0))
	require.NoError(t, err)
	_, err = s.InsertEpoch(ctx, storagetest.Epoch("e2", "runX1", 0))
	require.NoError(t, err)

	got, err := s.QueryEpochs(ctx, &types.EpochFilter{NameContains: "_1"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
}

// --- Sqlmock Tests ---

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return New(sqlDB, nil), mock
}

func TestInsertExecution_Sqlmock_DriverFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO executions`).
		WillReturnError(errors.New("disk I/O error"))

	_, err := s.InsertExecution(context.Background(), storagetest.Execution("exec-1", "pagerank", 0))
	require.Error(t, err)
	assert.True(t, errors.IsStorageError(err))
	assert.False(t, errors.IsDuplicateError(err))
	assert.Contains(t, err.Error(), "exec-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExecution_Sqlmock_NoRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE executions SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateExecution(context.Background(), storagetest.Execution("exec-1", "pagerank", 0))
	assert.True(t, errors.IsNotFoundError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExecution_Sqlmock_QueryFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT .* FROM executions WHERE id = \?`).
		WithArgs("exec-1").
		WillReturnError(sql.ErrConnDone)

	_, err := s.GetExecution(context.Background(), "exec-1")
	assert.True(t, errors.IsStorageError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStatistics_Sqlmock(t *testing.T) {
	s, mock := newMockStore(t)

	for _, n := range []int{3, 1, 0, 0, 0} {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
	}
	mock.ExpectQuery(`SELECT algorithm, COUNT\(\*\) FROM executions GROUP BY algorithm`).
		WillReturnRows(sqlmock.NewRows([]string{"algorithm", "count"}).AddRow("pagerank", 2).AddRow("wcc", 1))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM executions GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("completed", 3))

	stats, err := s.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalExecutions)
	assert.Equal(t, 1, stats.TotalEpochs)
	assert.Equal(t, map[string]int{"pagerank": 2, "wcc": 1}, stats.ExecutionsByAlgorithm)
	assert.Equal(t, map[string]int{"completed": 3}, stats.ExecutionsByStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReset_Sqlmock_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM executions`).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM epochs`).WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	err := s.Reset(context.Background(), true)
	require.Error(t, err)
	assert.True(t, errors.IsStorageError(err))
	assert.Contains(t, err.Error(), "epochs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEpoch_Sqlmock_CascadeOrder(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("epoch-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM executions WHERE epoch_id = \?`).WithArgs("epoch-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM epochs WHERE id = \?`).WithArgs("epoch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.DeleteEpoch(context.Background(), "epoch-1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}
