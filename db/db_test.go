package db

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/catalog/errors"
)

func TestOpen(t *testing.T) {
	t.Run("opens database successfully", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		db, err := Open("/invalid/nonexistent/path/db.sqlite", nil)
		if err == nil && db != nil {
			err = db.Ping()
			db.Close()
		}
		assert.Error(t, err)
	})
}

func TestMigrate(t *testing.T) {
	t.Run("creates catalog tables", func(t *testing.T) {
		db, err := OpenWithMigrations(MemoryPath, nil)
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{"schema_migrations", "executions", "epochs", "requirements", "use_cases", "templates"} {
			var count int
			err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "table %s should exist", table)
		}

		var index int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_executions_algorithm_timestamp'").Scan(&index)
		require.NoError(t, err)
		assert.Equal(t, 1, index)
	})

	t.Run("is idempotent", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")

		var versions int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
		assert.Equal(t, 2, versions)
	})

	t.Run("closed database fails with context", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(db, nil)
		require.Error(t, err)
		assert.True(t, IsDatabaseClosed(err))
		assert.Contains(t, fmt.Sprintf("%+v", err), "migrate.go")
	})
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := OpenWithMigrations(MemoryPath, nil)
	require.NoError(t, err)
	defer db.Close()

	insert := "INSERT INTO epochs (id, name, timestamp, created_at, status) VALUES (?, ?, '', '', 'active')"
	_, err = db.Exec(insert, "e1", "2026-01")
	require.NoError(t, err)

	_, err = db.Exec(insert, "e2", "2026-01")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(errors.Wrap(err, "insert epoch")))

	_, err = db.Exec(insert, "e1", "2026-02")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
}
