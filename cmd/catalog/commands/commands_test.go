package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/catalog/errors"
	catalogtest "github.com/teranos/catalog/internal/testing"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/storage/sqlitestore"
	"github.com/teranos/catalog/storage/storagetest"
	"github.com/teranos/catalog/types"
)

func TestExecutionFilterFlags(t *testing.T) {
	t.Run("unset flags build an empty filter", func(t *testing.T) {
		f := executionFilterFlags{minResults: -1, maxTime: -1}
		filter, err := f.build()
		require.NoError(t, err)
		assert.True(t, filter.IsEmpty())
	})

	t.Run("every predicate", func(t *testing.T) {
		f := executionFilterFlags{
			epoch: "e1", algorithm: "pagerank", status: "failed",
			since: "2026-01-01", until: "2026-01-31T23:59:59Z",
			minResults: 10, maxTime: 60,
		}
		filter, err := f.build()
		require.NoError(t, err)
		assert.Equal(t, "e1", filter.EpochID)
		assert.Equal(t, types.ExecutionStatusFailed, filter.Status)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *filter.StartDate)
		assert.Equal(t, time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC), *filter.EndDate)
		assert.Equal(t, int64(10), *filter.MinResultCount)
		assert.Equal(t, 60.0, *filter.MaxExecutionTime)
	})

	t.Run("bad values", func(t *testing.T) {
		for _, f := range []executionFilterFlags{
			{status: "exploded", minResults: -1, maxTime: -1},
			{since: "last tuesday", minResults: -1, maxTime: -1},
		} {
			_, err := f.build()
			assert.True(t, errors.IsValidationError(err))
		}
	})
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanBytes(tt.n))
	}
}

func TestToYAML_UsesJSONNames(t *testing.T) {
	data, err := toYAML(types.ItemError{ID: "exec-1", Error: "boom"})
	require.NoError(t, err)
	assert.Equal(t, "error: boom\nid: exec-1\n", string(data))
}

func TestValidateOutputFormat(t *testing.T) {
	for _, f := range []string{FormatTable, FormatJSON, FormatYAML} {
		assert.NoError(t, ValidateOutputFormat(f))
	}
	assert.Error(t, ValidateOutputFormat("xml"))
}

// useTempCatalog points the commands at a fresh sqlite file
func useTempCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "catalog.toml")
	dbPath := filepath.Join(dir, "catalog.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[database]\npath = \""+dbPath+"\"\n"), 0644))

	ConfigFile, OutputFormat = cfgPath, FormatJSON
	t.Cleanup(func() { ConfigFile, OutputFormat = "", FormatTable })
	return dir
}

func testCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func TestCommands_EndToEnd(t *testing.T) {
	dir := useTempCatalog(t)
	cmd := testCmd()

	require.NoError(t, runEpochCreate(cmd, []string{"2026-01"}))

	e, err := openEnv()
	require.NoError(t, err)
	epoch, err := e.catalog.GetEpochByName(context.Background(), "2026-01")
	require.NoError(t, err)
	require.NoError(t, e.Close())

	execPath := filepath.Join(dir, "run.json")
	data, err := json.Marshal(storagetest.WithEpoch(storagetest.Execution("exec-1", "pagerank", 0), epoch.ID))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(execPath, data, 0644))
	require.NoError(t, runExecTrack(cmd, []string{execPath}))

	err = runExecTrack(cmd, []string{execPath})
	assert.True(t, errors.IsDuplicateError(err))

	require.NoError(t, runStats(cmd, nil))
	require.NoError(t, runExecShow(cmd, []string{"exec-1"}))
	require.NoError(t, runLineageCoverage(cmd, nil))
	require.NoError(t, runMaintValidate(cmd, nil))
	require.NoError(t, runMaintUsage(cmd, nil))

	snapshot := filepath.Join(dir, "snapshot.json")
	require.NoError(t, runExport(cmd, []string{snapshot}))
	assert.FileExists(t, snapshot)

	assert.True(t, errors.IsNotFoundError(runExecShow(cmd, []string{"exec-missing"})))
}

func TestCommands_BadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "catalog.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[database]\nbackend = \"postgres\"\n"), 0644))
	ConfigFile = cfgPath
	t.Cleanup(func() { ConfigFile = "" })

	_, err := openEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.backend")
}

func TestLogStorageMetrics(t *testing.T) {
	const name = "cli-metrics-test"
	b := storage.Instrument(sqlitestore.New(catalogtest.CreateTestDB(t), nil), name)
	_, err := b.GetExecution(context.Background(), "missing")
	require.Error(t, err)

	ctx := logger.WithRunID(context.Background(), "run-1")
	ours := func(logs *observer.ObservedLogs) []observer.LoggedEntry {
		return logs.Filter(func(e observer.LoggedEntry) bool {
			return e.ContextMap()[logger.FieldBackend] == name
		}).All()
	}

	t.Run("debug level logs counters", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logStorageMetrics(ctx, zap.New(core).Sugar(), prometheus.DefaultGatherer)

		entries := ours(logs)
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "get_execution", fields[logger.FieldOperation])
		assert.Equal(t, storage.OutcomeNotFound, fields[logger.FieldStatus])
		assert.Equal(t, 1.0, fields[logger.FieldCount])
		assert.Equal(t, "run-1", fields[logger.FieldRunID])
	})

	t.Run("quiet below debug", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		logStorageMetrics(ctx, zap.New(core).Sugar(), prometheus.DefaultGatherer)
		assert.Zero(t, logs.Len())
	})
}
