package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance, no user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Database.Backend)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.True(t, cfg.Database.Badger.SyncWrites)
	assert.Equal(t, DefaultQueryMaxFetch, cfg.Catalog.QueryMaxFetch)
	assert.Equal(t, DefaultAsyncWorkers, cfg.Catalog.AsyncWorkers)
	assert.Equal(t, DefaultArchiveAfterDays, cfg.Maintenance.ArchiveAfterDays)
	assert.Equal(t, int64(DefaultBytesPerResultRow), cfg.Maintenance.BytesPerResultRow)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	content := `
[database]
backend = "badger"
path = "/var/lib/catalog"

[database.badger]
gc_interval_seconds = 60

[catalog]
query_max_fetch = 500

[maintenance]
delete_rate_per_second = 25.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, BackendBadger, cfg.GetBackend())
	assert.Equal(t, "/var/lib/catalog", cfg.GetDatabasePath())
	assert.Equal(t, 60, cfg.Database.Badger.GCIntervalSeconds)
	assert.Equal(t, 500, cfg.GetQueryMaxFetch())
	assert.Equal(t, 25.0, cfg.Maintenance.DeleteRatePerSecond)
	// Unset keys keep defaults
	assert.Equal(t, DefaultFailedRetentionDays, cfg.Maintenance.FailedRetentionDays)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "empty backend falls back to sqlite", config: Config{}, wantErr: false},
		{name: "unknown backend", config: Config{Database: DatabaseConfig{Backend: "postgres"}}, wantErr: true},
		{name: "zero async workers is valid (disabled)", config: Config{Catalog: CatalogConfig{AsyncWorkers: 0}}, wantErr: false},
		{name: "negative async workers", config: Config{Catalog: CatalogConfig{AsyncWorkers: -1}}, wantErr: true},
		{name: "negative query fetch cap", config: Config{Catalog: CatalogConfig{QueryMaxFetch: -5}}, wantErr: true},
		{name: "discard ratio of one", config: Config{Database: DatabaseConfig{Badger: BadgerConfig{GCDiscardRatio: 1}}}, wantErr: true},
		{name: "negative gc interval", config: Config{Database: DatabaseConfig{Badger: BadgerConfig{GCIntervalSeconds: -1}}}, wantErr: true},
		{name: "negative delete rate", config: Config{Maintenance: MaintenanceConfig{DeleteRatePerSecond: -1}}, wantErr: true},
		{name: "negative retention", config: Config{Maintenance: MaintenanceConfig{FailedRetentionDays: -1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("CATALOG_CATALOG_QUERY_MAX_FETCH", "42")
	t.Setenv("CATALOG_DATABASE_PATH", "/tmp/env.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Catalog.QueryMaxFetch)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)

	introspection, err := GetConfigIntrospection()
	require.NoError(t, err)
	var found bool
	for _, s := range introspection.Settings {
		if s.Key == "database.path" {
			found = true
			assert.Equal(t, SourceEnvironment, s.Source)
		}
	}
	assert.True(t, found, "database.path missing from introspection")
}
