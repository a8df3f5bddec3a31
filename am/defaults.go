package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.backend", BackendSQLite)
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.badger.sync_writes", true)
	v.SetDefault("database.badger.gc_interval_seconds", 300)
	v.SetDefault("database.badger.gc_discard_ratio", DefaultGCDiscardRatio)

	// Catalog defaults
	v.SetDefault("catalog.async_workers", DefaultAsyncWorkers)
	v.SetDefault("catalog.query_max_fetch", DefaultQueryMaxFetch)
	v.SetDefault("catalog.metrics_enabled", false)

	// Maintenance defaults
	v.SetDefault("maintenance.delete_rate_per_second", 0)
	v.SetDefault("maintenance.archive_after_days", DefaultArchiveAfterDays)
	v.SetDefault("maintenance.failed_retention_days", DefaultFailedRetentionDays)
	v.SetDefault("maintenance.bytes_per_result_row", DefaultBytesPerResultRow)

	v.SetDefault("log.json", false)
}

// BindEnvVars binds keys whose env names are read by deployment scripts
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "CATALOG_DATABASE_PATH")
	v.BindEnv("database.backend", "CATALOG_DATABASE_BACKEND")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// GetBackend returns the configured backend name
func (c *Config) GetBackend() string {
	if c.Database.Backend == "" {
		return BackendSQLite
	}
	return c.Database.Backend
}

// GetQueryMaxFetch returns the query fetch cap (default: 10000)
func (c *Config) GetQueryMaxFetch() int {
	if c.Catalog.QueryMaxFetch <= 0 {
		return DefaultQueryMaxFetch
	}
	return c.Catalog.QueryMaxFetch
}

// GetBytesPerResultRow returns the storage estimate multiplier
func (c *Config) GetBytesPerResultRow() int64 {
	if c.Maintenance.BytesPerResultRow <= 0 {
		return DefaultBytesPerResultRow
	}
	return c.Maintenance.BytesPerResultRow
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: {Backend: %s, Path: %s}, Catalog: {AsyncWorkers: %d, QueryMaxFetch: %d}}",
		c.GetBackend(), c.GetDatabasePath(), c.Catalog.AsyncWorkers, c.GetQueryMaxFetch())
}
