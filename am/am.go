// Package am loads catalog configuration from TOML files and CATALOG_* environment variables.
package am

// Config represents the catalog configuration
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Log         LogConfig         `mapstructure:"log"`
}

// Storage backend names
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// DatabaseConfig selects and configures the storage backend
type DatabaseConfig struct {
	Backend string       `mapstructure:"backend"` // sqlite (default) or badger
	Path    string       `mapstructure:"path"`    // SQLite file or badger directory; ":memory:" for in-memory
	Badger  BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig configures the badger backend
type BadgerConfig struct {
	SyncWrites        bool    `mapstructure:"sync_writes"`         // fsync every write (default: true)
	GCIntervalSeconds int     `mapstructure:"gc_interval_seconds"` // value-log GC period, 0 = disabled
	GCDiscardRatio    float64 `mapstructure:"gc_discard_ratio"`    // rewrite a vlog file when this fraction is stale
}

// CatalogConfig configures Catalog Core and the query engine
type CatalogConfig struct {
	AsyncWorkers   int  `mapstructure:"async_workers"`   // concurrent async writes, 0 = async API disabled
	QueryMaxFetch  int  `mapstructure:"query_max_fetch"` // max executions fetched for in-memory sorting
	MetricsEnabled bool `mapstructure:"metrics_enabled"` // wrap the backend with prometheus instrumentation
}

// MaintenanceConfig configures the catalog manager
type MaintenanceConfig struct {
	DeleteRatePerSecond float64 `mapstructure:"delete_rate_per_second"` // batch delete throttle, 0 = unthrottled
	ArchiveAfterDays    int     `mapstructure:"archive_after_days"`
	FailedRetentionDays int     `mapstructure:"failed_retention_days"`
	BytesPerResultRow   int64   `mapstructure:"bytes_per_result_row"` // storage estimate multiplier
}

// LogConfig configures logger output
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// Defaults
const (
	DefaultDatabasePath        = "catalog.db"
	DefaultQueryMaxFetch       = 10000
	DefaultAsyncWorkers        = 4
	DefaultArchiveAfterDays    = 90
	DefaultFailedRetentionDays = 30
	DefaultBytesPerResultRow   = 100
	DefaultGCDiscardRatio      = 0.5
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
