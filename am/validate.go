package am

import "github.com/teranos/catalog/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.GetBackend() {
	case BackendSQLite, BackendBadger:
	default:
		return errors.Newf("database.backend must be %q or %q, got %q", BackendSQLite, BackendBadger, c.Database.Backend)
	}

	// GC interval: 0 = disabled, negative = invalid
	if c.Database.Badger.GCIntervalSeconds < 0 {
		return errors.Newf("database.badger.gc_interval_seconds must be >= 0, got %d", c.Database.Badger.GCIntervalSeconds)
	}
	if c.Database.Badger.GCDiscardRatio < 0 || c.Database.Badger.GCDiscardRatio >= 1 {
		return errors.Newf("database.badger.gc_discard_ratio must be in [0, 1), got %f", c.Database.Badger.GCDiscardRatio)
	}

	// Async workers: 0 = async writes disabled
	if c.Catalog.AsyncWorkers < 0 {
		return errors.Newf("catalog.async_workers must be >= 0, got %d", c.Catalog.AsyncWorkers)
	}
	// Query fetch cap: 0 = use default
	if c.Catalog.QueryMaxFetch < 0 {
		return errors.Newf("catalog.query_max_fetch must be >= 0, got %d", c.Catalog.QueryMaxFetch)
	}

	if c.Maintenance.DeleteRatePerSecond < 0 {
		return errors.Newf("maintenance.delete_rate_per_second must be >= 0, got %f", c.Maintenance.DeleteRatePerSecond)
	}
	if c.Maintenance.ArchiveAfterDays < 0 {
		return errors.Newf("maintenance.archive_after_days must be >= 0, got %d", c.Maintenance.ArchiveAfterDays)
	}
	if c.Maintenance.FailedRetentionDays < 0 {
		return errors.Newf("maintenance.failed_retention_days must be >= 0, got %d", c.Maintenance.FailedRetentionDays)
	}
	if c.Maintenance.BytesPerResultRow < 0 {
		return errors.Newf("maintenance.bytes_per_result_row must be >= 0, got %d", c.Maintenance.BytesPerResultRow)
	}

	return nil
}
