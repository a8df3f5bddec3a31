package manager

import (
	"context"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
)

// DiskUsage is the filesystem holding the database
type DiskUsage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// StorageUsage is a rough picture of how much the catalog holds
type StorageUsage struct {
	Backend         string     `json:"backend,omitempty"`
	Path            string     `json:"path,omitempty"`
	Executions      int        `json:"executions"`
	Epochs          int        `json:"epochs"`
	TotalResultRows int64      `json:"total_result_rows"`
	EstimatedBytes  int64      `json:"estimated_bytes"`
	Disk            *DiskUsage `json:"disk,omitempty"`
}

// GetStorageUsage counts executions, epochs and result rows. EstimatedBytes
// is linear in the result row count. Disk is filled only for file-backed stores.
func (m *Manager) GetStorageUsage(ctx context.Context) (*StorageUsage, error) {
	stats, err := m.backend.GetStatistics(ctx)
	if err != nil {
		return nil, err
	}
	execs, err := m.backend.QueryExecutions(ctx, nil, 0, 0)
	if err != nil {
		return nil, err
	}

	u := &StorageUsage{
		Executions: stats.TotalExecutions,
		Epochs:     stats.TotalEpochs,
	}
	for _, e := range execs {
		u.TotalResultRows += int64(e.ResultCount)
	}
	u.EstimatedBytes = u.TotalResultRows * m.bytesPerRow

	if n, ok := storage.Capability[storage.Named](m.backend); ok {
		u.Backend = n.Name()
	}
	if l, ok := storage.Capability[storage.Locator](m.backend); ok && l.Path() != "" {
		u.Path = l.Path()
		u.Disk = m.diskUsage(ctx, u.Path)
	}
	return u, nil
}

func (m *Manager) diskUsage(ctx context.Context, path string) *DiskUsage {
	d, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		m.log(ctx).Warnw("Could not read disk usage",
			logger.FieldPath, path,
			logger.FieldError, err,
		)
		return nil
	}
	return &DiskUsage{
		Path:        d.Path,
		TotalBytes:  d.Total,
		FreeBytes:   d.Free,
		UsedPercent: d.UsedPercent,
	}
}
