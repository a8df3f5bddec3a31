package manager

import (
	"context"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

// BatchDeleteExecutions deletes every execution matching filter. A nil or
// empty filter is refused so a typo cannot wipe the catalog; use Reset for that.
func (m *Manager) BatchDeleteExecutions(ctx context.Context, filter *types.ExecutionFilter, dryRun bool) (*BatchResult, error) {
	if filter.IsEmpty() {
		return nil, errors.WithHint(
			errors.NewValidationError("batch delete needs at least one filter predicate"),
			"reset the catalog to delete everything")
	}
	return m.deleteMatching(ctx, "batch_delete", filter, dryRun)
}

func (m *Manager) deleteMatching(ctx context.Context, op string, filter *types.ExecutionFilter, dryRun bool) (*BatchResult, error) {
	execs, err := m.backend.QueryExecutions(ctx, filter, 0, 0)
	if err != nil {
		return nil, err
	}

	r := newBatchResult(op, dryRun)
	r.Matched = len(execs)
	for _, e := range execs {
		r.IDs = append(r.IDs, e.ID)
	}
	if !dryRun {
		m.deleteAll(ctx, r, r.IDs)
	}
	m.logBatch(ctx, r)
	return r, nil
}

// ArchiveOldEpochs archives active epochs whose timestamp is more than
// olderThanDays in the past
func (m *Manager) ArchiveOldEpochs(ctx context.Context, olderThanDays int, dryRun bool) (*BatchResult, error) {
	if olderThanDays < 0 {
		return nil, errors.NewValidationError("older_than_days must be >= 0, got %d", olderThanDays)
	}
	cutoff := m.cutoff(olderThanDays)

	epochs, err := m.backend.QueryEpochs(ctx, &types.EpochFilter{
		Status:  types.EpochStatusActive,
		EndDate: &cutoff,
	}, 0, 0)
	if err != nil {
		return nil, err
	}

	r := newBatchResult("archive_epochs", dryRun)
	for _, epoch := range epochs {
		// EndDate is inclusive; archival wants strictly older
		if !epoch.Timestamp.Before(cutoff) {
			continue
		}
		r.Matched++
		r.IDs = append(r.IDs, epoch.ID)
		if dryRun {
			continue
		}

		epoch.Status = types.EpochStatusArchived
		if err := m.backend.UpdateEpoch(ctx, epoch); err != nil {
			r.fail(epoch.ID, err)
			continue
		}
		r.Processed++
	}
	m.logBatch(ctx, r)
	return r, nil
}

// CleanupFailedExecutions deletes failed executions more than olderThanDays old
func (m *Manager) CleanupFailedExecutions(ctx context.Context, olderThanDays int, dryRun bool) (*BatchResult, error) {
	if olderThanDays < 0 {
		return nil, errors.NewValidationError("older_than_days must be >= 0, got %d", olderThanDays)
	}
	cutoff := m.cutoff(olderThanDays)
	return m.deleteMatching(ctx, "cleanup_failed", &types.ExecutionFilter{
		Status:  types.ExecutionStatusFailed,
		EndDate: &cutoff,
	}, dryRun)
}

// VacuumOrphanedData deletes executions whose template no longer exists,
// then lets the backend reclaim space when it can
func (m *Manager) VacuumOrphanedData(ctx context.Context, dryRun bool) (*BatchResult, error) {
	execs, err := m.backend.QueryExecutions(ctx, nil, 0, 0)
	if err != nil {
		return nil, err
	}

	r := newBatchResult("vacuum_orphans", dryRun)
	templates := newRefCache(func(id string) error {
		_, err := m.backend.GetTemplate(ctx, id)
		return err
	})
	for _, e := range execs {
		ok, err := templates.resolves(e.TemplateID)
		if err != nil {
			r.fail(e.ID, err)
			continue
		}
		if !ok {
			r.Matched++
			r.IDs = append(r.IDs, e.ID)
		}
	}

	if !dryRun {
		m.deleteAll(ctx, r, r.IDs)
		if r.Processed > 0 {
			m.compact(ctx)
		}
	}
	m.logBatch(ctx, r)
	return r, nil
}

type vacuumer interface {
	Vacuum(ctx context.Context) error
}

// compact runs the backend's space reclamation, if it has one
func (m *Manager) compact(ctx context.Context) {
	v, ok := storage.Capability[vacuumer](m.backend)
	if !ok {
		return
	}
	if err := v.Vacuum(ctx); err != nil {
		m.log(ctx).Warnw("Backend vacuum failed", logger.FieldError, err)
	}
}

// RefreshEpochExecutionCache recomputes an epoch's cached execution count and ids
func (m *Manager) RefreshEpochExecutionCache(ctx context.Context, epochID string) (*types.Epoch, error) {
	epoch, err := m.backend.GetEpoch(ctx, epochID)
	if err != nil {
		return nil, err
	}
	execs, err := m.backend.QueryExecutions(ctx, &types.ExecutionFilter{EpochID: epochID}, 0, 0)
	if err != nil {
		return nil, err
	}

	epoch.ExecutionIDs = make([]string, 0, len(execs))
	for _, e := range execs {
		epoch.ExecutionIDs = append(epoch.ExecutionIDs, e.ID)
	}
	epoch.ExecutionCount = len(execs)
	if err := m.backend.UpdateEpoch(ctx, epoch); err != nil {
		return nil, err
	}
	return epoch, nil
}
