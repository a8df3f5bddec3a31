package manager

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/teranos/catalog/catalog"
	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/types"
)

// EpochExport is the single-epoch snapshot format
type EpochExport struct {
	ExportedAt time.Time          `json:"exported_at"`
	Epoch      *types.Epoch       `json:"epoch"`
	Executions []*types.Execution `json:"executions"`
}

// ExportEpoch writes an epoch and its executions to path as JSON
func (m *Manager) ExportEpoch(ctx context.Context, epochID, path string) (*EpochExport, error) {
	epoch, err := m.backend.GetEpoch(ctx, epochID)
	if err != nil {
		return nil, err
	}
	execs, err := m.backend.QueryExecutions(ctx, &types.ExecutionFilter{EpochID: epochID}, 0, 0)
	if err != nil {
		return nil, err
	}

	export := &EpochExport{
		ExportedAt: m.now().UTC(),
		Epoch:      epoch,
		Executions: execs,
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode epoch %s", epochID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WrapStorage(err, "failed to create export directory")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, errors.WrapStorage(err, "failed to write epoch export "+path)
	}

	m.log(ctx).Infow("Exported epoch",
		logger.FieldEpochID, epochID,
		logger.FieldPath, path,
		logger.FieldCount, len(execs),
	)
	return export, nil
}

// EpochImportResult reports an ImportEpoch
type EpochImportResult struct {
	EpochID    string            `json:"epoch_id"`
	Replaced   bool              `json:"replaced"`
	Executions int               `json:"executions"`
	Errors     []types.ItemError `json:"errors"`
}

// ImportEpoch restores an epoch written by ExportEpoch. An invalid epoch, or an
// existing epoch id without overwrite, is a ValidationError. Executions are validated like
// TrackExecution; invalid ones are reported per item and skipped.
func (m *Manager) ImportEpoch(ctx context.Context, path string, overwrite bool) (*EpochImportResult, error) {
	export, err := readEpochExport(path)
	if err != nil {
		return nil, err
	}
	epoch := export.Epoch
	if err := catalog.ValidateEpoch(epoch); err != nil {
		return nil, err
	}

	_, err = m.backend.GetEpoch(ctx, epoch.ID)
	exists := err == nil
	switch {
	case err != nil && !errors.IsNotFoundError(err):
		return nil, err
	case exists && !overwrite:
		return nil, errors.WithHint(
			errors.NewValidationError("epoch %q already exists", epoch.ID),
			"import with overwrite to replace it")
	case exists:
		err = m.backend.UpdateEpoch(ctx, epoch)
	default:
		_, err = m.backend.InsertEpoch(ctx, epoch)
	}
	if err != nil {
		return nil, err
	}

	res := &EpochImportResult{EpochID: epoch.ID, Replaced: exists, Errors: []types.ItemError{}}
	for _, exec := range export.Executions {
		if err := m.importExecution(ctx, exec, overwrite); err != nil {
			res.Errors = append(res.Errors, types.ItemError{ID: exec.ID, Error: err.Error()})
			continue
		}
		res.Executions++
	}

	m.log(ctx).Infow("Imported epoch",
		logger.FieldEpochID, epoch.ID,
		logger.FieldPath, path,
		logger.FieldCount, res.Executions,
		logger.FieldErrorCount, len(res.Errors),
	)
	return res, nil
}

// importExecution tracks exec through the catalog. With overwrite, an id that
// already exists is replaced; TrackExecution has validated exec by the time
// it reports the duplicate.
func (m *Manager) importExecution(ctx context.Context, exec *types.Execution, overwrite bool) error {
	_, err := m.catalog.TrackExecution(ctx, exec)
	if err == nil || !overwrite || !errors.IsDuplicateError(err) {
		return err
	}
	return m.backend.UpdateExecution(ctx, exec)
}

func readEpochExport(path string) (*EpochExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("epoch export %s does not exist", path)
		}
		return nil, errors.WrapStorage(err, "failed to read epoch export "+path)
	}

	var export EpochExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "epoch export %s is not valid JSON", path), errors.ErrValidation)
	}
	if export.Epoch == nil || export.Epoch.ID == "" {
		return nil, errors.NewValidationError("epoch export %s has no epoch", path)
	}
	return &export, nil
}
