package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/types"
)

// Snapshot is the whole-catalog export format
type Snapshot struct {
	ExportedAt   time.Time                      `json:"exported_at"`
	Executions   []*types.Execution             `json:"executions"`
	Epochs       []*types.Epoch                 `json:"epochs"`
	Requirements []*types.ExtractedRequirements `json:"requirements"`
	UseCases     []*types.GeneratedUseCase      `json:"use_cases"`
	Templates    []*types.AnalysisTemplate      `json:"templates"`
}

// WriteSnapshot writes snap as indented JSON, creating parent directories
func WriteSnapshot(path string, snap *Snapshot) error {
	if snap.ExportedAt.IsZero() {
		snap.ExportedAt = time.Now().UTC()
	}
	// Empty collections export as [] rather than null
	if snap.Executions == nil {
		snap.Executions = []*types.Execution{}
	}
	if snap.Epochs == nil {
		snap.Epochs = []*types.Epoch{}
	}
	if snap.Requirements == nil {
		snap.Requirements = []*types.ExtractedRequirements{}
	}
	if snap.UseCases == nil {
		snap.UseCases = []*types.GeneratedUseCase{}
	}
	if snap.Templates == nil {
		snap.Templates = []*types.AnalysisTemplate{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.WrapStorage(err, "failed to encode catalog snapshot")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapStorage(err, "failed to create export directory "+dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapStorage(err, "failed to write catalog snapshot "+path)
	}
	return nil
}

// ReadSnapshot reads a snapshot written by WriteSnapshot
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("snapshot file %s does not exist", path)
		}
		return nil, errors.WrapStorage(err, "failed to read catalog snapshot "+path)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "snapshot %s is not valid catalog JSON", path), errors.ErrValidation)
	}
	return &snap, nil
}

// CollectSnapshot gathers every record of the catalog. The lineage
// collections come from the lister since Backend has no unfiltered scan for them.
func CollectSnapshot(ctx context.Context, b Backend, lister LineageLister) (*Snapshot, error) {
	execs, err := b.QueryExecutions(ctx, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	epochs, err := b.QueryEpochs(ctx, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	reqs, err := lister.ListRequirements(ctx)
	if err != nil {
		return nil, err
	}
	useCases, err := lister.ListUseCases(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := lister.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ExportedAt:   time.Now().UTC(),
		Executions:   execs,
		Epochs:       epochs,
		Requirements: reqs,
		UseCases:     useCases,
		Templates:    templates,
	}, nil
}

// LineageLister lists the lineage collections in full
type LineageLister interface {
	ListRequirements(ctx context.Context) ([]*types.ExtractedRequirements, error)
	ListUseCases(ctx context.Context) ([]*types.GeneratedUseCase, error)
	ListTemplates(ctx context.Context) ([]*types.AnalysisTemplate, error)
}
