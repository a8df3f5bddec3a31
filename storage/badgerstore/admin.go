package badgerstore

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

// Reset drops every key in the database
func (s *Store) Reset(ctx context.Context, confirm bool) error {
	if !confirm {
		return errors.NewValidationError("reset requires confirm=true")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DropAll(); err != nil {
		return errors.WrapStorage(err, "failed to drop all keys")
	}

	s.logger.Warnw("Catalog reset", logger.FieldBackend, BackendName)
	return nil
}

// GetStatistics counts record keys per collection and groups executions by the
// algorithm and status index keys, so no record values are decoded
func (s *Store) GetStatistics(ctx context.Context) (*types.CatalogStatistics, error) {
	stats := &types.CatalogStatistics{
		ExecutionsByAlgorithm: map[string]int{},
		ExecutionsByStatus:    map[string]int{},
	}

	err := s.db.View(func(txn *badger.Txn) error {
		stats.TotalExecutions = countKeys(txn, recordPrefix(execCollection))
		stats.TotalEpochs = countKeys(txn, recordPrefix(epochCollection))
		stats.TotalRequirements = countKeys(txn, recordPrefix(reqCollection))
		stats.TotalUseCases = countKeys(txn, recordPrefix(useCaseCollection))
		stats.TotalTemplates = countKeys(txn, recordPrefix(templateCollection))

		groupIndex(txn, fieldAlgorithm, stats.ExecutionsByAlgorithm)
		groupIndex(txn, fieldStatus, stats.ExecutionsByStatus)
		return nil
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to compute statistics")
	}
	return stats, nil
}

// groupIndex counts execution index keys per value of field
func groupIndex(txn *badger.Txn, field string, into map[string]int) {
	prefix := []byte("idx" + sep + execCollection + sep + field + sep)
	for _, rest := range indexIDs(txn, prefix) {
		// rest is "<value>\x00<id>"
		for i := len(rest) - 1; i >= 0; i-- {
			if rest[i] == sep[0] {
				into[rest[:i]]++
				break
			}
		}
	}
}

// ExportCatalog writes every record to path as a JSON snapshot
func (s *Store) ExportCatalog(ctx context.Context, path string) error {
	snap, err := storage.CollectSnapshot(ctx, s, s)
	if err != nil {
		return err
	}
	if err := storage.WriteSnapshot(path, snap); err != nil {
		return err
	}

	s.logger.Infow("Exported catalog",
		logger.FieldPath, path,
		logger.FieldCount, len(snap.Executions),
	)
	return nil
}

// ImportCatalog upserts every record of the snapshot at path. Each record is
// its own transaction; a failure leaves the records before it imported.
func (s *Store) ImportCatalog(ctx context.Context, path string) (*types.ImportSummary, error) {
	snap, err := storage.ReadSnapshot(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &types.ImportSummary{}

	for _, e := range snap.Epochs {
		e := normalizeEpoch(e)
		if err := s.db.Update(func(txn *badger.Txn) error {
			return putEpoch(txn, e, false)
		}); err != nil {
			return summary, errors.WrapStorage(err, "failed to import epoch "+e.ID)
		}
		summary.Epochs++
	}

	for _, r := range snap.Requirements {
		if err := s.upsertRecord(ctx, requirementsRecord(r), &types.ExtractedRequirements{}); err != nil {
			return summary, err
		}
		summary.Requirements++
	}
	for _, u := range snap.UseCases {
		if err := s.upsertRecord(ctx, useCaseRecord(u), &types.GeneratedUseCase{}); err != nil {
			return summary, err
		}
		summary.UseCases++
	}
	for _, t := range snap.Templates {
		if err := s.upsertRecord(ctx, templateRecord(t), &types.AnalysisTemplate{}); err != nil {
			return summary, err
		}
		summary.Templates++
	}

	for _, e := range snap.Executions {
		e := normalizeExecution(e)
		if err := s.db.Update(func(txn *badger.Txn) error {
			var old types.Execution
			found, err := getJSON(txn, recordKey(execCollection, e.ID), &old)
			if err != nil {
				return err
			}
			if found {
				return putExecution(txn, e, &old)
			}
			return putExecution(txn, e, nil)
		}); err != nil {
			return summary, errors.WrapStorage(err, "failed to import execution "+e.ID)
		}
		summary.Executions++
	}

	s.logger.Infow("Imported catalog",
		logger.FieldPath, path,
		logger.FieldTotalCount, summary.Total(),
	)
	return summary, nil
}

// upsertRecord writes rec over any stored version. old is a zero value of the record's type.
func (s *Store) upsertRecord(ctx context.Context, rec record, old interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		found, err := getJSON(txn, recordKey(rec.collection, rec.id), old)
		if err != nil {
			return err
		}
		if found {
			return putRecord(txn, rec, old)
		}
		return putRecord(txn, rec, nil)
	})
	return errors.WrapStorage(err, "failed to import "+rec.collection+" "+rec.id)
}
