package badgerstore

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

const execCollection = storage.CollectionExecutions

// Indexed execution fields, in planner preference order (most selective first)
const (
	fieldEpoch        = "epoch"
	fieldUseCase      = "use_case"
	fieldRequirements = "requirements"
	fieldTemplate     = "template"
	fieldAlgorithm    = "algorithm"
	fieldStatus       = "status"
)

// executionIndexKeys lists the index entries exec should have
func executionIndexKeys(e *types.Execution) [][]byte {
	keys := [][]byte{
		indexKey(execCollection, fieldTemplate, e.TemplateID, e.ID),
		indexKey(execCollection, fieldAlgorithm, e.Algorithm, e.ID),
		indexKey(execCollection, fieldStatus, string(e.Status), e.ID),
	}
	if e.EpochID != nil {
		keys = append(keys, indexKey(execCollection, fieldEpoch, *e.EpochID, e.ID))
	}
	if e.UseCaseID != nil {
		keys = append(keys, indexKey(execCollection, fieldUseCase, *e.UseCaseID, e.ID))
	}
	if e.RequirementsID != nil {
		keys = append(keys, indexKey(execCollection, fieldRequirements, *e.RequirementsID, e.ID))
	}
	return keys
}

func normalizeExecution(e *types.Execution) *types.Execution {
	c := *e
	c.Timestamp = e.Timestamp.UTC()
	return &c
}

// putExecution writes e and its index keys, removing the index keys of old
func putExecution(txn *badger.Txn, e, old *types.Execution) error {
	if old != nil {
		for _, k := range executionIndexKeys(old) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
	}
	if err := setJSON(txn, recordKey(execCollection, e.ID), e); err != nil {
		return err
	}
	for _, k := range executionIndexKeys(e) {
		if err := txn.Set(k, nil); err != nil {
			return err
		}
	}
	return nil
}

func deleteExecution(txn *badger.Txn, e *types.Execution) error {
	for _, k := range executionIndexKeys(e) {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return txn.Delete(recordKey(execCollection, e.ID))
}

// InsertExecution stores a new execution; an existing id is a DuplicateError
func (s *Store) InsertExecution(ctx context.Context, exec *types.Execution) (string, error) {
	e := normalizeExecution(exec)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		taken, err := exists(txn, recordKey(execCollection, e.ID))
		if err != nil {
			return err
		}
		if taken {
			return errors.NewDuplicateError("execution %s already exists", e.ID)
		}
		return putExecution(txn, e, nil)
	})
	if err != nil {
		return "", errors.WrapStorage(err, "failed to insert execution "+e.ID)
	}

	s.logger.Debugw("Inserted execution",
		logger.FieldExecutionID, e.ID,
		logger.FieldAlgorithm, e.Algorithm,
	)
	return e.ID, nil
}

// GetExecution retrieves an execution by id
func (s *Store) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	var e types.Execution
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, recordKey(execCollection, id), &e)
		return err
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to get execution "+id)
	}
	if !found {
		return nil, errors.NewNotFoundError("execution %s not found", id)
	}
	return &e, nil
}

// planIndex picks the most selective indexed predicate of f
func planIndex(f *types.ExecutionFilter) (field, value string, ok bool) {
	if f == nil {
		return "", "", false
	}
	switch {
	case f.EpochID != "":
		return fieldEpoch, f.EpochID, true
	case f.UseCaseID != "":
		return fieldUseCase, f.UseCaseID, true
	case f.RequirementsID != "":
		return fieldRequirements, f.RequirementsID, true
	case f.TemplateID != "":
		return fieldTemplate, f.TemplateID, true
	case f.Algorithm != "":
		return fieldAlgorithm, f.Algorithm, true
	case f.Status != "":
		return fieldStatus, string(f.Status), true
	}
	return "", "", false
}

// QueryExecutions returns executions matching filter, newest first.
// Candidates come from one secondary index when the filter allows, else a full scan;
// the full filter is then applied to each candidate.
func (s *Store) QueryExecutions(ctx context.Context, filter *types.ExecutionFilter, limit, offset int) ([]*types.Execution, error) {
	var matched []*types.Execution

	err := s.db.View(func(txn *badger.Txn) error {
		if field, value, ok := planIndex(filter); ok {
			for _, id := range indexIDs(txn, indexPrefix(execCollection, field, value)) {
				if err := ctx.Err(); err != nil {
					return err
				}
				var e types.Execution
				found, err := getJSON(txn, recordKey(execCollection, id), &e)
				if err != nil {
					return err
				}
				if found && filter.Matches(&e) {
					matched = append(matched, &e)
				}
			}
			return nil
		}

		return scan(ctx, txn, execCollection,
			func() interface{} { return &types.Execution{} },
			func(rec interface{}) {
				e := rec.(*types.Execution)
				if filter.Matches(e) {
					matched = append(matched, e)
				}
			})
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to query executions")
	}

	storage.SortExecutions(matched)
	return storage.Page(matched, limit, offset), nil
}

// UpdateExecution replaces a stored execution and its index keys
func (s *Store) UpdateExecution(ctx context.Context, exec *types.Execution) error {
	e := normalizeExecution(exec)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		var old types.Execution
		found, err := getJSON(txn, recordKey(execCollection, e.ID), &old)
		if err != nil {
			return err
		}
		if !found {
			return errors.NewNotFoundError("execution %s not found", e.ID)
		}
		return putExecution(txn, e, &old)
	})
	return errors.WrapStorage(err, "failed to update execution "+e.ID)
}

// DeleteExecution removes an execution and its index keys
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		var old types.Execution
		found, err := getJSON(txn, recordKey(execCollection, id), &old)
		if err != nil {
			return err
		}
		if !found {
			return errors.NewNotFoundError("execution %s not found", id)
		}
		return deleteExecution(txn, &old)
	})
	return errors.WrapStorage(err, "failed to delete execution "+id)
}

// deleteExecutionsByIndex deletes every execution listed under an index prefix,
// in batches so large epochs do not exceed badger's transaction size. Callers hold s.mu.
func (s *Store) deleteExecutionsByIndex(prefix []byte) (int, error) {
	var ids []string
	if err := s.db.View(func(txn *badger.Txn) error {
		ids = indexIDs(txn, prefix)
		return nil
	}); err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, id := range ids[start:end] {
				var old types.Execution
				found, err := getJSON(txn, recordKey(execCollection, id), &old)
				if err != nil {
					return err
				}
				if !found {
					continue
				}
				if err := deleteExecution(txn, &old); err != nil {
					return err
				}
				deleted++
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}
