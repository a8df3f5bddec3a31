package badgerstore

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

const epochCollection = storage.CollectionEpochs

func normalizeEpoch(e *types.Epoch) *types.Epoch {
	c := *e
	c.Timestamp = e.Timestamp.UTC()
	c.CreatedAt = e.CreatedAt.UTC()
	return &c
}

// nameOwner returns the id holding name, or "" when it is free
func nameOwner(txn *badger.Txn, name string) (string, error) {
	item, err := txn.Get(epochNameKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// InsertEpoch stores a new epoch. A taken name or id is a DuplicateError.
func (s *Store) InsertEpoch(ctx context.Context, epoch *types.Epoch) (string, error) {
	e := normalizeEpoch(epoch)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		taken, err := exists(txn, recordKey(epochCollection, e.ID))
		if err != nil {
			return err
		}
		if taken {
			return errors.NewDuplicateError("epoch %s already exists", e.ID)
		}
		owner, err := nameOwner(txn, e.Name)
		if err != nil {
			return err
		}
		if owner != "" {
			return errors.NewDuplicateError("epoch name %q already used by %s", e.Name, owner)
		}
		if err := setJSON(txn, recordKey(epochCollection, e.ID), e); err != nil {
			return err
		}
		return txn.Set(epochNameKey(e.Name), []byte(e.ID))
	})
	if err != nil {
		return "", errors.WrapStorage(err, "failed to insert epoch "+e.ID)
	}

	s.logger.Debugw("Inserted epoch",
		logger.FieldEpochID, e.ID,
		logger.FieldEpochName, e.Name,
	)
	return e.ID, nil
}

// GetEpoch retrieves an epoch by id
func (s *Store) GetEpoch(ctx context.Context, id string) (*types.Epoch, error) {
	var e types.Epoch
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, recordKey(epochCollection, id), &e)
		return err
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to get epoch "+id)
	}
	if !found {
		return nil, errors.NewNotFoundError("epoch id %s not found", id)
	}
	return &e, nil
}

// GetEpochByName resolves the name key, then loads the epoch
func (s *Store) GetEpochByName(ctx context.Context, name string) (*types.Epoch, error) {
	var e types.Epoch
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := nameOwner(txn, name)
		if err != nil || id == "" {
			return err
		}
		found, err = getJSON(txn, recordKey(epochCollection, id), &e)
		return err
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to get epoch "+name)
	}
	if !found {
		return nil, errors.NewNotFoundError("epoch name %s not found", name)
	}
	return &e, nil
}

// QueryEpochs scans all epochs and applies filter, newest first
func (s *Store) QueryEpochs(ctx context.Context, filter *types.EpochFilter, limit, offset int) ([]*types.Epoch, error) {
	var matched []*types.Epoch
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(ctx, txn, epochCollection,
			func() interface{} { return &types.Epoch{} },
			func(rec interface{}) {
				e := rec.(*types.Epoch)
				if filter.Matches(e) {
					matched = append(matched, e)
				}
			})
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to query epochs")
	}

	storage.SortEpochs(matched)
	return storage.Page(matched, limit, offset), nil
}

// UpdateEpoch replaces a stored epoch, moving its name key when the name changed
func (s *Store) UpdateEpoch(ctx context.Context, epoch *types.Epoch) error {
	e := normalizeEpoch(epoch)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return putEpoch(txn, e, true)
	})
	return errors.WrapStorage(err, "failed to update epoch "+e.ID)
}

// putEpoch writes e over any existing record with its id. With mustExist an
// absent id is a NotFoundError; otherwise the epoch is created.
func putEpoch(txn *badger.Txn, e *types.Epoch, mustExist bool) error {
	var old types.Epoch
	found, err := getJSON(txn, recordKey(epochCollection, e.ID), &old)
	if err != nil {
		return err
	}
	if !found && mustExist {
		return errors.NewNotFoundError("epoch %s not found", e.ID)
	}

	if !found || old.Name != e.Name {
		owner, err := nameOwner(txn, e.Name)
		if err != nil {
			return err
		}
		if owner != "" && owner != e.ID {
			return errors.NewDuplicateError("epoch name %q already used by %s", e.Name, owner)
		}
		if found {
			if err := txn.Delete(epochNameKey(old.Name)); err != nil {
				return err
			}
		}
		if err := txn.Set(epochNameKey(e.Name), []byte(e.ID)); err != nil {
			return err
		}
	}
	return setJSON(txn, recordKey(epochCollection, e.ID), e)
}

// DeleteEpoch removes an epoch, and with cascade every execution referencing it.
// Executions are deleted in batches before the epoch.
func (s *Store) DeleteEpoch(ctx context.Context, id string, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cascade {
		var present bool
		if err := s.db.View(func(txn *badger.Txn) error {
			var err error
			present, err = exists(txn, recordKey(epochCollection, id))
			return err
		}); err != nil {
			return errors.WrapStorage(err, "failed to look up epoch "+id)
		}
		if !present {
			return errors.NewNotFoundError("epoch %s not found", id)
		}

		n, err := s.deleteExecutionsByIndex(indexPrefix(execCollection, fieldEpoch, id))
		if err != nil {
			return errors.WrapStorage(err, "failed to delete executions of epoch "+id)
		}
		s.logger.Debugw("Cascade deleted executions",
			logger.FieldEpochID, id,
			logger.FieldCount, n,
		)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		var old types.Epoch
		found, err := getJSON(txn, recordKey(epochCollection, id), &old)
		if err != nil {
			return err
		}
		if !found {
			return errors.NewNotFoundError("epoch %s not found", id)
		}
		if err := txn.Delete(epochNameKey(old.Name)); err != nil {
			return err
		}
		return txn.Delete(recordKey(epochCollection, id))
	})
	return errors.WrapStorage(err, "failed to delete epoch "+id)
}
