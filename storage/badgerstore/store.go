// Package badgerstore is the BadgerDB implementation of storage.Backend.
//
// Records are JSON values under "<collection>\x00<id>". Filterable execution
// fields and the lineage parent links get secondary index keys of the form
// "idx\x00<collection>\x00<field>\x00<value>\x00<id>" with empty values,
// written in the same transaction as the record. Epoch names are claimed by
// an "epoch_name\x00<name>" key holding the epoch id.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
)

// BackendName identifies this backend in config and metrics
const BackendName = "badger"

const sep = "\x00"

// deleteBatchSize bounds the keys touched per transaction on bulk deletes
const deleteBatchSize = 500

// Store persists the catalog in BadgerDB
type Store struct {
	db      *badger.DB
	gc      *GCRunner
	path    string
	gcRatio float64
	logger  *zap.SugaredLogger

	mu sync.Mutex // serializes all writes
}

// Open opens the database described by cfg and starts the GC runner when configured
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:      db,
		gcRatio: cfg.GCDiscardRatio,
		logger:  logger.OrNop(cfg.Logger).Named("badgerstore"),
	}
	if s.gcRatio <= 0 || s.gcRatio >= 1 {
		s.gcRatio = DefaultConfig("").GCDiscardRatio
	}
	if !cfg.InMemory {
		s.path = cfg.Path
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, s.logger)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create GC runner")
		}
		s.gc = runner
		runner.Start()
	}

	return s, nil
}

// Name returns the backend name
func (s *Store) Name() string { return BackendName }

// Path returns the database directory, or "" in memory
func (s *Store) Path() string { return s.path }

// Close stops the GC runner and closes the database
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.Stop()
		s.gc = nil
	}
	if err := s.db.Close(); err != nil {
		return errors.WrapStorage(err, "failed to close badger catalog")
	}
	return nil
}

// Vacuum rewrites value-log files until none is worth collecting.
// In-memory stores have no value log and return immediately.
func (s *Store) Vacuum(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	for rounds := 0; ; rounds++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(s.gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			s.logger.Debugw("Vacuum finished", "rounds", rounds)
			return nil
		}
		if err != nil {
			return errors.WrapStorage(err, "badger value log GC")
		}
	}
}

func recordKey(collection, id string) []byte {
	return []byte(collection + sep + id)
}

func recordPrefix(collection string) []byte {
	return []byte(collection + sep)
}

func indexKey(collection, field, value, id string) []byte {
	return []byte("idx" + sep + collection + sep + field + sep + value + sep + id)
}

func indexPrefix(collection, field, value string) []byte {
	return []byte("idx" + sep + collection + sep + field + sep + value + sep)
}

func epochNameKey(name string) []byte {
	return []byte("epoch_name" + sep + name)
}

// getJSON loads and decodes the record at key, reporting found=false when absent
func getJSON(txn *badger.Txn, key []byte, dest interface{}) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	}); err != nil {
		return false, err
	}
	return true, nil
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// indexIDs returns the ids listed under an index prefix, in key order
func indexIDs(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		ids = append(ids, string(bytes.TrimPrefix(key, prefix)))
	}
	return ids
}

// scan decodes every record under the collection prefix, calling fn for each
func scan(ctx context.Context, txn *badger.Txn, collection string, newRecord func() interface{}, fn func(interface{})) error {
	prefix := recordPrefix(collection)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := newRecord()
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, rec)
		}); err != nil {
			return errors.Wrapf(err, "decode %s", it.Item().KeyCopy(nil))
		}
		fn(rec)
	}
	return nil
}

// countKeys counts keys under prefix without reading values
func countKeys(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

var (
	_ storage.Backend       = (*Store)(nil)
	_ storage.LineageLister = (*Store)(nil)
	_ storage.Locator       = (*Store)(nil)
)
