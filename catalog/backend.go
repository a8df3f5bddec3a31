package catalog

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/catalog/am"
	"github.com/teranos/catalog/db"
	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/storage/badgerstore"
	"github.com/teranos/catalog/storage/sqlitestore"
)

// OpenBackend opens the storage backend cfg selects, wrapped with
// prometheus instrumentation when catalog.metrics_enabled is set
func OpenBackend(cfg *am.Config, log *zap.SugaredLogger) (storage.Backend, error) {
	log = logger.OrNop(log)

	var (
		backend storage.Backend
		err     error
	)
	switch name := cfg.GetBackend(); name {
	case am.BackendSQLite:
		backend, err = sqlitestore.Open(cfg.GetDatabasePath(), log)
	case am.BackendBadger:
		backend, err = badgerstore.Open(badgerConfig(cfg, log))
	default:
		return nil, errors.NewValidationError("unknown database.backend %q", name)
	}
	if err != nil {
		return nil, err
	}

	log.Debugw("Opened catalog backend",
		logger.FieldBackend, cfg.GetBackend(),
		logger.FieldPath, cfg.GetDatabasePath(),
	)

	if cfg.Catalog.MetricsEnabled {
		backend = storage.Instrument(backend, cfg.GetBackend())
	}
	return backend, nil
}

func badgerConfig(cfg *am.Config, log *zap.SugaredLogger) badgerstore.Config {
	path := cfg.GetDatabasePath()
	if path == db.MemoryPath {
		c := badgerstore.InMemoryConfig()
		c.Logger = log
		return c
	}

	ratio := cfg.Database.Badger.GCDiscardRatio
	if ratio == 0 {
		ratio = am.DefaultGCDiscardRatio
	}
	return badgerstore.Config{
		Path:           path,
		SyncWrites:     cfg.Database.Badger.SyncWrites,
		GCInterval:     time.Duration(cfg.Database.Badger.GCIntervalSeconds) * time.Second,
		GCDiscardRatio: ratio,
		Logger:         log,
	}
}

// Open opens the configured backend and builds a Catalog over it
func Open(cfg *am.Config, log *zap.SugaredLogger) (*Catalog, error) {
	backend, err := OpenBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	return New(backend, Options{
		Logger:       log,
		AsyncWorkers: cfg.Catalog.AsyncWorkers,
	}), nil
}
