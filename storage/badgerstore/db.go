package badgerstore

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
)

// Config holds configuration for the badger backend
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM (tests)
	InMemory bool

	// SyncWrites fsyncs every commit
	SyncWrites bool

	// GCInterval is how often value-log GC runs. 0 disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the stale fraction at which a value-log file is rewritten
	GCDiscardRatio float64

	Logger *zap.SugaredLogger
}

// DefaultConfig returns production defaults for a database at path
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk, no GC
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts zap to badger's Logger interface
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(format, args...) // badger's info output is chatty
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func openDB(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.NewValidationError("badger path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, errors.WrapStorage(err, fmt.Sprintf("create database directory %s", cfg.Path))
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.Named("badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.WrapStorage(err, "open badger database")
	}
	return db, nil
}

// GCRunner runs periodic value-log garbage collection
type GCRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *zap.SugaredLogger
}

// NewGCRunner creates a runner; call Start to begin and Stop to halt
func NewGCRunner(db *badger.DB, interval time.Duration, ratio float64, log *zap.SugaredLogger) (*GCRunner, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if interval <= 0 {
		return nil, errors.Newf("gc interval must be positive, got %s", interval)
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, errors.Newf("gc discard ratio must be in (0, 1), got %f", ratio)
	}
	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger.OrNop(log).Named("gc"),
	}, nil
}

// Start begins periodic garbage collection in a goroutine
func (r *GCRunner) Start() {
	go r.run()
}

// Stop signals the GC goroutine and waits for it to exit
func (r *GCRunner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *GCRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *GCRunner) runGC() {
	// ErrNoRewrite means nothing was worth collecting
	err := r.db.RunValueLogGC(r.ratio)
	switch {
	case err == nil:
		r.logger.Debugw("Value log GC completed")
	case !errors.Is(err, badger.ErrNoRewrite):
		r.logger.Warnw("Value log GC failed", logger.FieldError, err)
	}
}
