// Package sqlitestore is the SQLite implementation of storage.Backend.
//
// One table per collection; nested values are JSON text columns and the
// scalars that filters touch are denormalized into their own indexed columns.
// Schema lives in db/sqlite/migrations.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/catalog/db"
	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
)

// BackendName identifies this backend in config and metrics
const BackendName = "sqlite"

// timeLayout is fixed-width so stored timestamps sort and compare as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists the catalog in SQLite
type Store struct {
	db     *sql.DB
	path   string
	ownsDB bool
	logger *zap.SugaredLogger

	mu sync.Mutex // serializes all writes
}

// Open opens (creating if needed) the database at path and applies migrations
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	sqlDB, err := db.OpenWithMigrations(path, log)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to open sqlite catalog")
	}
	s := New(sqlDB, log)
	s.path = path
	s.ownsDB = true
	return s, nil
}

// New wraps an already migrated database. Close does not close sqlDB.
func New(sqlDB *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{
		db:     sqlDB,
		logger: logger.OrNop(log).Named("sqlitestore"),
	}
}

// Name returns the backend name
func (s *Store) Name() string { return BackendName }

// Path returns the database file path, or "" for in-memory and wrapped databases
func (s *Store) Path() string {
	if s.path == db.MemoryPath {
		return ""
	}
	return s.path
}

// DB exposes the underlying connection for maintenance (VACUUM)
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database when the store opened it
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return errors.WrapStorage(err, "failed to close sqlite catalog")
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC3339
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "invalid stored timestamp %q", s)
		}
	}
	return t.UTC(), nil
}

// toJSON encodes v for a JSON column. Nil maps and slices store NULL.
func toJSON(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func fromJSON(col sql.NullString, dest interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(col sql.NullString) *string {
	if !col.Valid {
		return nil
	}
	v := col.String
	return &v
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// classify maps a driver error from a write to the catalog taxonomy
func classify(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err) {
		return errors.Mark(errors.Wrapf(err, format, args...), errors.ErrDuplicate)
	}
	return errors.Mark(errors.Wrapf(err, format, args...), errors.ErrStorage)
}

// checkAffected turns an UPDATE/DELETE that touched no row into NotFoundError
func checkAffected(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.WrapStorage(err, "failed to read affected rows")
	}
	if rows == 0 {
		return errors.NewNotFoundError("%s %s not found", kind, id)
	}
	return nil
}
