// Package manager runs maintenance over a catalog: bulk deletes, epoch
// archival, orphan cleanup, integrity checks and repair, single-epoch
// export/import and storage usage.
//
// Batch operations never stop at the first failing item. They collect one
// ItemError per failure and report how far they got, so a caller can re-run
// with a narrower filter. Every batch operation supports a dry run that
// reports what would change without writing.
package manager

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/catalog/catalog"
	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

// DefaultBytesPerResultRow is the storage estimate per result row
const DefaultBytesPerResultRow = 1024

// Options configures a Manager
type Options struct {
	// DeleteRatePerSecond throttles deletes. 0 means unthrottled.
	DeleteRatePerSecond float64
	// BytesPerResultRow scales the storage estimate (default: DefaultBytesPerResultRow)
	BytesPerResultRow int64

	Logger *zap.SugaredLogger
	Now    func() time.Time
}

// Manager performs maintenance through the catalog's write path and backend
type Manager struct {
	catalog     *catalog.Catalog
	backend     storage.Backend
	limiter     *rate.Limiter
	bytesPerRow int64
	logger      *zap.SugaredLogger
	now         func() time.Time
}

// New creates a manager over cat
func New(cat *catalog.Catalog, opts Options) *Manager {
	m := &Manager{
		catalog:     cat,
		backend:     cat.Backend(),
		bytesPerRow: opts.BytesPerResultRow,
		logger:      logger.OrNop(opts.Logger).Named("manager"),
		now:         opts.Now,
	}
	if m.bytesPerRow <= 0 {
		m.bytesPerRow = DefaultBytesPerResultRow
	}
	if m.now == nil {
		m.now = time.Now
	}
	if opts.DeleteRatePerSecond > 0 {
		burst := int(opts.DeleteRatePerSecond)
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(opts.DeleteRatePerSecond), burst)
	}
	return m
}

// BatchResult reports a batch operation
type BatchResult struct {
	Operation string            `json:"operation"`
	DryRun    bool              `json:"dry_run"`
	Matched   int               `json:"matched"`
	Processed int               `json:"processed"`
	IDs       []string          `json:"ids"`
	Errors    []types.ItemError `json:"errors"`
}

func newBatchResult(op string, dryRun bool) *BatchResult {
	return &BatchResult{
		Operation: op,
		DryRun:    dryRun,
		IDs:       []string{},
		Errors:    []types.ItemError{},
	}
}

func (r *BatchResult) fail(id string, err error) {
	r.Errors = append(r.Errors, types.ItemError{ID: id, Error: err.Error()})
}

// log returns the manager logger with the run fields carried by ctx
func (m *Manager) log(ctx context.Context) *zap.SugaredLogger {
	return logger.FromContext(ctx, m.logger)
}

func (m *Manager) logBatch(ctx context.Context, r *BatchResult) {
	m.log(ctx).Infow("Batch operation finished",
		logger.FieldOperation, r.Operation,
		logger.FieldDryRun, r.DryRun,
		logger.FieldCount, r.Matched,
		logger.FieldTotalCount, r.Processed,
		logger.FieldErrorCount, len(r.Errors),
	)
}

// deleteOne removes one execution, waiting on the throttle first
func (m *Manager) deleteOne(ctx context.Context, id string) error {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "delete throttle")
		}
	}
	return m.backend.DeleteExecution(ctx, id)
}

// deleteAll deletes each id, recording failures on r
func (m *Manager) deleteAll(ctx context.Context, r *BatchResult, ids []string) {
	for _, id := range ids {
		if err := m.deleteOne(ctx, id); err != nil {
			r.fail(id, err)
			continue
		}
		r.Processed++
	}
}

// cutoff returns now minus days, in UTC
func (m *Manager) cutoff(days int) time.Time {
	return m.now().UTC().AddDate(0, 0, -days)
}
