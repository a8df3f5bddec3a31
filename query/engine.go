// Package query provides read-only views over catalog executions that the
// backend's filtered query does not offer directly: sorted pagination,
// aggregate statistics, convenience listings and per-algorithm comparison.
//
// Every view fetches the filtered set (up to MaxFetch records) and works in
// memory. Large catalogs that need sorting beyond that cap should push the
// sort into the backend instead.
package query

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

// Page size bounds accepted by QueryWithPagination
const (
	MinPageSize = 1
	MaxPageSize = 1000
)

// DefaultMaxFetch caps how many executions a single view loads
const DefaultMaxFetch = 10000

// Options configures an Engine
type Options struct {
	// MaxFetch caps the records fetched per query (default: DefaultMaxFetch)
	MaxFetch int
	Logger   *zap.SugaredLogger
	Now      func() time.Time
}

// Engine answers sorted, paginated and aggregate questions about executions
type Engine struct {
	backend  storage.Backend
	maxFetch int
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewEngine creates a query engine over backend
func NewEngine(backend storage.Backend, opts Options) *Engine {
	e := &Engine{
		backend:  backend,
		maxFetch: opts.MaxFetch,
		logger:   logger.OrNop(opts.Logger).Named("query"),
		now:      opts.Now,
	}
	if e.maxFetch <= 0 {
		e.maxFetch = DefaultMaxFetch
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// fetch loads the filtered set in storage order, warning when the cap truncates it
func (e *Engine) fetch(ctx context.Context, filter *types.ExecutionFilter) ([]*types.Execution, error) {
	execs, err := e.backend.QueryExecutions(ctx, filter, e.maxFetch, 0)
	if err != nil {
		return nil, err
	}
	if len(execs) == e.maxFetch {
		e.logger.Warnw("Query result reached fetch cap, results may be incomplete",
			logger.FieldCount, len(execs),
		)
	}
	return execs, nil
}

// QueryWithPagination sorts the filtered set and returns one page of it.
// Page numbers start at 1. Invalid paging fails with a QueryError before storage is read.
func (e *Engine) QueryWithPagination(ctx context.Context, filter *types.ExecutionFilter, order *Sort, page, pageSize int) (*types.PaginationResult, error) {
	if page < 1 {
		return nil, errors.NewQueryError("page must be >= 1, got %d", page)
	}
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return nil, errors.NewQueryError("page_size must be in [%d, %d], got %d", MinPageSize, MaxPageSize, pageSize)
	}

	execs, err := e.fetch(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortExecutions(execs, order)

	total := len(execs)
	totalPages := (total + pageSize - 1) / pageSize
	return &types.PaginationResult{
		Items:       storage.Page(execs, pageSize, (page-1)*pageSize),
		TotalCount:  total,
		Page:        page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}, nil
}

// GetRecentExecutions returns executions from the last hours, newest first.
// An empty algorithm matches all.
func (e *Engine) GetRecentExecutions(ctx context.Context, hours int, algorithm string, limit int) ([]*types.Execution, error) {
	if hours <= 0 {
		return nil, errors.NewQueryError("hours must be > 0, got %d", hours)
	}
	since := e.now().UTC().Add(-time.Duration(hours) * time.Hour)
	return e.backend.QueryExecutions(ctx, &types.ExecutionFilter{
		Algorithm: algorithm,
		StartDate: &since,
	}, limit, 0)
}

// GetFailedExecutions returns failed executions, newest first
func (e *Engine) GetFailedExecutions(ctx context.Context, algorithm string, limit int) ([]*types.Execution, error) {
	return e.backend.QueryExecutions(ctx, &types.ExecutionFilter{
		Algorithm: algorithm,
		Status:    types.ExecutionStatusFailed,
	}, limit, 0)
}

// GetSlowestExecutions returns executions by descending execution time
func (e *Engine) GetSlowestExecutions(ctx context.Context, algorithm string, limit int) ([]*types.Execution, error) {
	execs, err := e.fetch(ctx, &types.ExecutionFilter{Algorithm: algorithm})
	if err != nil {
		return nil, err
	}
	SortExecutions(execs, &Sort{Field: SortExecutionTime})
	return storage.Page(execs, limit, 0), nil
}

// GetMostExpensiveExecutions returns executions by descending cost.
// Executions that report no cost are left out.
func (e *Engine) GetMostExpensiveExecutions(ctx context.Context, algorithm string, limit int) ([]*types.Execution, error) {
	execs, err := e.fetch(ctx, &types.ExecutionFilter{Algorithm: algorithm})
	if err != nil {
		return nil, err
	}

	costed := make([]*types.Execution, 0, len(execs))
	for _, ex := range execs {
		if _, ok := ex.Cost(); ok {
			costed = append(costed, ex)
		}
	}
	SortExecutions(costed, &Sort{Field: SortCost})
	return storage.Page(costed, limit, 0), nil
}
