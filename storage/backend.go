// Package storage defines the catalog's persistence contract and the pieces
// shared by every implementation: the snapshot (export/import) format,
// result ordering, the asynchronous writer and prometheus instrumentation.
//
// Implementations live in sqlitestore and badgerstore. Each owns a single
// write mutex serializing inserts, updates, deletes, resets and imports;
// reads take no lock and may observe a write in progress or not.
package storage

import (
	"context"

	"github.com/teranos/catalog/types"
)

// Collection names, also used as snapshot keys and metric labels
const (
	CollectionExecutions   = "executions"
	CollectionEpochs       = "epochs"
	CollectionRequirements = "requirements"
	CollectionUseCases     = "use_cases"
	CollectionTemplates    = "templates"
)

// Backend is durable CRUD and filtered query over the five catalog collections.
//
// Errors carry the catalog taxonomy: NotFoundError for absent ids,
// DuplicateError for uniqueness violations (existing id, epoch name),
// StorageError for everything the underlying store reports.
type Backend interface {
	InsertExecution(ctx context.Context, exec *types.Execution) (string, error)
	InsertEpoch(ctx context.Context, epoch *types.Epoch) (string, error)
	InsertRequirements(ctx context.Context, req *types.ExtractedRequirements) (string, error)
	InsertUseCase(ctx context.Context, uc *types.GeneratedUseCase) (string, error)
	InsertTemplate(ctx context.Context, tmpl *types.AnalysisTemplate) (string, error)

	GetExecution(ctx context.Context, id string) (*types.Execution, error)
	GetEpoch(ctx context.Context, id string) (*types.Epoch, error)
	GetEpochByName(ctx context.Context, name string) (*types.Epoch, error)
	GetRequirements(ctx context.Context, id string) (*types.ExtractedRequirements, error)
	GetUseCase(ctx context.Context, id string) (*types.GeneratedUseCase, error)
	GetTemplate(ctx context.Context, id string) (*types.AnalysisTemplate, error)

	// QueryExecutions returns matches ordered by timestamp descending, ties by id.
	// A nil filter matches everything; limit <= 0 means no limit.
	QueryExecutions(ctx context.Context, filter *types.ExecutionFilter, limit, offset int) ([]*types.Execution, error)
	// QueryEpochs follows the same ordering and limit contract as QueryExecutions.
	QueryEpochs(ctx context.Context, filter *types.EpochFilter, limit, offset int) ([]*types.Epoch, error)
	QueryUseCasesByRequirements(ctx context.Context, requirementsID string) ([]*types.GeneratedUseCase, error)
	QueryTemplatesByUseCase(ctx context.Context, useCaseID string) ([]*types.AnalysisTemplate, error)

	UpdateExecution(ctx context.Context, exec *types.Execution) error
	UpdateEpoch(ctx context.Context, epoch *types.Epoch) error

	DeleteExecution(ctx context.Context, id string) error
	// DeleteEpoch with cascade first deletes every execution referencing the
	// epoch, then the epoch. The two steps are not atomic.
	DeleteEpoch(ctx context.Context, id string, cascade bool) error

	// Reset wipes all five collections. It refuses unless confirm is true.
	Reset(ctx context.Context, confirm bool) error

	GetStatistics(ctx context.Context) (*types.CatalogStatistics, error)

	ExportCatalog(ctx context.Context, path string) error
	// ImportCatalog upserts every record of a snapshot by id.
	ImportCatalog(ctx context.Context, path string) (*types.ImportSummary, error)

	Close() error
}

// Locator is implemented by file-backed backends
type Locator interface {
	Path() string
}

// Named is implemented by backends that report their kind ("sqlite", "badger")
type Named interface {
	Name() string
}

// Capability returns b, or the first backend it wraps, as a T
func Capability[T any](b Backend) (T, bool) {
	for b != nil {
		if c, ok := b.(T); ok {
			return c, true
		}
		u, ok := b.(interface{ Unwrap() Backend })
		if !ok {
			break
		}
		b = u.Unwrap()
	}
	var zero T
	return zero, false
}
