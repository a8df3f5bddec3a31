// Package catalog is the write path of the analysis catalog: it validates
// entities before handing them to a storage.Backend and offers the simple
// get, query, lineage and statistics operations built on top of it.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

// Options configures a Catalog. The zero value is usable.
type Options struct {
	Logger *zap.SugaredLogger

	// AsyncWorkers bounds concurrent background writes. 0 disables the *Async methods.
	AsyncWorkers int

	// Now and NewID default to time.Now and uuid.NewString
	Now   func() time.Time
	NewID func() string
}

// Catalog validates and writes catalog entities
type Catalog struct {
	backend storage.Backend
	async   *storage.AsyncWriter
	logger  *zap.SugaredLogger
	now     func() time.Time
	newID   func() string
}

// New creates a catalog over backend
func New(backend storage.Backend, opts Options) *Catalog {
	c := &Catalog{
		backend: backend,
		logger:  logger.OrNop(opts.Logger).Named("catalog"),
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if opts.AsyncWorkers > 0 {
		c.async = storage.NewAsyncWriter(backend, opts.AsyncWorkers, c.logger)
	}
	return c
}

// Backend returns the storage backend the catalog writes to
func (c *Catalog) Backend() storage.Backend {
	return c.backend
}

// Close drains pending async writes, then closes the backend
func (c *Catalog) Close() error {
	if c.async != nil {
		c.async.Close()
	}
	return c.backend.Close()
}

// prepareExecution fills a missing timestamp and validates exec
func (c *Catalog) prepareExecution(exec *types.Execution) error {
	if exec == nil {
		return errors.NewValidationError("execution must not be nil")
	}
	if exec.Timestamp.IsZero() {
		exec.Timestamp = c.now().UTC()
	}
	return validateEntity("execution", exec.ID, exec)
}

// TrackExecution validates exec and stores it, returning its id.
// Invalid records fail with a ValidationError before storage is touched.
func (c *Catalog) TrackExecution(ctx context.Context, exec *types.Execution) (string, error) {
	if err := c.prepareExecution(exec); err != nil {
		return "", err
	}

	id, err := c.backend.InsertExecution(ctx, exec)
	if err != nil {
		return "", err
	}

	c.logger.Infow("Tracked execution",
		logger.FieldExecutionID, id,
		logger.FieldAlgorithm, exec.Algorithm,
		logger.FieldStatus, exec.Status,
		logger.FieldEpochID, types.Deref(exec.EpochID),
	)
	return id, nil
}

// GetExecution returns the execution with id
func (c *Catalog) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	return c.backend.GetExecution(ctx, id)
}

// QueryExecutions returns executions matching filter, newest first
func (c *Catalog) QueryExecutions(ctx context.Context, filter *types.ExecutionFilter, limit, offset int) ([]*types.Execution, error) {
	return c.backend.QueryExecutions(ctx, filter, limit, offset)
}

// UpdateExecutionStatus moves a non-final execution to status.
// Completed and failed executions are final and cannot change.
func (c *Catalog) UpdateExecutionStatus(ctx context.Context, id string, status types.ExecutionStatus, errorMessage *string) (*types.Execution, error) {
	if !status.Valid() {
		return nil, errors.NewValidationError("execution %q: invalid status %q", id, status)
	}

	exec, err := c.backend.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Status.IsFinal() {
		return nil, errors.WithHint(
			errors.NewValidationError("execution %q is %s and can no longer change status", id, exec.Status),
			"track a new execution for a re-run")
	}

	exec.Status = status
	if errorMessage != nil {
		exec.ErrorMessage = errorMessage
	}
	if err := c.backend.UpdateExecution(ctx, exec); err != nil {
		return nil, err
	}

	c.logger.Infow("Updated execution status",
		logger.FieldExecutionID, id,
		logger.FieldStatus, status,
	)
	return exec, nil
}

// EpochOptions are the optional attributes of a new epoch
type EpochOptions struct {
	Timestamp     *time.Time
	Tags          []string
	Metadata      map[string]interface{}
	ParentEpochID *string
}

// CreateEpoch creates an active epoch with a generated id.
// A blank name fails with a ValidationError; an already used name fails with
// an error that is both a ValidationError and a DuplicateError. Two concurrent
// creators can both pass the name check; the loser gets the backend's DuplicateError.
func (c *Catalog) CreateEpoch(ctx context.Context, name, description string, opts EpochOptions) (*types.Epoch, error) {
	name, err := c.checkEpochName(ctx, name)
	if err != nil {
		return nil, err
	}

	epoch := c.newEpoch(name, description, opts)
	if _, err := c.backend.InsertEpoch(ctx, epoch); err != nil {
		return nil, err
	}

	c.logger.Infow("Created epoch",
		logger.FieldEpochID, epoch.ID,
		logger.FieldEpochName, epoch.Name,
	)
	return epoch, nil
}

// checkEpochName trims name and rejects it when blank or taken
func (c *Catalog) checkEpochName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.NewValidationError("epoch name must not be empty")
	}

	existing, err := c.backend.GetEpochByName(ctx, name)
	switch {
	case err == nil:
		// Also a duplicate, so callers need not care whether the pre-check or the store caught it
		return "", errors.Mark(
			errors.NewValidationError("epoch %q already exists (id %s)", name, existing.ID),
			errors.ErrDuplicate)
	case !errors.IsNotFoundError(err):
		return "", err
	}
	return name, nil
}

func (c *Catalog) newEpoch(name, description string, opts EpochOptions) *types.Epoch {
	now := c.now().UTC()
	ts := now
	if opts.Timestamp != nil {
		ts = opts.Timestamp.UTC()
	}
	return &types.Epoch{
		ID:            c.newID(),
		Name:          name,
		Description:   description,
		Timestamp:     ts,
		CreatedAt:     now,
		Status:        types.EpochStatusActive,
		Tags:          opts.Tags,
		ParentEpochID: opts.ParentEpochID,
		Metadata:      opts.Metadata,
	}
}

// GetEpoch returns the epoch with id
func (c *Catalog) GetEpoch(ctx context.Context, id string) (*types.Epoch, error) {
	return c.backend.GetEpoch(ctx, id)
}

// GetEpochByName returns the epoch called name
func (c *Catalog) GetEpochByName(ctx context.Context, name string) (*types.Epoch, error) {
	return c.backend.GetEpochByName(ctx, name)
}

// QueryEpochs returns epochs matching filter, newest first
func (c *Catalog) QueryEpochs(ctx context.Context, filter *types.EpochFilter, limit, offset int) ([]*types.Epoch, error) {
	return c.backend.QueryEpochs(ctx, filter, limit, offset)
}

// GetStatistics returns the backend's collection totals and execution breakdowns
func (c *Catalog) GetStatistics(ctx context.Context) (*types.CatalogStatistics, error) {
	return c.backend.GetStatistics(ctx)
}
