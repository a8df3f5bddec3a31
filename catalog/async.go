package catalog

import (
	"context"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

var errAsyncDisabled = errors.WithHint(
	errors.NewValidationError("async writes are disabled"),
	"set catalog.async_workers above 0")

// Async variants validate synchronously, so an invalid entity yields an
// already failed handle; the storage write runs on the writer's pool.

// TrackExecutionAsync is TrackExecution on the background writer
func (c *Catalog) TrackExecutionAsync(ctx context.Context, exec *types.Execution) *storage.PendingWrite {
	if c.async == nil {
		return storage.Failed(errAsyncDisabled)
	}
	if err := c.prepareExecution(exec); err != nil {
		return storage.Failed(err)
	}
	return c.async.InsertExecution(ctx, exec)
}

// CreateEpochAsync checks the name like CreateEpoch, then inserts in the background
func (c *Catalog) CreateEpochAsync(ctx context.Context, name, description string, opts EpochOptions) (*types.Epoch, *storage.PendingWrite) {
	if c.async == nil {
		return nil, storage.Failed(errAsyncDisabled)
	}
	name, err := c.checkEpochName(ctx, name)
	if err != nil {
		return nil, storage.Failed(err)
	}

	epoch := c.newEpoch(name, description, opts)
	return epoch, c.async.InsertEpoch(ctx, epoch)
}

// StoreRequirementsAsync is StoreRequirements on the background writer
func (c *Catalog) StoreRequirementsAsync(ctx context.Context, req *types.ExtractedRequirements) *storage.PendingWrite {
	if c.async == nil {
		return storage.Failed(errAsyncDisabled)
	}
	if err := c.prepareRequirements(req); err != nil {
		return storage.Failed(err)
	}
	return c.async.InsertRequirements(ctx, req)
}

// StoreUseCaseAsync is StoreUseCase on the background writer
func (c *Catalog) StoreUseCaseAsync(ctx context.Context, uc *types.GeneratedUseCase) *storage.PendingWrite {
	if c.async == nil {
		return storage.Failed(errAsyncDisabled)
	}
	if err := c.prepareUseCase(uc); err != nil {
		return storage.Failed(err)
	}
	return c.async.InsertUseCase(ctx, uc)
}

// StoreTemplateAsync is StoreTemplate on the background writer
func (c *Catalog) StoreTemplateAsync(ctx context.Context, tmpl *types.AnalysisTemplate) *storage.PendingWrite {
	if c.async == nil {
		return storage.Failed(errAsyncDisabled)
	}
	if err := c.prepareTemplate(tmpl); err != nil {
		return storage.Failed(err)
	}
	return c.async.InsertTemplate(ctx, tmpl)
}
