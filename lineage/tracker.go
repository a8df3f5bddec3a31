// Package lineage traverses the derivation chain
// requirements → use case → template → execution.
//
// The chain is advisory: references are plain ids that may not resolve.
// A missing root entity is a LineageError; every other miss is logged and
// left out of the result.
package lineage

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/catalog/catalog"
	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

// DefaultFetchConcurrency bounds parallel entity fetches in BuildLineageGraph
const DefaultFetchConcurrency = 8

// Tracker answers lineage questions over a backend
type Tracker struct {
	backend     storage.Backend
	logger      *zap.SugaredLogger
	concurrency int
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the tracker's logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *Tracker) {
		t.logger = logger.OrNop(log).Named("lineage")
	}
}

// WithFetchConcurrency bounds parallel fetches. Values below 1 are ignored.
func WithFetchConcurrency(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// NewTracker creates a lineage tracker over backend
func NewTracker(backend storage.Backend, opts ...Option) *Tracker {
	t := &Tracker{
		backend:     backend,
		logger:      zap.NewNop().Sugar(),
		concurrency: DefaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// rootMissing turns a NotFoundError for a traversal root into a LineageError.
// Other failures keep their category.
func rootMissing(err error, kind, id string) error {
	if errors.IsNotFoundError(err) {
		return errors.WrapLineage(err, "lineage root %s %q", kind, id)
	}
	return err
}

// GetCompleteLineage resolves an execution's template, use case,
// requirements and, when includeEpoch, its epoch
func (t *Tracker) GetCompleteLineage(ctx context.Context, executionID string, includeEpoch bool) (*types.ExecutionLineage, error) {
	exec, err := t.backend.GetExecution(ctx, executionID)
	if err != nil {
		return nil, rootMissing(err, types.NodeExecution, executionID)
	}
	return catalog.ResolveLineage(ctx, t.backend, exec, includeEpoch, t.logger), nil
}

// TraceRequirementForward returns everything derived from a requirements snapshot
func (t *Tracker) TraceRequirementForward(ctx context.Context, requirementsID string) (*types.RequirementTrace, error) {
	req, err := t.backend.GetRequirements(ctx, requirementsID)
	if err != nil {
		return nil, rootMissing(err, types.NodeRequirement, requirementsID)
	}
	return catalog.TraceForward(ctx, t.backend, req)
}

// TraceExecutionBackward walks from an execution to its requirements. When
// the execution itself carries no use case or requirements reference, the
// walk continues through the template's and use case's own references.
// The path runs root first and always ends with the execution.
func (t *Tracker) TraceExecutionBackward(ctx context.Context, executionID string) (*types.BackwardTrace, error) {
	lin, err := t.GetCompleteLineage(ctx, executionID, true)
	if err != nil {
		return nil, err
	}

	if lin.UseCase == nil && lin.Template != nil {
		lin.UseCase = t.lookupUseCase(ctx, lin.Template.UseCaseID)
	}
	if lin.Requirements == nil {
		switch {
		case lin.UseCase != nil:
			lin.Requirements = t.lookupRequirements(ctx, lin.UseCase.RequirementsID)
		case lin.Template != nil:
			lin.Requirements = t.lookupRequirements(ctx, lin.Template.RequirementsID)
		}
	}

	path := make([]types.LineageNode, 0, 4)
	if lin.Requirements != nil {
		path = append(path, requirementNode(lin.Requirements))
	}
	if lin.UseCase != nil {
		path = append(path, useCaseNode(lin.UseCase))
	}
	if lin.Template != nil {
		path = append(path, templateNode(lin.Template))
	}
	path = append(path, executionNode(lin.Execution))

	return &types.BackwardTrace{
		ExecutionID: executionID,
		Path:        path,
		Complete:    lin.Requirements != nil,
		Lineage:     lin,
	}, nil
}

func (t *Tracker) lookupUseCase(ctx context.Context, id string) *types.GeneratedUseCase {
	if id == "" {
		return nil
	}
	uc, err := t.backend.GetUseCase(ctx, id)
	if err != nil {
		t.logger.Warnw("Use case on backward walk does not resolve", logger.FieldUseCaseID, id, logger.FieldError, err)
		return nil
	}
	return uc
}

func (t *Tracker) lookupRequirements(ctx context.Context, id string) *types.ExtractedRequirements {
	if id == "" {
		return nil
	}
	req, err := t.backend.GetRequirements(ctx, id)
	if err != nil {
		t.logger.Warnw("Requirements on backward walk do not resolve", logger.FieldRequirementsID, id, logger.FieldError, err)
		return nil
	}
	return req
}

func requirementNode(r *types.ExtractedRequirements) types.LineageNode {
	return types.LineageNode{ID: r.ID, Type: types.NodeRequirement, Label: r.Domain}
}

func useCaseNode(u *types.GeneratedUseCase) types.LineageNode {
	return types.LineageNode{ID: u.ID, Type: types.NodeUseCase, Label: u.Title}
}

func templateNode(tm *types.AnalysisTemplate) types.LineageNode {
	return types.LineageNode{ID: tm.ID, Type: types.NodeTemplate, Label: tm.Name}
}

func executionNode(e *types.Execution) types.LineageNode {
	return types.LineageNode{ID: e.ID, Type: types.NodeExecution, Label: e.Algorithm}
}
