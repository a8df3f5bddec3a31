package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

func (c *Catalog) prepareRequirements(req *types.ExtractedRequirements) error {
	if req == nil {
		return errors.NewValidationError("requirements must not be nil")
	}
	if req.ID == "" {
		req.ID = c.newID()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = c.now().UTC()
	}
	return validateEntity("requirements", req.ID, req)
}

func (c *Catalog) prepareUseCase(uc *types.GeneratedUseCase) error {
	if uc == nil {
		return errors.NewValidationError("use case must not be nil")
	}
	if uc.ID == "" {
		uc.ID = c.newID()
	}
	if uc.Timestamp.IsZero() {
		uc.Timestamp = c.now().UTC()
	}
	return validateEntity("use case", uc.ID, uc)
}

func (c *Catalog) prepareTemplate(tmpl *types.AnalysisTemplate) error {
	if tmpl == nil {
		return errors.NewValidationError("template must not be nil")
	}
	if tmpl.ID == "" {
		tmpl.ID = c.newID()
	}
	if tmpl.Timestamp.IsZero() {
		tmpl.Timestamp = c.now().UTC()
	}
	return validateEntity("template", tmpl.ID, tmpl)
}

// StoreRequirements stores a requirements snapshot, generating its id when empty
func (c *Catalog) StoreRequirements(ctx context.Context, req *types.ExtractedRequirements) (string, error) {
	if err := c.prepareRequirements(req); err != nil {
		return "", err
	}
	id, err := c.backend.InsertRequirements(ctx, req)
	if err != nil {
		return "", err
	}
	c.logger.Debugw("Stored requirements", logger.FieldRequirementsID, id)
	return id, nil
}

// StoreUseCase stores a use case. It must name the requirements it derives from.
func (c *Catalog) StoreUseCase(ctx context.Context, uc *types.GeneratedUseCase) (string, error) {
	if err := c.prepareUseCase(uc); err != nil {
		return "", err
	}
	id, err := c.backend.InsertUseCase(ctx, uc)
	if err != nil {
		return "", err
	}
	c.logger.Debugw("Stored use case",
		logger.FieldUseCaseID, id,
		logger.FieldRequirementsID, uc.RequirementsID,
	)
	return id, nil
}

// StoreTemplate stores a template. It must name its use case and requirements.
func (c *Catalog) StoreTemplate(ctx context.Context, tmpl *types.AnalysisTemplate) (string, error) {
	if err := c.prepareTemplate(tmpl); err != nil {
		return "", err
	}
	id, err := c.backend.InsertTemplate(ctx, tmpl)
	if err != nil {
		return "", err
	}
	c.logger.Debugw("Stored template",
		logger.FieldTemplateID, id,
		logger.FieldUseCaseID, tmpl.UseCaseID,
	)
	return id, nil
}

func (c *Catalog) GetRequirements(ctx context.Context, id string) (*types.ExtractedRequirements, error) {
	return c.backend.GetRequirements(ctx, id)
}

func (c *Catalog) GetUseCase(ctx context.Context, id string) (*types.GeneratedUseCase, error) {
	return c.backend.GetUseCase(ctx, id)
}

func (c *Catalog) GetTemplate(ctx context.Context, id string) (*types.AnalysisTemplate, error) {
	return c.backend.GetTemplate(ctx, id)
}

// GetExecutionLineage returns an execution with whatever of its template,
// use case, requirements and epoch still resolve. Only a missing execution is an error.
func (c *Catalog) GetExecutionLineage(ctx context.Context, executionID string) (*types.ExecutionLineage, error) {
	exec, err := c.backend.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return ResolveLineage(ctx, c.backend, exec, true, c.logger), nil
}

// ResolveLineage fetches the entities exec references. Each reference is
// looked up only through the execution's own fields; misses are logged and left nil.
func ResolveLineage(ctx context.Context, b storage.Backend, exec *types.Execution, includeEpoch bool, log *zap.SugaredLogger) *types.ExecutionLineage {
	log = logger.OrNop(log)
	lineage := &types.ExecutionLineage{Execution: exec}

	missing := func(entity, id string, err error) {
		log.Warnw("Lineage reference does not resolve",
			logger.FieldExecutionID, exec.ID,
			logger.FieldEntityType, entity,
			"ref_id", id,
			logger.FieldError, err,
		)
	}

	if exec.TemplateID != "" {
		tmpl, err := b.GetTemplate(ctx, exec.TemplateID)
		if err != nil {
			missing(types.NodeTemplate, exec.TemplateID, err)
		} else {
			lineage.Template = tmpl
		}
	}
	if id := types.Deref(exec.UseCaseID); id != "" {
		uc, err := b.GetUseCase(ctx, id)
		if err != nil {
			missing(types.NodeUseCase, id, err)
		} else {
			lineage.UseCase = uc
		}
	}
	if id := types.Deref(exec.RequirementsID); id != "" {
		req, err := b.GetRequirements(ctx, id)
		if err != nil {
			missing(types.NodeRequirement, id, err)
		} else {
			lineage.Requirements = req
		}
	}
	if id := types.Deref(exec.EpochID); includeEpoch && id != "" {
		epoch, err := b.GetEpoch(ctx, id)
		if err != nil {
			missing("epoch", id, err)
		} else {
			lineage.Epoch = epoch
		}
	}
	return lineage
}

// TraceRequirement walks a requirements document forward: its use cases,
// their templates, and the executions carrying its id. Execution ids are unique in the result.
func (c *Catalog) TraceRequirement(ctx context.Context, requirementsID string) (*types.RequirementTrace, error) {
	req, err := c.backend.GetRequirements(ctx, requirementsID)
	if err != nil {
		return nil, err
	}
	return TraceForward(ctx, c.backend, req)
}

// TraceForward builds the forward trace rooted at req
func TraceForward(ctx context.Context, b storage.Backend, req *types.ExtractedRequirements) (*types.RequirementTrace, error) {
	trace := &types.RequirementTrace{
		Requirements: req,
		UseCases:     []*types.GeneratedUseCase{},
		Templates:    []*types.AnalysisTemplate{},
		Executions:   []*types.Execution{},
	}

	useCases, err := b.QueryUseCasesByRequirements(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	trace.UseCases = append(trace.UseCases, useCases...)

	for _, uc := range useCases {
		templates, err := b.QueryTemplatesByUseCase(ctx, uc.ID)
		if err != nil {
			return nil, err
		}
		trace.Templates = append(trace.Templates, templates...)
	}

	execs, err := b.QueryExecutions(ctx, &types.ExecutionFilter{RequirementsID: req.ID}, 0, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(execs))
	for _, e := range execs {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		trace.Executions = append(trace.Executions, e)
	}
	return trace, nil
}
