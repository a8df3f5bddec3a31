package manager

import (
	"context"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/types"
)

// Reference fields checked by ValidateCatalogIntegrity
const (
	RefTemplate     = "template_id"
	RefUseCase      = "use_case_id"
	RefRequirements = "requirements_id"
	RefEpoch        = "epoch_id"
)

// IntegrityIssue is one execution reference that does not resolve
type IntegrityIssue struct {
	ExecutionID string `json:"execution_id"`
	Field       string `json:"field"`
	RefID       string `json:"ref_id"`
	Message     string `json:"message"`
}

// IntegrityReport lists dangling references. A missing template is an
// error since template_id is required; the optional references only warn.
type IntegrityReport struct {
	ExecutionsChecked int              `json:"executions_checked"`
	Errors            []IntegrityIssue `json:"errors"`
	Warnings          []IntegrityIssue `json:"warnings"`
	Healthy           bool             `json:"healthy"`
}

// refCache remembers which ids resolve so each is looked up once
type refCache struct {
	lookup func(id string) error
	known  map[string]bool
}

func newRefCache(lookup func(id string) error) *refCache {
	return &refCache{lookup: lookup, known: make(map[string]bool)}
}

// resolves reports whether id exists. Only NotFound counts as missing;
// other lookup failures are returned and not cached.
func (c *refCache) resolves(id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	if ok, seen := c.known[id]; seen {
		return ok, nil
	}
	err := c.lookup(id)
	switch {
	case err == nil:
		c.known[id] = true
	case errors.IsNotFoundError(err):
		c.known[id] = false
	default:
		return false, err
	}
	return c.known[id], nil
}

// ValidateCatalogIntegrity checks every execution's references
func (m *Manager) ValidateCatalogIntegrity(ctx context.Context) (*IntegrityReport, error) {
	execs, err := m.backend.QueryExecutions(ctx, nil, 0, 0)
	if err != nil {
		return nil, err
	}

	caches := map[string]*refCache{
		RefTemplate: newRefCache(func(id string) error {
			_, err := m.backend.GetTemplate(ctx, id)
			return err
		}),
		RefUseCase: newRefCache(func(id string) error {
			_, err := m.backend.GetUseCase(ctx, id)
			return err
		}),
		RefRequirements: newRefCache(func(id string) error {
			_, err := m.backend.GetRequirements(ctx, id)
			return err
		}),
		RefEpoch: newRefCache(func(id string) error {
			_, err := m.backend.GetEpoch(ctx, id)
			return err
		}),
	}

	report := &IntegrityReport{
		ExecutionsChecked: len(execs),
		Errors:            []IntegrityIssue{},
		Warnings:          []IntegrityIssue{},
	}
	for _, e := range execs {
		ok, err := caches[RefTemplate].resolves(e.TemplateID)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.Errors = append(report.Errors, IntegrityIssue{
				ExecutionID: e.ID,
				Field:       RefTemplate,
				RefID:       e.TemplateID,
				Message:     "template " + e.TemplateID + " does not exist",
			})
		}

		for _, ref := range []struct{ field, id string }{
			{RefUseCase, types.Deref(e.UseCaseID)},
			{RefRequirements, types.Deref(e.RequirementsID)},
			{RefEpoch, types.Deref(e.EpochID)},
		} {
			if ref.id == "" {
				continue
			}
			ok, err := caches[ref.field].resolves(ref.id)
			if err != nil {
				return nil, err
			}
			if !ok {
				report.Warnings = append(report.Warnings, IntegrityIssue{
					ExecutionID: e.ID,
					Field:       ref.field,
					RefID:       ref.id,
					Message:     ref.field + " " + ref.id + " does not exist",
				})
			}
		}
	}
	report.Healthy = len(report.Errors) == 0

	m.log(ctx).Infow("Validated catalog integrity",
		logger.FieldCount, report.ExecutionsChecked,
		logger.FieldErrorCount, len(report.Errors),
		"warning_count", len(report.Warnings),
		logger.FieldHealthy, report.Healthy,
	)
	return report, nil
}

// RepairResult reports what RepairCatalog changed
type RepairResult struct {
	Report         *IntegrityReport  `json:"report"`
	OrphansDeleted int               `json:"orphans_deleted"`
	LinksCleared   int               `json:"links_cleared"`
	Errors         []types.ItemError `json:"errors"`
}

// RepairCatalog fixes what ValidateCatalogIntegrity finds. fixOrphans deletes
// executions with a missing template; fixLinks clears dangling optional references.
func (m *Manager) RepairCatalog(ctx context.Context, fixOrphans, fixLinks bool) (*RepairResult, error) {
	report, err := m.ValidateCatalogIntegrity(ctx)
	if err != nil {
		return nil, err
	}

	res := &RepairResult{Report: report, Errors: []types.ItemError{}}
	deleted := make(map[string]bool)

	if fixOrphans {
		for _, issue := range report.Errors {
			if deleted[issue.ExecutionID] {
				continue
			}
			if err := m.deleteOne(ctx, issue.ExecutionID); err != nil {
				res.Errors = append(res.Errors, types.ItemError{ID: issue.ExecutionID, Error: err.Error()})
				continue
			}
			deleted[issue.ExecutionID] = true
			res.OrphansDeleted++
		}
	}

	if fixLinks {
		byExec := make(map[string][]string)
		var order []string
		for _, issue := range report.Warnings {
			if deleted[issue.ExecutionID] {
				continue
			}
			if _, ok := byExec[issue.ExecutionID]; !ok {
				order = append(order, issue.ExecutionID)
			}
			byExec[issue.ExecutionID] = append(byExec[issue.ExecutionID], issue.Field)
		}
		for _, id := range order {
			if err := m.clearLinks(ctx, id, byExec[id]); err != nil {
				res.Errors = append(res.Errors, types.ItemError{ID: id, Error: err.Error()})
				continue
			}
			res.LinksCleared += len(byExec[id])
		}
	}

	m.log(ctx).Infow("Repaired catalog",
		"orphans_deleted", res.OrphansDeleted,
		"links_cleared", res.LinksCleared,
		logger.FieldErrorCount, len(res.Errors),
	)
	return res, nil
}

func (m *Manager) clearLinks(ctx context.Context, executionID string, fields []string) error {
	exec, err := m.backend.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f {
		case RefUseCase:
			exec.UseCaseID = nil
		case RefRequirements:
			exec.RequirementsID = nil
		case RefEpoch:
			exec.EpochID = nil
		}
	}
	return m.backend.UpdateExecution(ctx, exec)
}
