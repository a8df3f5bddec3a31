package lineage

import (
	"context"
	"sort"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

// AnalyzeImpact lists the use cases, templates and executions downstream of
// one requirement, use case or template. Executions count when they reference
// the entity directly or run one of the affected templates.
func (t *Tracker) AnalyzeImpact(ctx context.Context, entityID, entityType string) (*types.ImpactAnalysis, error) {
	var (
		useCases  []*types.GeneratedUseCase
		templates []*types.AnalysisTemplate
		direct    *types.ExecutionFilter
	)

	switch entityType {
	case types.NodeRequirement:
		if _, err := t.backend.GetRequirements(ctx, entityID); err != nil {
			return nil, rootMissing(err, entityType, entityID)
		}
		ucs, err := t.backend.QueryUseCasesByRequirements(ctx, entityID)
		if err != nil {
			return nil, err
		}
		useCases = ucs
		for _, uc := range ucs {
			tmpls, err := t.backend.QueryTemplatesByUseCase(ctx, uc.ID)
			if err != nil {
				return nil, err
			}
			templates = append(templates, tmpls...)
		}
		direct = &types.ExecutionFilter{RequirementsID: entityID}

	case types.NodeUseCase:
		if _, err := t.backend.GetUseCase(ctx, entityID); err != nil {
			return nil, rootMissing(err, entityType, entityID)
		}
		tmpls, err := t.backend.QueryTemplatesByUseCase(ctx, entityID)
		if err != nil {
			return nil, err
		}
		templates = tmpls
		direct = &types.ExecutionFilter{UseCaseID: entityID}

	case types.NodeTemplate:
		tmpl, err := t.backend.GetTemplate(ctx, entityID)
		if err != nil {
			return nil, rootMissing(err, entityType, entityID)
		}
		templates = []*types.AnalysisTemplate{tmpl}

	default:
		return nil, errors.NewValidationError("entity type must be %s, %s or %s, got %q",
			types.NodeRequirement, types.NodeUseCase, types.NodeTemplate, entityType)
	}

	execIDs := make(map[string]bool)
	if direct != nil {
		execs, err := t.backend.QueryExecutions(ctx, direct, 0, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range execs {
			execIDs[e.ID] = true
		}
	}
	if len(templates) > 0 {
		// No template index on the lineage path: scan and match client-side
		tmplIDs := make(map[string]bool, len(templates))
		for _, tm := range templates {
			tmplIDs[tm.ID] = true
		}
		all, err := t.backend.QueryExecutions(ctx, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range all {
			if tmplIDs[e.TemplateID] {
				execIDs[e.ID] = true
			}
		}
	}

	impact := &types.ImpactAnalysis{
		EntityID:   entityID,
		EntityType: entityType,
		UseCases:   []string{},
		Templates:  []string{},
		Executions: sortedKeys(execIDs),
	}
	for _, uc := range useCases {
		impact.UseCases = append(impact.UseCases, uc.ID)
	}
	if entityType != types.NodeTemplate {
		for _, tm := range templates {
			impact.Templates = append(impact.Templates, tm.ID)
		}
	}
	sort.Strings(impact.UseCases)
	sort.Strings(impact.Templates)
	impact.TotalImpact = len(impact.UseCases) + len(impact.Templates) + len(impact.Executions)

	t.logger.Infow("Analyzed impact",
		logger.FieldEntityType, entityType,
		"entity_id", entityID,
		"total_impact", impact.TotalImpact,
	)
	return impact, nil
}

// CoverageOptions widens GetCoverageReport
type CoverageOptions struct {
	// EnumerateAll counts every stored requirements record, not only those
	// referenced by an execution, when the backend can list them. Records
	// scoped to another epoch are skipped when an epoch is given.
	EnumerateAll bool
}

// GetCoverageReport reports the share of requirements that reached at least
// one execution. By default only requirements referenced by an execution are
// visible, so coverage is 100% whenever any are found.
func (t *Tracker) GetCoverageReport(ctx context.Context, epochID string, opts CoverageOptions) (*types.CoverageReport, error) {
	execs, err := t.backend.QueryExecutions(ctx, &types.ExecutionFilter{EpochID: epochID}, 0, 0)
	if err != nil {
		return nil, err
	}

	covered := make(map[string]bool)
	for _, e := range execs {
		if id := types.Deref(e.RequirementsID); id != "" {
			covered[id] = true
		}
	}

	known := make(map[string]bool, len(covered))
	for id := range covered {
		known[id] = true
	}
	if opts.EnumerateAll {
		lister, ok := storage.Capability[storage.LineageLister](t.backend)
		if !ok {
			return nil, errors.NewValidationError("backend cannot enumerate requirements")
		}
		reqs, err := lister.ListRequirements(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			if epochID != "" && r.EpochID != nil && *r.EpochID != epochID {
				continue
			}
			known[r.ID] = true
		}
	}

	report := &types.CoverageReport{
		EpochID:               epochID,
		TotalRequirements:     len(known),
		CoveredRequirements:   len(covered),
		UncoveredRequirements: []string{},
		ExecutionsScanned:     len(execs),
	}
	for id := range known {
		if !covered[id] {
			report.UncoveredRequirements = append(report.UncoveredRequirements, id)
		}
	}
	sort.Strings(report.UncoveredRequirements)
	if report.TotalRequirements > 0 {
		report.CoveragePercent = float64(report.CoveredRequirements) / float64(report.TotalRequirements) * 100
	}
	return report, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
