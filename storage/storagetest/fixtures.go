// Package storagetest holds fixtures and the conformance suite every
// storage.Backend implementation runs in its tests.
package storagetest

import (
	"time"

	"github.com/teranos/catalog/types"
)

// BaseTime is the reference timestamp fixtures are built around
var BaseTime = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// Execution returns a valid completed execution at BaseTime+offset
func Execution(id, algorithm string, offset time.Duration) *types.Execution {
	return &types.Execution{
		ID:               id,
		Timestamp:        BaseTime.Add(offset),
		Algorithm:        algorithm,
		AlgorithmVersion: "1.0.0",
		Parameters:       map[string]interface{}{"damping": 0.85},
		TemplateID:       "tmpl-" + algorithm,
		ResultsLocation:  "results/" + id,
		ResultCount:      100,
		GraphConfig: types.GraphConfig{
			GraphName:         "social",
			VertexCollections: []string{"users"},
			EdgeCollections:   []string{"follows"},
			VertexCount:       1000,
			EdgeCount:         5000,
		},
		Performance: types.PerformanceMetrics{
			ExecutionTimeSeconds: 12.5,
			EngineSize:           "e8",
		},
		Status: types.ExecutionStatusCompleted,
	}
}

// WithEpoch sets the execution's epoch reference
func WithEpoch(e *types.Execution, epochID string) *types.Execution {
	e.EpochID = &epochID
	return e
}

// WithCost sets the reported cost
func WithCost(e *types.Execution, cost float64) *types.Execution {
	e.Performance.CostUSD = &cost
	return e
}

// WithLineage sets the requirements, use case and template references
func WithLineage(e *types.Execution, reqID, useCaseID, templateID string) *types.Execution {
	if reqID != "" {
		e.RequirementsID = &reqID
	}
	if useCaseID != "" {
		e.UseCaseID = &useCaseID
	}
	e.TemplateID = templateID
	return e
}

// Epoch returns an active epoch at BaseTime+offset
func Epoch(id, name string, offset time.Duration, tags ...string) *types.Epoch {
	return &types.Epoch{
		ID:          id,
		Name:        name,
		Description: "epoch " + name,
		Timestamp:   BaseTime.Add(offset),
		CreatedAt:   BaseTime.Add(offset),
		Status:      types.EpochStatusActive,
		Tags:        tags,
	}
}

// Requirements returns a requirements document with one objective and one requirement
func Requirements(id string) *types.ExtractedRequirements {
	return &types.ExtractedRequirements{
		ID:        id,
		Timestamp: BaseTime,
		Domain:    "fraud",
		Summary:   "detect fraud rings",
		Objectives: []types.Objective{
			{ID: "obj-1", Title: "find rings", Priority: types.PriorityHigh},
		},
		Requirements: []types.Requirement{
			{ID: "req-1", Text: "community detection", Type: "functional", Priority: types.PriorityMedium},
		},
		Constraints:     []string{"daily"},
		SourceDocuments: []string{"brief.pdf"},
	}
}

// UseCase returns a use case derived from reqID
func UseCase(id, reqID string) *types.GeneratedUseCase {
	return &types.GeneratedUseCase{
		ID:                    id,
		RequirementsID:        reqID,
		Timestamp:             BaseTime,
		Title:                 "Ring detection " + id,
		Description:           "cluster accounts",
		Algorithm:             "wcc",
		BusinessValue:         "loss prevention",
		Priority:              types.PriorityHigh,
		AddressesObjectives:   []string{"obj-1"},
		AddressesRequirements: []string{"req-1"},
	}
}

// Template returns a template derived from useCaseID and reqID
func Template(id, useCaseID, reqID string) *types.AnalysisTemplate {
	return &types.AnalysisTemplate{
		ID:             id,
		UseCaseID:      useCaseID,
		RequirementsID: reqID,
		Timestamp:      BaseTime,
		Name:           "template " + id,
		Algorithm:      "wcc",
		Parameters:     map[string]interface{}{"max_iterations": float64(20)},
		GraphConfig:    types.GraphConfig{GraphName: "social"},
	}
}

func ptr[T any](v T) *T { return &v }
