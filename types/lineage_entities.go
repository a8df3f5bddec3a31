package types

import "time"

// Priority levels for objectives, requirements and use cases
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Objective is a business objective extracted from source documents
type Objective struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`
}

// Requirement is a single parsed business requirement
type Requirement struct {
	ID                string   `json:"id"`
	Text              string   `json:"text"`
	Type              string   `json:"type,omitempty"` // functional, non_functional, data, ...
	Priority          string   `json:"priority,omitempty"`
	RelatedObjectives []string `json:"related_objectives,omitempty"`
}

// ExtractedRequirements is a snapshot of parsed business requirements.
// It is the root of the lineage chain and has no parent.
type ExtractedRequirements struct {
	ID              string                 `json:"id" validate:"notblank"`
	Timestamp       time.Time              `json:"timestamp"`
	Domain          string                 `json:"domain"`
	Summary         string                 `json:"summary,omitempty"`
	Objectives      []Objective            `json:"objectives,omitempty"`
	Requirements    []Requirement          `json:"requirements,omitempty"`
	Constraints     []string               `json:"constraints,omitempty"`
	SourceDocuments []string               `json:"source_documents,omitempty"`
	EpochID         *string                `json:"epoch_id,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// GeneratedUseCase is an analysis use case derived from one requirements snapshot
type GeneratedUseCase struct {
	ID                    string                 `json:"id" validate:"notblank"`
	RequirementsID        string                 `json:"requirements_id" validate:"notblank"`
	Timestamp             time.Time              `json:"timestamp"`
	Title                 string                 `json:"title"`
	Description           string                 `json:"description,omitempty"`
	Algorithm             string                 `json:"algorithm,omitempty"`
	BusinessValue         string                 `json:"business_value,omitempty"`
	Priority              string                 `json:"priority,omitempty"`
	AddressesObjectives   []string               `json:"addresses_objectives,omitempty"`
	AddressesRequirements []string               `json:"addresses_requirements,omitempty"`
	EpochID               *string                `json:"epoch_id,omitempty"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
}

// AnalysisTemplate is a concrete, parameterised analysis derived from a use case.
// RequirementsID is denormalized from the use case.
type AnalysisTemplate struct {
	ID             string                 `json:"id" validate:"notblank"`
	UseCaseID      string                 `json:"use_case_id" validate:"notblank"`
	RequirementsID string                 `json:"requirements_id" validate:"notblank"`
	Timestamp      time.Time              `json:"timestamp"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	Algorithm      string                 `json:"algorithm"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	GraphConfig    GraphConfig            `json:"graph_config"`
	EpochID        *string                `json:"epoch_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}
