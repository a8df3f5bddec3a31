package types

import (
	"strings"
	"time"
)

// ExecutionFilter is a set of optional predicates over executions.
// The zero value matches every execution. Date bounds are inclusive.
type ExecutionFilter struct {
	EpochID          string          `json:"epoch_id,omitempty"`
	Algorithm        string          `json:"algorithm,omitempty"`
	Status           ExecutionStatus `json:"status,omitempty"`
	StartDate        *time.Time      `json:"start_date,omitempty"`
	EndDate          *time.Time      `json:"end_date,omitempty"`
	GraphName        string          `json:"graph_name,omitempty"`
	RequirementsID   string          `json:"requirements_id,omitempty"`
	UseCaseID        string          `json:"use_case_id,omitempty"`
	TemplateID       string          `json:"template_id,omitempty"`
	WorkflowMode     string          `json:"workflow_mode,omitempty"`
	MinResultCount   *int64          `json:"min_result_count,omitempty"`
	MaxExecutionTime *float64        `json:"max_execution_time,omitempty"`
}

// IsEmpty reports whether the filter has no predicates set
func (f *ExecutionFilter) IsEmpty() bool {
	return f == nil || (f.EpochID == "" && f.Algorithm == "" && f.Status == "" &&
		f.StartDate == nil && f.EndDate == nil && f.GraphName == "" &&
		f.RequirementsID == "" && f.UseCaseID == "" && f.TemplateID == "" &&
		f.WorkflowMode == "" && f.MinResultCount == nil && f.MaxExecutionTime == nil)
}

// Matches evaluates every set predicate against e. A nil filter matches everything.
func (f *ExecutionFilter) Matches(e *Execution) bool {
	if f == nil {
		return true
	}
	if e == nil {
		return false
	}
	if f.EpochID != "" && Deref(e.EpochID) != f.EpochID {
		return false
	}
	if f.Algorithm != "" && e.Algorithm != f.Algorithm {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	if f.GraphName != "" && e.GraphConfig.GraphName != f.GraphName {
		return false
	}
	if f.RequirementsID != "" && Deref(e.RequirementsID) != f.RequirementsID {
		return false
	}
	if f.UseCaseID != "" && Deref(e.UseCaseID) != f.UseCaseID {
		return false
	}
	if f.TemplateID != "" && e.TemplateID != f.TemplateID {
		return false
	}
	if f.WorkflowMode != "" && e.WorkflowMode != f.WorkflowMode {
		return false
	}
	if f.MinResultCount != nil && e.ResultCount < *f.MinResultCount {
		return false
	}
	if f.MaxExecutionTime != nil && e.Performance.ExecutionTimeSeconds > *f.MaxExecutionTime {
		return false
	}
	return true
}

// EpochFilter is a set of optional predicates over epochs.
// Tags match only when the epoch carries every listed tag.
type EpochFilter struct {
	StartDate    *time.Time  `json:"start_date,omitempty"`
	EndDate      *time.Time  `json:"end_date,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
	Status       EpochStatus `json:"status,omitempty"`
	NameContains string      `json:"name_contains,omitempty"`
}

// Matches evaluates every set predicate against e. A nil filter matches everything.
func (f *EpochFilter) Matches(e *Epoch) bool {
	if f == nil {
		return true
	}
	if e == nil {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	for _, tag := range f.Tags {
		if !e.HasTag(tag) {
			return false
		}
	}
	return true
}
