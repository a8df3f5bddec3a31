// Package types defines the catalog's data model: the five entity kinds
// (executions, epochs, extracted requirements, generated use cases,
// analysis templates), their nested value types, query filters and the
// result shapes returned by the query and lineage layers.
//
// Field names serialize as snake_case JSON; timestamps as ISO-8601 strings;
// enums as their lowercase string value. This is also the field-map format
// of catalog exports.
package types

import (
	"time"
)

// ExecutionStatus is the lifecycle state of an execution
type ExecutionStatus string

const (
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusPartial   ExecutionStatus = "partial"
	ExecutionStatusRunning   ExecutionStatus = "running"
)

// IsFinal reports whether no further status transitions are allowed.
func (s ExecutionStatus) IsFinal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Valid reports whether s is one of the known statuses
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusPartial, ExecutionStatusRunning:
		return true
	}
	return false
}

// Workflow modes recorded on executions
const (
	WorkflowModeTraditional = "traditional"
	WorkflowModeAgentic     = "agentic"
)

// GraphConfig describes the graph an analysis ran against
type GraphConfig struct {
	GraphName         string   `json:"graph_name"`
	VertexCollections []string `json:"vertex_collections,omitempty"`
	EdgeCollections   []string `json:"edge_collections,omitempty"`
	VertexCount       int64    `json:"vertex_count"`
	EdgeCount         int64    `json:"edge_count"`
	GraphHash         *string  `json:"graph_hash,omitempty"` // structural hash, when the engine computed one
}

// PerformanceMetrics captures resource usage and cost of one run.
// Optional metrics are nil when the engine did not report them.
type PerformanceMetrics struct {
	ExecutionTimeSeconds float64  `json:"execution_time_seconds"`
	MemoryUsageMB        *float64 `json:"memory_usage_mb,omitempty"`
	CPUUsagePercent      *float64 `json:"cpu_usage_percent,omitempty"`
	NetworkBytes         *int64   `json:"network_bytes,omitempty"`
	CostUSD              *float64 `json:"cost_usd,omitempty"`
	EngineSize           string   `json:"engine_size,omitempty"`
}

// ResultSample keeps the top-N result rows and summary statistics so
// time-series questions can be answered without rescanning full results.
type ResultSample struct {
	TopResults   []map[string]interface{} `json:"top_results,omitempty"`
	SummaryStats map[string]float64       `json:"summary_stats,omitempty"`
	SampleSize   int                      `json:"sample_size"`
}

// Execution is one recorded run of one analysis algorithm.
//
// RequirementsID, UseCaseID and EpochID are advisory references: nothing
// enforces that they resolve. TemplateID is required but also not enforced
// by storage; ValidateCatalogIntegrity reports dangling template ids.
type Execution struct {
	ID               string                 `json:"id" validate:"notblank"`
	Timestamp        time.Time              `json:"timestamp"`
	Algorithm        string                 `json:"algorithm" validate:"notblank"`
	AlgorithmVersion string                 `json:"algorithm_version,omitempty"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
	TemplateID       string                 `json:"template_id" validate:"notblank"`
	ResultsLocation  string                 `json:"results_location" validate:"notblank"`
	ResultCount      int64                  `json:"result_count" validate:"gte=0"`
	GraphConfig      GraphConfig            `json:"graph_config"`
	Performance      PerformanceMetrics     `json:"performance"`
	ResultSample     *ResultSample          `json:"result_sample,omitempty"`
	Status           ExecutionStatus        `json:"status" validate:"oneof=completed failed partial running"`
	ErrorMessage     *string                `json:"error_message,omitempty"`
	RequirementsID   *string                `json:"requirements_id,omitempty"`
	UseCaseID        *string                `json:"use_case_id,omitempty"`
	EpochID          *string                `json:"epoch_id,omitempty"`
	WorkflowMode     string                 `json:"workflow_mode,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// Cost returns the reported cost and whether one was reported
func (e *Execution) Cost() (float64, bool) {
	if e.Performance.CostUSD == nil {
		return 0, false
	}
	return *e.Performance.CostUSD, true
}

// Deref returns the value of an optional reference, or "" when unset
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
