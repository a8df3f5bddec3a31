package types

import "time"

// CatalogStatistics holds entity totals and execution breakdowns
type CatalogStatistics struct {
	TotalExecutions       int            `json:"total_executions"`
	TotalEpochs           int            `json:"total_epochs"`
	TotalRequirements     int            `json:"total_requirements"`
	TotalUseCases         int            `json:"total_use_cases"`
	TotalTemplates        int            `json:"total_templates"`
	ExecutionsByAlgorithm map[string]int `json:"executions_by_algorithm"`
	ExecutionsByStatus    map[string]int `json:"executions_by_status"`
}

// ExecutionLineage is an execution with whichever of its referenced
// entities could be resolved. Unresolved references are nil.
type ExecutionLineage struct {
	Execution    *Execution             `json:"execution"`
	Template     *AnalysisTemplate      `json:"template"`
	UseCase      *GeneratedUseCase      `json:"use_case"`
	Requirements *ExtractedRequirements `json:"requirements"`
	Epoch        *Epoch                 `json:"epoch"`
}

// RequirementTrace is everything derived from one requirements snapshot.
// Executions are unique by id.
type RequirementTrace struct {
	Requirements *ExtractedRequirements `json:"requirements"`
	UseCases     []*GeneratedUseCase    `json:"use_cases"`
	Templates    []*AnalysisTemplate    `json:"templates"`
	Executions   []*Execution           `json:"executions"`
}

// ExecutionCount returns the number of distinct executions in the trace
func (t *RequirementTrace) ExecutionCount() int {
	return len(t.Executions)
}

// ImportSummary counts what a catalog import wrote per collection
type ImportSummary struct {
	Executions   int `json:"executions"`
	Epochs       int `json:"epochs"`
	Requirements int `json:"requirements"`
	UseCases     int `json:"use_cases"`
	Templates    int `json:"templates"`
}

// Total returns the number of records written
func (s ImportSummary) Total() int {
	return s.Executions + s.Epochs + s.Requirements + s.UseCases + s.Templates
}

// PaginationResult is one page of a sorted execution query
type PaginationResult struct {
	Items       []*Execution `json:"items"`
	TotalCount  int          `json:"total_count"`
	Page        int          `json:"page"`
	PageSize    int          `json:"page_size"`
	TotalPages  int          `json:"total_pages"`
	HasNext     bool         `json:"has_next"`
	HasPrevious bool         `json:"has_previous"`
}

// TimeRange is an inclusive (oldest, newest) timestamp pair
type TimeRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// QueryStatistics aggregates a filtered execution set
type QueryStatistics struct {
	TotalCount         int            `json:"total_count"`
	Algorithms         map[string]int `json:"algorithms"`
	Statuses           map[string]int `json:"statuses"`
	TimeRange          TimeRange      `json:"time_range"`
	TotalExecutionTime float64        `json:"total_execution_time"`
	AvgExecutionTime   float64        `json:"avg_execution_time"`
	TotalCost          float64        `json:"total_cost"`
	AvgCost            float64        `json:"avg_cost"`
	CostReportingCount int            `json:"cost_reporting_count"`
}

// AlgorithmPerformance compares runs of one algorithm
type AlgorithmPerformance struct {
	Algorithm        string     `json:"algorithm"`
	Count            int        `json:"count"`
	AvgExecutionTime float64    `json:"avg_execution_time"`
	MinExecutionTime float64    `json:"min_execution_time"`
	MaxExecutionTime float64    `json:"max_execution_time"`
	TotalCost        float64    `json:"total_cost"`
	AvgCost          float64    `json:"avg_cost"`
	Oldest           *time.Time `json:"oldest,omitempty"`
	Newest           *time.Time `json:"newest,omitempty"`
	Versions         []string   `json:"versions,omitempty"`
}

// Lineage node types and edge relations
const (
	NodeRequirement = "requirement"
	NodeUseCase     = "use_case"
	NodeTemplate    = "template"
	NodeExecution   = "execution"

	EdgeGeneratesUseCase  = "generates_use_case"
	EdgeGeneratesTemplate = "generates_template"
	EdgeExecutes          = "executes"
)

// LineageNode is one entity in a lineage graph or path
type LineageNode struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
}

// LineageEdge connects two lineage nodes
type LineageEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// LineageGraph is the renderable dependency graph of a set of executions
type LineageGraph struct {
	Nodes []LineageNode `json:"nodes"`
	Edges []LineageEdge `json:"edges"`
}

// BackwardTrace walks from an execution back to its requirements.
// Complete is true only when the requirements record was found.
type BackwardTrace struct {
	ExecutionID string            `json:"execution_id"`
	Path        []LineageNode     `json:"path"`
	Complete    bool              `json:"complete"`
	Lineage     *ExecutionLineage `json:"lineage"`
}

// ImpactAnalysis lists everything downstream of one entity
type ImpactAnalysis struct {
	EntityID    string   `json:"entity_id"`
	EntityType  string   `json:"entity_type"`
	UseCases    []string `json:"use_cases"`
	Templates   []string `json:"templates"`
	Executions  []string `json:"executions"`
	TotalImpact int      `json:"total_impact"`
}

// CoverageReport summarizes how many requirements reached execution.
// Only requirements referenced by at least one execution are observable.
type CoverageReport struct {
	EpochID               string   `json:"epoch_id,omitempty"`
	TotalRequirements     int      `json:"total_requirements"`
	CoveredRequirements   int      `json:"covered_requirements"`
	UncoveredRequirements []string `json:"uncovered_requirements"`
	CoveragePercent       float64  `json:"coverage_percent"`
	ExecutionsScanned     int      `json:"executions_scanned"`
}

// ItemError records one failed item of a batch operation
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
