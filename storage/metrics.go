package storage

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/types"
)

var (
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_storage_operations_total",
		Help: "Total storage backend operations by backend, operation and outcome",
	}, []string{"backend", "operation", "outcome"})

	storageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_storage_operation_duration_seconds",
		Help:    "Storage backend operation latency",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"backend", "operation"})
)

// Outcome labels
const (
	OutcomeOK         = "ok"
	OutcomeNotFound   = "not_found"
	OutcomeDuplicate  = "duplicate"
	OutcomeValidation = "validation"
	OutcomeError      = "error"
)

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.IsNotFoundError(err):
		return OutcomeNotFound
	case errors.IsDuplicateError(err):
		return OutcomeDuplicate
	case errors.IsValidationError(err):
		return OutcomeValidation
	default:
		return OutcomeError
	}
}

// OperationCount returns the counter for one label combination
func OperationCount(backend, operation, result string) prometheus.Counter {
	return storageOperations.WithLabelValues(backend, operation, result)
}

// OperationSummary is one non-zero operation counter
type OperationSummary struct {
	Backend   string  `json:"backend"`
	Operation string  `json:"operation"`
	Outcome   string  `json:"outcome"`
	Count     float64 `json:"count"`
}

// SummarizeOperations reads the operation counters gathered by g, sorted by
// backend, operation and outcome. It is empty when nothing was instrumented.
func SummarizeOperations(g prometheus.Gatherer) ([]OperationSummary, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "failed to gather storage metrics")
	}

	out := []OperationSummary{}
	for _, mf := range families {
		if mf.GetName() != "catalog_storage_operations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if metric.GetCounter().GetValue() == 0 {
				continue
			}
			sum := OperationSummary{Count: metric.GetCounter().GetValue()}
			for _, label := range metric.GetLabel() {
				switch label.GetName() {
				case "backend":
					sum.Backend = label.GetValue()
				case "operation":
					sum.Operation = label.GetValue()
				case "outcome":
					sum.Outcome = label.GetValue()
				}
			}
			out = append(out, sum)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Backend != b.Backend {
			return a.Backend < b.Backend
		}
		if a.Operation != b.Operation {
			return a.Operation < b.Operation
		}
		return a.Outcome < b.Outcome
	})
	return out, nil
}

// Instrument wraps b so every call is counted and timed
func Instrument(b Backend, name string) Backend {
	return &instrumented{next: b, name: name}
}

type instrumented struct {
	next Backend
	name string
}

func (m *instrumented) observe(op string, start time.Time, err error) {
	storageOperations.WithLabelValues(m.name, op, outcome(err)).Inc()
	storageLatency.WithLabelValues(m.name, op).Observe(time.Since(start).Seconds())
}

// Name returns the wrapped backend's name
func (m *instrumented) Name() string { return m.name }

// Path forwards to the wrapped backend when it is file-backed
func (m *instrumented) Path() string {
	if l, ok := m.next.(Locator); ok {
		return l.Path()
	}
	return ""
}

// Unwrap returns the wrapped backend
func (m *instrumented) Unwrap() Backend { return m.next }

func (m *instrumented) InsertExecution(ctx context.Context, exec *types.Execution) (id string, err error) {
	defer func(start time.Time) { m.observe("insert_execution", start, err) }(time.Now())
	return m.next.InsertExecution(ctx, exec)
}

func (m *instrumented) InsertEpoch(ctx context.Context, epoch *types.Epoch) (id string, err error) {
	defer func(start time.Time) { m.observe("insert_epoch", start, err) }(time.Now())
	return m.next.InsertEpoch(ctx, epoch)
}

func (m *instrumented) InsertRequirements(ctx context.Context, req *types.ExtractedRequirements) (id string, err error) {
	defer func(start time.Time) { m.observe("insert_requirements", start, err) }(time.Now())
	return m.next.InsertRequirements(ctx, req)
}

func (m *instrumented) InsertUseCase(ctx context.Context, uc *types.GeneratedUseCase) (id string, err error) {
	defer func(start time.Time) { m.observe("insert_use_case", start, err) }(time.Now())
	return m.next.InsertUseCase(ctx, uc)
}

func (m *instrumented) InsertTemplate(ctx context.Context, tmpl *types.AnalysisTemplate) (id string, err error) {
	defer func(start time.Time) { m.observe("insert_template", start, err) }(time.Now())
	return m.next.InsertTemplate(ctx, tmpl)
}

func (m *instrumented) GetExecution(ctx context.Context, id string) (exec *types.Execution, err error) {
	defer func(start time.Time) { m.observe("get_execution", start, err) }(time.Now())
	return m.next.GetExecution(ctx, id)
}

func (m *instrumented) GetEpoch(ctx context.Context, id string) (epoch *types.Epoch, err error) {
	defer func(start time.Time) { m.observe("get_epoch", start, err) }(time.Now())
	return m.next.GetEpoch(ctx, id)
}

func (m *instrumented) GetEpochByName(ctx context.Context, name string) (epoch *types.Epoch, err error) {
	defer func(start time.Time) { m.observe("get_epoch_by_name", start, err) }(time.Now())
	return m.next.GetEpochByName(ctx, name)
}

func (m *instrumented) GetRequirements(ctx context.Context, id string) (req *types.ExtractedRequirements, err error) {
	defer func(start time.Time) { m.observe("get_requirements", start, err) }(time.Now())
	return m.next.GetRequirements(ctx, id)
}

func (m *instrumented) GetUseCase(ctx context.Context, id string) (uc *types.GeneratedUseCase, err error) {
	defer func(start time.Time) { m.observe("get_use_case", start, err) }(time.Now())
	return m.next.GetUseCase(ctx, id)
}

func (m *instrumented) GetTemplate(ctx context.Context, id string) (tmpl *types.AnalysisTemplate, err error) {
	defer func(start time.Time) { m.observe("get_template", start, err) }(time.Now())
	return m.next.GetTemplate(ctx, id)
}

func (m *instrumented) QueryExecutions(ctx context.Context, filter *types.ExecutionFilter, limit, offset int) (execs []*types.Execution, err error) {
	defer func(start time.Time) { m.observe("query_executions", start, err) }(time.Now())
	return m.next.QueryExecutions(ctx, filter, limit, offset)
}

func (m *instrumented) QueryEpochs(ctx context.Context, filter *types.EpochFilter, limit, offset int) (epochs []*types.Epoch, err error) {
	defer func(start time.Time) { m.observe("query_epochs", start, err) }(time.Now())
	return m.next.QueryEpochs(ctx, filter, limit, offset)
}

func (m *instrumented) QueryUseCasesByRequirements(ctx context.Context, requirementsID string) (ucs []*types.GeneratedUseCase, err error) {
	defer func(start time.Time) { m.observe("query_use_cases", start, err) }(time.Now())
	return m.next.QueryUseCasesByRequirements(ctx, requirementsID)
}

func (m *instrumented) QueryTemplatesByUseCase(ctx context.Context, useCaseID string) (tmpls []*types.AnalysisTemplate, err error) {
	defer func(start time.Time) { m.observe("query_templates", start, err) }(time.Now())
	return m.next.QueryTemplatesByUseCase(ctx, useCaseID)
}

func (m *instrumented) UpdateExecution(ctx context.Context, exec *types.Execution) (err error) {
	defer func(start time.Time) { m.observe("update_execution", start, err) }(time.Now())
	return m.next.UpdateExecution(ctx, exec)
}

func (m *instrumented) UpdateEpoch(ctx context.Context, epoch *types.Epoch) (err error) {
	defer func(start time.Time) { m.observe("update_epoch", start, err) }(time.Now())
	return m.next.UpdateEpoch(ctx, epoch)
}

func (m *instrumented) DeleteExecution(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { m.observe("delete_execution", start, err) }(time.Now())
	return m.next.DeleteExecution(ctx, id)
}

func (m *instrumented) DeleteEpoch(ctx context.Context, id string, cascade bool) (err error) {
	defer func(start time.Time) { m.observe("delete_epoch", start, err) }(time.Now())
	return m.next.DeleteEpoch(ctx, id, cascade)
}

func (m *instrumented) Reset(ctx context.Context, confirm bool) (err error) {
	defer func(start time.Time) { m.observe("reset", start, err) }(time.Now())
	return m.next.Reset(ctx, confirm)
}

func (m *instrumented) GetStatistics(ctx context.Context) (stats *types.CatalogStatistics, err error) {
	defer func(start time.Time) { m.observe("get_statistics", start, err) }(time.Now())
	return m.next.GetStatistics(ctx)
}

func (m *instrumented) ExportCatalog(ctx context.Context, path string) (err error) {
	defer func(start time.Time) { m.observe("export_catalog", start, err) }(time.Now())
	return m.next.ExportCatalog(ctx, path)
}

func (m *instrumented) ImportCatalog(ctx context.Context, path string) (summary *types.ImportSummary, err error) {
	defer func(start time.Time) { m.observe("import_catalog", start, err) }(time.Now())
	return m.next.ImportCatalog(ctx, path)
}

func (m *instrumented) Close() error {
	return m.next.Close()
}
