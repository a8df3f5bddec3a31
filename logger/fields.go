package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across the catalog.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Entities
	FieldExecutionID    = "execution_id"
	FieldEpochID        = "epoch_id"
	FieldEpochName      = "epoch_name"
	FieldRequirementsID = "requirements_id"
	FieldUseCaseID      = "use_case_id"
	FieldTemplateID     = "template_id"
	FieldEntityType     = "entity_type"
	FieldAlgorithm      = "algorithm"

	// Components
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldBackend   = "backend"

	// Operations
	FieldOperation = "operation"
	FieldPath      = "path"
	FieldDryRun    = "dry_run"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount      = "count"
	FieldBatchSize  = "batch_size"
	FieldTotalCount = "total_count"
	FieldErrorCount = "error_count"

	// Status
	FieldStatus  = "status"
	FieldHealthy = "healthy"
)

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	componentKey contextKey = "logger_component"
)

// WithRunID tags ctx with the id of one CLI invocation or maintenance run
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base enriched with fields extracted from context.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	base = OrNop(base)
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
