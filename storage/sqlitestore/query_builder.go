package sqlitestore

import (
	"strings"

	"github.com/teranos/catalog/types"
)

// queryBuilder accumulates SQL WHERE clauses and parameters
type queryBuilder struct {
	whereClauses []string
	args         []interface{}
}

// addClause appends a WHERE clause with its arguments
func (qb *queryBuilder) addClause(clause string, args ...interface{}) {
	qb.whereClauses = append(qb.whereClauses, clause)
	qb.args = append(qb.args, args...)
}

// where returns " WHERE ..." or "" when no clause was added
func (qb *queryBuilder) where() string {
	if len(qb.whereClauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(qb.whereClauses, " AND ")
}

// page appends LIMIT/OFFSET. SQLite needs a LIMIT before OFFSET, -1 is unbounded.
func (qb *queryBuilder) page(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	qb.args = append(qb.args, limit, offset)
	return " LIMIT ? OFFSET ?"
}

func executionFilterClauses(f *types.ExecutionFilter) *queryBuilder {
	qb := &queryBuilder{}
	if f == nil {
		return qb
	}
	if f.EpochID != "" {
		qb.addClause("epoch_id = ?", f.EpochID)
	}
	if f.Algorithm != "" {
		qb.addClause("algorithm = ?", f.Algorithm)
	}
	if f.Status != "" {
		qb.addClause("status = ?", string(f.Status))
	}
	if f.StartDate != nil {
		qb.addClause("timestamp >= ?", formatTime(*f.StartDate))
	}
	if f.EndDate != nil {
		qb.addClause("timestamp <= ?", formatTime(*f.EndDate))
	}
	if f.GraphName != "" {
		qb.addClause("graph_name = ?", f.GraphName)
	}
	if f.RequirementsID != "" {
		qb.addClause("requirements_id = ?", f.RequirementsID)
	}
	if f.UseCaseID != "" {
		qb.addClause("use_case_id = ?", f.UseCaseID)
	}
	if f.TemplateID != "" {
		qb.addClause("template_id = ?", f.TemplateID)
	}
	if f.WorkflowMode != "" {
		qb.addClause("workflow_mode = ?", f.WorkflowMode)
	}
	if f.MinResultCount != nil {
		qb.addClause("result_count >= ?", *f.MinResultCount)
	}
	if f.MaxExecutionTime != nil {
		qb.addClause("execution_time_seconds <= ?", *f.MaxExecutionTime)
	}
	return qb
}

func epochFilterClauses(f *types.EpochFilter) *queryBuilder {
	qb := &queryBuilder{}
	if f == nil {
		return qb
	}
	if f.StartDate != nil {
		qb.addClause("timestamp >= ?", formatTime(*f.StartDate))
	}
	if f.EndDate != nil {
		qb.addClause("timestamp <= ?", formatTime(*f.EndDate))
	}
	if f.Status != "" {
		qb.addClause("status = ?", string(f.Status))
	}
	// NameContains is applied by QueryEpochs; COLLATE NOCASE only folds ASCII
	// Every listed tag must be present
	for _, tag := range f.Tags {
		qb.addClause("EXISTS (SELECT 1 FROM json_each(epochs.tags) WHERE json_each.value = ?)", tag)
	}
	return qb
}
