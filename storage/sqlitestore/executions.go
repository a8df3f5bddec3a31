package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/types"
)

const executionColumns = `id, timestamp, algorithm, algorithm_version, parameters, template_id,
	results_location, result_count, graph_name, graph_config, execution_time_seconds, cost_usd,
	performance, result_sample, status, error_message, requirements_id, use_case_id, epoch_id,
	workflow_mode, metadata`

const (
	insertExecutionQuery = `INSERT INTO executions (` + executionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateExecutionQuery = `UPDATE executions SET
		timestamp = ?, algorithm = ?, algorithm_version = ?, parameters = ?, template_id = ?,
		results_location = ?, result_count = ?, graph_name = ?, graph_config = ?,
		execution_time_seconds = ?, cost_usd = ?, performance = ?, result_sample = ?, status = ?,
		error_message = ?, requirements_id = ?, use_case_id = ?, epoch_id = ?, workflow_mode = ?,
		metadata = ?
		WHERE id = ?`

	selectExecutionsQuery = `SELECT ` + executionColumns + ` FROM executions`
)

// executionArgs returns column values in executionColumns order, without id
func executionArgs(e *types.Execution) ([]interface{}, error) {
	params, err := toJSON(e.Parameters)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal parameters")
	}
	graphConfig, err := toJSON(e.GraphConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal graph_config")
	}
	performance, err := toJSON(e.Performance)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal performance")
	}
	var sample interface{}
	if e.ResultSample != nil {
		if sample, err = toJSON(e.ResultSample); err != nil {
			return nil, errors.Wrap(err, "failed to marshal result_sample")
		}
	}
	metadata, err := toJSON(e.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal metadata")
	}

	var cost interface{}
	if e.Performance.CostUSD != nil {
		cost = *e.Performance.CostUSD
	}

	return []interface{}{
		formatTime(e.Timestamp),
		e.Algorithm,
		e.AlgorithmVersion,
		params,
		e.TemplateID,
		e.ResultsLocation,
		e.ResultCount,
		e.GraphConfig.GraphName,
		graphConfig,
		e.Performance.ExecutionTimeSeconds,
		cost,
		performance,
		sample,
		string(e.Status),
		nullString(e.ErrorMessage),
		nullString(e.RequirementsID),
		nullString(e.UseCaseID),
		nullString(e.EpochID),
		e.WorkflowMode,
		metadata,
	}, nil
}

func scanExecution(row rowScanner) (*types.Execution, error) {
	var (
		e            types.Execution
		timestamp    string
		params       sql.NullString
		graphName    string
		graphConfig  sql.NullString
		execTime     float64
		cost         sql.NullFloat64
		performance  sql.NullString
		sample       sql.NullString
		status       string
		errorMessage sql.NullString
		reqID        sql.NullString
		ucID         sql.NullString
		epochID      sql.NullString
		metadata     sql.NullString
	)

	if err := row.Scan(
		&e.ID, &timestamp, &e.Algorithm, &e.AlgorithmVersion, &params, &e.TemplateID,
		&e.ResultsLocation, &e.ResultCount, &graphName, &graphConfig, &execTime, &cost,
		&performance, &sample, &status, &errorMessage, &reqID, &ucID, &epochID,
		&e.WorkflowMode, &metadata,
	); err != nil {
		return nil, err
	}

	var err error
	if e.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	if err := fromJSON(params, &e.Parameters); err != nil {
		return nil, errors.Wrapf(err, "execution %s: invalid parameters", e.ID)
	}
	if err := fromJSON(graphConfig, &e.GraphConfig); err != nil {
		return nil, errors.Wrapf(err, "execution %s: invalid graph_config", e.ID)
	}
	if err := fromJSON(performance, &e.Performance); err != nil {
		return nil, errors.Wrapf(err, "execution %s: invalid performance", e.ID)
	}
	if sample.Valid {
		e.ResultSample = &types.ResultSample{}
		if err := fromJSON(sample, e.ResultSample); err != nil {
			return nil, errors.Wrapf(err, "execution %s: invalid result_sample", e.ID)
		}
	}
	if err := fromJSON(metadata, &e.Metadata); err != nil {
		return nil, errors.Wrapf(err, "execution %s: invalid metadata", e.ID)
	}

	// Denormalized columns are authoritative for filtered fields
	e.GraphConfig.GraphName = graphName
	e.Performance.ExecutionTimeSeconds = execTime
	if cost.Valid {
		c := cost.Float64
		e.Performance.CostUSD = &c
	} else {
		e.Performance.CostUSD = nil
	}
	e.Status = types.ExecutionStatus(status)
	e.ErrorMessage = stringPtr(errorMessage)
	e.RequirementsID = stringPtr(reqID)
	e.UseCaseID = stringPtr(ucID)
	e.EpochID = stringPtr(epochID)

	return &e, nil
}

// InsertExecution stores a new execution
func (s *Store) InsertExecution(ctx context.Context, e *types.Execution) (string, error) {
	args, err := executionArgs(e)
	if err != nil {
		return "", errors.WrapStorage(err, "execution "+e.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, insertExecutionQuery, append([]interface{}{e.ID}, args...)...); err != nil {
		return "", classify(err, "failed to insert execution %s", e.ID)
	}

	s.logger.Debugw("Inserted execution",
		logger.FieldExecutionID, e.ID,
		logger.FieldAlgorithm, e.Algorithm,
	)
	return e.ID, nil
}

// GetExecution retrieves an execution by id
func (s *Store) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	row := s.db.QueryRowContext(ctx, selectExecutionsQuery+" WHERE id = ?", id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("execution %s not found", id)
	}
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to get execution "+id)
	}
	return e, nil
}

// QueryExecutions returns executions matching filter, newest first
func (s *Store) QueryExecutions(ctx context.Context, filter *types.ExecutionFilter, limit, offset int) ([]*types.Execution, error) {
	qb := executionFilterClauses(filter)
	query := selectExecutionsQuery + qb.where() + " ORDER BY timestamp DESC, id ASC" + qb.page(limit, offset)

	rows, err := s.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to query executions")
	}
	defer rows.Close()

	execs := make([]*types.Execution, 0)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, errors.WrapStorage(err, "failed to scan execution")
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to iterate executions")
	}
	return execs, nil
}

// UpdateExecution replaces a stored execution
func (s *Store) UpdateExecution(ctx context.Context, e *types.Execution) error {
	args, err := executionArgs(e)
	if err != nil {
		return errors.WrapStorage(err, "execution "+e.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateExecutionLocked(ctx, s.db, e.ID, args)
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) updateExecutionLocked(ctx context.Context, ex execer, id string, args []interface{}) error {
	result, err := ex.ExecContext(ctx, updateExecutionQuery, append(args, id)...)
	if err != nil {
		return classify(err, "failed to update execution %s", id)
	}
	return checkAffected(result, "execution", id)
}

// DeleteExecution removes an execution
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE id = ?", id)
	if err != nil {
		return errors.WrapStorage(err, "failed to delete execution "+id)
	}
	return checkAffected(result, "execution", id)
}
