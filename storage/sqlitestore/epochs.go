package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

const epochColumns = `id, name, description, timestamp, created_at, status, tags,
	parent_epoch_id, execution_count, execution_ids, metadata`

const (
	insertEpochQuery = `INSERT INTO epochs (` + epochColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateEpochQuery = `UPDATE epochs SET
		name = ?, description = ?, timestamp = ?, created_at = ?, status = ?, tags = ?,
		parent_epoch_id = ?, execution_count = ?, execution_ids = ?, metadata = ?
		WHERE id = ?`

	selectEpochsQuery = `SELECT ` + epochColumns + ` FROM epochs`
)

func epochArgs(e *types.Epoch) ([]interface{}, error) {
	tags, err := toJSON(e.Tags)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal tags")
	}
	execIDs, err := toJSON(e.ExecutionIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal execution_ids")
	}
	metadata, err := toJSON(e.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal metadata")
	}
	return []interface{}{
		e.Name,
		e.Description,
		formatTime(e.Timestamp),
		formatTime(e.CreatedAt),
		string(e.Status),
		tags,
		nullString(e.ParentEpochID),
		e.ExecutionCount,
		execIDs,
		metadata,
	}, nil
}

func scanEpoch(row rowScanner) (*types.Epoch, error) {
	var (
		e         types.Epoch
		timestamp string
		createdAt string
		status    string
		tags      sql.NullString
		parentID  sql.NullString
		execIDs   sql.NullString
		metadata  sql.NullString
	)

	if err := row.Scan(
		&e.ID, &e.Name, &e.Description, &timestamp, &createdAt, &status, &tags,
		&parentID, &e.ExecutionCount, &execIDs, &metadata,
	); err != nil {
		return nil, err
	}

	var err error
	if e.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if err := fromJSON(tags, &e.Tags); err != nil {
		return nil, errors.Wrapf(err, "epoch %s: invalid tags", e.ID)
	}
	if err := fromJSON(execIDs, &e.ExecutionIDs); err != nil {
		return nil, errors.Wrapf(err, "epoch %s: invalid execution_ids", e.ID)
	}
	if err := fromJSON(metadata, &e.Metadata); err != nil {
		return nil, errors.Wrapf(err, "epoch %s: invalid metadata", e.ID)
	}
	e.Status = types.EpochStatus(status)
	e.ParentEpochID = stringPtr(parentID)
	return &e, nil
}

// InsertEpoch stores a new epoch. A taken name or id is a DuplicateError.
func (s *Store) InsertEpoch(ctx context.Context, e *types.Epoch) (string, error) {
	args, err := epochArgs(e)
	if err != nil {
		return "", errors.WrapStorage(err, "epoch "+e.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, insertEpochQuery, append([]interface{}{e.ID}, args...)...); err != nil {
		return "", classify(err, "failed to insert epoch %s (name %q)", e.ID, e.Name)
	}

	s.logger.Debugw("Inserted epoch",
		logger.FieldEpochID, e.ID,
		logger.FieldEpochName, e.Name,
	)
	return e.ID, nil
}

func (s *Store) getEpochWhere(ctx context.Context, clause, value, label string) (*types.Epoch, error) {
	row := s.db.QueryRowContext(ctx, selectEpochsQuery+" WHERE "+clause, value)
	e, err := scanEpoch(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("epoch %s %s not found", label, value)
	}
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to get epoch "+value)
	}
	return e, nil
}

// GetEpoch retrieves an epoch by id
func (s *Store) GetEpoch(ctx context.Context, id string) (*types.Epoch, error) {
	return s.getEpochWhere(ctx, "id = ?", id, "id")
}

// GetEpochByName retrieves an epoch by its unique name
func (s *Store) GetEpochByName(ctx context.Context, name string) (*types.Epoch, error) {
	return s.getEpochWhere(ctx, "name = ?", name, "name")
}

// QueryEpochs returns epochs matching filter, newest first
func (s *Store) QueryEpochs(ctx context.Context, filter *types.EpochFilter, limit, offset int) ([]*types.Epoch, error) {
	qb := epochFilterClauses(filter)
	byName := filter != nil && filter.NameContains != ""
	query := selectEpochsQuery + qb.where() + " ORDER BY timestamp DESC, id ASC"
	if !byName {
		query += qb.page(limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to query epochs")
	}
	defer rows.Close()

	epochs := make([]*types.Epoch, 0)
	for rows.Next() {
		e, err := scanEpoch(rows)
		if err != nil {
			return nil, errors.WrapStorage(err, "failed to scan epoch")
		}
		if byName && !filter.Matches(e) {
			continue
		}
		epochs = append(epochs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to iterate epochs")
	}
	if byName {
		return storage.Page(epochs, limit, offset), nil
	}
	return epochs, nil
}

// UpdateEpoch replaces a stored epoch
func (s *Store) UpdateEpoch(ctx context.Context, e *types.Epoch) error {
	args, err := epochArgs(e)
	if err != nil {
		return errors.WrapStorage(err, "epoch "+e.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateEpochLocked(ctx, s.db, e.ID, args)
}

func (s *Store) updateEpochLocked(ctx context.Context, ex execer, id string, args []interface{}) error {
	result, err := ex.ExecContext(ctx, updateEpochQuery, append(args, id)...)
	if err != nil {
		return classify(err, "failed to update epoch %s", id)
	}
	return checkAffected(result, "epoch", id)
}

// DeleteEpoch removes an epoch, and with cascade every execution referencing it.
// Executions go first in their own statement; the two deletes are not one transaction.
func (s *Store) DeleteEpoch(ctx context.Context, id string, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cascade {
		var exists bool
		if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM epochs WHERE id = ?)", id).Scan(&exists); err != nil {
			return errors.WrapStorage(err, "failed to look up epoch "+id)
		}
		if !exists {
			return errors.NewNotFoundError("epoch %s not found", id)
		}

		result, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE epoch_id = ?", id)
		if err != nil {
			return errors.WrapStorage(err, "failed to delete executions of epoch "+id)
		}
		n, _ := result.RowsAffected()
		s.logger.Debugw("Cascade deleted executions",
			logger.FieldEpochID, id,
			logger.FieldCount, n,
		)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM epochs WHERE id = ?", id)
	if err != nil {
		return errors.WrapStorage(err, "failed to delete epoch "+id)
	}
	return checkAffected(result, "epoch", id)
}
