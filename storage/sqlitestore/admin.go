package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

var collectionTables = []string{
	storage.CollectionExecutions,
	storage.CollectionEpochs,
	storage.CollectionRequirements,
	storage.CollectionUseCases,
	storage.CollectionTemplates,
}

// Reset deletes every row of every collection
func (s *Store) Reset(ctx context.Context, confirm bool) error {
	if !confirm {
		return errors.NewValidationError("reset requires confirm=true")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStorage(err, "failed to begin reset")
	}
	defer tx.Rollback()

	for _, table := range collectionTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.WrapStorage(err, "failed to clear "+table)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapStorage(err, "failed to commit reset")
	}

	s.logger.Warnw("Catalog reset", logger.FieldBackend, BackendName)
	return nil
}

// GetStatistics counts every collection and groups executions by algorithm and status
func (s *Store) GetStatistics(ctx context.Context) (*types.CatalogStatistics, error) {
	stats := &types.CatalogStatistics{
		ExecutionsByAlgorithm: map[string]int{},
		ExecutionsByStatus:    map[string]int{},
	}

	counts := map[string]*int{
		storage.CollectionExecutions:   &stats.TotalExecutions,
		storage.CollectionEpochs:       &stats.TotalEpochs,
		storage.CollectionRequirements: &stats.TotalRequirements,
		storage.CollectionUseCases:     &stats.TotalUseCases,
		storage.CollectionTemplates:    &stats.TotalTemplates,
	}
	for _, table := range collectionTables {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(counts[table]); err != nil {
			return nil, errors.WrapStorage(err, "failed to count "+table)
		}
	}

	if err := s.groupCount(ctx, "algorithm", stats.ExecutionsByAlgorithm); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, "status", stats.ExecutionsByStatus); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) groupCount(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM executions GROUP BY "+column)
	if err != nil {
		return errors.WrapStorage(err, "failed to group executions by "+column)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return errors.WrapStorage(err, "failed to scan execution group")
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return errors.WrapStorage(err, "failed to iterate execution groups")
	}
	return nil
}

// ExportCatalog writes every record to path as a JSON snapshot
func (s *Store) ExportCatalog(ctx context.Context, path string) error {
	snap, err := storage.CollectSnapshot(ctx, s, s)
	if err != nil {
		return err
	}
	if err := storage.WriteSnapshot(path, snap); err != nil {
		return err
	}

	s.logger.Infow("Exported catalog",
		logger.FieldPath, path,
		logger.FieldCount, len(snap.Executions),
	)
	return nil
}

// ImportCatalog upserts every record of the snapshot at path in one transaction
func (s *Store) ImportCatalog(ctx context.Context, path string) (*types.ImportSummary, error) {
	snap, err := storage.ReadSnapshot(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to begin import")
	}
	defer tx.Rollback()

	summary := &types.ImportSummary{}

	for _, e := range snap.Epochs {
		args, err := epochArgs(e)
		if err != nil {
			return nil, errors.WrapStorage(err, "epoch "+e.ID)
		}
		if err := upsert(ctx, tx, updateEpochQuery, insertEpochQuery, "epoch", e.ID, args); err != nil {
			return nil, err
		}
		summary.Epochs++
	}
	for _, r := range snap.Requirements {
		args, err := requirementsArgs(r)
		if err != nil {
			return nil, errors.WrapStorage(err, "requirements "+r.ID)
		}
		if err := upsert(ctx, tx, updateRequirementsQuery, insertRequirementsQuery, "requirements", r.ID, args); err != nil {
			return nil, err
		}
		summary.Requirements++
	}
	for _, u := range snap.UseCases {
		args, err := useCaseArgs(u)
		if err != nil {
			return nil, errors.WrapStorage(err, "use case "+u.ID)
		}
		if err := upsert(ctx, tx, updateUseCaseQuery, insertUseCaseQuery, "use case", u.ID, args); err != nil {
			return nil, err
		}
		summary.UseCases++
	}
	for _, t := range snap.Templates {
		args, err := templateArgs(t)
		if err != nil {
			return nil, errors.WrapStorage(err, "template "+t.ID)
		}
		if err := upsert(ctx, tx, updateTemplateQuery, insertTemplateQuery, "template", t.ID, args); err != nil {
			return nil, err
		}
		summary.Templates++
	}
	for _, e := range snap.Executions {
		args, err := executionArgs(e)
		if err != nil {
			return nil, errors.WrapStorage(err, "execution "+e.ID)
		}
		if err := upsert(ctx, tx, updateExecutionQuery, insertExecutionQuery, "execution", e.ID, args); err != nil {
			return nil, err
		}
		summary.Executions++
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.WrapStorage(err, "failed to commit import")
	}

	s.logger.Infow("Imported catalog",
		logger.FieldPath, path,
		logger.FieldTotalCount, summary.Total(),
	)
	return summary, nil
}

// upsert updates the row with id, inserting it when no row matched.
// Update and insert queries take args in the same column order; update appends id, insert prepends it.
func upsert(ctx context.Context, tx *sql.Tx, updateQuery, insertQuery, kind, id string, args []interface{}) error {
	result, err := tx.ExecContext(ctx, updateQuery, append(append([]interface{}{}, args...), id)...)
	if err != nil {
		return classify(err, "failed to import %s %s", kind, id)
	}
	if n, err := result.RowsAffected(); err != nil {
		return errors.WrapStorage(err, "failed to read affected rows")
	} else if n > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, insertQuery, append([]interface{}{id}, args...)...); err != nil {
		return classify(err, "failed to import %s %s", kind, id)
	}
	return nil
}

// Vacuum reclaims free pages after large deletes
func (s *Store) Vacuum(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return errors.WrapStorage(err, "failed to vacuum database")
	}
	return nil
}

var (
	_ storage.Backend       = (*Store)(nil)
	_ storage.LineageLister = (*Store)(nil)
	_ storage.Locator       = (*Store)(nil)
)
