package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/types"
)

const (
	requirementsColumns = `id, timestamp, domain, summary, objectives, requirements, constraints,
		source_documents, epoch_id, metadata`
	useCaseColumns = `id, requirements_id, timestamp, title, description, algorithm, business_value,
		priority, addresses_objectives, addresses_requirements, epoch_id, metadata`
	templateColumns = `id, use_case_id, requirements_id, timestamp, name, description, algorithm,
		parameters, graph_config, epoch_id, metadata`

	insertRequirementsQuery = `INSERT INTO requirements (` + requirementsColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertUseCaseQuery      = `INSERT INTO use_cases (` + useCaseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertTemplateQuery     = `INSERT INTO templates (` + templateColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateRequirementsQuery = `UPDATE requirements SET timestamp = ?, domain = ?, summary = ?, objectives = ?,
		requirements = ?, constraints = ?, source_documents = ?, epoch_id = ?, metadata = ? WHERE id = ?`
	updateUseCaseQuery = `UPDATE use_cases SET requirements_id = ?, timestamp = ?, title = ?, description = ?,
		algorithm = ?, business_value = ?, priority = ?, addresses_objectives = ?, addresses_requirements = ?,
		epoch_id = ?, metadata = ? WHERE id = ?`
	updateTemplateQuery = `UPDATE templates SET use_case_id = ?, requirements_id = ?, timestamp = ?, name = ?,
		description = ?, algorithm = ?, parameters = ?, graph_config = ?, epoch_id = ?, metadata = ? WHERE id = ?`
)

// jsonArgs marshals each value, stopping at the first failure
func jsonArgs(fields map[string]interface{}, order []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(order))
	for _, name := range order {
		v, err := toJSON(fields[name])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal %s", name)
		}
		out[name] = v
	}
	return out, nil
}

func requirementsArgs(r *types.ExtractedRequirements) ([]interface{}, error) {
	j, err := jsonArgs(map[string]interface{}{
		"objectives":       r.Objectives,
		"requirements":     r.Requirements,
		"constraints":      r.Constraints,
		"source_documents": r.SourceDocuments,
		"metadata":         r.Metadata,
	}, []string{"objectives", "requirements", "constraints", "source_documents", "metadata"})
	if err != nil {
		return nil, err
	}
	return []interface{}{
		formatTime(r.Timestamp), r.Domain, r.Summary, j["objectives"], j["requirements"],
		j["constraints"], j["source_documents"], nullString(r.EpochID), j["metadata"],
	}, nil
}

func scanRequirements(row rowScanner) (*types.ExtractedRequirements, error) {
	var (
		r                                          types.ExtractedRequirements
		timestamp                                  string
		objectives, reqs, constraints, docs, epoch sql.NullString
		metadata                                   sql.NullString
	)
	if err := row.Scan(&r.ID, &timestamp, &r.Domain, &r.Summary, &objectives, &reqs,
		&constraints, &docs, &epoch, &metadata); err != nil {
		return nil, err
	}

	var err error
	if r.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		col  sql.NullString
		dest interface{}
	}{
		{objectives, &r.Objectives},
		{reqs, &r.Requirements},
		{constraints, &r.Constraints},
		{docs, &r.SourceDocuments},
		{metadata, &r.Metadata},
	} {
		if err := fromJSON(f.col, f.dest); err != nil {
			return nil, errors.Wrapf(err, "requirements %s: invalid JSON column", r.ID)
		}
	}
	r.EpochID = stringPtr(epoch)
	return &r, nil
}

func useCaseArgs(u *types.GeneratedUseCase) ([]interface{}, error) {
	j, err := jsonArgs(map[string]interface{}{
		"addresses_objectives":   u.AddressesObjectives,
		"addresses_requirements": u.AddressesRequirements,
		"metadata":               u.Metadata,
	}, []string{"addresses_objectives", "addresses_requirements", "metadata"})
	if err != nil {
		return nil, err
	}
	return []interface{}{
		u.RequirementsID, formatTime(u.Timestamp), u.Title, u.Description, u.Algorithm,
		u.BusinessValue, u.Priority, j["addresses_objectives"], j["addresses_requirements"],
		nullString(u.EpochID), j["metadata"],
	}, nil
}

func scanUseCase(row rowScanner) (*types.GeneratedUseCase, error) {
	var (
		u                        types.GeneratedUseCase
		timestamp                string
		objectives, requirements sql.NullString
		epoch, metadata          sql.NullString
	)
	if err := row.Scan(&u.ID, &u.RequirementsID, &timestamp, &u.Title, &u.Description, &u.Algorithm,
		&u.BusinessValue, &u.Priority, &objectives, &requirements, &epoch, &metadata); err != nil {
		return nil, err
	}

	var err error
	if u.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	if err := fromJSON(objectives, &u.AddressesObjectives); err != nil {
		return nil, errors.Wrapf(err, "use case %s: invalid addresses_objectives", u.ID)
	}
	if err := fromJSON(requirements, &u.AddressesRequirements); err != nil {
		return nil, errors.Wrapf(err, "use case %s: invalid addresses_requirements", u.ID)
	}
	if err := fromJSON(metadata, &u.Metadata); err != nil {
		return nil, errors.Wrapf(err, "use case %s: invalid metadata", u.ID)
	}
	u.EpochID = stringPtr(epoch)
	return &u, nil
}

func templateArgs(t *types.AnalysisTemplate) ([]interface{}, error) {
	j, err := jsonArgs(map[string]interface{}{
		"parameters":   t.Parameters,
		"graph_config": t.GraphConfig,
		"metadata":     t.Metadata,
	}, []string{"parameters", "graph_config", "metadata"})
	if err != nil {
		return nil, err
	}
	return []interface{}{
		t.UseCaseID, t.RequirementsID, formatTime(t.Timestamp), t.Name, t.Description, t.Algorithm,
		j["parameters"], j["graph_config"], nullString(t.EpochID), j["metadata"],
	}, nil
}

func scanTemplate(row rowScanner) (*types.AnalysisTemplate, error) {
	var (
		t                   types.AnalysisTemplate
		timestamp           string
		params, graphConfig sql.NullString
		epoch, metadata     sql.NullString
	)
	if err := row.Scan(&t.ID, &t.UseCaseID, &t.RequirementsID, &timestamp, &t.Name, &t.Description,
		&t.Algorithm, &params, &graphConfig, &epoch, &metadata); err != nil {
		return nil, err
	}

	var err error
	if t.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	if err := fromJSON(params, &t.Parameters); err != nil {
		return nil, errors.Wrapf(err, "template %s: invalid parameters", t.ID)
	}
	if err := fromJSON(graphConfig, &t.GraphConfig); err != nil {
		return nil, errors.Wrapf(err, "template %s: invalid graph_config", t.ID)
	}
	if err := fromJSON(metadata, &t.Metadata); err != nil {
		return nil, errors.Wrapf(err, "template %s: invalid metadata", t.ID)
	}
	t.EpochID = stringPtr(epoch)
	return &t, nil
}

func (s *Store) insert(ctx context.Context, query, kind, id string, args []interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...); err != nil {
		return "", classify(err, "failed to insert %s %s", kind, id)
	}
	return id, nil
}

// InsertRequirements stores a requirements snapshot
func (s *Store) InsertRequirements(ctx context.Context, r *types.ExtractedRequirements) (string, error) {
	args, err := requirementsArgs(r)
	if err != nil {
		return "", errors.WrapStorage(err, "requirements "+r.ID)
	}
	return s.insert(ctx, insertRequirementsQuery, "requirements", r.ID, args)
}

// InsertUseCase stores a generated use case
func (s *Store) InsertUseCase(ctx context.Context, u *types.GeneratedUseCase) (string, error) {
	args, err := useCaseArgs(u)
	if err != nil {
		return "", errors.WrapStorage(err, "use case "+u.ID)
	}
	return s.insert(ctx, insertUseCaseQuery, "use case", u.ID, args)
}

// InsertTemplate stores an analysis template
func (s *Store) InsertTemplate(ctx context.Context, t *types.AnalysisTemplate) (string, error) {
	args, err := templateArgs(t)
	if err != nil {
		return "", errors.WrapStorage(err, "template "+t.ID)
	}
	return s.insert(ctx, insertTemplateQuery, "template", t.ID, args)
}

// GetRequirements retrieves a requirements snapshot by id
func (s *Store) GetRequirements(ctx context.Context, id string) (*types.ExtractedRequirements, error) {
	r, err := scanRequirements(s.db.QueryRowContext(ctx, "SELECT "+requirementsColumns+" FROM requirements WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("requirements %s not found", id)
	}
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to get requirements "+id)
	}
	return r, nil
}

// GetUseCase retrieves a use case by id
func (s *Store) GetUseCase(ctx context.Context, id string) (*types.GeneratedUseCase, error) {
	u, err := scanUseCase(s.db.QueryRowContext(ctx, "SELECT "+useCaseColumns+" FROM use_cases WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("use case %s not found", id)
	}
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to get use case "+id)
	}
	return u, nil
}

// GetTemplate retrieves a template by id
func (s *Store) GetTemplate(ctx context.Context, id string) (*types.AnalysisTemplate, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM templates WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("template %s not found", id)
	}
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to get template "+id)
	}
	return t, nil
}

// QueryUseCasesByRequirements lists use cases derived from one requirements snapshot
func (s *Store) QueryUseCasesByRequirements(ctx context.Context, requirementsID string) ([]*types.GeneratedUseCase, error) {
	return s.listUseCases(ctx, " WHERE requirements_id = ?", requirementsID)
}

// QueryTemplatesByUseCase lists templates derived from one use case
func (s *Store) QueryTemplatesByUseCase(ctx context.Context, useCaseID string) ([]*types.AnalysisTemplate, error) {
	return s.listTemplates(ctx, " WHERE use_case_id = ?", useCaseID)
}

// ListRequirements returns every requirements snapshot, newest first
func (s *Store) ListRequirements(ctx context.Context) ([]*types.ExtractedRequirements, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+requirementsColumns+" FROM requirements ORDER BY timestamp DESC, id ASC")
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to list requirements")
	}
	defer rows.Close()

	out := make([]*types.ExtractedRequirements, 0)
	for rows.Next() {
		r, err := scanRequirements(rows)
		if err != nil {
			return nil, errors.WrapStorage(err, "failed to scan requirements")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to iterate requirements")
	}
	return out, nil
}

// ListUseCases returns every use case, newest first
func (s *Store) ListUseCases(ctx context.Context) ([]*types.GeneratedUseCase, error) {
	return s.listUseCases(ctx, "")
}

// ListTemplates returns every template, newest first
func (s *Store) ListTemplates(ctx context.Context) ([]*types.AnalysisTemplate, error) {
	return s.listTemplates(ctx, "")
}

func (s *Store) listUseCases(ctx context.Context, where string, args ...interface{}) ([]*types.GeneratedUseCase, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+useCaseColumns+" FROM use_cases"+where+" ORDER BY timestamp DESC, id ASC", args...)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to query use cases")
	}
	defer rows.Close()

	out := make([]*types.GeneratedUseCase, 0)
	for rows.Next() {
		u, err := scanUseCase(rows)
		if err != nil {
			return nil, errors.WrapStorage(err, "failed to scan use case")
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to iterate use cases")
	}
	return out, nil
}

func (s *Store) listTemplates(ctx context.Context, where string, args ...interface{}) ([]*types.AnalysisTemplate, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+templateColumns+" FROM templates"+where+" ORDER BY timestamp DESC, id ASC", args...)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to query templates")
	}
	defer rows.Close()

	out := make([]*types.AnalysisTemplate, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, errors.WrapStorage(err, "failed to scan template")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to iterate templates")
	}
	return out, nil
}
