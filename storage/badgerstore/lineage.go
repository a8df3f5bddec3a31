package badgerstore

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/storage"
	"github.com/teranos/catalog/types"
)

const (
	reqCollection      = storage.CollectionRequirements
	useCaseCollection  = storage.CollectionUseCases
	templateCollection = storage.CollectionTemplates
)

// record is a lineage entity as the generic helpers see it
type record struct {
	collection string
	id         string
	value      interface{}
	// index is the parent-link index key, nil for requirements
	index func(id string, value interface{}) []byte
}

func useCaseIndex(id string, v interface{}) []byte {
	return indexKey(useCaseCollection, fieldRequirements, v.(*types.GeneratedUseCase).RequirementsID, id)
}

func templateIndex(id string, v interface{}) []byte {
	return indexKey(templateCollection, fieldUseCase, v.(*types.AnalysisTemplate).UseCaseID, id)
}

func requirementsRecord(r *types.ExtractedRequirements) record {
	c := *r
	c.Timestamp = r.Timestamp.UTC()
	return record{collection: reqCollection, id: c.ID, value: &c}
}

func useCaseRecord(u *types.GeneratedUseCase) record {
	c := *u
	c.Timestamp = u.Timestamp.UTC()
	return record{collection: useCaseCollection, id: c.ID, value: &c, index: useCaseIndex}
}

func templateRecord(t *types.AnalysisTemplate) record {
	c := *t
	c.Timestamp = t.Timestamp.UTC()
	return record{collection: templateCollection, id: c.ID, value: &c, index: templateIndex}
}

// putRecord writes rec, replacing the index key of any previous version
func putRecord(txn *badger.Txn, rec record, old interface{}) error {
	if rec.index != nil && old != nil {
		if err := txn.Delete(rec.index(rec.id, old)); err != nil {
			return err
		}
	}
	if err := setJSON(txn, recordKey(rec.collection, rec.id), rec.value); err != nil {
		return err
	}
	if rec.index != nil {
		return txn.Set(rec.index(rec.id, rec.value), nil)
	}
	return nil
}

func (s *Store) insertRecord(kind string, rec record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		taken, err := exists(txn, recordKey(rec.collection, rec.id))
		if err != nil {
			return err
		}
		if taken {
			return errors.NewDuplicateError("%s %s already exists", kind, rec.id)
		}
		return putRecord(txn, rec, nil)
	})
	if err != nil {
		return "", errors.WrapStorage(err, "failed to insert "+kind+" "+rec.id)
	}
	return rec.id, nil
}

func (s *Store) getRecord(kind, collection, id string, dest interface{}) error {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, recordKey(collection, id), dest)
		return err
	})
	if err != nil {
		return errors.WrapStorage(err, "failed to get "+kind+" "+id)
	}
	if !found {
		return errors.NewNotFoundError("%s %s not found", kind, id)
	}
	return nil
}

// InsertRequirements stores a new requirements document
func (s *Store) InsertRequirements(ctx context.Context, r *types.ExtractedRequirements) (string, error) {
	return s.insertRecord("requirements", requirementsRecord(r))
}

// InsertUseCase stores a new use case and indexes it under its requirements
func (s *Store) InsertUseCase(ctx context.Context, u *types.GeneratedUseCase) (string, error) {
	return s.insertRecord("use case", useCaseRecord(u))
}

// InsertTemplate stores a new template and indexes it under its use case
func (s *Store) InsertTemplate(ctx context.Context, t *types.AnalysisTemplate) (string, error) {
	return s.insertRecord("template", templateRecord(t))
}

func (s *Store) GetRequirements(ctx context.Context, id string) (*types.ExtractedRequirements, error) {
	var r types.ExtractedRequirements
	if err := s.getRecord("requirements", reqCollection, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetUseCase(ctx context.Context, id string) (*types.GeneratedUseCase, error) {
	var u types.GeneratedUseCase
	if err := s.getRecord("use case", useCaseCollection, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*types.AnalysisTemplate, error) {
	var t types.AnalysisTemplate
	if err := s.getRecord("template", templateCollection, id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// QueryUseCasesByRequirements returns the use cases generated from a requirements document
func (s *Store) QueryUseCasesByRequirements(ctx context.Context, requirementsID string) ([]*types.GeneratedUseCase, error) {
	useCases := make([]*types.GeneratedUseCase, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range indexIDs(txn, indexPrefix(useCaseCollection, fieldRequirements, requirementsID)) {
			var u types.GeneratedUseCase
			found, err := getJSON(txn, recordKey(useCaseCollection, id), &u)
			if err != nil {
				return err
			}
			if found {
				useCases = append(useCases, &u)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to query use cases of "+requirementsID)
	}
	storage.SortUseCases(useCases)
	return useCases, nil
}

// QueryTemplatesByUseCase returns the templates generated from a use case
func (s *Store) QueryTemplatesByUseCase(ctx context.Context, useCaseID string) ([]*types.AnalysisTemplate, error) {
	templates := make([]*types.AnalysisTemplate, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range indexIDs(txn, indexPrefix(templateCollection, fieldUseCase, useCaseID)) {
			var t types.AnalysisTemplate
			found, err := getJSON(txn, recordKey(templateCollection, id), &t)
			if err != nil {
				return err
			}
			if found {
				templates = append(templates, &t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to query templates of "+useCaseID)
	}
	storage.SortTemplates(templates)
	return templates, nil
}

// ListRequirements returns every requirements document newest first
func (s *Store) ListRequirements(ctx context.Context) ([]*types.ExtractedRequirements, error) {
	out := make([]*types.ExtractedRequirements, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(ctx, txn, reqCollection,
			func() interface{} { return &types.ExtractedRequirements{} },
			func(rec interface{}) { out = append(out, rec.(*types.ExtractedRequirements)) })
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to list requirements")
	}
	storage.SortRequirements(out)
	return out, nil
}

// ListUseCases returns every use case newest first
func (s *Store) ListUseCases(ctx context.Context) ([]*types.GeneratedUseCase, error) {
	out := make([]*types.GeneratedUseCase, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(ctx, txn, useCaseCollection,
			func() interface{} { return &types.GeneratedUseCase{} },
			func(rec interface{}) { out = append(out, rec.(*types.GeneratedUseCase)) })
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to list use cases")
	}
	storage.SortUseCases(out)
	return out, nil
}

// ListTemplates returns every template newest first
func (s *Store) ListTemplates(ctx context.Context) ([]*types.AnalysisTemplate, error) {
	out := make([]*types.AnalysisTemplate, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(ctx, txn, templateCollection,
			func() interface{} { return &types.AnalysisTemplate{} },
			func(rec interface{}) { out = append(out, rec.(*types.AnalysisTemplate)) })
	})
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to list templates")
	}
	storage.SortTemplates(out)
	return out, nil
}
