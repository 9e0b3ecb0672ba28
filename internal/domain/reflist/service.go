package reflist

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/db"
)

type Service struct {
	repo       Repository
	writers    map[Kind]*ingest.Writer[*List]
	lifecycles map[Kind]*lifecycle.Manager
}

func NewService(repo Repository, lookup ingest.Lookup, tx ingest.TxRunner, opts ...ingest.Option) *Service {
	s := &Service{
		repo:       repo,
		writers:    make(map[Kind]*ingest.Writer[*List]),
		lifecycles: make(map[Kind]*lifecycle.Manager),
	}
	for _, k := range Kinds() {
		store := &kindStore{repo: repo, kind: k}
		s.writers[k] = ingest.NewWriter[*List](ingest.Spec[*List]{
			Entity:    k.Entity(),
			Table:     Table,
			Normalize: func(l *List) { l.Normalize() },
			Validate:  func(l *List) error { return l.Validate() },
			Keys:      func(l *List) []ingest.Key { return l.Keys() },
			Refs:      func(l *List) []ingest.Ref { return l.Refs() },
		}, store, lookup, tx, opts...)
		s.lifecycles[k] = lifecycle.NewManager(k.Entity(), lifecycle.Upper, store)
	}
	return s
}

func (s *Service) writer(kind Kind) (*ingest.Writer[*List], error) {
	w, ok := s.writers[kind]
	if !ok {
		return nil, apperr.Validation("unknown list kind %q", kind)
	}
	return w, nil
}

// Create bulk-inserts Lists of one kind. The kind comes from the route and
// overrides whatever the payload carries.
func (s *Service) Create(ctx context.Context, kind Kind, items []*List) ([]*List, error) {
	w, err := s.writer(kind)
	if err != nil {
		return nil, err
	}
	for i, l := range items {
		if l == nil {
			return nil, apperr.Validation("invalid %s at index %d: entry is null", kind.Entity(), i)
		}
		l.Kind = kind
	}
	return w.Create(ctx, items)
}

func (s *Service) Get(ctx context.Context, kind Kind, id uuid.UUID) (*List, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, db.MapError(err, kind.Entity())
	}
	if l.Kind != kind {
		return nil, apperr.NotFound("%s %s not found", kind.Entity(), id)
	}
	return l, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*List, int, error) {
	if !f.Kind.Valid() {
		return nil, 0, apperr.Validation("unknown list kind %q", f.Kind)
	}
	if f.Status != "" && f.Status != lifecycle.Upper.Active && f.Status != lifecycle.Upper.Inactive {
		return nil, 0, apperr.Validation("status must be ACTIVE or INACTIVE")
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, f.Kind.Entity())
	}
	return items, total, nil
}

func (s *Service) Update(ctx context.Context, kind Kind, id uuid.UUID, l *List) (*List, error) {
	w, err := s.writer(kind)
	if err != nil {
		return nil, err
	}
	l.Kind = kind
	return w.Update(ctx, id, l)
}

// SetStatus applies a lifecycle transition and returns the updated row.
func (s *Service) SetStatus(ctx context.Context, kind Kind, id uuid.UUID, t lifecycle.Transition) (*List, error) {
	m, ok := s.lifecycles[kind]
	if !ok {
		return nil, apperr.Validation("unknown list kind %q", kind)
	}
	if err := m.Apply(ctx, id, t); err != nil {
		return nil, err
	}
	return s.Get(ctx, kind, id)
}

// Delete removes a List that nothing references.
func (s *Service) Delete(ctx context.Context, kind Kind, id uuid.UUID) error {
	exists, err := s.repo.Exists(ctx, kind, id)
	if err != nil {
		return db.MapError(err, kind.Entity())
	}
	if !exists {
		return apperr.NotFound("%s %s not found", kind.Entity(), id)
	}
	has, err := s.repo.HasDependents(ctx, id)
	if err != nil {
		return db.MapError(err, kind.Entity())
	}
	if has {
		return apperr.Conflict("%s %s is still referenced by members, child lists or configurations", kind.Entity(), id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.Conflict("%s %s is still referenced", kind.Entity(), id)
		}
		return db.MapError(err, kind.Entity())
	}
	return nil
}

// kindStore narrows the repository to one kind so that ids of another
// kind behave as missing.
type kindStore struct {
	repo Repository
	kind Kind
}

func (s *kindStore) InsertBatch(ctx context.Context, items []*List) ([]*List, error) {
	return s.repo.InsertBatch(ctx, items)
}

func (s *kindStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, s.kind, id)
}

func (s *kindStore) Update(ctx context.Context, id uuid.UUID, l *List) (*List, error) {
	return s.repo.Update(ctx, id, l)
}

func (s *kindStore) SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	ok, err := s.repo.Exists(ctx, s.kind, id)
	if err != nil || !ok {
		return false, err
	}
	changed, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return false, fmt.Errorf("set %s status: %w", s.kind.Entity(), err)
	}
	return changed, nil
}
