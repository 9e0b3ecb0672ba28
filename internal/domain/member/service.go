package member

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/db"
)

// Service runs ingestion, updates, lifecycle and deletes for one member
// entity.
type Service[T Member] struct {
	entity    string
	repo      Repository[T]
	writer    *ingest.Writer[T]
	lifecycle *lifecycle.Manager
}

func NewService[T Member](entity, table string, repo Repository[T], lookup ingest.Lookup, tx ingest.TxRunner, opts ...ingest.Option) *Service[T] {
	spec := ingest.Spec[T]{
		Entity:    entity,
		Table:     table,
		Normalize: func(item T) { item.Normalize() },
		Validate:  func(item T) error { return item.Validate() },
		Keys:      func(item T) []ingest.Key { return item.Keys() },
		Refs:      func(item T) []ingest.Ref { return item.Refs() },
	}
	return &Service[T]{
		entity:    entity,
		repo:      repo,
		writer:    ingest.NewWriter[T](spec, repo, lookup, tx, opts...),
		lifecycle: lifecycle.NewManager(entity, lifecycle.Lower, repo),
	}
}

func NewDiagnosisService(repo Repository[*Diagnosis], lookup ingest.Lookup, tx ingest.TxRunner, opts ...ingest.Option) *Service[*Diagnosis] {
	return NewService[*Diagnosis]("diagnosis", DiagnosisTable, repo, lookup, tx, opts...)
}

func NewDrugService(repo Repository[*Drug], lookup ingest.Lookup, tx ingest.TxRunner, opts ...ingest.Option) *Service[*Drug] {
	return NewService[*Drug]("drug", DrugTable, repo, lookup, tx, opts...)
}

func NewClinicianService(repo Repository[*Clinician], lookup ingest.Lookup, tx ingest.TxRunner, opts ...ingest.Option) *Service[*Clinician] {
	return NewService[*Clinician]("clinician", ClinicianTable, repo, lookup, tx, opts...)
}

func (s *Service[T]) Create(ctx context.Context, items []T) ([]T, error) {
	return s.writer.Create(ctx, items)
}

func (s *Service[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		var zero T
		return zero, db.MapError(err, s.entity)
	}
	return item, nil
}

func (s *Service[T]) List(ctx context.Context, f Filter, limit, offset int) ([]T, int, error) {
	if f.Status != "" && f.Status != lifecycle.Lower.Active && f.Status != lifecycle.Lower.Inactive {
		return nil, 0, apperr.Validation("status must be active or inactive")
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, s.entity)
	}
	return items, total, nil
}

func (s *Service[T]) Update(ctx context.Context, id uuid.UUID, item T) (T, error) {
	return s.writer.Update(ctx, id, item)
}

// SetStatus applies a lifecycle transition and returns the updated row.
func (s *Service[T]) SetStatus(ctx context.Context, id uuid.UUID, t lifecycle.Transition) (T, error) {
	if err := s.lifecycle.Apply(ctx, id, t); err != nil {
		var zero T
		return zero, err
	}
	return s.Get(ctx, id)
}

// Delete removes a row no prescription references.
func (s *Service[T]) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Delete(ctx, id)
	if err == nil {
		return nil
	}
	if db.IsForeignKeyViolation(err) {
		return apperr.Conflict("%s %s is still referenced by prescriptions", s.entity, id)
	}
	return db.MapError(err, s.entity)
}
