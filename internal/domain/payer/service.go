package payer

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/db"
)

const entity = "payer"

type Service struct {
	repo      Repository
	writer    *ingest.Writer[*Payer]
	lifecycle *lifecycle.Manager
}

func NewService(repo Repository, lookup ingest.Lookup, tx ingest.TxRunner, opts ...ingest.Option) *Service {
	return &Service{
		repo: repo,
		writer: ingest.NewWriter[*Payer](ingest.Spec[*Payer]{
			Entity:    entity,
			Table:     Table,
			Normalize: func(p *Payer) { p.Normalize() },
			Validate:  func(p *Payer) error { return p.Validate() },
			Keys:      func(p *Payer) []ingest.Key { return p.Keys() },
		}, repo, lookup, tx, opts...),
		lifecycle: lifecycle.NewManager(entity, lifecycle.Upper, repo),
	}
}

func (s *Service) Create(ctx context.Context, items []*Payer) ([]*Payer, error) {
	return s.writer.Create(ctx, items)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payer, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, db.MapError(err, entity)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, status, name string, limit, offset int) ([]*Payer, int, error) {
	if status != "" && status != lifecycle.Upper.Active && status != lifecycle.Upper.Inactive {
		return nil, 0, apperr.Validation("status must be ACTIVE or INACTIVE")
	}
	items, total, err := s.repo.List(ctx, status, name, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, entity)
	}
	return items, total, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, p *Payer) (*Payer, error) {
	return s.writer.Update(ctx, id, p)
}

func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, t lifecycle.Transition) (*Payer, error) {
	if err := s.lifecycle.Apply(ctx, id, t); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a payer no prescription bills to.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Delete(ctx, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Conflict("%s %s is still referenced by prescriptions", entity, id)
	}
	return db.MapError(err, entity)
}
