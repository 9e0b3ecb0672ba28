package payer

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	InsertBatch(ctx context.Context, items []*Payer) ([]*Payer, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Payer, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, id uuid.UUID, p *Payer) (*Payer, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, status, name string, limit, offset int) ([]*Payer, int, error)
}
