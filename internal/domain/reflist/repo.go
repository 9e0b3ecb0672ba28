package reflist

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	InsertBatch(ctx context.Context, items []*List) ([]*List, error)
	GetByID(ctx context.Context, id uuid.UUID) (*List, error)
	Exists(ctx context.Context, kind Kind, id uuid.UUID) (bool, error)
	Update(ctx context.Context, id uuid.UUID, l *List) (*List, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	HasDependents(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*List, int, error)
}
