package member

import (
	"context"

	"github.com/google/uuid"
)

type Repository[T Member] interface {
	InsertBatch(ctx context.Context, items []T) ([]T, error)
	GetByID(ctx context.Context, id uuid.UUID) (T, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, id uuid.UUID, item T) (T, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]T, int, error)
}
