package authority

import (
	"context"

	"github.com/google/uuid"
)

type AuthorityRepository interface {
	InsertBatch(ctx context.Context, items []*HealthAuthority) ([]*HealthAuthority, error)
	GetByID(ctx context.Context, id uuid.UUID) (*HealthAuthority, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, id uuid.UUID, a *HealthAuthority) (*HealthAuthority, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
	List(ctx context.Context, status string, limit, offset int) ([]*HealthAuthority, int, error)
}

type ConfigRepository interface {
	Create(ctx context.Context, c *Config) error
	GetByID(ctx context.Context, id uuid.UUID) (*Config, error)
	TripleExists(ctx context.Context, drugListID, diagnosisListID, clinicianListID uuid.UUID) (bool, error)
	ListByAuthority(ctx context.Context, authorityID uuid.UUID) ([]*Config, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
