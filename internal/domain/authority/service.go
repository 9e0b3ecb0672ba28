package authority

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/db"
)

const (
	authorityEntity = "health authority"
	configEntity    = "health authority config"
)

type Service struct {
	authorities AuthorityRepository
	configs     ConfigRepository
	lookup      ingest.Lookup
	tx          ingest.TxRunner
	writer      *ingest.Writer[*HealthAuthority]
	lifecycle   *lifecycle.Manager
}

func NewService(authorities AuthorityRepository, configs ConfigRepository, lookup ingest.Lookup, tx ingest.TxRunner, opts ...ingest.Option) *Service {
	return &Service{
		authorities: authorities,
		configs:     configs,
		lookup:      lookup,
		tx:          tx,
		writer: ingest.NewWriter[*HealthAuthority](ingest.Spec[*HealthAuthority]{
			Entity:    authorityEntity,
			Table:     Table,
			Normalize: func(a *HealthAuthority) { a.Normalize() },
			Validate:  func(a *HealthAuthority) error { return a.Validate() },
			Keys:      func(a *HealthAuthority) []ingest.Key { return a.Keys() },
		}, authorities, lookup, tx, opts...),
		lifecycle: lifecycle.NewManager(authorityEntity, lifecycle.Upper, authorities),
	}
}

func (s *Service) CreateAuthorities(ctx context.Context, items []*HealthAuthority) ([]*HealthAuthority, error) {
	return s.writer.Create(ctx, items)
}

func (s *Service) GetAuthority(ctx context.Context, id uuid.UUID) (*HealthAuthority, error) {
	a, err := s.authorities.GetByID(ctx, id)
	if err != nil {
		return nil, db.MapError(err, authorityEntity)
	}
	return a, nil
}

func (s *Service) ListAuthorities(ctx context.Context, status string, limit, offset int) ([]*HealthAuthority, int, error) {
	if status != "" && status != lifecycle.Upper.Active && status != lifecycle.Upper.Inactive {
		return nil, 0, apperr.Validation("status must be ACTIVE or INACTIVE")
	}
	items, total, err := s.authorities.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, authorityEntity)
	}
	return items, total, nil
}

func (s *Service) UpdateAuthority(ctx context.Context, id uuid.UUID, a *HealthAuthority) (*HealthAuthority, error) {
	return s.writer.Update(ctx, id, a)
}

// SetStatus applies a lifecycle transition and returns the updated row.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, t lifecycle.Transition) (*HealthAuthority, error) {
	if err := s.lifecycle.Apply(ctx, id, t); err != nil {
		return nil, err
	}
	return s.GetAuthority(ctx, id)
}

// CreateConfig binds an authority to a drug, diagnosis and clinician list.
// Every reference must exist with the matching kind and the list triple
// must not be configured already.
func (s *Service) CreateConfig(ctx context.Context, c *Config) (*Config, error) {
	if err := c.Validate(); err != nil {
		return nil, apperr.Validation("invalid %s: %s", configEntity, err.Error())
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := ingest.Resolve(ctx, s.lookup, configEntity, -1, c.Refs()); err != nil {
			return err
		}
		exists, err := s.configs.TripleExists(ctx, c.DrugListID, c.DiagnosisListID, c.ClinicianListID)
		if err != nil {
			return db.MapError(err, configEntity)
		}
		if exists {
			return apperr.Conflict("%s for drug list %s, diagnosis list %s and clinician list %s already exists",
				configEntity, c.DrugListID, c.DiagnosisListID, c.ClinicianListID)
		}
		return db.MapError(s.configs.Create(ctx, c), configEntity)
	})
	if err != nil {
		return nil, apperr.Wrap("failed to create "+configEntity, err)
	}
	return c, nil
}

func (s *Service) GetConfig(ctx context.Context, id uuid.UUID) (*Config, error) {
	c, err := s.configs.GetByID(ctx, id)
	if err != nil {
		return nil, db.MapError(err, configEntity)
	}
	return c, nil
}

func (s *Service) ListConfigs(ctx context.Context, authorityID uuid.UUID) ([]*Config, error) {
	exists, err := s.authorities.Exists(ctx, authorityID)
	if err != nil {
		return nil, db.MapError(err, authorityEntity)
	}
	if !exists {
		return nil, apperr.NotFound("%s %s not found", authorityEntity, authorityID)
	}
	items, err := s.configs.ListByAuthority(ctx, authorityID)
	if err != nil {
		return nil, db.MapError(err, configEntity)
	}
	return items, nil
}

func (s *Service) DeleteConfig(ctx context.Context, id uuid.UUID) error {
	return db.MapError(s.configs.Delete(ctx, id), configEntity)
}
