package reflist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinref/clinref/internal/platform/cache"
)

// cachedRepo serves GetByID from a read-through cache and drops the entry
// whenever the row changes. Cache failures are logged and fall through to
// the inner repository.
type cachedRepo struct {
	Repository
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedRepo(inner Repository, c cache.Cache, ttl time.Duration, logger zerolog.Logger) Repository {
	return &cachedRepo{Repository: inner, cache: c, ttl: ttl, logger: logger}
}

func cacheKey(id uuid.UUID) string {
	return Table + ":" + id.String()
}

func (r *cachedRepo) GetByID(ctx context.Context, id uuid.UUID) (*List, error) {
	var l List
	err := cache.GetJSON(ctx, r.cache, cacheKey(id), &l)
	if err == nil {
		return &l, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		r.logger.Warn().Err(err).Str("list_id", id.String()).Msg("list cache read failed")
	}

	found, err := r.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, r.cache, cacheKey(id), found, r.ttl); err != nil {
		r.logger.Warn().Err(err).Str("list_id", id.String()).Msg("list cache write failed")
	}
	return found, nil
}

func (r *cachedRepo) Update(ctx context.Context, id uuid.UUID, l *List) (*List, error) {
	updated, err := r.Repository.Update(ctx, id, l)
	r.invalidate(ctx, id)
	return updated, err
}

func (r *cachedRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	changed, err := r.Repository.SetStatus(ctx, id, status)
	if changed {
		r.invalidate(ctx, id)
	}
	return changed, err
}

func (r *cachedRepo) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.Repository.Delete(ctx, id)
	r.invalidate(ctx, id)
	return err
}

func (r *cachedRepo) invalidate(ctx context.Context, id uuid.UUID) {
	if err := r.cache.Delete(ctx, cacheKey(id)); err != nil {
		r.logger.Warn().Err(err).Str("list_id", id.String()).Msg("list cache invalidation failed")
	}
}
