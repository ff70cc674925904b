package redis

import (
	"context"
	"errors"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"time"
)

// Ensure CachedNotificationRepository implements the interface
var _ repo.NotificationRepository = (*CachedNotificationRepository)(nil)

const defaultCacheTTL = 24 * time.Hour

// CachedNotificationRepository serves notification content lookups from Redis
// in front of the document store. Every attempt of a job re-reads its
// notification, so most worker reads end here.
type CachedNotificationRepository struct {
	store  repo.NotificationRepository
	cache  repo.NotificationCache
	ttl    time.Duration
	misses singleflight.Group
	logger zerolog.Logger
}

// NewCachedNotificationRepository wraps store with cache. A non-positive ttl means one day.
func NewCachedNotificationRepository(
	store repo.NotificationRepository,
	cache repo.NotificationCache,
	ttl time.Duration,
	logger *zerolog.Logger,
) *CachedNotificationRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedNotificationRepository{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("layer", "cached_repository").Logger(),
	}
}

func (r *CachedNotificationRepository) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	saved, err := r.store.Save(ctx, n)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, saved)
	return saved, nil
}

// GetByID reads through the cache. Concurrent misses for one id share a single
// document store read, and a broken cache only costs latency.
func (r *CachedNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	hit, err := r.cache.Get(ctx, id)
	switch {
	case err == nil:
		return hit, nil
	case !errors.Is(err, repo.ErrNotFound):
		r.logger.Warn().Err(err).Stringer("id", id).Msg("cache read failed, reading document store")
	}

	v, err, shared := r.misses.Do(id.String(), func() (interface{}, error) {
		return r.readThrough(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	n := v.(*model.Notification)
	if shared {
		// Callers may mutate what they get back.
		c := *n
		c.Recipients = append([]string(nil), n.Recipients...)
		return &c, nil
	}
	return n, nil
}

// readThrough fills the cache from the document store, then reads the store again.
// An Update or Delete that lands between the first read and the fill has already
// evicted, so the fill is dropped unless the store still holds the same version.
func (r *CachedNotificationRepository) readThrough(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, n)

	current, err := r.store.GetByID(ctx, id)
	if err != nil {
		r.evict(ctx, id)
		return nil, err
	}
	if !current.UpdatedAt.Equal(n.UpdatedAt) {
		r.logger.Debug().Stringer("id", id).Msg("notification changed during cache fill, evicting")
		r.evict(ctx, id)
	}
	return current, nil
}

func (r *CachedNotificationRepository) List(ctx context.Context, filter repo.NotificationFilter) ([]*model.Notification, error) {
	return r.store.List(ctx, filter)
}

// Update writes to the document store first, then evicts the cached copy.
func (r *CachedNotificationRepository) Update(ctx context.Context, n *model.Notification) error {
	if err := r.store.Update(ctx, n); err != nil {
		return err
	}
	r.evict(ctx, n.ID)
	return nil
}

func (r *CachedNotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.evict(ctx, id)
	return nil
}

func (r *CachedNotificationRepository) fill(ctx context.Context, n *model.Notification) {
	if err := r.cache.Set(ctx, n, r.ttl); err != nil {
		r.logger.Warn().Err(err).Stringer("id", n.ID).Msg("cache fill failed")
	}
}

func (r *CachedNotificationRepository) evict(ctx context.Context, id uuid.UUID) {
	if err := r.cache.Delete(ctx, id); err != nil {
		// The entry expires after ttl at the latest.
		r.logger.Error().Err(err).Stringer("id", id).Msg("cache eviction failed, stale content may be served")
	}
}
