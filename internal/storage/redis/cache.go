package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/basit-dev-64/notification-system-backend/pkg/keybuilder"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"time"
)

// Ensure NotificationCache implements the interface
var _ repo.NotificationCache = (*NotificationCache)(nil)

// cachedNotification is the JSON shape stored in Redis.
type cachedNotification struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	OwnerID    *string   `json:"owner_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NotificationCache stores notification content as JSON strings keyed by id.
type NotificationCache struct {
	redis  goredis.Cmdable
	logger zerolog.Logger
}

// NewNotificationCache creates a new instance of the NotificationCache.
func NewNotificationCache(logger *zerolog.Logger, redis *goredis.Client) *NotificationCache {
	return &NotificationCache{
		redis:  redis,
		logger: logger.With().Str("layer", "redis_cache").Logger(),
	}
}

// Get retrieves a notification from the cache. A miss is reported as repository.ErrNotFound.
func (c *NotificationCache) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	key := keybuilder.RedisNotificationKeyBuild(id)
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repo.ErrNotFound
		}
		c.logger.Error().Err(err).Str("key", key).Msg("failed to get key from redis")
		return nil, err
	}

	var cached cachedNotification
	if err := json.Unmarshal(val, &cached); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("failed to unmarshal notification from cache")
		return nil, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	return &model.Notification{
		ID:         cached.ID,
		Type:       model.NotificationType(cached.Type),
		Recipients: cached.Recipients,
		Subject:    cached.Subject,
		Message:    cached.Message,
		OwnerID:    cached.OwnerID,
		CreatedAt:  cached.CreatedAt,
		UpdatedAt:  cached.UpdatedAt,
	}, nil
}

// Set stores a notification for the given duration.
func (c *NotificationCache) Set(ctx context.Context, n *model.Notification, expiration time.Duration) error {
	key := keybuilder.RedisNotificationKeyBuild(n.ID)
	payload, err := json.Marshal(cachedNotification{
		ID:         n.ID,
		Type:       string(n.Type),
		Recipients: n.Recipients,
		Subject:    n.Subject,
		Message:    n.Message,
		OwnerID:    n.OwnerID,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := c.redis.Set(ctx, key, payload, expiration).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("failed to set key in redis")
		return err
	}
	return nil
}

// Delete evicts a notification.
func (c *NotificationCache) Delete(ctx context.Context, id uuid.UUID) error {
	key := keybuilder.RedisNotificationKeyBuild(id)
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("failed to delete key from redis")
		return err
	}
	return nil
}
