package repository

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/google/uuid"
	"time"
)

// NotificationFilter narrows List. A nil OwnerID lists every notification.
type NotificationFilter struct {
	OwnerID *string
}

// NotificationRepository persists notification content records.
type NotificationRepository interface {
	Save(ctx context.Context, n *model.Notification) (*model.Notification, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	// List returns notifications ordered by creation time, newest first.
	List(ctx context.Context, filter NotificationFilter) ([]*model.Notification, error)
	Update(ctx context.Context, n *model.Notification) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// NotificationCache is a read-through cache in front of NotificationRepository.
type NotificationCache interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	Set(ctx context.Context, n *model.Notification, expiration time.Duration) error
	Delete(ctx context.Context, id uuid.UUID) error
}
