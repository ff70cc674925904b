package repository

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/google/uuid"
)

// LogFilter narrows DeliveryLogRepository.List. Nil fields match everything.
type LogFilter struct {
	Status         *model.DeliveryStatus
	NotificationID *uuid.UUID
}

// DeliveryLogRepository persists delivery logs.
type DeliveryLogRepository interface {
	Save(ctx context.Context, l *model.DeliveryLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.DeliveryLog, error)
	GetByJobID(ctx context.Context, jobID string) (*model.DeliveryLog, error)
	// List returns logs ordered by creation time, newest first.
	List(ctx context.Context, filter LogFilter) ([]*model.DeliveryLog, error)
	// Update writes l only if the stored status still equals expected,
	// otherwise it returns ErrStaleState.
	Update(ctx context.Context, l *model.DeliveryLog, expected model.DeliveryStatus) error
}
