package service

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/basit-dev-64/notification-system-backend/internal/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NotificationService manages notification content records.
// Delivery never goes through it; see DispatchService.
type NotificationService struct {
	repo   repo.NotificationRepository
	logger zerolog.Logger
}

func NewNotificationService(repo repo.NotificationRepository, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{
		repo:   repo,
		logger: logger.With().Str("layer", "notification_service").Logger(),
	}
}

// Submit validates and stores a new notification.
func (s *NotificationService) Submit(ctx context.Context, t model.NotificationType, recipients []string, subject, message string, ownerID *string) (*model.Notification, error) {
	n, err := model.NewNotification(t, recipients, subject, message, ownerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("type", string(t)).Msg("rejected notification")
		return nil, err
	}

	var created *model.Notification
	err = retry.Do(ctx, retry.DefaultPolicy, "save notification", func(ctx context.Context) error {
		var err error
		created, err = s.repo.Save(ctx, n)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Stringer("id", n.ID).Msg("failed to save notification")
		return nil, err
	}

	s.logger.Info().Stringer("id", created.ID).Str("type", string(created.Type)).Msg("notification saved")
	return created, nil
}

// Get returns one notification.
func (s *NotificationService) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns notifications newest first, restricted to ownerID when it is set.
func (s *NotificationService) List(ctx context.Context, ownerID *string) ([]*model.Notification, error) {
	return s.repo.List(ctx, repo.NotificationFilter{OwnerID: ownerID})
}

// Update applies a content patch. Existing delivery logs are not touched.
func (s *NotificationService) Update(ctx context.Context, id uuid.UUID, patch model.NotificationPatch) (*model.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := n.Apply(patch); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, n); err != nil {
		s.logger.Error().Err(err).Stringer("id", id).Msg("failed to update notification")
		return nil, err
	}
	return n, nil
}

// Delete removes a notification. Its delivery logs stay as audit records.
func (s *NotificationService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Stringer("id", id).Msg("notification deleted")
	return nil
}
