package mongo

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"time"
)

// Ensure NotificationRepository implements the interface
var _ repo.NotificationRepository = (*NotificationRepository)(nil)

type notificationDocument struct {
	ID         string    `bson:"_id"`
	Type       string    `bson:"type"`
	Recipients []string  `bson:"recipients"`
	Subject    string    `bson:"subject"`
	Message    string    `bson:"message"`
	UserID     *string   `bson:"userId,omitempty"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

// NotificationRepository stores notifications in the "notifications" collection.
type NotificationRepository struct {
	coll   *mongo.Collection
	logger zerolog.Logger
}

// NewNotificationRepository creates a new instance of the NotificationRepository.
func NewNotificationRepository(db *mongo.Database, logger *zerolog.Logger) *NotificationRepository {
	return &NotificationRepository{
		coll:   db.Collection(NotificationsCollection),
		logger: logger.With().Str("layer", "mongo_notification_repository").Logger(),
	}
}

func (r *NotificationRepository) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	if _, err := r.coll.InsertOne(ctx, toNotificationDocument(n)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, repo.ErrDuplicateRecord
		}
		r.logger.Err(err).Stringer("id", n.ID).Msg("cannot insert notification")
		return nil, fmt.Errorf("mongo: InsertNotification failed: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var doc notificationDocument
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id.String()}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repo.ErrNotFound
		}
		r.logger.Err(err).Stringer("id", id).Msg("cannot get notification")
		return nil, fmt.Errorf("mongo: FindNotification failed: %w", err)
	}
	return toNotificationModel(&doc)
}

func (r *NotificationRepository) List(ctx context.Context, filter repo.NotificationFilter) ([]*model.Notification, error) {
	query := bson.D{}
	if filter.OwnerID != nil {
		query = append(query, bson.E{Key: "userId", Value: *filter.OwnerID})
	}

	cursor, err := r.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		r.logger.Err(err).Msg("cannot list notifications")
		return nil, fmt.Errorf("mongo: ListNotifications failed: %w", err)
	}

	var docs []notificationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode notifications: %w", err)
	}

	out := make([]*model.Notification, 0, len(docs))
	for i := range docs {
		n, err := toNotificationModel(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *NotificationRepository) Update(ctx context.Context, n *model.Notification) error {
	res, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: n.ID.String()}}, toNotificationDocument(n))
	if err != nil {
		r.logger.Err(err).Stringer("id", n.ID).Msg("cannot update notification")
		return fmt.Errorf("mongo: UpdateNotification failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		r.logger.Err(err).Stringer("id", id).Msg("cannot delete notification")
		return fmt.Errorf("mongo: DeleteNotification failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// === Mapper Functions ===

func toNotificationDocument(n *model.Notification) notificationDocument {
	return notificationDocument{
		ID:         n.ID.String(),
		Type:       string(n.Type),
		Recipients: n.Recipients,
		Subject:    n.Subject,
		Message:    n.Message,
		UserID:     n.OwnerID,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}

func toNotificationModel(doc *notificationDocument) (*model.Notification, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("mongo: notification has invalid id %q: %w", doc.ID, err)
	}
	return &model.Notification{
		ID:         id,
		Type:       model.NotificationType(doc.Type),
		Recipients: doc.Recipients,
		Subject:    doc.Subject,
		Message:    doc.Message,
		OwnerID:    doc.UserID,
		CreatedAt:  doc.CreatedAt.UTC(),
		UpdatedAt:  doc.UpdatedAt.UTC(),
	}, nil
}
