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

// Ensure DeliveryLogRepository implements the interface
var _ repo.DeliveryLogRepository = (*DeliveryLogRepository)(nil)

type deliveryLogDocument struct {
	ID             string     `bson:"_id"`
	NotificationID string     `bson:"notificationId"`
	Status         string     `bson:"status"`
	ScheduledAt    *time.Time `bson:"scheduledAt,omitempty"`
	SentAt         *time.Time `bson:"sentAt,omitempty"`
	MessageID      *string    `bson:"messageId,omitempty"`
	ErrorMessage   *string    `bson:"errorMessage,omitempty"`
	SenderID       *string    `bson:"senderId,omitempty"`
	JobID          *string    `bson:"jobId,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt"`
}

// DeliveryLogRepository stores delivery logs in the "notificationlogs" collection.
type DeliveryLogRepository struct {
	coll   *mongo.Collection
	logger zerolog.Logger
}

// NewDeliveryLogRepository creates a new instance of the DeliveryLogRepository.
func NewDeliveryLogRepository(db *mongo.Database, logger *zerolog.Logger) *DeliveryLogRepository {
	return &DeliveryLogRepository{
		coll:   db.Collection(LogsCollection),
		logger: logger.With().Str("layer", "mongo_log_repository").Logger(),
	}
}

func (r *DeliveryLogRepository) Save(ctx context.Context, l *model.DeliveryLog) error {
	if _, err := r.coll.InsertOne(ctx, toLogDocument(l)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repo.ErrDuplicateRecord
		}
		r.logger.Err(err).Stringer("id", l.ID).Msg("cannot insert delivery log")
		return fmt.Errorf("mongo: InsertLog failed: %w", err)
	}
	return nil
}

func (r *DeliveryLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.DeliveryLog, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
}

func (r *DeliveryLogRepository) GetByJobID(ctx context.Context, jobID string) (*model.DeliveryLog, error) {
	return r.findOne(ctx, bson.D{{Key: "jobId", Value: jobID}})
}

func (r *DeliveryLogRepository) findOne(ctx context.Context, filter bson.D) (*model.DeliveryLog, error) {
	var doc deliveryLogDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repo.ErrNotFound
		}
		r.logger.Err(err).Msg("cannot get delivery log")
		return nil, fmt.Errorf("mongo: FindLog failed: %w", err)
	}
	return toLogModel(&doc)
}

func (r *DeliveryLogRepository) List(ctx context.Context, filter repo.LogFilter) ([]*model.DeliveryLog, error) {
	query := bson.D{}
	if filter.Status != nil {
		query = append(query, bson.E{Key: "status", Value: string(*filter.Status)})
	}
	if filter.NotificationID != nil {
		query = append(query, bson.E{Key: "notificationId", Value: filter.NotificationID.String()})
	}

	cursor, err := r.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		r.logger.Err(err).Msg("cannot list delivery logs")
		return nil, fmt.Errorf("mongo: ListLogs failed: %w", err)
	}

	var docs []deliveryLogDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode delivery logs: %w", err)
	}

	out := make([]*model.DeliveryLog, 0, len(docs))
	for i := range docs {
		l, err := toLogModel(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Update replaces the document only while its stored status equals expected.
func (r *DeliveryLogRepository) Update(ctx context.Context, l *model.DeliveryLog, expected model.DeliveryStatus) error {
	filter := bson.D{{Key: "_id", Value: l.ID.String()}, {Key: "status", Value: string(expected)}}
	res, err := r.coll.ReplaceOne(ctx, filter, toLogDocument(l))
	if err != nil {
		r.logger.Err(err).Stringer("id", l.ID).Msg("cannot update delivery log")
		return fmt.Errorf("mongo: UpdateLog failed: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	count, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: l.ID.String()}})
	if err != nil {
		return fmt.Errorf("mongo: UpdateLog failed: %w", err)
	}
	if count == 0 {
		return repo.ErrNotFound
	}
	r.logger.Warn().Stringer("id", l.ID).Str("expected", string(expected)).Msg("delivery log status moved concurrently")
	return repo.ErrStaleState
}

// === Mapper Functions ===

func toLogDocument(l *model.DeliveryLog) deliveryLogDocument {
	return deliveryLogDocument{
		ID:             l.ID.String(),
		NotificationID: l.NotificationID.String(),
		Status:         string(l.Status),
		ScheduledAt:    l.ScheduledAt,
		SentAt:         l.SentAt,
		MessageID:      l.MessageID,
		ErrorMessage:   l.ErrorMessage,
		SenderID:       l.SenderID,
		JobID:          l.JobID,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

func toLogModel(doc *deliveryLogDocument) (*model.DeliveryLog, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("mongo: delivery log has invalid id %q: %w", doc.ID, err)
	}
	notificationID, err := uuid.Parse(doc.NotificationID)
	if err != nil {
		return nil, fmt.Errorf("mongo: delivery log %s has invalid notificationId: %w", doc.ID, err)
	}
	return &model.DeliveryLog{
		ID:             id,
		NotificationID: notificationID,
		Status:         model.DeliveryStatus(doc.Status),
		ScheduledAt:    utc(doc.ScheduledAt),
		SentAt:         utc(doc.SentAt),
		MessageID:      doc.MessageID,
		ErrorMessage:   doc.ErrorMessage,
		SenderID:       doc.SenderID,
		JobID:          doc.JobID,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
	}, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
