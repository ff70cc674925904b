package mongo

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"time"
)

const (
	NotificationsCollection = "notifications"
	LogsCollection          = "notificationlogs"
)

var ErrFailedToConnect = errors.New("failed to connect to mongo")

// NewClient connects to MongoDB and pings it, retrying a configured number of times.
// Failing here aborts process start.
func NewClient(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*mongo.Client, error) {
	log := logger.With().Str("component", "mongo").Logger()

	attempts := cfg.Mongo.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.Mongo.URI).
				SetConnectTimeout(cfg.Mongo.ConnectTimeout).
				SetMaxPoolSize(cfg.Mongo.MaxPoolSize).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				log.Info().Int("attempt", i).Msg("connected to mongo")
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", i).Msg("mongo not reachable")

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToConnect, ctx.Err())
		case <-time.After(cfg.Mongo.RetryInterval):
		}
	}

	return nil, errors.Join(ErrFailedToConnect, lastErr)
}

// EnsureIndexes creates the indexes the repositories query by.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(NotificationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: create %s indexes: %w", NotificationsCollection, err)
	}

	_, err = db.Collection(LogsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "notificationId", Value: 1}}},
		{
			Keys:    bson.D{{Key: "jobId", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: create %s indexes: %w", LogsCollection, err)
	}
	return nil
}
