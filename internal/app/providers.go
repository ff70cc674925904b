package app

import (
	"context"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	deliveryHTTP "github.com/basit-dev-64/notification-system-backend/internal/delivery/http"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/basit-dev-64/notification-system-backend/internal/ratelimit"
	"github.com/basit-dev-64/notification-system-backend/internal/storage/memory"
	"github.com/basit-dev-64/notification-system-backend/internal/storage/mongo"
	"github.com/basit-dev-64/notification-system-backend/internal/storage/postgres"
	"github.com/basit-dev-64/notification-system-backend/internal/storage/rabbitmq"
	"github.com/basit-dev-64/notification-system-backend/internal/storage/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"time"
)

type repositories struct {
	fx.Out

	Notifications repo.NotificationRepository
	Logs          repo.DeliveryLogRepository
	Health        deliveryHTTP.HealthCheck
}

func newRedisClient(lc fx.Lifecycle, cfg *config.Config) *goredis.Client {
	client := redis.NewClient(cfg)
	lc.Append(fx.StopHook(client.Close))
	return client
}

// newRepositories connects the document store selected by mongo.driver.
func newRepositories(lc fx.Lifecycle, cfg *config.Config, logger *zerolog.Logger) (repositories, error) {
	switch cfg.Mongo.Driver {
	case "memory":
		logger.Warn().Msg("using in-memory document store, records are lost on restart")
		return repositories{
			Notifications: memory.NewNotificationRepository(),
			Logs:          memory.NewDeliveryLogRepository(),
		}, nil
	case "mongo", "":
	default:
		return repositories{}, fmt.Errorf("unknown mongo driver %q", cfg.Mongo.Driver)
	}

	attempts := cfg.Mongo.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(attempts)*(cfg.Mongo.ConnectTimeout+cfg.Mongo.RetryInterval))
	defer cancel()

	client, err := mongo.NewClient(ctx, cfg, logger)
	if err != nil {
		return repositories{}, err
	}
	db := client.Database(cfg.Mongo.Database)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return mongo.EnsureIndexes(ctx, db)
		},
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})

	return repositories{
		Notifications: mongo.NewNotificationRepository(db, logger),
		Logs:          mongo.NewDeliveryLogRepository(db, logger),
		Health: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
	}, nil
}

// newJobStore builds the durable job store selected by scheduler.store.
func newJobStore(lc fx.Lifecycle, cfg *config.Config, client *goredis.Client, logger *zerolog.Logger) (repo.JobStore, error) {
	switch cfg.Scheduler.Store {
	case "postgres", "":
		pool, err := postgres.NewPool(cfg)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := pool.Ping(ctx); err != nil {
					return fmt.Errorf("postgres: ping failed: %w", err)
				}
				if cfg.Postgres.Migrate {
					return postgres.Migrate(ctx, pool, logger)
				}
				return nil
			},
			OnStop: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
		return postgres.NewJobStore(pool, logger), nil
	case "redis":
		return redis.NewJobStore(client, cfg.Scheduler.RedisPrefix, logger), nil
	case "memory":
		logger.Warn().Msg("using in-memory job store, scheduled jobs are lost on restart")
		return memory.NewJobStore(), nil
	default:
		return nil, fmt.Errorf("unknown scheduler store %q", cfg.Scheduler.Store)
	}
}

// newJobSignal builds the wake-up signal selected by scheduler.signal.
func newJobSignal(lc fx.Lifecycle, cfg *config.Config, logger *zerolog.Logger) (repo.JobSignal, error) {
	switch cfg.Scheduler.Signal {
	case "rabbitmq":
		conn, err := rabbitmq.NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		signal, err := rabbitmq.NewJobSignal(conn, logger)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		lc.Append(fx.StopHook(func() error {
			_ = signal.Close()
			return conn.Close()
		}))
		return signal, nil
	case "local":
		return memory.NewSignal(), nil
	case "none", "":
		return memory.NoopSignal{}, nil
	default:
		return nil, fmt.Errorf("unknown scheduler signal %q", cfg.Scheduler.Signal)
	}
}

// newLimiter builds the attempt-rate ceiling selected by ratelimit.driver.
func newLimiter(cfg *config.Config, client *goredis.Client, logger *zerolog.Logger) (ratelimit.Limiter, error) {
	switch cfg.RateLimit.Driver {
	case "local", "":
		return ratelimit.NewLocal(cfg.RateLimit.PerSecond), nil
	case "redis":
		return ratelimit.NewRedis(client, "worker", cfg.RateLimit.PerSecond, logger), nil
	default:
		return nil, fmt.Errorf("unknown ratelimit driver %q", cfg.RateLimit.Driver)
	}
}
