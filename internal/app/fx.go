package app

import (
	"context"
	"errors"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/consumer"
	deliveryHTTP "github.com/basit-dev-64/notification-system-backend/internal/delivery/http"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/basit-dev-64/notification-system-backend/internal/logger"
	"github.com/basit-dev-64/notification-system-backend/internal/notifiers"
	"github.com/basit-dev-64/notification-system-backend/internal/service"
	"github.com/basit-dev-64/notification-system-backend/internal/storage/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"net/http"
)

// CommonModule provides dependencies that are shared between the API and Worker applications.
var CommonModule = fx.Options(
	fx.Provide(
		// Core components
		config.NewConfig,
		logger.NewLogger,

		// Storage Layer
		newRedisClient,
		newRepositories,
		newJobStore,
		newJobSignal,

		// Channels
		fx.Annotate(notifiers.NewDispatcher, fx.As(new(notifiers.Resolver))),

		// Service Layer
		service.NewNotificationService,
		service.NewDispatchService,
	),

	fx.Decorate(func(
		cfg *config.Config,
		primary repo.NotificationRepository,
		client *goredis.Client,
		logger *zerolog.Logger,
	) repo.NotificationRepository {
		if !cfg.Cache.Enabled {
			return primary
		}
		cache := redis.NewNotificationCache(logger, client)
		return redis.NewCachedNotificationRepository(primary, cache, cfg.Cache.TTL, logger)
	}),
)

var apiComponents = fx.Options(
	fx.Provide(
		func(n *service.NotificationService, d *service.DispatchService, logger *zerolog.Logger) *deliveryHTTP.Handlers {
			return deliveryHTTP.NewHandlers(n, d, logger)
		},
		deliveryHTTP.NewServer,
	),

	fx.Invoke(func(server *deliveryHTTP.Server, lc fx.Lifecycle, shutdowner fx.Shutdowner, logger *zerolog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					logger.Info().Str("addr", server.Addr).Msg("http server listening")
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error().Err(err).Msg("http server failed")
						_ = shutdowner.Shutdown(fx.ExitCode(1))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
		})
	}),
)

var workerComponents = fx.Options(
	fx.Provide(
		newLimiter,
		consumer.New,
	),

	fx.Invoke(func(c *consumer.Consumer, lc fx.Lifecycle, logger *zerolog.Logger) {
		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					defer close(done)
					if err := c.Start(runCtx); err != nil {
						logger.Error().Err(err).Msg("consumer stopped with error")
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}),
)

// APIModule defines the Fx module for the HTTP API application.
var APIModule = fx.Options(
	CommonModule,
	apiComponents,
)

// WorkerModule defines the Fx module for the background worker application.
var WorkerModule = fx.Options(
	CommonModule,
	workerComponents,
)

// StandaloneModule runs the API and the worker pool in one process.
// It is the only mode in which the in-memory stores and the local signal are coherent.
var StandaloneModule = fx.Options(
	CommonModule,
	apiComponents,
	workerComponents,
)
