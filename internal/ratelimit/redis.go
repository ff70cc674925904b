package ratelimit

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"time"
)

// Redis counts attempts in one-second windows shared by every worker process.
// When Redis is unreachable it degrades to the local bucket instead of stalling delivery.
type Redis struct {
	client   goredis.Cmdable
	scope    string
	limit    int64
	fallback *Local
	now      func() time.Time
	logger   zerolog.Logger
}

func NewRedis(client *goredis.Client, scope string, perSecond int, logger *zerolog.Logger) *Redis {
	return &Redis{
		client:   client,
		scope:    scope,
		limit:    int64(perSecond),
		fallback: NewLocal(perSecond),
		now:      time.Now,
		logger:   logger.With().Str("component", "redis_rate_limiter").Logger(),
	}
}

func (r *Redis) Wait(ctx context.Context) error {
	if r.limit <= 0 {
		return nil
	}
	for {
		now := r.now()
		key := keybuilder.RedisRateLimitKeyBuild(r.scope, now)

		var incr *goredis.IntCmd
		_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, 2*time.Second)
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn().Err(err).Msg("rate limit window unavailable, using local limiter")
			return r.fallback.Wait(ctx)
		}
		if incr.Val() <= r.limit {
			return nil
		}

		next := now.Truncate(time.Second).Add(time.Second)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
