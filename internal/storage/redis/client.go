package redis

import (
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient creates the shared go-redis client. It does not connect until first use.
func NewClient(cfg *config.Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
