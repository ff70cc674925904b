package keybuilder

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

const (
	Redis        string = "redis"
	Notification string = "notification"
	RateLimit    string = "ratelimit"
)

func RedisNotificationKeyBuild(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", Redis, Notification, id)
}

// RedisRateLimitKeyBuild returns the counter key of the one-second window containing t.
func RedisRateLimitKeyBuild(scope string, t time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", Redis, RateLimit, scope, t.Unix())
}

// RedisJobKeys holds the keys of the Redis job store under one prefix.
type RedisJobKeys struct {
	Due    string // sorted set: job id -> due time (unix ms)
	Leased string // sorted set: job id -> lease expiry (unix ms)
	Data   string // hash key prefix, job id appended
}

func RedisJobKeysBuild(prefix string) RedisJobKeys {
	return RedisJobKeys{
		Due:    prefix + ":due",
		Leased: prefix + ":leased",
		Data:   prefix + ":data:",
	}
}
