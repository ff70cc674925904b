package redis

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/basit-dev-64/notification-system-backend/pkg/keybuilder"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"strconv"
	"time"
)

// Ensure JobStore implements the interface
var _ repo.JobStore = (*JobStore)(nil)

// Tickets live in a hash per job. Two sorted sets index them: "due" by due time
// and "leased" by lease expiry. Every mutation is a Lua script, so each one is
// atomic on the server.
var (
	enqueueScript = goredis.NewScript(`
local key = ARGV[1] .. ARGV[2]
if redis.call('EXISTS', key) == 1 then
  return 0
end
redis.call('HSET', key, 'delivery_log_id', ARGV[4], 'due_at', ARGV[3], 'attempt', 0)
if ARGV[5] ~= '' then
  redis.call('HSET', key, 'sender_id', ARGV[5])
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[2])
return 1
`)

	claimScript = goredis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. now)
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[2], id)
  local due = redis.call('HGET', ARGV[1] .. id, 'due_at')
  if due then
    redis.call('HDEL', ARGV[1] .. id, 'locked_by')
    redis.call('ZADD', KEYS[1], due, id)
  end
end

local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
local key = ARGV[1] .. id
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[2], now + tonumber(ARGV[3]), id)
redis.call('HINCRBY', key, 'attempt', 1)
redis.call('HSET', key, 'locked_by', ARGV[2])
local fields = redis.call('HGETALL', key)
table.insert(fields, 1, id)
return fields
`)

	completeScript = goredis.NewScript(`
local key = ARGV[1] .. ARGV[2]
if redis.call('HGET', key, 'locked_by') ~= ARGV[3] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('DEL', key)
return 1
`)

	retryScript = goredis.NewScript(`
local key = ARGV[1] .. ARGV[2]
if redis.call('HGET', key, 'locked_by') ~= ARGV[3] then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('HDEL', key, 'locked_by')
redis.call('HSET', key, 'due_at', ARGV[4], 'last_error', ARGV[5])
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[2])
return 1
`)

	extendScript = goredis.NewScript(`
local key = ARGV[1] .. ARGV[2]
if redis.call('HGET', key, 'locked_by') ~= ARGV[3] then
  return 0
end
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
redis.call('ZADD', KEYS[1], now + tonumber(ARGV[4]), ARGV[2])
return 1
`)

	cancelScript = goredis.NewScript(`
local key = ARGV[1] .. ARGV[2]
local attempt = redis.call('HGET', key, 'attempt')
if not attempt or tonumber(attempt) > 0 then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('DEL', key)
return 1
`)
)

// JobStore implements repository.JobStore on Redis sorted sets.
// The scripts build hash keys from a prefix, so the store expects a single Redis node.
type JobStore struct {
	redis  goredis.Scripter
	keys   keybuilder.RedisJobKeys
	logger zerolog.Logger
}

// NewJobStore creates a new instance of the JobStore under the given key prefix.
func NewJobStore(client *goredis.Client, prefix string, logger *zerolog.Logger) *JobStore {
	return &JobStore{
		redis:  client,
		keys:   keybuilder.RedisJobKeysBuild(prefix),
		logger: logger.With().Str("layer", "redis_job_store").Logger(),
	}
}

func (s *JobStore) Enqueue(ctx context.Context, job *model.Job) (bool, error) {
	sender := ""
	if job.SenderID != nil {
		sender = *job.SenderID
	}
	created, err := enqueueScript.Run(ctx, s.redis,
		[]string{s.keys.Due},
		s.keys.Data, job.ID, job.DueAt.UnixMilli(), job.DeliveryLogID.String(), sender,
	).Int()
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("cannot enqueue job")
		return false, fmt.Errorf("redis: Enqueue failed: %w", err)
	}
	return created == 1, nil
}

func (s *JobStore) Claim(ctx context.Context, owner string, lease time.Duration) (*model.Job, error) {
	res, err := claimScript.Run(ctx, s.redis,
		[]string{s.keys.Due, s.keys.Leased},
		s.keys.Data, owner, lease.Milliseconds(),
	).StringSlice()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repo.ErrNoJobDue
		}
		s.logger.Error().Err(err).Str("owner", owner).Msg("cannot claim job")
		return nil, fmt.Errorf("redis: Claim failed: %w", err)
	}
	return parseClaimed(res)
}

func (s *JobStore) Complete(ctx context.Context, jobID, owner string) error {
	ok, err := completeScript.Run(ctx, s.redis,
		[]string{s.keys.Leased},
		s.keys.Data, jobID, owner,
	).Int()
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("cannot complete job")
		return fmt.Errorf("redis: Complete failed: %w", err)
	}
	if ok == 0 {
		return repo.ErrLeaseLost
	}
	return nil
}

func (s *JobStore) Retry(ctx context.Context, jobID, owner string, dueAt time.Time, lastErr string) error {
	ok, err := retryScript.Run(ctx, s.redis,
		[]string{s.keys.Due, s.keys.Leased},
		s.keys.Data, jobID, owner, dueAt.UnixMilli(), lastErr,
	).Int()
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("cannot reschedule job")
		return fmt.Errorf("redis: Retry failed: %w", err)
	}
	if ok == 0 {
		return repo.ErrLeaseLost
	}
	return nil
}

func (s *JobStore) Extend(ctx context.Context, jobID, owner string, lease time.Duration) error {
	ok, err := extendScript.Run(ctx, s.redis,
		[]string{s.keys.Leased},
		s.keys.Data, jobID, owner, lease.Milliseconds(),
	).Int()
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("cannot extend job lease")
		return fmt.Errorf("redis: Extend failed: %w", err)
	}
	if ok == 0 {
		return repo.ErrLeaseLost
	}
	return nil
}

func (s *JobStore) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := cancelScript.Run(ctx, s.redis,
		[]string{s.keys.Due},
		s.keys.Data, jobID,
	).Int()
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("cannot cancel job")
		return false, fmt.Errorf("redis: Cancel failed: %w", err)
	}
	return ok == 1, nil
}

// parseClaimed decodes the claim script reply: the job id followed by the hash fields.
func parseClaimed(res []string) (*model.Job, error) {
	if len(res) < 1 || len(res)%2 != 1 {
		return nil, fmt.Errorf("redis: malformed claim reply of %d elements", len(res))
	}
	job := &model.Job{ID: res[0]}
	for i := 1; i+1 < len(res); i += 2 {
		field, value := res[i], res[i+1]
		switch field {
		case "delivery_log_id":
			id, err := uuid.Parse(value)
			if err != nil {
				return nil, fmt.Errorf("redis: job %s has invalid delivery_log_id: %w", job.ID, err)
			}
			job.DeliveryLogID = id
		case "due_at":
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("redis: job %s has invalid due_at: %w", job.ID, err)
			}
			job.DueAt = time.UnixMilli(ms).UTC()
		case "attempt":
			attempt, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("redis: job %s has invalid attempt: %w", job.ID, err)
			}
			job.Attempt = attempt
		case "sender_id":
			sender := value
			job.SenderID = &sender
		case "last_error":
			lastErr := value
			job.LastError = &lastErr
		}
	}
	return job, nil
}
