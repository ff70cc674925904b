package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"time"
)

// Ensure JobStore implements the interface
var _ repo.JobStore = (*JobStore)(nil)

const (
	insertJobSQL = `
INSERT INTO scheduled_jobs (job_id, delivery_log_id, due_at, sender_id)
VALUES ($1, $2, $3, $4)`

	// The inner SELECT locks one due row and skips rows other claimants hold,
	// so concurrent workers never receive the same ticket.
	claimJobSQL = `
UPDATE scheduled_jobs AS j
SET attempt      = j.attempt + 1,
    locked_by    = $1,
    locked_until = now() + make_interval(secs => $2),
    updated_at   = now()
FROM (
    SELECT job_id
    FROM scheduled_jobs
    WHERE due_at <= now()
      AND (locked_until IS NULL OR locked_until < now())
    ORDER BY due_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
) AS next
WHERE j.job_id = next.job_id
RETURNING j.job_id, j.delivery_log_id, j.due_at, j.sender_id, j.attempt, j.last_error`

	completeJobSQL = `DELETE FROM scheduled_jobs WHERE job_id = $1 AND locked_by = $2`

	retryJobSQL = `
UPDATE scheduled_jobs
SET due_at       = $3,
    last_error   = $4,
    locked_by    = NULL,
    locked_until = NULL,
    updated_at   = now()
WHERE job_id = $1 AND locked_by = $2`

	extendJobSQL = `
UPDATE scheduled_jobs
SET locked_until = now() + make_interval(secs => $3),
    updated_at   = now()
WHERE job_id = $1 AND locked_by = $2`

	cancelJobSQL = `DELETE FROM scheduled_jobs WHERE job_id = $1 AND attempt = 0`
)

// JobStore implements repository.JobStore on a PostgreSQL table.
type JobStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewJobStore creates a new instance of the JobStore.
func NewJobStore(pool *pgxpool.Pool, logger *zerolog.Logger) *JobStore {
	return &JobStore{
		pool:   pool,
		logger: logger.With().Str("layer", "postgres_job_store").Logger(),
	}
}

// Enqueue inserts the ticket. A unique violation on job_id means the ticket already exists.
func (s *JobStore) Enqueue(ctx context.Context, job *model.Job) (bool, error) {
	_, err := s.pool.Exec(ctx, insertJobSQL,
		job.ID,
		pgtype.UUID{Bytes: job.DeliveryLogID, Valid: true},
		job.DueAt.UTC(),
		toText(job.SenderID),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			s.logger.Info().Str("job_id", job.ID).Msg("job already enqueued")
			return false, nil
		}
		s.logger.Err(err).Str("job_id", job.ID).Msg("cannot enqueue job")
		return false, fmt.Errorf("postgres: Enqueue failed: %w", err)
	}
	return true, nil
}

// Claim leases the earliest due ticket to owner.
func (s *JobStore) Claim(ctx context.Context, owner string, lease time.Duration) (*model.Job, error) {
	var (
		job       model.Job
		logID     pgtype.UUID
		senderID  pgtype.Text
		lastError pgtype.Text
	)
	err := s.pool.QueryRow(ctx, claimJobSQL, owner, lease.Seconds()).
		Scan(&job.ID, &logID, &job.DueAt, &senderID, &job.Attempt, &lastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNoJobDue
		}
		s.logger.Err(err).Str("owner", owner).Msg("cannot claim job")
		return nil, fmt.Errorf("postgres: Claim failed: %w", err)
	}

	job.DeliveryLogID = uuid.UUID(logID.Bytes)
	job.SenderID = fromText(senderID)
	job.LastError = fromText(lastError)
	return &job, nil
}

// Complete deletes a ticket still held by owner.
func (s *JobStore) Complete(ctx context.Context, jobID, owner string) error {
	tag, err := s.pool.Exec(ctx, completeJobSQL, jobID, owner)
	if err != nil {
		s.logger.Err(err).Str("job_id", jobID).Msg("cannot complete job")
		return fmt.Errorf("postgres: Complete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrLeaseLost
	}
	return nil
}

// Retry releases the lease and moves the ticket to dueAt.
func (s *JobStore) Retry(ctx context.Context, jobID, owner string, dueAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx, retryJobSQL, jobID, owner, dueAt.UTC(), lastErr)
	if err != nil {
		s.logger.Err(err).Str("job_id", jobID).Msg("cannot reschedule job")
		return fmt.Errorf("postgres: Retry failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrLeaseLost
	}
	return nil
}

// Extend renews the lease while owner still holds the ticket.
func (s *JobStore) Extend(ctx context.Context, jobID, owner string, lease time.Duration) error {
	tag, err := s.pool.Exec(ctx, extendJobSQL, jobID, owner, lease.Seconds())
	if err != nil {
		s.logger.Err(err).Str("job_id", jobID).Msg("cannot extend job lease")
		return fmt.Errorf("postgres: Extend failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrLeaseLost
	}
	return nil
}

// Cancel deletes a ticket that was never claimed.
func (s *JobStore) Cancel(ctx context.Context, jobID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, cancelJobSQL, jobID)
	if err != nil {
		s.logger.Err(err).Str("job_id", jobID).Msg("cannot cancel job")
		return false, fmt.Errorf("postgres: Cancel failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// === Mapper Functions ===

func toText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func fromText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
