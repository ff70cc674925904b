package repository

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"time"
)

// JobStore is the durable, time-ordered store of delivery tickets.
// Implementations must make Claim atomic across processes.
type JobStore interface {
	// Enqueue persists the ticket. It reports false if a ticket with the same id already exists.
	Enqueue(ctx context.Context, job *model.Job) (bool, error)
	// Claim leases the earliest due ticket to owner and increments its attempt counter.
	// It returns ErrNoJobDue when nothing is due.
	Claim(ctx context.Context, owner string, lease time.Duration) (*model.Job, error)
	// Complete removes a ticket held by owner.
	Complete(ctx context.Context, jobID, owner string) error
	// Retry releases a ticket held by owner and makes it due again at dueAt.
	Retry(ctx context.Context, jobID, owner string, dueAt time.Time, lastErr string) error
	// Extend pushes the lease of a ticket held by owner to lease from now.
	// It returns ErrLeaseLost when owner no longer holds the ticket.
	Extend(ctx context.Context, jobID, owner string, lease time.Duration) error
	// Cancel removes a ticket that was never claimed. It reports false when the
	// ticket is absent or has been claimed.
	Cancel(ctx context.Context, jobID string) (bool, error)
}

// JobSignal wakes workers when a ticket becomes due, ahead of their poll interval.
type JobSignal interface {
	// Notify arranges a wake-up at job.DueAt.
	Notify(ctx context.Context, job *model.Job) error
	// Wakeups returns a channel that receives one value per due wake-up.
	Wakeups(ctx context.Context) (<-chan struct{}, error)
}
