package model

import (
	"fmt"
	"github.com/google/uuid"
	"math"
	"time"
)

// Job is the scheduler's durable claim ticket. It references a delivery log
// and never carries notification content.
type Job struct {
	ID            string
	DeliveryLogID uuid.UUID
	DueAt         time.Time
	SenderID      *string
	Attempt       int // Number of times the ticket has been claimed.
	LastError     *string
}

// JobIDFor derives the job id of a delivery log due at dueAt.
// The same pair always yields the same id, which makes enqueue idempotent.
func JobIDFor(deliveryLogID uuid.UUID, dueAt time.Time) string {
	return fmt.Sprintf("notification-%s-%d", deliveryLogID, dueAt.UnixMilli())
}

// NewJob builds the ticket for a scheduled log.
func NewJob(l *DeliveryLog) (*Job, error) {
	if l.Status != StatusScheduled || l.ScheduledAt == nil || l.JobID == nil {
		return nil, fmt.Errorf("%w: log %s is not scheduled", ErrInvalidTransition, l.ID)
	}
	return &Job{
		ID:            *l.JobID,
		DeliveryLogID: l.ID,
		DueAt:         *l.ScheduledAt,
		SenderID:      l.SenderID,
	}, nil
}

// Backoff returns the delay before the next attempt after attempt failed.
// Formula: base * 2^(attempt-1)
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
}
