package model

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

// DeliveryStatus is the state of one delivery attempt lifecycle.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"   // In flight, or created by the immediate path.
	StatusScheduled DeliveryStatus = "scheduled" // Waiting in the job store for its due time.
	StatusSent      DeliveryStatus = "sent"      // Terminal: the channel accepted the message.
	StatusFailed    DeliveryStatus = "failed"    // Terminal: the attempt sequence gave up.
)

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

var transitions = map[DeliveryStatus][]DeliveryStatus{
	StatusScheduled: {StatusPending, StatusFailed},
	StatusPending:   {StatusSent, StatusFailed},
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to DeliveryStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DeliveryLog is the audit and state record for one delivery attempt lifecycle.
type DeliveryLog struct {
	ID             uuid.UUID
	NotificationID uuid.UUID
	Status         DeliveryStatus
	ScheduledAt    *time.Time
	SentAt         *time.Time
	MessageID      *string // Opaque id assigned by the channel.
	ErrorMessage   *string
	SenderID       *string
	JobID          *string // Correlates to the scheduler ticket, used for cancellation.

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPendingLog creates the log of an immediate delivery.
func NewPendingLog(notificationID uuid.UUID, senderID *string) *DeliveryLog {
	now := time.Now().UTC()
	return &DeliveryLog{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Status:         StatusPending,
		SenderID:       senderID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewScheduledLog creates the log of a deferred delivery due at dueAt.
// The job id is derived from the log id and the due time.
func NewScheduledLog(notificationID uuid.UUID, dueAt time.Time, senderID *string) (*DeliveryLog, error) {
	now := time.Now().UTC()
	if !dueAt.After(now) {
		return nil, ErrInvalidSchedule
	}
	due := dueAt.UTC()
	l := &DeliveryLog{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Status:         StatusScheduled,
		ScheduledAt:    &due,
		SenderID:       senderID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	jobID := JobIDFor(l.ID, due)
	l.JobID = &jobID
	return l, nil
}

func (l *DeliveryLog) transition(to DeliveryStatus) error {
	if !CanTransition(l.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, to)
	}
	l.Status = to
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkPending marks a scheduled log as in flight.
func (l *DeliveryLog) MarkPending() error {
	return l.transition(StatusPending)
}

// MarkSent records a successful delivery.
func (l *DeliveryLog) MarkSent(messageID string, at time.Time) error {
	if err := l.transition(StatusSent); err != nil {
		return err
	}
	sentAt := at.UTC()
	l.SentAt = &sentAt
	if messageID != "" {
		l.MessageID = &messageID
	}
	l.ErrorMessage = nil
	return nil
}

// MarkFailed records a terminal failure with its reason.
func (l *DeliveryLog) MarkFailed(reason string) error {
	if err := l.transition(StatusFailed); err != nil {
		return err
	}
	l.ErrorMessage = &reason
	return nil
}

// RecordAttemptError keeps the last error of a pending log that will be retried.
func (l *DeliveryLog) RecordAttemptError(reason string) error {
	if l.Status != StatusPending {
		return fmt.Errorf("%w: cannot record attempt error on %s log", ErrInvalidTransition, l.Status)
	}
	l.ErrorMessage = &reason
	l.UpdatedAt = time.Now().UTC()
	return nil
}
