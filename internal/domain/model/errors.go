package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSchedule is returned when a deferred delivery is not strictly in the future.
	ErrInvalidSchedule = errors.New("scheduled time must be in the future")
	// ErrUnsupportedChannel is returned for a notification type with no channel behind it.
	ErrUnsupportedChannel = errors.New("unsupported notification type")
	// ErrInvalidTransition is returned when a delivery log is moved along an edge the state machine does not have.
	ErrInvalidTransition = errors.New("invalid delivery status transition")
	// ErrInvalidNotification is returned when notification content fails validation.
	ErrInvalidNotification = errors.New("invalid notification")
	// ErrInfrastructure marks failures of the document store, job store or broker.
	ErrInfrastructure = errors.New("infrastructure failure")
)

// ChannelFailure is a structured failure reported by a channel back-end.
type ChannelFailure struct {
	Channel   NotificationType
	Reason    string
	Temporary bool
}

func (e *ChannelFailure) Error() string {
	return fmt.Sprintf("%s channel failure: %s", e.Channel, e.Reason)
}

// Infrastructure wraps err so that errors.Is(err, ErrInfrastructure) holds.
func Infrastructure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInfrastructure, op, err)
}

// IsInvalid reports whether err rejects the request itself, so no later attempt can succeed.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrUnsupportedChannel) || errors.Is(err, ErrInvalidSchedule) || errors.Is(err, ErrInvalidNotification)
}

// IsRetryable reports whether a failed delivery attempt may be tried again.
// Infrastructure failures and transient channel failures are retryable,
// everything else is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsInvalid(err) {
		return false
	}
	var cf *ChannelFailure
	if errors.As(err, &cf) {
		return cf.Temporary
	}
	return errors.Is(err, ErrInfrastructure)
}
