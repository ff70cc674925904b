package model

import (
	"fmt"
	"github.com/google/uuid"
	"net/mail"
	"strings"
	"time"
)

// NotificationType is the delivery channel a notification is addressed to.
type NotificationType string

const (
	TypeEmail NotificationType = "email"
	TypeSMS   NotificationType = "sms"
	TypePush  NotificationType = "push"
)

// NotificationTypes lists every supported type. The channel dispatcher is built from it.
var NotificationTypes = []NotificationType{TypeEmail, TypeSMS, TypePush}

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeEmail, TypeSMS, TypePush:
		return true
	}
	return false
}

// Notification is the content record describing what to send and to whom.
// It is technology-agnostic and does not contain any DB or JSON tags.
type Notification struct {
	ID         uuid.UUID
	Type       NotificationType
	Recipients []string // Addresses, phone numbers or push tokens, depending on Type.
	Subject    string
	Message    string
	OwnerID    *string // Optional: identity of the caller that submitted the record.

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewNotification is a factory function that validates the content and
// returns a new notification with a fresh ID.
func NewNotification(t NotificationType, recipients []string, subject, message string, ownerID *string) (*Notification, error) {
	now := time.Now().UTC()
	n := &Notification{
		ID:         uuid.New(),
		Type:       t,
		Recipients: append([]string(nil), recipients...),
		Subject:    subject,
		Message:    message,
		OwnerID:    ownerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks the content fields of a notification.
func (n *Notification) Validate() error {
	if !n.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedChannel, n.Type)
	}
	if len(n.Recipients) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidNotification)
	}
	for i, r := range n.Recipients {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: recipient #%d is empty", ErrInvalidNotification, i)
		}
		if n.Type == TypeEmail {
			if _, err := mail.ParseAddress(r); err != nil {
				return fmt.Errorf("%w: invalid email address %q", ErrInvalidNotification, r)
			}
		}
	}
	if strings.TrimSpace(n.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidNotification)
	}
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidNotification)
	}
	return nil
}

// NotificationPatch carries optional content changes. Nil fields are left untouched.
type NotificationPatch struct {
	Type       *NotificationType
	Recipients []string
	Subject    *string
	Message    *string
}

// Apply merges the patch into n and re-validates the result.
func (n *Notification) Apply(p NotificationPatch) error {
	updated := *n
	if p.Type != nil {
		updated.Type = *p.Type
	}
	if p.Recipients != nil {
		updated.Recipients = append([]string(nil), p.Recipients...)
	}
	if p.Subject != nil {
		updated.Subject = *p.Subject
	}
	if p.Message != nil {
		updated.Message = *p.Message
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	updated.UpdatedAt = time.Now().UTC()
	*n = updated
	return nil
}
