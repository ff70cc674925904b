package http

import (
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"time"
)

// CreateNotificationRequest defines the structure for a new notification request.
// It uses `json` tags for unmarshalling and `binding` for validation with Gin.
type CreateNotificationRequest struct {
	Type       string   `json:"type" binding:"required,notification_type"`
	Recipients []string `json:"recipients" binding:"required,min=1,dive,required"`
	Subject    string   `json:"subject" binding:"required"`
	Message    string   `json:"message" binding:"required"`
}

// UpdateNotificationRequest carries a partial content update. Absent fields are left as they are.
type UpdateNotificationRequest struct {
	Type       *string  `json:"type" binding:"omitempty,notification_type"`
	Recipients []string `json:"recipients" binding:"omitempty,min=1,dive,required"`
	Subject    *string  `json:"subject"`
	Message    *string  `json:"message"`
}

// SendNotificationRequest asks for delivery of a stored notification.
// Without scheduled_at the notification is sent immediately.
type SendNotificationRequest struct {
	NotificationID string     `json:"notification_id" binding:"required,uuid"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
}

// NotificationResponse defines the structure for a standard notification response.
type NotificationResponse struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	UserID     *string   `json:"user_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeliveryLogResponse exposes one delivery log.
type DeliveryLogResponse struct {
	ID             uuid.UUID  `json:"id"`
	NotificationID uuid.UUID  `json:"notification_id"`
	Status         string     `json:"status"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	MessageID      *string    `json:"message_id,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	SenderID       *string    `json:"sender_id,omitempty"`
	JobID          *string    `json:"job_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CancelJobResponse reports whether a scheduled job was removed.
type CancelJobResponse struct {
	JobID     string `json:"job_id"`
	Cancelled bool   `json:"cancelled"`
}

// ErrorResponse defines a standard structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegisterValidators adds the custom binding tags used by the request DTOs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
		return model.NotificationType(fl.Field().String()).Valid()
	})
}

func toNotificationResponse(n *model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:         n.ID,
		Type:       string(n.Type),
		Recipients: n.Recipients,
		Subject:    n.Subject,
		Message:    n.Message,
		UserID:     n.OwnerID,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}

func toDeliveryLogResponse(l *model.DeliveryLog) DeliveryLogResponse {
	return DeliveryLogResponse{
		ID:             l.ID,
		NotificationID: l.NotificationID,
		Status:         string(l.Status),
		ScheduledAt:    l.ScheduledAt,
		SentAt:         l.SentAt,
		MessageID:      l.MessageID,
		ErrorMessage:   l.ErrorMessage,
		SenderID:       l.SenderID,
		JobID:          l.JobID,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

func toNotificationPatch(req UpdateNotificationRequest) model.NotificationPatch {
	patch := model.NotificationPatch{
		Recipients: req.Recipients,
		Subject:    req.Subject,
		Message:    req.Message,
	}
	if req.Type != nil {
		t := model.NotificationType(*req.Type)
		patch.Type = &t
	}
	return patch
}
