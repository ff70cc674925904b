package http

import (
	"context"
	"errors"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/basit-dev-64/notification-system-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"net/http"
)

// NotificationUseCase is the content side of the API.
type NotificationUseCase interface {
	Submit(ctx context.Context, t model.NotificationType, recipients []string, subject, message string, ownerID *string) (*model.Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	List(ctx context.Context, ownerID *string) ([]*model.Notification, error)
	Update(ctx context.Context, id uuid.UUID, patch model.NotificationPatch) (*model.Notification, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DispatchUseCase is the delivery side of the API.
type DispatchUseCase interface {
	Dispatch(ctx context.Context, req service.DispatchRequest) (*model.DeliveryLog, error)
	ListLogs(ctx context.Context, status *model.DeliveryStatus) ([]*model.DeliveryLog, error)
	GetLog(ctx context.Context, id uuid.UUID) (*model.DeliveryLog, error)
	CancelScheduled(ctx context.Context, jobID string) (bool, error)
}

type Handlers struct {
	notifications NotificationUseCase
	dispatch      DispatchUseCase
	logger        zerolog.Logger
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(notifications NotificationUseCase, dispatch DispatchUseCase, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		notifications: notifications,
		dispatch:      dispatch,
		logger:        logger.With().Str("layer", "http_handler").Logger(),
	}
}

// RegisterRoutes sets up the routing for the notification API.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.Use(identity())
	{
		api.POST("/notifications", h.CreateNotification)
		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications/send", h.SendNotification)
		api.GET("/notifications/:id", h.GetNotificationByID)
		api.PATCH("/notifications/:id", h.UpdateNotification)
		api.DELETE("/notifications/:id", h.DeleteNotification)

		api.GET("/logs", h.ListLogs)
		api.GET("/logs/:id", h.GetLogByID)

		api.DELETE("/jobs/:jobId", h.CancelJob)
	}
}

// CreateNotification handles the HTTP request for creating a new notification.
func (h *Handlers) CreateNotification(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn().Err(err).Msg("invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	n, err := h.notifications.Submit(
		c.Request.Context(),
		model.NotificationType(req.Type),
		req.Recipients,
		req.Subject,
		req.Message,
		userID(c),
	)
	if err != nil {
		h.writeError(c, err, "failed to create notification")
		return
	}

	c.JSON(http.StatusCreated, toNotificationResponse(n))
}

// ListNotifications returns the caller's notifications, or all of them when no identity is given.
func (h *Handlers) ListNotifications(c *gin.Context) {
	list, err := h.notifications.List(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err, "failed to list notifications")
		return
	}

	out := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toNotificationResponse(n))
	}
	c.JSON(http.StatusOK, out)
}

// GetNotificationByID handles the HTTP request to retrieve a notification.
func (h *Handlers) GetNotificationByID(c *gin.Context) {
	id, ok := parseID(c, "invalid notification ID format")
	if !ok {
		return
	}

	n, err := h.notifications.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "failed to retrieve notification")
		return
	}

	c.JSON(http.StatusOK, toNotificationResponse(n))
}

func (h *Handlers) UpdateNotification(c *gin.Context) {
	id, ok := parseID(c, "invalid notification ID format")
	if !ok {
		return
	}

	var req UpdateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	n, err := h.notifications.Update(c.Request.Context(), id, toNotificationPatch(req))
	if err != nil {
		h.writeError(c, err, "failed to update notification")
		return
	}

	c.JSON(http.StatusOK, toNotificationResponse(n))
}

func (h *Handlers) DeleteNotification(c *gin.Context) {
	id, ok := parseID(c, "invalid notification ID format")
	if !ok {
		return
	}

	if err := h.notifications.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err, "failed to delete notification")
		return
	}

	c.Status(http.StatusNoContent)
}

// SendNotification dispatches a notification now or at scheduled_at.
// Immediate sends answer 200 with the terminal log, scheduled ones 202 with the scheduled log.
func (h *Handlers) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	notificationID, ok := parseUUID(c, req.NotificationID, "invalid notification ID format")
	if !ok {
		return
	}

	l, err := h.dispatch.Dispatch(c.Request.Context(), service.DispatchRequest{
		NotificationID: notificationID,
		ScheduledAt:    req.ScheduledAt,
		SenderID:       userID(c),
	})
	if err != nil {
		h.writeError(c, err, "failed to dispatch notification")
		return
	}

	status := http.StatusOK
	if req.ScheduledAt != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, toDeliveryLogResponse(l))
}

// ListLogs returns delivery logs, optionally filtered by ?status=.
func (h *Handlers) ListLogs(c *gin.Context) {
	var status *model.DeliveryStatus
	if s, ok := c.GetQuery("status"); ok && s != "" {
		st := model.DeliveryStatus(s)
		status = &st
	}

	logs, err := h.dispatch.ListLogs(c.Request.Context(), status)
	if err != nil {
		h.writeError(c, err, "failed to list delivery logs")
		return
	}

	out := make([]DeliveryLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, toDeliveryLogResponse(l))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) GetLogByID(c *gin.Context) {
	id, ok := parseID(c, "invalid log ID format")
	if !ok {
		return
	}

	l, err := h.dispatch.GetLog(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "failed to retrieve delivery log")
		return
	}

	c.JSON(http.StatusOK, toDeliveryLogResponse(l))
}

// CancelJob cancels a scheduled job that no worker has claimed yet.
func (h *Handlers) CancelJob(c *gin.Context) {
	jobID := c.Param("jobId")

	cancelled, err := h.dispatch.CancelScheduled(c.Request.Context(), jobID)
	if err != nil {
		h.writeError(c, err, "failed to cancel job")
		return
	}

	c.JSON(http.StatusOK, CancelJobResponse{JobID: jobID, Cancelled: cancelled})
}

// writeError maps domain and repository errors to HTTP statuses.
func (h *Handlers) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrInvalidSchedule),
		errors.Is(err, model.ErrUnsupportedChannel),
		errors.Is(err, model.ErrInvalidNotification),
		errors.Is(err, service.ErrInvalidStatusFilter):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, repo.ErrDuplicateRecord):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrInfrastructure):
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: msg})
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg})
	}
}

func parseID(c *gin.Context, msg string) (uuid.UUID, bool) {
	return parseUUID(c, c.Param("id"), msg)
}

// parseUUID answers 400 with msg when raw is not a UUID.
func parseUUID(c *gin.Context, raw, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
		return uuid.Nil, false
	}
	return id, true
}
