package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/basit-dev-64/notification-system-backend/internal/notifiers"
	"github.com/basit-dev-64/notification-system-backend/internal/service"
	"github.com/basit-dev-64/notification-system-backend/internal/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T, health HealthCheck) *gin.Engine {
	t.Helper()
	logger := zerolog.Nop()
	cfg := &config.Config{Notifiers: config.NotifiersConfig{SendTimeout: time.Second}}

	notificationsRepo := memory.NewNotificationRepository()
	resolver := notifiers.NewDispatcherWith(map[model.NotificationType]notifiers.Channel{
		model.TypeEmail: notifiers.NewLogNotifier(&logger),
		model.TypeSMS:   notifiers.NewLogNotifier(&logger),
	})

	notifications := service.NewNotificationService(notificationsRepo, &logger)
	dispatch := service.NewDispatchService(cfg, notificationsRepo, memory.NewDeliveryLogRepository(), memory.NewJobStore(), memory.NoopSignal{}, resolver, &logger)

	return NewRouter(NewHandlers(notifications, dispatch, &logger), health)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createNotification(t *testing.T, router http.Handler, typ string, recipients ...string) NotificationResponse {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/notifications", CreateNotificationRequest{
		Type:       typ,
		Recipients: recipients,
		Subject:    "Subject",
		Message:    "Message",
	}, UserIDHeader, "user-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[NotificationResponse](t, w)
}

func TestHandlers_CreateNotification(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)

	n := createNotification(t, router, "email", "a@example.com")
	assert.NotEqual(t, uuid.Nil, n.ID)
	require.NotNil(t, n.UserID)
	assert.Equal(t, "user-1", *n.UserID)

	tests := []struct {
		name string
		body any
	}{
		{"unknown type", CreateNotificationRequest{Type: "fax", Recipients: []string{"x"}, Subject: "s", Message: "m"}},
		{"no recipients", CreateNotificationRequest{Type: "sms", Subject: "s", Message: "m"}},
		{"empty recipient", CreateNotificationRequest{Type: "sms", Recipients: []string{""}, Subject: "s", Message: "m"}},
		{"bad email", CreateNotificationRequest{Type: "email", Recipients: []string{"nope"}, Subject: "s", Message: "m"}},
		{"missing message", CreateNotificationRequest{Type: "sms", Recipients: []string{"+1"}, Subject: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/notifications", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestHandlers_NotificationCRUD(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)
	n := createNotification(t, router, "sms", "+15550001")
	path := "/api/v1/notifications/" + n.ID.String()

	w := doJSON(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, n.ID, decode[NotificationResponse](t, w).ID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/notifications", nil, UserIDHeader, "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]NotificationResponse](t, w), 1)

	w = doJSON(t, router, http.MethodGet, "/api/v1/notifications", nil, UserIDHeader, "someone-else")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]NotificationResponse](t, w))

	subject := "Updated"
	w = doJSON(t, router, http.MethodPatch, path, UpdateNotificationRequest{Subject: &subject})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Updated", decode[NotificationResponse](t, w).Subject)

	fax := "fax"
	w = doJSON(t, router, http.MethodPatch, path, UpdateNotificationRequest{Type: &fax})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/notifications/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_SendImmediate(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)
	n := createNotification(t, router, "email", "a@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/v1/notifications/send", SendNotificationRequest{NotificationID: n.ID.String()}, UserIDHeader, "sender-7")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	l := decode[DeliveryLogResponse](t, w)
	assert.Equal(t, "sent", l.Status)
	assert.Equal(t, n.ID, l.NotificationID)
	require.NotNil(t, l.MessageID)
	assert.Contains(t, *l.MessageID, "email_")
	require.NotNil(t, l.SenderID)
	assert.Equal(t, "sender-7", *l.SenderID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs/"+l.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sent", decode[DeliveryLogResponse](t, w).Status)
}

func TestHandlers_SendRejections(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)
	push := createNotification(t, router, "push", "42")
	email := createNotification(t, router, "email", "a@example.com")
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name string
		body SendNotificationRequest
		want int
	}{
		{"unknown notification", SendNotificationRequest{NotificationID: uuid.NewString()}, http.StatusNotFound},
		{"malformed id", SendNotificationRequest{NotificationID: "abc"}, http.StatusBadRequest},
		{"unsupported channel", SendNotificationRequest{NotificationID: push.ID.String()}, http.StatusBadRequest},
		{"past schedule", SendNotificationRequest{NotificationID: email.ID.String(), ScheduledAt: &past}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/notifications/send", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]DeliveryLogResponse](t, w))
}

func TestHandlers_ScheduleAndCancel(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)
	n := createNotification(t, router, "sms", "+15550001")
	due := time.Now().Add(time.Hour)

	w := doJSON(t, router, http.MethodPost, "/api/v1/notifications/send", SendNotificationRequest{NotificationID: n.ID.String(), ScheduledAt: &due})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	l := decode[DeliveryLogResponse](t, w)
	assert.Equal(t, "scheduled", l.Status)
	require.NotNil(t, l.JobID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs?status=scheduled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]DeliveryLogResponse](t, w), 1)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/jobs/"+*l.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[CancelJobResponse](t, w).Cancelled)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/jobs/"+*l.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[CancelJobResponse](t, w).Cancelled)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs?status=failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[[]DeliveryLogResponse](t, w)
	require.Len(t, logs, 1)
	assert.Equal(t, l.ID, logs[0].ID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type unavailableDispatch struct{}

func (unavailableDispatch) Dispatch(context.Context, service.DispatchRequest) (*model.DeliveryLog, error) {
	return nil, model.Infrastructure("save delivery log", errors.New("no reachable servers"))
}

func (unavailableDispatch) ListLogs(context.Context, *model.DeliveryStatus) ([]*model.DeliveryLog, error) {
	return nil, errors.New("unexpected")
}

func (unavailableDispatch) GetLog(context.Context, uuid.UUID) (*model.DeliveryLog, error) {
	return nil, errors.New("unexpected")
}

func (unavailableDispatch) CancelScheduled(context.Context, string) (bool, error) {
	return false, model.Infrastructure("cancel job", errors.New("pool closed"))
}

func TestHandlers_InfrastructureErrors(t *testing.T) {
	t.Parallel()
	logger := zerolog.Nop()
	notifications := service.NewNotificationService(memory.NewNotificationRepository(), &logger)
	router := NewRouter(NewHandlers(notifications, unavailableDispatch{}, &logger), nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/notifications/send", SendNotificationRequest{NotificationID: uuid.NewString()})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/jobs/notification-x-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	w := doJSON(t, newTestRouter(t, nil), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	down := func(context.Context) error { return errors.New("server selection timeout") }
	w = doJSON(t, newTestRouter(t, down), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestParseUUID(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"abc", "", "0f8fad5b-d9cb-469f-a165-70867728950", "0f8fad5b-d9cb-469f-a165-70867728950zz"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		id, ok := parseUUID(c, raw, "invalid notification ID format")
		assert.False(t, ok, raw)
		assert.Equal(t, uuid.Nil, id)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid notification ID format", decode[ErrorResponse](t, w).Error)
	}

	want := uuid.New()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	id, ok := parseUUID(c, want.String(), "invalid notification ID format")
	assert.True(t, ok)
	assert.Equal(t, want, id)
	assert.Zero(t, w.Body.Len())
}
