package notifiers

import (
	"context"
	"encoding/json"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSMSNotifier_Send(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		wantSuccess   bool
		wantTemporary bool
		wantMessageID string
		wantReason    string
	}{
		{name: "accepted", status: http.StatusOK, body: `{"id":"gw-123"}`, wantSuccess: true, wantMessageID: "gw-123"},
		{name: "accepted without id", status: http.StatusAccepted, body: ``, wantSuccess: true},
		{name: "bad number", status: http.StatusBadRequest, body: `{"error":"invalid number"}`, wantReason: "invalid number"},
		{name: "throttled", status: http.StatusTooManyRequests, body: `{}`, wantTemporary: true},
		{name: "gateway down", status: http.StatusBadGateway, body: `oops`, wantTemporary: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu   sync.Mutex
				got  smsRequest
				auth string
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				auth = r.Header.Get("Authorization")
				_ = json.NewDecoder(r.Body).Decode(&got)
				mu.Unlock()
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			notifier := NewSMSNotifier(config.SMSConfig{GatewayURL: srv.URL, APIKey: "secret", Sender: "ACME"}, time.Second, testLogger())
			res, err := notifier.Send(context.Background(), newTestNotification(t, model.TypeSMS, "+15550001", "+15550002"))
			require.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, "Bearer secret", auth)
			assert.Equal(t, []string{"+15550001", "+15550002"}, got.To)
			assert.Equal(t, "ACME", got.From)

			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantTemporary, res.Temporary)
			if tt.wantMessageID != "" {
				assert.Equal(t, tt.wantMessageID, res.MessageID)
			}
			if tt.wantSuccess && tt.wantMessageID == "" {
				assert.True(t, strings.HasPrefix(res.MessageID, "sms_"))
			}
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, res.Error)
			}
		})
	}
}

func TestSMSNotifier_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	notifier := NewSMSNotifier(config.SMSConfig{GatewayURL: url}, time.Second, testLogger())
	res, err := notifier.Send(context.Background(), newTestNotification(t, model.TypeSMS, "+1"))
	assert.Error(t, err)
	assert.Nil(t, res)
}
