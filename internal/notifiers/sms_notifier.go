package notifiers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/rs/zerolog"
	"io"
	"net/http"
	"time"
)

type smsRequest struct {
	From string   `json:"from,omitempty"`
	To   []string `json:"to"`
	Text string   `json:"text"`
}

type smsResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// SMSNotifier delivers SMS through an HTTP gateway that accepts a JSON batch.
type SMSNotifier struct {
	client *http.Client
	url    string
	apiKey string
	sender string
	logger zerolog.Logger
}

// NewSMSNotifier creates a new instance of SMSNotifier.
func NewSMSNotifier(cfg config.SMSConfig, timeout time.Duration, logger *zerolog.Logger) *SMSNotifier {
	return &SMSNotifier{
		client: &http.Client{Timeout: timeout},
		url:    cfg.GatewayURL,
		apiKey: cfg.APIKey,
		sender: cfg.Sender,
		logger: logger.With().Str("component", "sms_notifier").Logger(),
	}
}

// Send implements the Channel interface for SMS.
func (n *SMSNotifier) Send(ctx context.Context, notification *model.Notification) (*model.SendResult, error) {
	if notification.Type != model.TypeSMS {
		return nil, fmt.Errorf("%w: sms channel got %q", model.ErrUnsupportedChannel, notification.Type)
	}

	body, err := json.Marshal(smsRequest{
		From: n.sender,
		To:   notification.Recipients,
		Text: fmt.Sprintf("%s\n%s", notification.Subject, notification.Message),
	})
	if err != nil {
		return nil, fmt.Errorf("sms: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Error().Err(err).Stringer("notification_id", notification.ID).Msg("sms gateway unreachable")
		return nil, fmt.Errorf("sms: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed smsResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 300 {
		reason := parsed.Error
		if reason == "" {
			reason = fmt.Sprintf("gateway responded %s", resp.Status)
		}
		n.logger.Error().Int("status", resp.StatusCode).Str("error", reason).Stringer("notification_id", notification.ID).Msg("sms gateway rejected message")
		return &model.SendResult{
			Success:   false,
			Error:     reason,
			Temporary: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Metadata:  map[string]string{"provider": "sms_gateway"},
		}, nil
	}

	messageID := parsed.ID
	if messageID == "" {
		messageID = fmt.Sprintf("sms_%d", time.Now().UnixMilli())
	}

	n.logger.Info().Stringer("notification_id", notification.ID).Str("message_id", messageID).Msg("sms sent successfully")
	return &model.SendResult{
		Success:   true,
		MessageID: messageID,
		Metadata:  map[string]string{"provider": "sms_gateway"},
	}, nil
}
