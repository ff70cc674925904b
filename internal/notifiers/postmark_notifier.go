package notifiers

import (
	"context"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/mrz1836/postmark"
	"github.com/rs/zerolog"
	"strings"
)

type postmarkClient interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkNotifier sends email through the Postmark transactional API.
type PostmarkNotifier struct {
	client postmarkClient
	from   string
	logger zerolog.Logger
}

// NewPostmarkNotifier creates a new instance of PostmarkNotifier.
func NewPostmarkNotifier(cfg config.EmailConfig, logger *zerolog.Logger) *PostmarkNotifier {
	return &PostmarkNotifier{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   cfg.From,
		logger: logger.With().Str("component", "postmark_notifier").Logger(),
	}
}

// Send implements the Channel interface for email.
func (n *PostmarkNotifier) Send(ctx context.Context, notification *model.Notification) (*model.SendResult, error) {
	if notification.Type != model.TypeEmail {
		return nil, fmt.Errorf("%w: email channel got %q", model.ErrUnsupportedChannel, notification.Type)
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:     n.from,
		To:       strings.Join(notification.Recipients, ","),
		Subject:  notification.Subject,
		TextBody: notification.Message,
		Tag:      "notification",
	})
	if err != nil {
		n.logger.Error().Err(err).Stringer("notification_id", notification.ID).Msg("postmark request failed")
		return nil, fmt.Errorf("postmark: send failed: %w", err)
	}
	if resp.ErrorCode > 0 {
		n.logger.Error().Int64("error_code", int64(resp.ErrorCode)).Str("error", resp.Message).Stringer("notification_id", notification.ID).Msg("postmark rejected email")
		return &model.SendResult{
			Success:  false,
			Error:    fmt.Sprintf("postmark error %d: %s", resp.ErrorCode, resp.Message),
			Metadata: map[string]string{"provider": "postmark"},
		}, nil
	}

	n.logger.Info().Stringer("notification_id", notification.ID).Str("message_id", resp.MessageID).Msg("email sent successfully")
	return &model.SendResult{
		Success:   true,
		MessageID: resp.MessageID,
		Metadata:  map[string]string{"provider": "postmark"},
	}, nil
}
