package notifiers

import (
	"context"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/rs/zerolog"
	"strings"
	"time"
)

// LogNotifier is a mock channel that logs the notification instead of delivering it.
// It serves every notification type in "log_only" mode.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a new instance of LogNotifier.
func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With().Str("component", "log_notifier").Logger(),
	}
}

// Send implements the Channel interface.
func (n *LogNotifier) Send(ctx context.Context, notification *model.Notification) (*model.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messageID := fmt.Sprintf("%s_%d", notification.Type, time.Now().UnixMilli())

	n.logger.Info().
		Stringer("notification_id", notification.ID).
		Str("type", string(notification.Type)).
		Str("recipients", strings.Join(notification.Recipients, ",")).
		Str("subject", notification.Subject).
		Str("message_id", messageID).
		Msg(">>> MOCK SEND: Notification dispatched")

	return &model.SendResult{
		Success:   true,
		MessageID: messageID,
		Metadata:  map[string]string{"provider": "log"},
	}, nil
}
