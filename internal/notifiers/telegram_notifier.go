package notifiers

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"net/http"
	"strconv"
	"strings"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier delivers push notifications via a Telegram bot.
// Recipients are chat ids.
type TelegramNotifier struct {
	bot    botSender
	logger zerolog.Logger
}

// NewTelegramNotifier creates a new instance of TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot api: %w", err)
	}
	return newTelegramNotifier(bot, logger), nil
}

func newTelegramNotifier(bot botSender, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:    bot,
		logger: logger.With().Str("component", "telegram_notifier").Logger(),
	}
}

// Send implements the Channel interface for push.
func (n *TelegramNotifier) Send(ctx context.Context, notification *model.Notification) (*model.SendResult, error) {
	if notification.Type != model.TypePush {
		return nil, fmt.Errorf("%w: push channel got %q", model.ErrUnsupportedChannel, notification.Type)
	}

	chatIDs := make([]int64, 0, len(notification.Recipients))
	for _, r := range notification.Recipients {
		id, err := strconv.ParseInt(strings.TrimSpace(r), 10, 64)
		if err != nil {
			return &model.SendResult{
				Success:  false,
				Error:    fmt.Sprintf("invalid telegram chat id %q", r),
				Metadata: map[string]string{"provider": "telegram"},
			}, nil
		}
		chatIDs = append(chatIDs, id)
	}

	text := fmt.Sprintf("*%s*\n\n%s", notification.Subject, notification.Message)
	sent := make([]string, 0, len(chatIDs))

	for _, chatID := range chatIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown

		resp, err := n.bot.Send(msg)
		if err != nil {
			var apiErr *tgbotapi.Error
			if errors.As(err, &apiErr) {
				n.logger.Error().Err(err).Int("code", apiErr.Code).Int64("chat_id", chatID).Stringer("notification_id", notification.ID).Msg("telegram rejected message")
				return &model.SendResult{
					Success:   false,
					Error:     apiErr.Message,
					Temporary: apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500,
					Metadata:  map[string]string{"provider": "telegram", "delivered": strings.Join(sent, ",")},
				}, nil
			}
			n.logger.Error().Err(err).Int64("chat_id", chatID).Stringer("notification_id", notification.ID).Msg("failed to send telegram message")
			return nil, fmt.Errorf("telegram: send failed: %w", err)
		}
		sent = append(sent, fmt.Sprintf("%d:%d", chatID, resp.MessageID))
	}

	n.logger.Info().Stringer("notification_id", notification.ID).Int("recipients", len(chatIDs)).Msg("telegram messages sent successfully")
	return &model.SendResult{
		Success:   true,
		MessageID: strings.Join(sent, ","),
		Metadata:  map[string]string{"provider": "telegram"},
	}, nil
}
