package notifiers

import (
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/rs/zerolog"
)

const (
	ModeLogOnly    = "log_only"
	ModeProduction = "production"
)

// Dispatcher routes a notification type to the channel that delivers it.
// The routing table is fixed at construction.
type Dispatcher struct {
	channels map[model.NotificationType]Channel
}

// NewDispatcher creates a new Dispatcher and initializes the channels
// based on the application's configuration mode.
func NewDispatcher(cfg *config.Config, logger *zerolog.Logger) (*Dispatcher, error) {
	log := logger.With().Str("component", "dispatcher").Logger()
	log.Info().Str("mode", cfg.Notifiers.Mode).Msg("initializing channels")

	logNotifier := NewLogNotifier(logger)
	channels := make(map[model.NotificationType]Channel, len(model.NotificationTypes))
	for _, t := range model.NotificationTypes {
		channels[t] = logNotifier
	}

	switch cfg.Notifiers.Mode {
	case ModeLogOnly, "":
	case ModeProduction:
		if err := productionChannels(cfg.Notifiers, logger, log, channels); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown notifiers mode %q", cfg.Notifiers.Mode)
	}

	return &Dispatcher{channels: channels}, nil
}

func productionChannels(cfg config.NotifiersConfig, logger *zerolog.Logger, log zerolog.Logger, channels map[model.NotificationType]Channel) error {
	switch {
	case cfg.Email.Provider == "postmark" && cfg.Email.PostmarkServerToken != "":
		channels[model.TypeEmail] = NewPostmarkNotifier(cfg.Email, logger)
		log.Info().Msg("postmark email channel enabled")
	case cfg.Email.Provider != "postmark" && cfg.Email.Host != "":
		channels[model.TypeEmail] = NewEmailNotifier(cfg.Email, logger)
		log.Info().Msg("smtp email channel enabled")
	default:
		log.Warn().Str("provider", cfg.Email.Provider).Msg("email channel not configured, falling back to log notifier")
	}

	if cfg.SMS.GatewayURL != "" {
		channels[model.TypeSMS] = NewSMSNotifier(cfg.SMS, cfg.SendTimeout, logger)
		log.Info().Msg("sms gateway channel enabled")
	} else {
		log.Warn().Msg("sms channel not configured, falling back to log notifier")
	}

	if cfg.Telegram.BotToken != "" {
		tg, err := NewTelegramNotifier(cfg.Telegram, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize push channel: %w", err)
		}
		channels[model.TypePush] = tg
		log.Info().Msg("telegram push channel enabled")
	} else {
		log.Warn().Msg("push channel not configured, falling back to log notifier")
	}
	return nil
}

// NewDispatcherWith builds a dispatcher over an explicit routing table.
func NewDispatcherWith(channels map[model.NotificationType]Channel) *Dispatcher {
	table := make(map[model.NotificationType]Channel, len(channels))
	for t, ch := range channels {
		table[t] = ch
	}
	return &Dispatcher{channels: table}
}

// Resolve returns the channel for t, or model.ErrUnsupportedChannel.
func (d *Dispatcher) Resolve(t model.NotificationType) (Channel, error) {
	ch, ok := d.channels[t]
	if !ok || !t.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedChannel, t)
	}
	return ch, nil
}
