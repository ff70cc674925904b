package notifiers

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
)

// mailDialer is the part of *gomail.Dialer the notifier uses.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends notifications via SMTP.
type EmailNotifier struct {
	dialer mailDialer
	from   string
	domain string
	logger zerolog.Logger
}

// NewEmailNotifier creates a new instance of EmailNotifier.
func NewEmailNotifier(cfg config.EmailConfig, logger *zerolog.Logger) *EmailNotifier {
	return newEmailNotifier(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, logger)
}

func newEmailNotifier(d mailDialer, from string, logger *zerolog.Logger) *EmailNotifier {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.TrimSuffix(from[at+1:], ">")
	}
	return &EmailNotifier{
		dialer: d,
		from:   from,
		domain: domain,
		logger: logger.With().Str("component", "email_notifier").Logger(),
	}
}

// Send implements the Channel interface for email.
func (n *EmailNotifier) Send(ctx context.Context, notification *model.Notification) (*model.SendResult, error) {
	if notification.Type != model.TypeEmail {
		return nil, fmt.Errorf("%w: email channel got %q", model.ErrUnsupportedChannel, notification.Type)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), n.domain)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", notification.Recipients...)
	m.SetHeader("Subject", notification.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", notification.Message)

	// gomail has no context support, so the send runs aside and the caller's deadline wins.
	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()

	var err error
	select {
	case <-ctx.Done():
		n.logger.Warn().Stringer("notification_id", notification.ID).Msg("email send abandoned on context deadline")
		return nil, ctx.Err()
	case err = <-done:
	}

	if err != nil {
		if code := smtpCode(err); code >= 400 {
			n.logger.Error().Err(err).Int("smtp_code", code).Stringer("notification_id", notification.ID).Msg("smtp server rejected email")
			return &model.SendResult{
				Success:   false,
				Error:     err.Error(),
				Temporary: code < 500,
				Metadata:  map[string]string{"provider": "smtp", "smtp_code": strconv.Itoa(code)},
			}, nil
		}
		n.logger.Error().Err(err).Stringer("notification_id", notification.ID).Msg("failed to send email")
		return nil, fmt.Errorf("smtp: send failed: %w", err)
	}

	n.logger.Info().Stringer("notification_id", notification.ID).Int("recipients", len(notification.Recipients)).Msg("email sent successfully")
	return &model.SendResult{
		Success:   true,
		MessageID: messageID,
		Metadata:  map[string]string{"provider": "smtp"},
	}, nil
}

var smtpCodePattern = regexp.MustCompile(`(?:^|: )([45][0-9]{2}) `)

// smtpCode extracts the SMTP reply code of a server rejection, or 0.
// gomail formats send errors with %v, so the code is recovered from the text when the type is lost.
func smtpCode(err error) int {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code
	}
	match := smtpCodePattern.FindStringSubmatch(err.Error())
	if match == nil {
		return 0
	}
	code, _ := strconv.Atoi(match[1])
	return code
}
