package notifiers

import (
	"context"
	"errors"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
	"net/textproto"
	"strings"
	"testing"
	"time"
)

type fakeDialer struct {
	err   error
	delay time.Duration
	sent  []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.sent = append(d.sent, m...)
	return d.err
}

func TestEmailNotifier_Send(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		dialErr       error
		wantSuccess   bool
		wantTemporary bool
		wantErr       bool
	}{
		{name: "delivered", wantSuccess: true},
		{name: "mailbox unavailable", dialErr: &textproto.Error{Code: 550, Msg: "mailbox unavailable"}},
		{name: "greylisted", dialErr: &textproto.Error{Code: 451, Msg: "try again later"}, wantTemporary: true},
		{name: "code in text", dialErr: errors.New("gomail: could not send email 1: 554 5.7.1 rejected")},
		{name: "connection refused", dialErr: errors.New("dial tcp 127.0.0.1:25: connect: connection refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := &fakeDialer{err: tt.dialErr}
			notifier := newEmailNotifier(dialer, "Alerts <alerts@example.com>", testLogger())
			n := newTestNotification(t, model.TypeEmail, "a@example.com", "b@example.com")

			res, err := notifier.Send(context.Background(), n)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantTemporary, res.Temporary)
			if tt.wantSuccess {
				assert.True(t, strings.HasSuffix(res.MessageID, "@example.com>"))
				require.Len(t, dialer.sent, 1)
				assert.Equal(t, []string{"a@example.com", "b@example.com"}, dialer.sent[0].GetHeader("To"))
			}
		})
	}
}

func TestEmailNotifier_SendRespectsDeadline(t *testing.T) {
	t.Parallel()

	notifier := newEmailNotifier(&fakeDialer{delay: 200 * time.Millisecond}, "alerts@example.com", testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := notifier.Send(ctx, newTestNotification(t, model.TypeEmail, "a@example.com"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmailNotifier_RejectsOtherTypes(t *testing.T) {
	t.Parallel()

	notifier := newEmailNotifier(&fakeDialer{}, "alerts@example.com", testLogger())
	_, err := notifier.Send(context.Background(), newTestNotification(t, model.TypeSMS, "+1"))
	assert.ErrorIs(t, err, model.ErrUnsupportedChannel)
}

func TestSMTPCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 421, smtpCode(&textproto.Error{Code: 421}))
	assert.Equal(t, 550, smtpCode(errors.New("550 user unknown")))
	assert.Equal(t, 452, smtpCode(errors.New("gomail: could not send email 1: 452 too many recipients")))
	assert.Equal(t, 0, smtpCode(errors.New("EOF")))
	assert.Equal(t, 0, smtpCode(errors.New("port 5870 closed")))
}
