package consumer

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"github.com/basit-dev-64/notification-system-backend/internal/notifiers"
	"github.com/basit-dev-64/notification-system-backend/internal/ratelimit"
	"github.com/basit-dev-64/notification-system-backend/internal/service"
	"github.com/basit-dev-64/notification-system-backend/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

// countingChannel records every send per notification and answers with respond.
type countingChannel struct {
	mu      sync.Mutex
	calls   map[uuid.UUID]int
	respond func(call int) (*model.SendResult, error)
}

func newCountingChannel(respond func(call int) (*model.SendResult, error)) *countingChannel {
	return &countingChannel{calls: make(map[uuid.UUID]int), respond: respond}
}

func (c *countingChannel) Send(_ context.Context, n *model.Notification) (*model.SendResult, error) {
	c.mu.Lock()
	c.calls[n.ID]++
	call := c.calls[n.ID]
	c.mu.Unlock()
	return c.respond(call)
}

func (c *countingChannel) Calls(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func (c *countingChannel) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func alwaysSent(int) (*model.SendResult, error) {
	return &model.SendResult{Success: true, MessageID: "msg"}, nil
}

type harness struct {
	cfg           *config.Config
	notifications *memory.NotificationRepository
	logs          *memory.DeliveryLogRepository
	jobs          *memory.JobStore
	signal        *memory.Signal
	resolver      *notifiers.Dispatcher
	dispatch      *service.DispatchService
	logger        zerolog.Logger
}

func newHarness(t *testing.T, channels map[model.NotificationType]notifiers.Channel) *harness {
	t.Helper()
	h := &harness{
		cfg: &config.Config{
			Scheduler: config.SchedulerConfig{PollInterval: 10 * time.Millisecond},
			Worker: config.WorkerConfig{
				Concurrency:   3,
				MaxAttempts:   3,
				BackoffBase:   10 * time.Millisecond,
				LeaseDuration: time.Minute,
			},
			Notifiers: config.NotifiersConfig{SendTimeout: time.Second},
		},
		notifications: memory.NewNotificationRepository(),
		logs:          memory.NewDeliveryLogRepository(),
		jobs:          memory.NewJobStore(),
		signal:        memory.NewSignal(),
		resolver:      notifiers.NewDispatcherWith(channels),
		logger:        zerolog.Nop(),
	}
	h.dispatch = service.NewDispatchService(h.cfg, h.notifications, h.logs, h.jobs, h.signal, h.resolver, &h.logger)
	return h
}

func (h *harness) newConsumer() *Consumer {
	return New(h.cfg, &h.logger, h.jobs, h.logs, h.notifications, h.resolver, ratelimit.NewLocal(0), h.signal)
}

// start runs a worker process over the shared stores until the test ends.
func (h *harness) start(t *testing.T) {
	t.Helper()
	h.run(t, h.newConsumer())
}

func (h *harness) run(t *testing.T, c *Consumer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (h *harness) schedule(t *testing.T, typ model.NotificationType, in time.Duration) (*model.Notification, *model.DeliveryLog) {
	t.Helper()
	recipient := "+15550001"
	if typ == model.TypeEmail {
		recipient = "a@example.com"
	}
	n, err := model.NewNotification(typ, []string{recipient}, "Subject", "Message", nil)
	require.NoError(t, err)
	_, err = h.notifications.Save(context.Background(), n)
	require.NoError(t, err)

	due := time.Now().Add(in)
	l, err := h.dispatch.Dispatch(context.Background(), service.DispatchRequest{NotificationID: n.ID, ScheduledAt: &due})
	require.NoError(t, err)
	return n, l
}

func (h *harness) eventuallyStatus(t *testing.T, id uuid.UUID, want model.DeliveryStatus) *model.DeliveryLog {
	t.Helper()
	var last *model.DeliveryLog
	require.Eventually(t, func() bool {
		l, err := h.logs.GetByID(context.Background(), id)
		if err != nil {
			return false
		}
		last = l
		return l.Status == want
	}, waitFor, tick)
	return last
}

func TestConsumer_DeliversScheduledNotification(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(alwaysSent)
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})
	h.start(t)

	n, l := h.schedule(t, model.TypeSMS, 30*time.Millisecond)

	sent := h.eventuallyStatus(t, l.ID, model.StatusSent)
	require.NotNil(t, sent.MessageID)
	assert.Equal(t, "msg", *sent.MessageID)
	assert.NotNil(t, sent.SentAt)
	assert.Equal(t, 1, ch.Calls(n.ID))
	assert.Eventually(t, func() bool { return h.jobs.Len() == 0 }, waitFor, tick)
}

func TestConsumer_RetriesThenFailsWithLastError(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(func(call int) (*model.SendResult, error) {
		return nil, fmt.Errorf("boom %d", call)
	})
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})
	h.start(t)

	n, l := h.schedule(t, model.TypeSMS, 10*time.Millisecond)

	failed := h.eventuallyStatus(t, l.ID, model.StatusFailed)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "boom 3", *failed.ErrorMessage)
	assert.Equal(t, 3, ch.Calls(n.ID))
	assert.Eventually(t, func() bool { return h.jobs.Len() == 0 }, waitFor, tick)

	// No further attempts after the budget is spent.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, ch.Calls(n.ID))
}

func TestConsumer_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(func(call int) (*model.SendResult, error) {
		if call == 1 {
			return &model.SendResult{Error: "throttled", Temporary: true}, nil
		}
		return &model.SendResult{Success: true, MessageID: "second-try"}, nil
	})
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})
	h.start(t)

	n, l := h.schedule(t, model.TypeSMS, 10*time.Millisecond)

	sent := h.eventuallyStatus(t, l.ID, model.StatusSent)
	assert.Equal(t, "second-try", *sent.MessageID)
	assert.Equal(t, 2, ch.Calls(n.ID))
}

func TestConsumer_PermanentFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(func(int) (*model.SendResult, error) {
		return &model.SendResult{Error: "invalid number"}, nil
	})
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})
	h.start(t)

	n, l := h.schedule(t, model.TypeSMS, 10*time.Millisecond)

	failed := h.eventuallyStatus(t, l.ID, model.StatusFailed)
	assert.Equal(t, "invalid number", *failed.ErrorMessage)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ch.Calls(n.ID))
}

func TestConsumer_PanickingChannelIsRetried(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(func(call int) (*model.SendResult, error) {
		if call < 3 {
			panic("driver bug")
		}
		return &model.SendResult{Success: true, MessageID: "ok"}, nil
	})
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})
	h.start(t)

	n, l := h.schedule(t, model.TypeSMS, 10*time.Millisecond)

	h.eventuallyStatus(t, l.ID, model.StatusSent)
	assert.Equal(t, 3, ch.Calls(n.ID))
}

func TestConsumer_EachJobDeliveredOnceAcrossWorkers(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(alwaysSent)
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})

	const total = 30
	type scheduled struct {
		n *model.Notification
		l *model.DeliveryLog
	}
	var all []scheduled
	for i := 0; i < total; i++ {
		n, l := h.schedule(t, model.TypeSMS, 50*time.Millisecond)
		all = append(all, scheduled{n, l})
	}

	// Two worker processes race over the same job store.
	h.start(t)
	h.start(t)

	for _, s := range all {
		h.eventuallyStatus(t, s.l.ID, model.StatusSent)
	}
	for _, s := range all {
		assert.Equal(t, 1, ch.Calls(s.n.ID), "notification %s", s.n.ID)
	}
	assert.Equal(t, total, ch.Total())
}

func TestConsumer_CancelledJobIsNeverSent(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(alwaysSent)
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})
	h.start(t)

	_, l := h.schedule(t, model.TypeSMS, 150*time.Millisecond)

	cancelled, err := h.dispatch.CancelScheduled(context.Background(), *l.JobID)
	require.NoError(t, err)
	require.True(t, cancelled)

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, ch.Total())

	stored, err := h.logs.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
}

func TestConsumer_TerminalLogIsSkipped(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(alwaysSent)
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})

	_, l := h.schedule(t, model.TypeSMS, 30*time.Millisecond)

	// Another actor already finished this delivery.
	stored, err := h.logs.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.NoError(t, stored.MarkFailed("resolved elsewhere"))
	require.NoError(t, h.logs.Update(context.Background(), stored, model.StatusScheduled))

	h.start(t)

	assert.Eventually(t, func() bool { return h.jobs.Len() == 0 }, waitFor, tick)
	assert.Zero(t, ch.Total())

	after, err := h.logs.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, "resolved elsewhere", *after.ErrorMessage)
}

func TestConsumer_MissingNotificationFails(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(alwaysSent)
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})

	n, l := h.schedule(t, model.TypeSMS, 30*time.Millisecond)
	require.NoError(t, h.notifications.Delete(context.Background(), n.ID))

	h.start(t)

	failed := h.eventuallyStatus(t, l.ID, model.StatusFailed)
	assert.Equal(t, "notification not found", *failed.ErrorMessage)
	assert.Zero(t, ch.Total())
	assert.Eventually(t, func() bool { return h.jobs.Len() == 0 }, waitFor, tick)
}

func TestConsumer_UnsupportedChannelFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{})
	h.start(t)

	_, l := h.schedule(t, model.TypeEmail, 10*time.Millisecond)

	failed := h.eventuallyStatus(t, l.ID, model.StatusFailed)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, model.ErrUnsupportedChannel.Error())
	assert.Eventually(t, func() bool { return h.jobs.Len() == 0 }, waitFor, tick)
}

func slowSend(d time.Duration) func(int) (*model.SendResult, error) {
	return func(call int) (*model.SendResult, error) {
		time.Sleep(d)
		return alwaysSent(call)
	}
}

func TestConsumer_LeaseCoversSendTimeout(t *testing.T) {
	t.Parallel()
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{})
	h.cfg.Worker.LeaseDuration = 50 * time.Millisecond

	c := h.newConsumer()
	assert.Equal(t, h.cfg.Notifiers.SendTimeout+leaseMargin, c.lease)
}

func TestConsumer_ShortLeaseDoesNotDuplicateSlowSend(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(slowSend(200 * time.Millisecond))
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})
	h.cfg.Worker.LeaseDuration = 50 * time.Millisecond
	h.start(t)
	h.start(t)

	n, l := h.schedule(t, model.TypeSMS, 10*time.Millisecond)

	h.eventuallyStatus(t, l.ID, model.StatusSent)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, ch.Calls(n.ID))
}

func TestConsumer_LeaseIsExtendedDuringSend(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(slowSend(500 * time.Millisecond))
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})

	// Both processes claim with a lease far shorter than the send.
	for i := 0; i < 2; i++ {
		c := h.newConsumer()
		c.lease = 150 * time.Millisecond
		h.run(t, c)
	}

	n, l := h.schedule(t, model.TypeSMS, 10*time.Millisecond)

	h.eventuallyStatus(t, l.ID, model.StatusSent)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, ch.Calls(n.ID))
}

func TestConsumer_LostLeaseAbandonsAttempt(t *testing.T) {
	t.Parallel()
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{})
	job := &model.Job{ID: "job-1", DeliveryLogID: uuid.New(), DueAt: time.Now().Add(-time.Second)}
	_, err := h.jobs.Enqueue(context.Background(), job)
	require.NoError(t, err)
	_, err = h.jobs.Claim(context.Background(), "other-worker", time.Minute)
	require.NoError(t, err)

	c := h.newConsumer()
	c.lease = 30 * time.Millisecond
	ctx, abandon := context.WithCancel(context.Background())
	defer abandon()
	stop := c.keepLease(ctx, abandon, job.ID, "this-worker", h.logger)
	defer stop()

	assert.Eventually(t, func() bool { return ctx.Err() != nil }, waitFor, tick)
}

// crashAttempts claims the job of l with zero-length leases, as workers that died mid-attempt would.
func (h *harness) crashAttempts(t *testing.T, l *model.DeliveryLog, claims int) {
	t.Helper()
	ctx := context.Background()
	require.NotNil(t, l.JobID)
	require.Eventually(t, func() bool {
		_, err := h.jobs.Claim(ctx, "crashed-1", 0)
		return err == nil
	}, waitFor, tick)
	for i := 2; i <= claims; i++ {
		_, err := h.jobs.Claim(ctx, fmt.Sprintf("crashed-%d", i), 0)
		require.NoError(t, err)
	}
	job, ok := h.jobs.Get(*l.JobID)
	require.True(t, ok)
	require.Equal(t, claims, job.Attempt)
}

func TestConsumer_ReclaimPastBudgetFailsWithoutSending(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(alwaysSent)
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})

	_, l := h.schedule(t, model.TypeSMS, 10*time.Millisecond)
	h.crashAttempts(t, l, 3)

	stored, err := h.logs.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.NoError(t, stored.MarkPending())
	require.NoError(t, h.logs.Update(context.Background(), stored, model.StatusScheduled))

	h.start(t)

	failed := h.eventuallyStatus(t, l.ID, model.StatusFailed)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, exhaustedReason, *failed.ErrorMessage)
	assert.Zero(t, ch.Total())
	assert.Eventually(t, func() bool { return h.jobs.Len() == 0 }, waitFor, tick)
}

func TestConsumer_ReclaimPastBudgetKeepsLastError(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(alwaysSent)
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})

	_, l := h.schedule(t, model.TypeSMS, 10*time.Millisecond)
	h.crashAttempts(t, l, 1)
	require.NoError(t, h.jobs.Retry(context.Background(), *l.JobID, "crashed-1", time.Now(), "smtp timeout"))
	_, err := h.jobs.Claim(context.Background(), "crashed-2", 0)
	require.NoError(t, err)
	_, err = h.jobs.Claim(context.Background(), "crashed-3", 0)
	require.NoError(t, err)

	h.start(t)

	failed := h.eventuallyStatus(t, l.ID, model.StatusFailed)
	assert.Equal(t, "smtp timeout", *failed.ErrorMessage)
	assert.Zero(t, ch.Total())
}

func TestConsumer_RejectedSendErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	ch := newCountingChannel(func(int) (*model.SendResult, error) {
		return nil, fmt.Errorf("%w: sms channel got %q", model.ErrUnsupportedChannel, model.TypeEmail)
	})
	h := newHarness(t, map[model.NotificationType]notifiers.Channel{model.TypeSMS: ch})
	h.start(t)

	n, l := h.schedule(t, model.TypeSMS, 10*time.Millisecond)

	failed := h.eventuallyStatus(t, l.ID, model.StatusFailed)
	assert.Contains(t, *failed.ErrorMessage, model.ErrUnsupportedChannel.Error())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, ch.Calls(n.ID))
}

func TestSendFailure(t *testing.T) {
	t.Parallel()
	passthrough := &model.ChannelFailure{Channel: model.TypeSMS, Reason: "invalid number"}

	tests := []struct {
		name       string
		err        error
		retryable  bool
		wantReason string
	}{
		{"transport error", errors.New("connection reset"), true, "connection reset"},
		{"deadline", context.DeadlineExceeded, true, context.DeadlineExceeded.Error()},
		{"unsupported channel", fmt.Errorf("%w: sms channel got %q", model.ErrUnsupportedChannel, model.TypeEmail), false, model.ErrUnsupportedChannel.Error() + `: sms channel got "email"`},
		{"invalid notification", fmt.Errorf("%w: empty recipient", model.ErrInvalidNotification), false, model.ErrInvalidNotification.Error() + ": empty recipient"},
		{"channel failure", passthrough, false, "invalid number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sendFailure(model.TypeSMS, tt.err)
			assert.Equal(t, tt.retryable, model.IsRetryable(got))
			assert.Equal(t, tt.wantReason, failureReason(got))
		})
	}
}
