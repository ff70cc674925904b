package consumer

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/basit-dev-64/notification-system-backend/internal/notifiers"
	"github.com/basit-dev-64/notification-system-backend/internal/ratelimit"
	"github.com/basit-dev-64/notification-system-backend/internal/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"sync"
	"time"
)

const (
	// defaultWorkerCount is the default number of worker goroutines in the pool.
	defaultWorkerCount = 5
	// defaultMaxAttempts bounds how many times one job may be claimed.
	defaultMaxAttempts  = 3
	defaultPollInterval = time.Second
	defaultLease        = 5 * time.Minute
	// leaseMargin is the minimum lease left over after a full send timeout.
	leaseMargin = 10 * time.Second
	// exhaustedReason is recorded when a job is reclaimed past its budget with no error on file.
	exhaustedReason = "attempt budget exhausted"
)

// Consumer claims due jobs from the job store and delivers them with a pool of workers.
type Consumer struct {
	logger        zerolog.Logger
	jobs          repo.JobStore
	logs          repo.DeliveryLogRepository
	notifications repo.NotificationRepository
	channels      notifiers.Resolver
	limiter       ratelimit.Limiter
	signal        repo.JobSignal

	owner        string
	workerCount  int
	maxAttempts  int
	backoffBase  time.Duration
	lease        time.Duration
	pollInterval time.Duration
	sendTimeout  time.Duration
	storePolicy  retry.Policy
}

// New creates a new instance of Consumer.
func New(
	cfg *config.Config,
	logger *zerolog.Logger,
	jobs repo.JobStore,
	logs repo.DeliveryLogRepository,
	notifications repo.NotificationRepository,
	channels notifiers.Resolver,
	limiter ratelimit.Limiter,
	signal repo.JobSignal,
) *Consumer {
	owner := "worker-" + uuid.NewString()
	c := &Consumer{
		logger:        logger.With().Str("component", "consumer").Str("owner", owner).Logger(),
		jobs:          jobs,
		logs:          logs,
		notifications: notifications,
		channels:      channels,
		limiter:       limiter,
		signal:        signal,
		owner:         owner,
		workerCount:   cfg.Worker.Concurrency,
		maxAttempts:   cfg.Worker.MaxAttempts,
		backoffBase:   cfg.Worker.BackoffBase,
		lease:         cfg.Worker.LeaseDuration,
		pollInterval:  cfg.Scheduler.PollInterval,
		sendTimeout:   cfg.Notifiers.SendTimeout,
		storePolicy:   retry.DefaultPolicy,
	}
	if c.workerCount < 1 {
		c.workerCount = defaultWorkerCount
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.lease <= 0 {
		c.lease = defaultLease
	}
	if minLease := c.sendTimeout + leaseMargin; c.sendTimeout > 0 && c.lease < minLease {
		c.logger.Warn().
			Dur("lease", c.lease).
			Dur("send_timeout", c.sendTimeout).
			Dur("adjusted_lease", minLease).
			Msg("lease is shorter than the send timeout, raising it")
		c.lease = minLease
	}
	return c
}

// Start launches the worker pool.
// This is a blocking method that will run until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	wake, err := c.signal.Wakeups(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("wake-up signal unavailable, relying on polling")
		wake = nil
	}

	c.logger.Info().Int("count", c.workerCount).Dur("poll_interval", c.pollInterval).Msg("Starting worker pool")

	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= c.workerCount; i++ {
		workerID := i
		g.Go(func() error {
			c.runWorker(gctx, workerID, wake)
			return nil
		})
	}

	err = g.Wait()
	c.logger.Info().Msg("Consumer stopped")
	return err
}

// runWorker drains due jobs, then sleeps until a wake-up or the next poll tick.
func (c *Consumer) runWorker(ctx context.Context, workerID int, wake <-chan struct{}) {
	owner := fmt.Sprintf("%s-%d", c.owner, workerID)
	logger := c.logger.With().Int("worker_id", workerID).Logger()
	logger.Info().Msg("Worker started")

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		c.drain(ctx, owner, logger)

		select {
		case <-ctx.Done():
			logger.Info().Msg("Worker stopping due to context cancellation")
			return
		case _, ok := <-wake:
			if !ok {
				logger.Warn().Msg("wake-up channel closed, falling back to polling")
				wake = nil
			}
		case <-ticker.C:
		}
	}
}

// drain claims and processes jobs until none is due.
func (c *Consumer) drain(ctx context.Context, owner string, logger zerolog.Logger) {
	for ctx.Err() == nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		job, err := c.jobs.Claim(ctx, owner, c.lease)
		if err != nil {
			if !errors.Is(err, repo.ErrNoJobDue) && ctx.Err() == nil {
				logger.Error().Err(err).Msg("failed to claim job")
			}
			return
		}

		c.process(ctx, job, owner, logger)
	}
}

// process runs one attempt of a claimed job while keeping its lease alive.
// A panic leaves the job leased; it becomes claimable again when the lease expires.
func (c *Consumer) process(ctx context.Context, job *model.Job, owner string, logger zerolog.Logger) {
	log := logger.With().
		Str("job_id", job.ID).
		Stringer("log_id", job.DeliveryLogID).
		Int("attempt", job.Attempt).
		Logger()

	attemptCtx, abandon := context.WithCancel(ctx)
	defer abandon()
	stop := c.keepLease(attemptCtx, abandon, job.ID, owner, log)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("job processing panicked, lease will expire")
		}
	}()

	c.attempt(attemptCtx, job, owner, log)
}

// keepLease extends the lease every third of its duration until stop is called.
// Losing the lease cancels the attempt through abandon.
func (c *Consumer) keepLease(ctx context.Context, abandon context.CancelFunc, jobID, owner string, log zerolog.Logger) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.lease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			err := c.jobs.Extend(ctx, jobID, owner, c.lease)
			switch {
			case err == nil:
			case errors.Is(err, repo.ErrLeaseLost):
				log.Warn().Msg("lease lost, abandoning attempt")
				abandon()
				return
			default:
				log.Warn().Err(err).Msg("failed to extend lease")
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (c *Consumer) attempt(ctx context.Context, job *model.Job, owner string, log zerolog.Logger) {
	entry, err := c.logs.GetByID(ctx, job.DeliveryLogID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("delivery log is gone, dropping job")
			c.complete(ctx, job, owner, log)
			return
		}
		log.Error().Err(err).Msg("failed to load delivery log, job will be reclaimed after its lease")
		return
	}

	// A worker that died mid-attempt leaves the job to be reclaimed with a
	// higher attempt count and no failure recorded.
	if job.Attempt > c.maxAttempts && (entry.Status == model.StatusScheduled || entry.Status == model.StatusPending) {
		reason := exhaustedReason
		if job.LastError != nil {
			reason = *job.LastError
		}
		log.Error().Int("max_attempts", c.maxAttempts).Msg("job reclaimed past its attempt budget")
		c.fail(ctx, job, owner, entry, reason, log)
		return
	}

	switch {
	case entry.Status == model.StatusScheduled:
		if err := entry.MarkPending(); err != nil {
			log.Error().Err(err).Msg("cannot move delivery log to pending")
			return
		}
		if err := c.updateLog(ctx, entry, model.StatusScheduled); err != nil {
			c.onUpdateError(ctx, err, job, owner, log)
			return
		}
	case entry.Status == model.StatusPending && job.Attempt > 1:
		log.Info().Msg("resuming pending delivery")
	default:
		log.Info().Str("status", string(entry.Status)).Msg("delivery is no longer scheduled, skipping")
		c.complete(ctx, job, owner, log)
		return
	}

	n, err := c.notifications.GetByID(ctx, entry.NotificationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.fail(ctx, job, owner, entry, "notification not found", log)
			return
		}
		c.handleFailure(ctx, job, owner, entry, model.Infrastructure("load notification", err), log)
		return
	}

	ch, err := c.channels.Resolve(n.Type)
	if err != nil {
		c.fail(ctx, job, owner, entry, err.Error(), log)
		return
	}

	log.Info().Str("type", string(n.Type)).Msg("Processing delivery")
	res, sendErr := notifiers.SafeSend(ctx, ch, n, c.sendTimeout)

	switch {
	case sendErr != nil:
		c.handleFailure(ctx, job, owner, entry, sendFailure(n.Type, sendErr), log)
	case !res.Success:
		c.handleFailure(ctx, job, owner, entry, res.Failure(n.Type), log)
	default:
		c.succeed(ctx, job, owner, entry, res, log)
	}
}

func (c *Consumer) succeed(ctx context.Context, job *model.Job, owner string, entry *model.DeliveryLog, res *model.SendResult, log zerolog.Logger) {
	if err := entry.MarkSent(res.MessageID, time.Now()); err != nil {
		log.Error().Err(err).Msg("cannot mark delivery log as sent")
		return
	}
	if err := c.updateLog(ctx, entry, model.StatusPending); err != nil {
		log.Error().Err(err).Msg("CRITICAL: message sent but delivery log not updated")
		c.onUpdateError(ctx, err, job, owner, log)
		return
	}
	log.Info().Str("message_id", res.MessageID).Msg("Notification sent successfully")
	c.complete(ctx, job, owner, log)
}

// handleFailure retries transient failures with exponential backoff until
// the attempt budget is spent. Everything else fails the delivery.
func (c *Consumer) handleFailure(ctx context.Context, job *model.Job, owner string, entry *model.DeliveryLog, failure error, log zerolog.Logger) {
	reason := failureReason(failure)

	if !model.IsRetryable(failure) || job.Attempt >= c.maxAttempts {
		log.Error().Err(failure).Int("max_attempts", c.maxAttempts).Msg("delivery failed")
		c.fail(ctx, job, owner, entry, reason, log)
		return
	}

	if err := entry.RecordAttemptError(reason); err == nil {
		if err := c.updateLog(ctx, entry, model.StatusPending); err != nil {
			if errors.Is(err, repo.ErrStaleState) {
				c.onUpdateError(ctx, err, job, owner, log)
				return
			}
			log.Error().Err(err).Msg("failed to record attempt error")
		}
	}

	backoff := model.Backoff(c.backoffBase, job.Attempt)
	dueAt := time.Now().UTC().Add(backoff)
	log.Warn().Err(failure).Dur("backoff", backoff).Msg("Send failed, scheduling retry")

	writeCtx := context.WithoutCancel(ctx)
	if err := c.store(writeCtx, "retry job", func(ctx context.Context) error {
		return c.jobs.Retry(ctx, job.ID, owner, dueAt, reason)
	}); err != nil {
		log.Error().Err(err).Msg("failed to reschedule job, it will be reclaimed after its lease")
		return
	}

	next := *job
	next.DueAt = dueAt
	next.LastError = &reason
	if err := c.signal.Notify(writeCtx, &next); err != nil {
		log.Warn().Err(err).Msg("retry wake-up not published")
	}
}

// fail records a terminal failure and removes the job.
func (c *Consumer) fail(ctx context.Context, job *model.Job, owner string, entry *model.DeliveryLog, reason string, log zerolog.Logger) {
	prev := entry.Status
	if err := entry.MarkFailed(reason); err != nil {
		log.Error().Err(err).Msg("cannot mark delivery log as failed")
		return
	}
	if err := c.updateLog(ctx, entry, prev); err != nil {
		log.Error().Err(err).Msg("CRITICAL: failed to update delivery log status to 'failed'")
		c.onUpdateError(ctx, err, job, owner, log)
		return
	}
	log.Warn().Str("reason", reason).Msg("delivery marked as failed")
	c.complete(ctx, job, owner, log)
}

// onUpdateError drops the job when another actor already moved its log.
func (c *Consumer) onUpdateError(ctx context.Context, err error, job *model.Job, owner string, log zerolog.Logger) {
	if errors.Is(err, repo.ErrStaleState) || errors.Is(err, repo.ErrNotFound) {
		log.Warn().Err(err).Msg("delivery log changed underneath the worker, dropping job")
		c.complete(ctx, job, owner, log)
		return
	}
	log.Error().Err(err).Msg("failed to update delivery log, job will be reclaimed after its lease")
}

func (c *Consumer) complete(ctx context.Context, job *model.Job, owner string, log zerolog.Logger) {
	err := c.store(context.WithoutCancel(ctx), "complete job", func(ctx context.Context) error {
		return c.jobs.Complete(ctx, job.ID, owner)
	})
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrLeaseLost):
		log.Warn().Msg("lease lost before the job was completed")
	default:
		log.Error().Err(err).Msg("failed to complete job")
	}
}

// updateLog persists entry if its stored status still equals expected.
// Writes after a send outlive shutdown so the outcome is not lost.
func (c *Consumer) updateLog(ctx context.Context, entry *model.DeliveryLog, expected model.DeliveryStatus) error {
	return c.store(context.WithoutCancel(ctx), "update delivery log", func(ctx context.Context) error {
		return c.logs.Update(ctx, entry, expected)
	})
}

func (c *Consumer) store(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, c.storePolicy, op, fn)
}

// sendFailure classifies an error returned by a channel. Errors that reject the
// notification itself are terminal, the rest are treated as transport failures.
func sendFailure(t model.NotificationType, err error) error {
	var cf *model.ChannelFailure
	if errors.As(err, &cf) {
		return err
	}
	return &model.ChannelFailure{Channel: t, Reason: err.Error(), Temporary: !model.IsInvalid(err)}
}

func failureReason(err error) string {
	var cf *model.ChannelFailure
	if errors.As(err, &cf) {
		return cf.Reason
	}
	return err.Error()
}
