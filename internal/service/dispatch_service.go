package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/basit-dev-64/notification-system-backend/internal/notifiers"
	"github.com/basit-dev-64/notification-system-backend/internal/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"time"
)

// CancelledReason is recorded on a scheduled log whose job was cancelled.
const CancelledReason = "cancelled before delivery"

// ErrInvalidStatusFilter is returned by ListLogs for an unknown status.
var ErrInvalidStatusFilter = errors.New("invalid status filter")

// DispatchRequest asks for one delivery of a notification.
// A nil ScheduledAt means immediate delivery.
type DispatchRequest struct {
	NotificationID uuid.UUID
	ScheduledAt    *time.Time
	SenderID       *string
}

// DispatchService creates delivery logs and either sends right away or hands
// the delivery to the job store for the worker pool.
type DispatchService struct {
	notifications repo.NotificationRepository
	logs          repo.DeliveryLogRepository
	jobs          repo.JobStore
	signal        repo.JobSignal
	channels      notifiers.Resolver
	sendTimeout   time.Duration
	storePolicy   retry.Policy
	logger        zerolog.Logger
}

func NewDispatchService(
	cfg *config.Config,
	notifications repo.NotificationRepository,
	logs repo.DeliveryLogRepository,
	jobs repo.JobStore,
	signal repo.JobSignal,
	channels notifiers.Resolver,
	logger *zerolog.Logger,
) *DispatchService {
	return &DispatchService{
		notifications: notifications,
		logs:          logs,
		jobs:          jobs,
		signal:        signal,
		channels:      channels,
		sendTimeout:   cfg.Notifiers.SendTimeout,
		storePolicy:   retry.DefaultPolicy,
		logger:        logger.With().Str("layer", "dispatch_service").Logger(),
	}
}

// Dispatch sends a notification now, or schedules it when req.ScheduledAt is set.
// Immediate dispatch returns the terminal log; deferred dispatch returns the scheduled log.
func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (*model.DeliveryLog, error) {
	n, err := s.notifications.GetByID(ctx, req.NotificationID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			err = model.Infrastructure("load notification", err)
		}
		return nil, err
	}

	if req.ScheduledAt != nil {
		return s.schedule(ctx, n, *req.ScheduledAt, req.SenderID)
	}
	return s.sendNow(ctx, n, req.SenderID)
}

// sendNow is the immediate path: resolve, send once, record the outcome.
func (s *DispatchService) sendNow(ctx context.Context, n *model.Notification, senderID *string) (*model.DeliveryLog, error) {
	log := s.logger.With().Stringer("notification_id", n.ID).Logger()

	ch, err := s.channels.Resolve(n.Type)
	if err != nil {
		log.Error().Err(err).Msg("cannot resolve channel")
		return nil, err
	}

	entry := model.NewPendingLog(n.ID, senderID)
	if err := s.store(ctx, "save delivery log", func(ctx context.Context) error { return s.logs.Save(ctx, entry) }); err != nil {
		log.Error().Err(err).Msg("failed to create delivery log")
		return nil, err
	}

	res, sendErr := notifiers.SafeSend(ctx, ch, n, s.sendTimeout)
	if err := applyOutcome(entry, n.Type, res, sendErr); err != nil {
		return nil, err
	}

	// The outcome is recorded even if the caller went away during the send.
	writeCtx := context.WithoutCancel(ctx)
	if err := s.store(writeCtx, "update delivery log", func(ctx context.Context) error {
		return s.logs.Update(ctx, entry, model.StatusPending)
	}); err != nil {
		log.Error().Err(err).Stringer("log_id", entry.ID).Msg("CRITICAL: send finished but outcome was not recorded")
		return nil, err
	}

	log.Info().Stringer("log_id", entry.ID).Str("status", string(entry.Status)).Msg("immediate dispatch finished")
	return entry, nil
}

// schedule is the deferred path: create a scheduled log, then enqueue its ticket.
func (s *DispatchService) schedule(ctx context.Context, n *model.Notification, dueAt time.Time, senderID *string) (*model.DeliveryLog, error) {
	entry, err := model.NewScheduledLog(n.ID, dueAt, senderID)
	if err != nil {
		return nil, err
	}
	job, err := model.NewJob(entry)
	if err != nil {
		return nil, err
	}

	log := s.logger.With().Stringer("notification_id", n.ID).Stringer("log_id", entry.ID).Str("job_id", job.ID).Logger()

	if err := s.store(ctx, "save delivery log", func(ctx context.Context) error { return s.logs.Save(ctx, entry) }); err != nil {
		log.Error().Err(err).Msg("failed to create delivery log")
		return nil, err
	}

	var created bool
	err = s.store(ctx, "enqueue job", func(ctx context.Context) error {
		var err error
		created, err = s.jobs.Enqueue(ctx, job)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("job store rejected the job, failing the delivery log")
		if markErr := entry.MarkFailed(fmt.Sprintf("failed to schedule: %v", err)); markErr == nil {
			writeCtx := context.WithoutCancel(ctx)
			if uerr := s.store(writeCtx, "update delivery log", func(ctx context.Context) error {
				return s.logs.Update(ctx, entry, model.StatusScheduled)
			}); uerr != nil {
				log.Error().Err(uerr).Msg("CRITICAL: could not mark unscheduled log as failed")
			}
		}
		return nil, err
	}
	if !created {
		log.Warn().Msg("job was already enqueued")
	}

	if err := s.signal.Notify(ctx, job); err != nil {
		log.Warn().Err(err).Msg("wake-up not published, workers will pick the job up on their next poll")
	}

	log.Info().Time("due_at", job.DueAt).Msg("delivery scheduled")
	return entry, nil
}

// ListLogs returns delivery logs newest first, optionally filtered by status.
func (s *DispatchService) ListLogs(ctx context.Context, status *model.DeliveryStatus) ([]*model.DeliveryLog, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatusFilter, *status)
	}
	return s.logs.List(ctx, repo.LogFilter{Status: status})
}

// GetLog returns one delivery log.
func (s *DispatchService) GetLog(ctx context.Context, id uuid.UUID) (*model.DeliveryLog, error) {
	return s.logs.GetByID(ctx, id)
}

// CancelScheduled removes a job that has not been claimed yet and fails its log.
// It reports false, without error, when the job is absent or already claimed.
func (s *DispatchService) CancelScheduled(ctx context.Context, jobID string) (bool, error) {
	var cancelled bool
	err := s.store(ctx, "cancel job", func(ctx context.Context) error {
		var err error
		cancelled, err = s.jobs.Cancel(ctx, jobID)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to cancel job")
		return false, err
	}
	if !cancelled {
		s.logger.Info().Str("job_id", jobID).Msg("job absent or already claimed, nothing cancelled")
		return false, nil
	}

	entry, err := s.logs.GetByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn().Str("job_id", jobID).Msg("cancelled job had no delivery log")
			return true, nil
		}
		return true, model.Infrastructure("load delivery log", err)
	}

	prev := entry.Status
	if err := entry.MarkFailed(CancelledReason); err != nil {
		return true, nil
	}
	if err := s.store(context.WithoutCancel(ctx), "update delivery log", func(ctx context.Context) error {
		return s.logs.Update(ctx, entry, prev)
	}); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("job cancelled but delivery log not updated")
		return true, err
	}

	s.logger.Info().Str("job_id", jobID).Stringer("log_id", entry.ID).Msg("scheduled delivery cancelled")
	return true, nil
}

func (s *DispatchService) store(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, s.storePolicy, op, fn)
}

// applyOutcome moves a pending log to its terminal state for one send result.
func applyOutcome(entry *model.DeliveryLog, t model.NotificationType, res *model.SendResult, sendErr error) error {
	switch {
	case sendErr != nil:
		return entry.MarkFailed(sendErr.Error())
	case !res.Success:
		return entry.MarkFailed(res.Failure(t).Reason)
	default:
		return entry.MarkSent(res.MessageID, time.Now())
	}
}
