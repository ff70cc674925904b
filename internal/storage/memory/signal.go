package memory

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"time"
)

var (
	_ repo.JobSignal = (*Signal)(nil)
	_ repo.JobSignal = NoopSignal{}
)

// Signal wakes workers of the same process with timers.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

func (s *Signal) Notify(_ context.Context, job *model.Job) error {
	delay := time.Until(job.DueAt)
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	})
	return nil
}

func (s *Signal) Wakeups(context.Context) (<-chan struct{}, error) {
	return s.ch, nil
}

// NoopSignal never wakes anyone; workers rely on polling alone.
type NoopSignal struct{}

func (NoopSignal) Notify(context.Context, *model.Job) error { return nil }

func (NoopSignal) Wakeups(context.Context) (<-chan struct{}, error) { return nil, nil }
