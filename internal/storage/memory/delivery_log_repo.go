package memory

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/google/uuid"
	"sort"
	"sync"
)

var _ repo.DeliveryLogRepository = (*DeliveryLogRepository)(nil)

// DeliveryLogRepository keeps delivery logs in a map.
type DeliveryLogRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]model.DeliveryLog
}

func NewDeliveryLogRepository() *DeliveryLogRepository {
	return &DeliveryLogRepository{items: make(map[uuid.UUID]model.DeliveryLog)}
}

func (r *DeliveryLogRepository) Save(_ context.Context, l *model.DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[l.ID]; ok {
		return repo.ErrDuplicateRecord
	}
	r.items[l.ID] = cloneLog(l)
	return nil
}

func (r *DeliveryLogRepository) GetByID(_ context.Context, id uuid.UUID) (*model.DeliveryLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := cloneLog(&l)
	return &out, nil
}

func (r *DeliveryLogRepository) GetByJobID(_ context.Context, jobID string) (*model.DeliveryLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.items {
		if l.JobID != nil && *l.JobID == jobID {
			out := cloneLog(&l)
			return &out, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *DeliveryLogRepository) List(_ context.Context, filter repo.LogFilter) ([]*model.DeliveryLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.DeliveryLog, 0, len(r.items))
	for _, l := range r.items {
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		if filter.NotificationID != nil && l.NotificationID != *filter.NotificationID {
			continue
		}
		c := cloneLog(&l)
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *DeliveryLogRepository) Update(_ context.Context, l *model.DeliveryLog, expected model.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[l.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if stored.Status != expected {
		return repo.ErrStaleState
	}
	r.items[l.ID] = cloneLog(l)
	return nil
}

func cloneLog(l *model.DeliveryLog) model.DeliveryLog {
	c := *l
	c.ScheduledAt = clonePtr(l.ScheduledAt)
	c.SentAt = clonePtr(l.SentAt)
	c.MessageID = clonePtr(l.MessageID)
	c.ErrorMessage = clonePtr(l.ErrorMessage)
	c.SenderID = clonePtr(l.SenderID)
	c.JobID = clonePtr(l.JobID)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
