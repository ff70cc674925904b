// Package memory holds process-local implementations of the repositories.
// They back the "memory" drivers and serve as fakes in tests.
package memory

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/google/uuid"
	"sort"
	"sync"
)

var _ repo.NotificationRepository = (*NotificationRepository)(nil)

// NotificationRepository keeps notifications in a map.
type NotificationRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]model.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{items: make(map[uuid.UUID]model.Notification)}
}

func (r *NotificationRepository) Save(_ context.Context, n *model.Notification) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[n.ID]; ok {
		return nil, repo.ErrDuplicateRecord
	}
	r.items[n.ID] = cloneNotification(n)
	out := cloneNotification(n)
	return &out, nil
}

func (r *NotificationRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := cloneNotification(&n)
	return &out, nil
}

func (r *NotificationRepository) List(_ context.Context, filter repo.NotificationFilter) ([]*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Notification, 0, len(r.items))
	for _, n := range r.items {
		if filter.OwnerID != nil && (n.OwnerID == nil || *n.OwnerID != *filter.OwnerID) {
			continue
		}
		c := cloneNotification(&n)
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *NotificationRepository) Update(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[n.ID]; !ok {
		return repo.ErrNotFound
	}
	r.items[n.ID] = cloneNotification(n)
	return nil
}

func (r *NotificationRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func cloneNotification(n *model.Notification) model.Notification {
	c := *n
	c.Recipients = append([]string(nil), n.Recipients...)
	if n.OwnerID != nil {
		owner := *n.OwnerID
		c.OwnerID = &owner
	}
	return c
}
