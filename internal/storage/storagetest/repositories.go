package storagetest

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

// RunNotificationRepository checks content-record persistence.
func RunNotificationRepository(t *testing.T, r repo.NotificationRepository) {
	t.Helper()
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()

	older, err := model.NewNotification(model.TypeEmail, []string{"a@example.com"}, "Older", "Body", &owner)
	require.NoError(t, err)
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	newer, err := model.NewNotification(model.TypeSMS, []string{"+15550001"}, "Newer", "Body", &owner)
	require.NoError(t, err)
	anonymous, err := model.NewNotification(model.TypePush, []string{"chat-1"}, "Anon", "Body", nil)
	require.NoError(t, err)

	for _, n := range []*model.Notification{older, newer, anonymous} {
		_, err := r.Save(ctx, n)
		require.NoError(t, err)
	}
	_, err = r.Save(ctx, older)
	assert.ErrorIs(t, err, repo.ErrDuplicateRecord)

	got, err := r.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.Type, got.Type)
	assert.Equal(t, newer.Recipients, got.Recipients)
	assert.Equal(t, newer.Subject, got.Subject)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, owner, *got.OwnerID)
	assert.WithinDuration(t, newer.CreatedAt, got.CreatedAt, time.Millisecond)

	mine, err := r.List(ctx, repo.NotificationFilter{OwnerID: &owner})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)

	subject := "Changed"
	require.NoError(t, got.Apply(model.NotificationPatch{Subject: &subject}))
	require.NoError(t, r.Update(ctx, got))
	changed, err := r.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Changed", changed.Subject)

	require.NoError(t, r.Delete(ctx, anonymous.ID))
	assert.ErrorIs(t, r.Delete(ctx, anonymous.ID), repo.ErrNotFound)
	_, err = r.GetByID(ctx, anonymous.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, r.Update(ctx, anonymous), repo.ErrNotFound)
}

// RunDeliveryLogRepository checks delivery-log persistence and the conditional update.
func RunDeliveryLogRepository(t *testing.T, r repo.DeliveryLogRepository) {
	t.Helper()
	ctx := context.Background()
	sender := "sender-1"

	scheduled, err := model.NewScheduledLog(uuid.New(), time.Now().Add(time.Hour), &sender)
	require.NoError(t, err)
	require.NoError(t, r.Save(ctx, scheduled))
	assert.ErrorIs(t, r.Save(ctx, scheduled), repo.ErrDuplicateRecord)

	byJob, err := r.GetByJobID(ctx, *scheduled.JobID)
	require.NoError(t, err)
	assert.Equal(t, scheduled.ID, byJob.ID)
	assert.Equal(t, model.StatusScheduled, byJob.Status)
	require.NotNil(t, byJob.ScheduledAt)
	assert.WithinDuration(t, *scheduled.ScheduledAt, *byJob.ScheduledAt, time.Millisecond)
	require.NotNil(t, byJob.SenderID)
	assert.Equal(t, sender, *byJob.SenderID)

	_, err = r.GetByJobID(ctx, "notification-absent-0")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// Two workers read the same scheduled log; only the first transition wins.
	a, err := r.GetByID(ctx, scheduled.ID)
	require.NoError(t, err)
	b, err := r.GetByID(ctx, scheduled.ID)
	require.NoError(t, err)
	require.NoError(t, a.MarkPending())
	require.NoError(t, r.Update(ctx, a, model.StatusScheduled))
	require.NoError(t, b.MarkFailed("cancelled before delivery"))
	assert.ErrorIs(t, r.Update(ctx, b, model.StatusScheduled), repo.ErrStaleState)

	require.NoError(t, a.MarkSent("msg-1", time.Now()))
	require.NoError(t, r.Update(ctx, a, model.StatusPending))
	sent, err := r.GetByID(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, sent.Status)
	require.NotNil(t, sent.MessageID)
	assert.Equal(t, "msg-1", *sent.MessageID)
	assert.NotNil(t, sent.SentAt)

	// Logs without a job id must not collide with each other.
	first := model.NewPendingLog(scheduled.NotificationID, nil)
	first.CreatedAt = first.CreatedAt.Add(time.Second)
	second := model.NewPendingLog(uuid.New(), nil)
	require.NoError(t, r.Save(ctx, first))
	require.NoError(t, r.Save(ctx, second))

	missing := model.NewPendingLog(uuid.New(), nil)
	assert.ErrorIs(t, r.Update(ctx, missing, model.StatusPending), repo.ErrNotFound)

	pending := model.StatusPending
	list, err := r.List(ctx, repo.LogFilter{Status: &pending, NotificationID: &scheduled.NotificationID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	all, err := r.List(ctx, repo.LogFilter{NotificationID: &scheduled.NotificationID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID, "newest first")
}
