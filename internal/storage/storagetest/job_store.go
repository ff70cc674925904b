// Package storagetest holds behaviour suites shared by every storage back-end.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

// NewJobStoreFunc returns an empty store. It is called once per subtest.
type NewJobStoreFunc func(t *testing.T) repo.JobStore

// NewJob builds a ticket for a fresh delivery log due after delay.
// Due times are truncated to milliseconds, the coarsest precision any back-end keeps.
func NewJob(delay time.Duration) *model.Job {
	due := time.Now().Add(delay).UTC().Truncate(time.Millisecond)
	logID := uuid.New()
	return &model.Job{
		ID:            model.JobIDFor(logID, due),
		DeliveryLogID: logID,
		DueAt:         due,
	}
}

// RunJobStore checks the claim-ticket semantics every JobStore must provide.
// Subtests run sequentially so that back-ends sharing one server can reset between them.
func RunJobStore(t *testing.T, newStore NewJobStoreFunc) {
	t.Helper()
	ctx := context.Background()

	t.Run("enqueue is idempotent", func(t *testing.T) {
		s := newStore(t)
		job := NewJob(-time.Second)

		created, err := s.Enqueue(ctx, job)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.Enqueue(ctx, job)
		require.NoError(t, err)
		assert.False(t, created)

		_, err = s.Claim(ctx, "w1", time.Minute)
		require.NoError(t, err)
		_, err = s.Claim(ctx, "w1", time.Minute)
		assert.ErrorIs(t, err, repo.ErrNoJobDue)
	})

	t.Run("claim returns the earliest due ticket with its fields", func(t *testing.T) {
		s := newStore(t)
		sender := "sender-1"
		later := NewJob(-time.Second)
		earlier := NewJob(-2 * time.Second)
		earlier.SenderID = &sender
		future := NewJob(time.Hour)
		for _, j := range []*model.Job{later, future, earlier} {
			_, err := s.Enqueue(ctx, j)
			require.NoError(t, err)
		}

		got, err := s.Claim(ctx, "w1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, earlier.ID, got.ID)
		assert.Equal(t, earlier.DeliveryLogID, got.DeliveryLogID)
		assert.WithinDuration(t, earlier.DueAt, got.DueAt, time.Millisecond)
		assert.Equal(t, 1, got.Attempt)
		require.NotNil(t, got.SenderID)
		assert.Equal(t, sender, *got.SenderID)
		assert.Nil(t, got.LastError)

		got, err = s.Claim(ctx, "w2", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, later.ID, got.ID)

		_, err = s.Claim(ctx, "w3", time.Minute)
		assert.ErrorIs(t, err, repo.ErrNoJobDue, "future ticket must not be claimable")
	})

	t.Run("complete requires the lease", func(t *testing.T) {
		s := newStore(t)
		job := NewJob(-time.Second)
		_, err := s.Enqueue(ctx, job)
		require.NoError(t, err)

		claimed, err := s.Claim(ctx, "w1", time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, s.Complete(ctx, claimed.ID, "intruder"), repo.ErrLeaseLost)
		require.NoError(t, s.Complete(ctx, claimed.ID, "w1"))
		assert.ErrorIs(t, s.Complete(ctx, claimed.ID, "w1"), repo.ErrLeaseLost)
		assert.ErrorIs(t, s.Retry(ctx, claimed.ID, "w1", time.Now(), "late"), repo.ErrLeaseLost)
	})

	t.Run("retry releases the ticket and keeps the attempt count", func(t *testing.T) {
		s := newStore(t)
		job := NewJob(-time.Second)
		_, err := s.Enqueue(ctx, job)
		require.NoError(t, err)

		claimed, err := s.Claim(ctx, "w1", time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Retry(ctx, claimed.ID, "w1", time.Now().Add(-time.Millisecond), "smtp timeout"))

		again, err := s.Claim(ctx, "w2", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, job.ID, again.ID)
		assert.Equal(t, 2, again.Attempt)
		require.NotNil(t, again.LastError)
		assert.Equal(t, "smtp timeout", *again.LastError)

		assert.ErrorIs(t, s.Retry(ctx, job.ID, "w1", time.Now(), "stale"), repo.ErrLeaseLost)
		require.NoError(t, s.Retry(ctx, job.ID, "w2", time.Now().Add(time.Hour), "later"))

		_, err = s.Claim(ctx, "w3", time.Minute)
		assert.ErrorIs(t, err, repo.ErrNoJobDue)
	})

	t.Run("expired lease is reclaimed", func(t *testing.T) {
		s := newStore(t)
		job := NewJob(-time.Second)
		_, err := s.Enqueue(ctx, job)
		require.NoError(t, err)

		_, err = s.Claim(ctx, "crashed", 100*time.Millisecond)
		require.NoError(t, err)
		_, err = s.Claim(ctx, "w2", time.Minute)
		require.ErrorIs(t, err, repo.ErrNoJobDue)

		var reclaimed *model.Job
		require.Eventually(t, func() bool {
			reclaimed, err = s.Claim(ctx, "w2", time.Minute)
			return err == nil
		}, 5*time.Second, 50*time.Millisecond)
		assert.Equal(t, 2, reclaimed.Attempt)

		assert.ErrorIs(t, s.Complete(ctx, job.ID, "crashed"), repo.ErrLeaseLost)
		require.NoError(t, s.Complete(ctx, job.ID, "w2"))
	})

	t.Run("extend keeps the lease from expiring", func(t *testing.T) {
		s := newStore(t)
		job := NewJob(-time.Second)
		_, err := s.Enqueue(ctx, job)
		require.NoError(t, err)

		_, err = s.Claim(ctx, "w1", 300*time.Millisecond)
		require.NoError(t, err)
		assert.ErrorIs(t, s.Extend(ctx, job.ID, "intruder", time.Minute), repo.ErrLeaseLost)
		require.NoError(t, s.Extend(ctx, job.ID, "w1", time.Minute))

		time.Sleep(500 * time.Millisecond)
		_, err = s.Claim(ctx, "w2", time.Minute)
		assert.ErrorIs(t, err, repo.ErrNoJobDue, "extended lease must not be reclaimed")

		require.NoError(t, s.Complete(ctx, job.ID, "w1"))
		assert.ErrorIs(t, s.Extend(ctx, job.ID, "w1", time.Minute), repo.ErrLeaseLost)
	})

	t.Run("cancel only removes unclaimed tickets", func(t *testing.T) {
		s := newStore(t)
		pending := NewJob(time.Hour)
		claimed := NewJob(-time.Second)
		for _, j := range []*model.Job{pending, claimed} {
			_, err := s.Enqueue(ctx, j)
			require.NoError(t, err)
		}
		_, err := s.Claim(ctx, "w1", time.Minute)
		require.NoError(t, err)

		ok, err := s.Cancel(ctx, pending.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Cancel(ctx, pending.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.Cancel(ctx, claimed.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, s.Complete(ctx, claimed.ID, "w1"))

		ok, err = s.Cancel(ctx, "notification-missing-0")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent claims never share a ticket", func(t *testing.T) {
		s := newStore(t)
		const jobs = 25
		for i := 0; i < jobs; i++ {
			_, err := s.Enqueue(ctx, NewJob(-time.Duration(i+1)*time.Millisecond))
			require.NoError(t, err)
		}

		var (
			mu   sync.Mutex
			seen = make(map[string]string)
			wg   sync.WaitGroup
			errs = make(chan error, 5)
		)
		for w := 0; w < 5; w++ {
			owner := fmt.Sprintf("w%d", w)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					job, err := s.Claim(ctx, owner, time.Minute)
					if errors.Is(err, repo.ErrNoJobDue) {
						return
					}
					if err != nil {
						errs <- err
						return
					}
					mu.Lock()
					prev, dup := seen[job.ID]
					seen[job.ID] = owner
					mu.Unlock()
					if dup {
						errs <- fmt.Errorf("job %s claimed by %s and %s", job.ID, prev, owner)
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		assert.Len(t, seen, jobs)
	})
}
