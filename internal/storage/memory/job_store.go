package memory

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	"sync"
	"time"
)

var _ repo.JobStore = (*JobStore)(nil)

type storedJob struct {
	job         model.Job
	lockedBy    string
	lockedUntil time.Time
}

// JobStore is a mutex-guarded job store. Claims are atomic within one process only.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*storedJob
	now  func() time.Time
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*storedJob),
		now:  time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *JobStore) WithClock(now func() time.Time) *JobStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *JobStore) Enqueue(_ context.Context, job *model.Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return false, nil
	}
	s.jobs[job.ID] = &storedJob{job: cloneJob(job)}
	return true, nil
}

func (s *JobStore) Claim(_ context.Context, owner string, lease time.Duration) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var next *storedJob
	for _, sj := range s.jobs {
		if sj.job.DueAt.After(now) {
			continue
		}
		if sj.lockedBy != "" && sj.lockedUntil.After(now) {
			continue
		}
		if next == nil || sj.job.DueAt.Before(next.job.DueAt) {
			next = sj
		}
	}
	if next == nil {
		return nil, repo.ErrNoJobDue
	}

	next.job.Attempt++
	next.lockedBy = owner
	next.lockedUntil = now.Add(lease)
	out := cloneJob(&next.job)
	return &out, nil
}

func (s *JobStore) Complete(_ context.Context, jobID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sj, err := s.held(jobID, owner)
	if err != nil {
		return err
	}
	delete(s.jobs, sj.job.ID)
	return nil
}

func (s *JobStore) Retry(_ context.Context, jobID, owner string, dueAt time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sj, err := s.held(jobID, owner)
	if err != nil {
		return err
	}
	sj.job.DueAt = dueAt
	sj.job.LastError = &lastErr
	sj.lockedBy = ""
	sj.lockedUntil = time.Time{}
	return nil
}

func (s *JobStore) Extend(_ context.Context, jobID, owner string, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sj, err := s.held(jobID, owner)
	if err != nil {
		return err
	}
	sj.lockedUntil = s.now().Add(lease)
	return nil
}

func (s *JobStore) Cancel(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sj, ok := s.jobs[jobID]
	if !ok || sj.job.Attempt > 0 {
		return false, nil
	}
	delete(s.jobs, jobID)
	return true, nil
}

// Len returns the number of stored tickets.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Get returns a copy of a stored ticket.
func (s *JobStore) Get(jobID string) (*model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sj, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	out := cloneJob(&sj.job)
	return &out, true
}

func (s *JobStore) held(jobID, owner string) (*storedJob, error) {
	sj, ok := s.jobs[jobID]
	if !ok || sj.lockedBy != owner {
		return nil, repo.ErrLeaseLost
	}
	return sj, nil
}

func cloneJob(j *model.Job) model.Job {
	c := *j
	c.SenderID = clonePtr(j.SenderID)
	c.LastError = clonePtr(j.LastError)
	return c
}
