// Package retry runs document-store and job-store writes with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	repo "github.com/basit-dev-64/notification-system-backend/internal/domain/repository"
	goretry "github.com/sethvargo/go-retry"
	"time"
)

// Policy bounds the retries of one operation.
type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultPolicy retries twice, after 100ms and 200ms.
var DefaultPolicy = Policy{MaxRetries: 2, BaseDelay: 100 * time.Millisecond}

// Do runs fn until it succeeds, fails permanently, or the policy is exhausted.
// Repository sentinels are permanent and returned as they are; anything else
// that survives the retries is wrapped as an infrastructure failure.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	backoff := goretry.WithMaxRetries(p.MaxRetries, goretry.NewExponential(p.BaseDelay))

	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || permanent(err) {
			return err
		}
		return goretry.RetryableError(err)
	})
	if err == nil || permanent(err) {
		return err
	}
	return model.Infrastructure(op, err)
}

func permanent(err error) bool {
	return errors.Is(err, repo.ErrNotFound) ||
		errors.Is(err, repo.ErrDuplicateRecord) ||
		errors.Is(err, repo.ErrStaleState) ||
		errors.Is(err, repo.ErrLeaseLost) ||
		errors.Is(err, repo.ErrNoJobDue) ||
		errors.Is(err, model.ErrInvalidTransition) ||
		errors.Is(err, context.Canceled)
}
