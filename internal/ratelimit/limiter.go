// Package ratelimit bounds how many delivery attempts start per second.
package ratelimit

import (
	"context"
	"golang.org/x/time/rate"
)

// Limiter blocks until the caller may start one more attempt.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Local is a token bucket private to the process.
type Local struct {
	limiter *rate.Limiter
}

// NewLocal allows perSecond attempts per second with a burst of the same size.
// A non-positive perSecond disables limiting.
func NewLocal(perSecond int) *Local {
	if perSecond <= 0 {
		return &Local{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Local{limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

func (l *Local) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
