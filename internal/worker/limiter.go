// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles job starts across all workers of a pool. A nil
// *Limiter never waits.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows perSecond job starts per second with a burst of one.
// It returns nil when perSecond is not positive.
func NewLimiter(perSecond float64) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Wait blocks until a start is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
