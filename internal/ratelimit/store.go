package ratelimit

import (
	"time"

	"github.com/dwrenner/clubdesk/internal/store"
)

// StoreLimiter backs counters with the rate_limit_counters table, so every
// service instance sharing the database shares the ceilings. The atomic upsert
// in the store serializes increments per key.
type StoreLimiter struct {
	counters *store.RateLimitStore
}

func NewStoreLimiter(counters *store.RateLimitStore) *StoreLimiter {
	return &StoreLimiter{counters: counters}
}

func (l *StoreLimiter) Check(identifier, action string, maxRequests int, window time.Duration) (Result, error) {
	count, resetAt, err := l.counters.Increment(identifier, action, window)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Allowed: count <= maxRequests,
		Count:   count,
		ResetAt: resetAt,
	}, nil
}
