package ratelimit

import (
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the process-local implementation. Suitable for
// single-instance deployments only; counters are not shared across processes
// and do not survive restarts.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*entry),
	}
}

func (l *MemoryLimiter) Check(identifier, action string, maxRequests int, window time.Duration) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := identifier + "|" + action
	now := time.Now()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{count: 0, resetAt: now.Add(window)}
		l.entries[key] = e
	}
	e.count++

	return Result{
		Allowed: e.count <= maxRequests,
		Count:   e.count,
		ResetAt: e.resetAt,
	}, nil
}

// Sweep removes expired windows to bound memory. Called periodically by the
// cleanup job.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}
