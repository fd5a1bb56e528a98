package store

import (
	"database/sql"
	"fmt"
	"time"
)

type RateLimitStore struct {
	db *sql.DB
}

func NewRateLimitStore(db *sql.DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

// Increment performs the atomic read-or-create-window-and-increment step for
// one (identifier, action) key. SQLite serializes writers, so two concurrent
// calls can never both observe the same pre-increment count. A rolled-over
// window restarts at count 1.
func (s *RateLimitStore) Increment(identifier, action string, window time.Duration) (count int, resetAt time.Time, err error) {
	modifier := fmt.Sprintf("+%d seconds", int(window.Seconds()))
	row := s.db.QueryRow(
		`INSERT INTO rate_limit_counters (identifier, action, count, window_start, reset_at)
		 VALUES (?, ?, 1, datetime('now'), datetime('now', ?))
		 ON CONFLICT(identifier, action) DO UPDATE SET
		     count = CASE WHEN rate_limit_counters.reset_at <= datetime('now')
		                  THEN 1 ELSE rate_limit_counters.count + 1 END,
		     window_start = CASE WHEN rate_limit_counters.reset_at <= datetime('now')
		                         THEN datetime('now') ELSE rate_limit_counters.window_start END,
		     reset_at = CASE WHEN rate_limit_counters.reset_at <= datetime('now')
		                     THEN datetime('now', ?) ELSE rate_limit_counters.reset_at END
		 RETURNING count, reset_at`,
		identifier, action, modifier, modifier,
	)
	if err := row.Scan(&count, &resetAt); err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return count, resetAt, nil
}

// Reset deletes the counter for a key, re-admitting requests immediately.
func (s *RateLimitStore) Reset(identifier, action string) error {
	_, err := s.db.Exec(
		`DELETE FROM rate_limit_counters WHERE identifier = ? AND action = ?`,
		identifier, action,
	)
	if err != nil {
		return fmt.Errorf("reset rate limit counter: %w", err)
	}
	return nil
}

func (s *RateLimitStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM rate_limit_counters WHERE reset_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired rate limit counters: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
