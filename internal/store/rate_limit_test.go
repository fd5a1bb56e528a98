package store

import (
	"testing"
	"time"
)

func TestRateLimitIncrement(t *testing.T) {
	db := setupTestDB(t)
	s := NewRateLimitStore(db)

	for want := 1; want <= 3; want++ {
		count, resetAt, err := s.Increment("user:1", "otp_send", time.Hour)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if count != want {
			t.Errorf("count = %d, want %d", count, want)
		}
		if resetAt.IsZero() {
			t.Error("expected non-zero reset_at")
		}
	}
}

func TestRateLimitIncrementIsolatesKeys(t *testing.T) {
	db := setupTestDB(t)
	s := NewRateLimitStore(db)

	if _, _, err := s.Increment("user:1", "otp_send", time.Hour); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, _, err := s.Increment("user:1", "otp_send", time.Hour); err != nil {
		t.Fatalf("increment: %v", err)
	}

	count, _, err := s.Increment("user:1", "invite", time.Hour)
	if err != nil {
		t.Fatalf("increment other action: %v", err)
	}
	if count != 1 {
		t.Errorf("count for separate action = %d, want 1", count)
	}

	count, _, err = s.Increment("user:2", "otp_send", time.Hour)
	if err != nil {
		t.Fatalf("increment other identifier: %v", err)
	}
	if count != 1 {
		t.Errorf("count for separate identifier = %d, want 1", count)
	}
}

func TestRateLimitWindowRollover(t *testing.T) {
	db := setupTestDB(t)
	s := NewRateLimitStore(db)

	if _, _, err := s.Increment("user:1", "otp_send", time.Hour); err != nil {
		t.Fatalf("increment: %v", err)
	}

	// Age the window past its reset.
	if _, err := db.Exec(
		`UPDATE rate_limit_counters SET reset_at = datetime('now', '-1 second') WHERE identifier = 'user:1'`,
	); err != nil {
		t.Fatalf("age window: %v", err)
	}

	count, resetAt, err := s.Increment("user:1", "otp_send", time.Hour)
	if err != nil {
		t.Fatalf("increment after rollover: %v", err)
	}
	if count != 1 {
		t.Errorf("count after rollover = %d, want 1", count)
	}
	if !resetAt.After(time.Now().UTC()) {
		t.Errorf("reset_at = %v, want a future time", resetAt)
	}
}

func TestRateLimitReset(t *testing.T) {
	db := setupTestDB(t)
	s := NewRateLimitStore(db)

	if _, _, err := s.Increment("user:1", "otp_send", time.Hour); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := s.Reset("user:1", "otp_send"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	count, _, err := s.Increment("user:1", "otp_send", time.Hour)
	if err != nil {
		t.Fatalf("increment after reset: %v", err)
	}
	if count != 1 {
		t.Errorf("count after reset = %d, want 1", count)
	}
}

func TestRateLimitDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	s := NewRateLimitStore(db)

	if _, _, err := s.Increment("stale", "otp_send", time.Hour); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, _, err := s.Increment("live", "otp_send", time.Hour); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := db.Exec(
		`UPDATE rate_limit_counters SET reset_at = datetime('now', '-1 second') WHERE identifier = 'stale'`,
	); err != nil {
		t.Fatalf("age window: %v", err)
	}

	n, err := s.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}
