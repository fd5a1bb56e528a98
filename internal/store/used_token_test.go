package store

import (
	"errors"
	"testing"
	"time"
)

func TestUsedTokenMarkUsedOnce(t *testing.T) {
	db := setupTestDB(t)
	s := NewUsedTokenStore(db)

	retained := time.Now().UTC().Add(24 * time.Hour)
	if err := s.MarkUsed("jti-1", 1, "guardian_invitation", retained); err != nil {
		t.Fatalf("mark used: %v", err)
	}

	err := s.MarkUsed("jti-1", 1, "guardian_invitation", retained)
	if !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Errorf("second mark = %v, want ErrTokenAlreadyUsed", err)
	}
}

func TestUsedTokenIsUsed(t *testing.T) {
	db := setupTestDB(t)
	s := NewUsedTokenStore(db)

	used, err := s.IsUsed("missing")
	if err != nil {
		t.Fatalf("is used: %v", err)
	}
	if used {
		t.Error("unknown jti should not be used")
	}

	if err := s.MarkUsed("jti-1", 1, "guardian_invitation", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	used, err = s.IsUsed("jti-1")
	if err != nil {
		t.Fatalf("is used: %v", err)
	}
	if !used {
		t.Error("marked jti should report used")
	}
}

func TestUsedTokenGet(t *testing.T) {
	db := setupTestDB(t)
	s := NewUsedTokenStore(db)

	ut, err := s.Get("missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ut != nil {
		t.Error("expected nil for unknown jti")
	}

	if err := s.MarkUsed("jti-1", 42, "admin_invitation", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	ut, err = s.Get("jti-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ut == nil {
		t.Fatal("expected used token, got nil")
	}
	if ut.UserID != 42 || ut.TokenType != "admin_invitation" {
		t.Errorf("got %+v", ut)
	}
}

func TestUsedTokenDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	s := NewUsedTokenStore(db)

	if err := s.MarkUsed("old", 1, "guardian_invitation", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if err := s.MarkUsed("fresh", 1, "guardian_invitation", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("mark used: %v", err)
	}

	n, err := s.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	used, err := s.IsUsed("fresh")
	if err != nil {
		t.Fatalf("is used: %v", err)
	}
	if !used {
		t.Error("fresh ledger row should survive the sweep")
	}
}
