package token

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dwrenner/clubdesk/internal/database"
	"github.com/dwrenner/clubdesk/internal/store"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func setupTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	svc, err := NewService(testKey, store.NewUsedTokenStore(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

func TestNewServiceRejectsShortKey(t *testing.T) {
	_, err := NewService([]byte("too short"), nil)
	if err == nil {
		t.Fatal("expected error for short signing key")
	}
}

func TestIssueAndVerify(t *testing.T) {
	svc, _ := setupTestService(t)

	signed, jti, err := svc.Issue(Params{
		Email:  "alice@example.com",
		UserID: 7,
		Type:   "guardian_invitation",
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if jti == "" {
		t.Fatal("expected non-empty jti")
	}

	v := svc.Verify(signed)
	if !v.Valid {
		t.Fatalf("verify failed: %s", v.Reason)
	}
	if v.Payload.Email != "alice@example.com" || v.Payload.UserID != 7 {
		t.Errorf("payload = %+v", v.Payload)
	}
	if v.Payload.JTI != jti {
		t.Errorf("jti = %q, want %q", v.Payload.JTI, jti)
	}

	// Verify is repeatable.
	if again := svc.Verify(signed); !again.Valid {
		t.Errorf("second verify failed: %s", again.Reason)
	}
}

func TestVerifyExpired(t *testing.T) {
	svc, _ := setupTestService(t)

	signed, _, err := svc.Issue(Params{
		Email: "alice@example.com",
		Type:  "guardian_invitation",
		TTL:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	v := svc.Verify(signed)
	if v.Valid {
		t.Fatal("expected expired token to fail verification")
	}
	if v.Reason != "token has expired" {
		t.Errorf("reason = %q", v.Reason)
	}
}

func TestVerifyTampered(t *testing.T) {
	svc, _ := setupTestService(t)

	signed, _, err := svc.Issue(Params{
		Email: "alice@example.com",
		Type:  "guardian_invitation",
		TTL:   time.Hour,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tampered := signed[:len(signed)-2] + "xx"
	if v := svc.Verify(tampered); v.Valid {
		t.Error("tampered token should not verify")
	}

	other, err := NewService([]byte(strings.Repeat("k", 32)), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if v := other.Verify(signed); v.Valid {
		t.Error("token signed with a different key should not verify")
	}
}

func TestConsumeOnce(t *testing.T) {
	svc, _ := setupTestService(t)

	signed, _, err := svc.Issue(Params{
		Email:  "alice@example.com",
		UserID: 7,
		Type:   "guardian_invitation",
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	v := svc.Verify(signed)
	if !v.Valid {
		t.Fatalf("verify failed: %s", v.Reason)
	}

	if err := svc.Consume(v.Payload); err != nil {
		t.Fatalf("consume: %v", err)
	}

	err = svc.Consume(v.Payload)
	if !errors.Is(err, store.ErrTokenAlreadyUsed) {
		t.Errorf("second consume = %v, want ErrTokenAlreadyUsed", err)
	}

	used, err := svc.Consumed(v.Payload.JTI)
	if err != nil {
		t.Fatalf("consumed: %v", err)
	}
	if !used {
		t.Error("jti should report consumed")
	}

	// Verify still succeeds; single-use is the ledger's job, not the
	// signature's.
	if again := svc.Verify(signed); !again.Valid {
		t.Errorf("verify after consume failed: %s", again.Reason)
	}
}

func TestIssueValidation(t *testing.T) {
	svc, _ := setupTestService(t)

	if _, _, err := svc.Issue(Params{Type: "guardian_invitation", TTL: time.Hour}); err == nil {
		t.Error("expected error for missing email")
	}
	if _, _, err := svc.Issue(Params{Email: "a@b.c", TTL: time.Hour}); err == nil {
		t.Error("expected error for missing type")
	}
	if _, _, err := svc.Issue(Params{Email: "a@b.c", Type: "x"}); err == nil {
		t.Error("expected error for non-positive ttl")
	}
}
