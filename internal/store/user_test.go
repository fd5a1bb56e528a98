package store

import (
	"testing"
)

func TestUserCreateLowercasesEmail(t *testing.T) {
	db := setupTestDB(t)
	s := NewUserStore(db)

	user, err := s.Create("Alice@Example.COM", "Alice", "member")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}

	got, err := s.GetByEmail("ALICE@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Errorf("got %+v, want user %d", got, user.ID)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	s := NewUserStore(db)

	if _, err := s.Create("alice@example.com", "Alice", "member"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := s.Create("alice@example.com", "Alice Again", "member")
	if !IsUniqueViolation(err) {
		t.Errorf("duplicate create error = %v, want unique violation", err)
	}
}

func TestUserUpdateRole(t *testing.T) {
	db := setupTestDB(t)
	s := NewUserStore(db)

	user, err := s.Create("alice@example.com", "Alice", "member")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	updated, err := s.UpdateRole(user.ID, "admin")
	if err != nil {
		t.Fatalf("update role: %v", err)
	}
	if updated.Role != "admin" {
		t.Errorf("role = %q, want admin", updated.Role)
	}
}
