package store

import (
	"database/sql"
	"testing"

	"github.com/dwrenner/clubdesk/internal/database"
	"github.com/dwrenner/clubdesk/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// A single connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	user, err := NewUserStore(db).Create(email, "Test User", "member")
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func createTestHousehold(t *testing.T, db *sql.DB) *model.Household {
	t.Helper()
	club, err := NewClubStore(db).Create("Test Club")
	if err != nil {
		t.Fatalf("create test club: %v", err)
	}
	household, err := NewHouseholdStore(db).Create(club.ID, "Test Household")
	if err != nil {
		t.Fatalf("create test household: %v", err)
	}
	return household
}
