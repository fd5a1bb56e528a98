package model

import "time"

// MaxGuardiansPerHousehold caps guardian memberships plus pending invitations.
const MaxGuardiansPerHousehold = 3

type Household struct {
	ID        int64     `json:"id"`
	ClubID    int64     `json:"club_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HouseholdGuardian links a user to the one household they belong to.
// A UNIQUE constraint on user_id enforces the one-household rule.
type HouseholdGuardian struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	UserID      int64     `json:"user_id"`
	Role        string    `json:"role"` // primary | secondary
	CreatedAt   time.Time `json:"created_at"`
}
