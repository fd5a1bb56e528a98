package store

import (
	"database/sql"
	"fmt"

	"github.com/dwrenner/clubdesk/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.ClubID, &h.Name, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanGuardian(scanner interface{ Scan(...any) error }) (*model.HouseholdGuardian, error) {
	var g model.HouseholdGuardian
	err := scanner.Scan(&g.ID, &g.HouseholdID, &g.UserID, &g.Role, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

const householdCols = `id, club_id, name, created_at, updated_at`
const guardianCols = `id, household_id, user_id, role, created_at`

func (s *HouseholdStore) Create(clubID int64, name string) (*model.Household, error) {
	result, err := s.db.Exec(`INSERT INTO households (club_id, name) VALUES (?, ?)`, clubID, name)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *HouseholdStore) GetByID(id int64) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

// AddGuardian inserts a membership row. The UNIQUE(user_id) constraint
// enforces the one-household rule; callers translate the violation.
func (s *HouseholdStore) AddGuardian(householdID, userID int64, role string) (*model.HouseholdGuardian, error) {
	result, err := s.db.Exec(
		`INSERT INTO household_guardians (household_id, user_id, role) VALUES (?, ?, ?)`,
		householdID, userID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("add guardian: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+guardianCols+` FROM household_guardians WHERE id = ?`, id)
	return scanGuardian(row)
}

func (s *HouseholdStore) GetGuardian(householdID, userID int64) (*model.HouseholdGuardian, error) {
	row := s.db.QueryRow(
		`SELECT `+guardianCols+` FROM household_guardians WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	g, err := scanGuardian(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get guardian: %w", err)
	}
	return g, nil
}

// GetGuardianForUser returns the user's single guardian membership anywhere,
// or nil. Backs the invited-contact-is-not-already-a-guardian check.
func (s *HouseholdStore) GetGuardianForUser(userID int64) (*model.HouseholdGuardian, error) {
	row := s.db.QueryRow(
		`SELECT `+guardianCols+` FROM household_guardians WHERE user_id = ?`,
		userID,
	)
	g, err := scanGuardian(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get guardian for user: %w", err)
	}
	return g, nil
}

func (s *HouseholdStore) ListGuardians(householdID int64) ([]model.HouseholdGuardian, error) {
	rows, err := s.db.Query(
		`SELECT `+guardianCols+` FROM household_guardians WHERE household_id = ? ORDER BY created_at ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	defer rows.Close()

	var guardians []model.HouseholdGuardian
	for rows.Next() {
		g, err := scanGuardian(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guardian: %w", err)
		}
		guardians = append(guardians, *g)
	}
	return guardians, rows.Err()
}

func (s *HouseholdStore) CountGuardians(householdID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM household_guardians WHERE household_id = ?`,
		householdID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count guardians: %w", err)
	}
	return n, nil
}

func (s *HouseholdStore) RemoveGuardian(householdID, userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM household_guardians WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove guardian: %w", err)
	}
	return nil
}
