package store

import (
	"database/sql"
	"fmt"

	"github.com/dwrenner/clubdesk/internal/model"
)

type ClubStore struct {
	db *sql.DB
}

func NewClubStore(db *sql.DB) *ClubStore {
	return &ClubStore{db: db}
}

func scanClub(scanner interface{ Scan(...any) error }) (*model.Club, error) {
	var c model.Club
	err := scanner.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const clubCols = `id, name, created_at, updated_at`

func (s *ClubStore) Create(name string) (*model.Club, error) {
	result, err := s.db.Exec(`INSERT INTO clubs (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert club: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ClubStore) GetByID(id int64) (*model.Club, error) {
	row := s.db.QueryRow(`SELECT `+clubCols+` FROM clubs WHERE id = ?`, id)
	c, err := scanClub(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get club: %w", err)
	}
	return c, nil
}
