package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dwrenner/clubdesk/internal/model"
)

// ErrTokenAlreadyUsed is returned when a jti is already in the ledger.
var ErrTokenAlreadyUsed = fmt.Errorf("token already used")

type UsedTokenStore struct {
	db *sql.DB
}

func NewUsedTokenStore(db *sql.DB) *UsedTokenStore {
	return &UsedTokenStore{db: db}
}

// MarkUsed appends a jti to the ledger. The primary key on jti makes this the
// single-winner consume step: a second caller gets ErrTokenAlreadyUsed.
func (s *UsedTokenStore) MarkUsed(jti string, userID int64, tokenType string, retainedUntil time.Time) error {
	return markUsed(s.db, jti, userID, tokenType, retainedUntil)
}

// MarkUsedTx is MarkUsed inside a caller-owned transaction, so consumption is
// atomic with the action the token authorizes.
func (s *UsedTokenStore) MarkUsedTx(tx *sql.Tx, jti string, userID int64, tokenType string, retainedUntil time.Time) error {
	return markUsed(tx, jti, userID, tokenType, retainedUntil)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func markUsed(db execer, jti string, userID int64, tokenType string, retainedUntil time.Time) error {
	_, err := db.Exec(
		`INSERT INTO used_tokens (jti, user_id, token_type, retained_until) VALUES (?, ?, ?, ?)`,
		jti, userID, tokenType, retainedUntil,
	)
	if IsUniqueViolation(err) {
		return ErrTokenAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	return nil
}

func (s *UsedTokenStore) IsUsed(jti string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM used_tokens WHERE jti = ?`, jti).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token used: %w", err)
	}
	return true, nil
}

func (s *UsedTokenStore) Get(jti string) (*model.UsedToken, error) {
	row := s.db.QueryRow(
		`SELECT jti, user_id, token_type, used_at, retained_until FROM used_tokens WHERE jti = ?`,
		jti,
	)
	var ut model.UsedToken
	err := row.Scan(&ut.JTI, &ut.UserID, &ut.TokenType, &ut.UsedAt, &ut.RetainedUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get used token: %w", err)
	}
	return &ut, nil
}

// DeleteExpired purges ledger rows past their retention horizon, not merely
// past token expiry.
func (s *UsedTokenStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM used_tokens WHERE retained_until <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired used tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
