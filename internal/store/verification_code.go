package store

import (
	"database/sql"
	"fmt"

	"github.com/dwrenner/clubdesk/internal/model"
)

type VerificationCodeStore struct {
	db *sql.DB
}

func NewVerificationCodeStore(db *sql.DB) *VerificationCodeStore {
	return &VerificationCodeStore{db: db}
}

func scanVerificationCode(scanner interface{ Scan(...any) error }) (*model.VerificationCode, error) {
	var vc model.VerificationCode
	var consumedAt sql.NullTime

	err := scanner.Scan(
		&vc.ID, &vc.UserID, &vc.CodeHash, &vc.Type, &vc.Contact,
		&vc.Attempts, &vc.MaxAttempts, &vc.ExpiresAt, &consumedAt, &vc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if consumedAt.Valid {
		vc.ConsumedAt = &consumedAt.Time
	}
	return &vc, nil
}

const verificationCodeCols = `id, user_id, code_hash, type, contact, attempts, max_attempts, expires_at, consumed_at, created_at`

// Create persists a new code record. Callers invalidate prior codes for the
// same (user, type, contact) first via InvalidateActive; the two statements
// are deliberately not one transaction — a crash between them leaves zero
// active codes, never two.
func (s *VerificationCodeStore) Create(vc *model.VerificationCode) (*model.VerificationCode, error) {
	result, err := s.db.Exec(
		`INSERT INTO verification_codes (user_id, code_hash, type, contact, max_attempts, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		vc.UserID, vc.CodeHash, vc.Type, vc.Contact, vc.MaxAttempts, vc.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert verification code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+verificationCodeCols+` FROM verification_codes WHERE id = ?`, id)
	return scanVerificationCode(row)
}

// InvalidateActive marks every unconsumed, unexpired code for the triple as
// consumed. Superseded rows are kept for audit until the expiry sweep.
func (s *VerificationCodeStore) InvalidateActive(userID int64, typ model.CodeType, contact string) error {
	_, err := s.db.Exec(
		`UPDATE verification_codes SET consumed_at = datetime('now')
		 WHERE user_id = ? AND type = ? AND contact = ? AND consumed_at IS NULL AND expires_at > datetime('now')`,
		userID, typ, contact,
	)
	if err != nil {
		return fmt.Errorf("invalidate active codes: %w", err)
	}
	return nil
}

// GetActive returns the newest unconsumed, unexpired code for the triple, or
// nil if there is none.
func (s *VerificationCodeStore) GetActive(userID int64, typ model.CodeType, contact string) (*model.VerificationCode, error) {
	row := s.db.QueryRow(
		`SELECT `+verificationCodeCols+` FROM verification_codes
		 WHERE user_id = ? AND type = ? AND contact = ? AND consumed_at IS NULL AND expires_at > datetime('now')
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID, typ, contact,
	)
	vc, err := scanVerificationCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active verification code: %w", err)
	}
	return vc, nil
}

// Consume atomically marks the code consumed. The guards repeat the validity
// predicate so two racing callers produce exactly one success; the loser sees
// ok == false.
func (s *VerificationCodeStore) Consume(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE verification_codes SET consumed_at = datetime('now')
		 WHERE id = ? AND consumed_at IS NULL AND expires_at > datetime('now') AND attempts < max_attempts`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// IncrementAttempts bumps the attempt counter on a still-unconsumed code and
// returns the new value. A code that reached max_attempts is no longer active.
func (s *VerificationCodeStore) IncrementAttempts(id int64) (int, error) {
	_, err := s.db.Exec(
		`UPDATE verification_codes SET attempts = attempts + 1 WHERE id = ? AND consumed_at IS NULL`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}

	var attempts int
	err = s.db.QueryRow(`SELECT attempts FROM verification_codes WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return attempts, nil
}

func (s *VerificationCodeStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM verification_codes WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired verification codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
