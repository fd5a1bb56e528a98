package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dwrenner/clubdesk/internal/model"
)

type InvitationStore struct {
	db *sql.DB
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

func scanInvitation(scanner interface{ Scan(...any) error }) (*model.Invitation, error) {
	var inv model.Invitation
	var householdID, clubID sql.NullInt64
	var acceptedAt, cancelledAt sql.NullTime

	err := scanner.Scan(
		&inv.ID, &inv.Kind, &householdID, &clubID, &inv.InvitedBy, &inv.Email,
		&inv.TokenJTI, &inv.Status, &inv.ExpiresAt, &acceptedAt, &cancelledAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if householdID.Valid {
		inv.HouseholdID = &householdID.Int64
	}
	if clubID.Valid {
		inv.ClubID = &clubID.Int64
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	if cancelledAt.Valid {
		inv.CancelledAt = &cancelledAt.Time
	}
	return &inv, nil
}

const invitationCols = `id, kind, household_id, club_id, invited_by, email, token_jti, status, expires_at, accepted_at, cancelled_at, created_at, updated_at`

func (s *InvitationStore) Create(inv *model.Invitation) (*model.Invitation, error) {
	var householdID, clubID sql.NullInt64
	if inv.HouseholdID != nil {
		householdID = sql.NullInt64{Int64: *inv.HouseholdID, Valid: true}
	}
	if inv.ClubID != nil {
		clubID = sql.NullInt64{Int64: *inv.ClubID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO invitations (kind, household_id, club_id, invited_by, email, token_jti, status, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`,
		inv.Kind, householdID, clubID, inv.InvitedBy,
		strings.ToLower(strings.TrimSpace(inv.Email)), inv.TokenJTI, inv.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *InvitationStore) GetByID(id int64) (*model.Invitation, error) {
	row := s.db.QueryRow(`SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// GetByJTI finds the invitation a presented token belongs to.
func (s *InvitationStore) GetByJTI(jti string) (*model.Invitation, error) {
	row := s.db.QueryRow(`SELECT `+invitationCols+` FROM invitations WHERE token_jti = ?`, jti)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation by jti: %w", err)
	}
	return inv, nil
}

// GetPending returns the non-expired pending invitation for (household, email),
// or nil. Expiry is checked lazily here, never transitioned in the background.
func (s *InvitationStore) GetPending(householdID int64, email string) (*model.Invitation, error) {
	row := s.db.QueryRow(
		`SELECT `+invitationCols+` FROM invitations
		 WHERE household_id = ? AND email = ? AND status = 'pending' AND expires_at > datetime('now')`,
		householdID, strings.ToLower(strings.TrimSpace(email)),
	)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending invitation: %w", err)
	}
	return inv, nil
}

// CountPending counts non-expired pending invitations for a household, for the
// capacity check alongside accepted guardians.
func (s *InvitationStore) CountPending(householdID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM invitations
		 WHERE household_id = ? AND status = 'pending' AND expires_at > datetime('now')`,
		householdID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending invitations: %w", err)
	}
	return n, nil
}

// RotateToken swaps in a fresh jti and expiry on the existing row, preserving
// invitation identity for audit. Clears cancelled_at and restores pending.
func (s *InvitationStore) RotateToken(id int64, jti string, expiresAt time.Time) (*model.Invitation, error) {
	result, err := s.db.Exec(
		`UPDATE invitations
		 SET token_jti = ?, expires_at = ?, status = 'pending', cancelled_at = NULL, updated_at = datetime('now')
		 WHERE id = ? AND status != 'accepted'`,
		jti, expiresAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("rotate invitation token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(id)
}

func (s *InvitationStore) MarkCancelled(id int64) error {
	_, err := s.db.Exec(
		`UPDATE invitations
		 SET status = 'cancelled', cancelled_at = datetime('now'), updated_at = datetime('now')
		 WHERE id = ? AND status = 'pending'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("cancel invitation: %w", err)
	}
	return nil
}

// AcceptOutcome reports how an acceptance transaction resolved.
type AcceptOutcome int

const (
	// AcceptApplied: this caller won; membership inserted and row flipped.
	AcceptApplied AcceptOutcome = iota
	// AcceptAlreadyMember: the membership already existed for this household;
	// the end state is satisfied, so the race is treated as idempotent success.
	AcceptAlreadyMember
	// AcceptConflict: the invitation was no longer pending or the token jti
	// was already consumed; nothing was applied.
	AcceptConflict
	// AcceptGuardianElsewhere: the user is a guardian of a different
	// household; nothing was applied.
	AcceptGuardianElsewhere
	// AcceptHouseholdFull: the household reached capacity before this
	// acceptance committed; nothing was applied.
	AcceptHouseholdFull
)

// Accept performs the acceptance commit as one transaction: flip the pending
// row, append the token jti to the used ledger, re-check membership and
// capacity against committed state, and insert the guardian membership.
// Concurrent accepts of the same invitation are ordered into exactly one
// AcceptApplied.
func (s *InvitationStore) Accept(invID int64, jti string, userID int64, guardianRole string, retainedUntil time.Time) (AcceptOutcome, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return AcceptConflict, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE invitations
		 SET status = 'accepted', accepted_at = datetime('now'), updated_at = datetime('now')
		 WHERE id = ? AND status = 'pending' AND expires_at > datetime('now')`,
		invID,
	)
	if err != nil {
		return AcceptConflict, fmt.Errorf("accept invitation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return AcceptConflict, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return AcceptConflict, nil
	}

	if err := markUsed(tx, jti, userID, "invitation", retainedUntil); err != nil {
		if err == ErrTokenAlreadyUsed {
			return AcceptConflict, nil
		}
		return AcceptConflict, err
	}

	var householdID int64
	if err := tx.QueryRow(`SELECT household_id FROM invitations WHERE id = ?`, invID).Scan(&householdID); err != nil {
		return AcceptConflict, fmt.Errorf("read invitation household: %w", err)
	}

	// The first UPDATE took the write lock, so these reads see committed
	// state no concurrent accept can change under us.
	var existingHousehold sql.NullInt64
	err = tx.QueryRow(
		`SELECT household_id FROM household_guardians WHERE user_id = ?`, userID,
	).Scan(&existingHousehold)
	if err != nil && err != sql.ErrNoRows {
		return AcceptConflict, fmt.Errorf("lookup existing guardian: %w", err)
	}
	if existingHousehold.Valid {
		// Same household means the end state already holds; commit the flip
		// and report idempotent success. A different household is an
		// invariant violation; roll everything back.
		if existingHousehold.Int64 == householdID {
			if err := tx.Commit(); err != nil {
				return AcceptConflict, fmt.Errorf("commit tx: %w", err)
			}
			return AcceptAlreadyMember, nil
		}
		return AcceptGuardianElsewhere, nil
	}

	var guardians int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM household_guardians WHERE household_id = ?`, householdID,
	).Scan(&guardians); err != nil {
		return AcceptConflict, fmt.Errorf("count guardians: %w", err)
	}
	if guardians >= model.MaxGuardiansPerHousehold {
		return AcceptHouseholdFull, nil
	}

	_, err = tx.Exec(
		`INSERT INTO household_guardians (household_id, user_id, role) VALUES (?, ?, ?)`,
		householdID, userID, guardianRole,
	)
	if err != nil {
		return AcceptConflict, fmt.Errorf("insert guardian: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return AcceptConflict, fmt.Errorf("commit tx: %w", err)
	}
	return AcceptApplied, nil
}

// AcceptAdmin commits an admin-invitation acceptance as one transaction: flip
// the pending row, spend the token jti, and grant the admin role, so a
// storage failure cannot leave an accepted invitation without its grant.
func (s *InvitationStore) AcceptAdmin(invID int64, jti string, userID int64, retainedUntil time.Time) (AcceptOutcome, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return AcceptConflict, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE invitations
		 SET status = 'accepted', accepted_at = datetime('now'), updated_at = datetime('now')
		 WHERE id = ? AND status = 'pending' AND expires_at > datetime('now')`,
		invID,
	)
	if err != nil {
		return AcceptConflict, fmt.Errorf("accept invitation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return AcceptConflict, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return AcceptConflict, nil
	}

	if err := markUsed(tx, jti, userID, "admin_invitation", retainedUntil); err != nil {
		if err == ErrTokenAlreadyUsed {
			return AcceptConflict, nil
		}
		return AcceptConflict, err
	}

	if _, err := tx.Exec(
		`UPDATE users SET role = 'admin', updated_at = datetime('now') WHERE id = ?`,
		userID,
	); err != nil {
		return AcceptConflict, fmt.Errorf("grant admin role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return AcceptConflict, fmt.Errorf("commit tx: %w", err)
	}
	return AcceptApplied, nil
}
