package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/dwrenner/clubdesk/internal/model"
)

func newTestInvitation(t *testing.T, s *InvitationStore, householdID, invitedBy int64, email, jti string) *model.Invitation {
	t.Helper()
	inv, err := s.Create(&model.Invitation{
		Kind:        model.InvitationGuardian,
		HouseholdID: &householdID,
		InvitedBy:   invitedBy,
		Email:       email,
		TokenJTI:    jti,
		ExpiresAt:   time.Now().UTC().Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	return inv
}

func TestInvitationCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	inviter := createTestUser(t, db, "primary@example.com")
	s := NewInvitationStore(db)

	inv := newTestInvitation(t, s, household.ID, inviter.ID, "New@Example.com", "jti-1")
	if inv.Status != model.InvitationPending {
		t.Errorf("status = %q, want pending", inv.Status)
	}
	if inv.Email != "new@example.com" {
		t.Errorf("email = %q, want lowercased", inv.Email)
	}

	got, err := s.GetByJTI("jti-1")
	if err != nil {
		t.Fatalf("get by jti: %v", err)
	}
	if got == nil || got.ID != inv.ID {
		t.Errorf("got %+v, want invitation %d", got, inv.ID)
	}
}

func TestInvitationGetPendingSkipsExpired(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	inviter := createTestUser(t, db, "primary@example.com")
	s := NewInvitationStore(db)

	inv, err := s.Create(&model.Invitation{
		Kind:        model.InvitationGuardian,
		HouseholdID: &household.ID,
		InvitedBy:   inviter.ID,
		Email:       "new@example.com",
		TokenJTI:    "jti-1",
		ExpiresAt:   time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if inv.Status != model.InvitationPending {
		t.Fatalf("status = %q, want pending row kept even when expired", inv.Status)
	}

	pending, err := s.GetPending(household.ID, "new@example.com")
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if pending != nil {
		t.Error("expired invitation should not count as pending")
	}

	n, err := s.CountPending(household.ID)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
}

func TestInvitationRotateToken(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	inviter := createTestUser(t, db, "primary@example.com")
	s := NewInvitationStore(db)

	inv := newTestInvitation(t, s, household.ID, inviter.ID, "new@example.com", "jti-1")

	rotated, err := s.RotateToken(inv.ID, "jti-2", time.Now().UTC().Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("rotate token: %v", err)
	}
	if rotated.TokenJTI != "jti-2" {
		t.Errorf("jti = %q, want jti-2", rotated.TokenJTI)
	}

	// The old link stops resolving.
	old, err := s.GetByJTI("jti-1")
	if err != nil {
		t.Fatalf("get by old jti: %v", err)
	}
	if old != nil {
		t.Error("old jti should no longer resolve")
	}
}

func TestInvitationRotateTokenRevivesCancelled(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	inviter := createTestUser(t, db, "primary@example.com")
	s := NewInvitationStore(db)

	inv := newTestInvitation(t, s, household.ID, inviter.ID, "new@example.com", "jti-1")
	if err := s.MarkCancelled(inv.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	rotated, err := s.RotateToken(inv.ID, "jti-2", time.Now().UTC().Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("rotate token: %v", err)
	}
	if rotated.Status != model.InvitationPending {
		t.Errorf("status = %q, want pending", rotated.Status)
	}
	if rotated.CancelledAt != nil {
		t.Error("cancelled_at should be cleared")
	}
}

func TestInvitationAcceptApplied(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	inviter := createTestUser(t, db, "primary@example.com")
	invitee := createTestUser(t, db, "new@example.com")
	s := NewInvitationStore(db)

	inv := newTestInvitation(t, s, household.ID, inviter.ID, "new@example.com", "jti-1")

	outcome, err := s.Accept(inv.ID, "jti-1", invitee.ID, "secondary", time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if outcome != AcceptApplied {
		t.Fatalf("outcome = %v, want AcceptApplied", outcome)
	}

	got, err := s.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != model.InvitationAccepted {
		t.Errorf("status = %q, want accepted", got.Status)
	}

	guardian, err := NewHouseholdStore(db).GetGuardian(household.ID, invitee.ID)
	if err != nil {
		t.Fatalf("get guardian: %v", err)
	}
	if guardian == nil || guardian.Role != "secondary" {
		t.Errorf("guardian = %+v, want secondary membership", guardian)
	}

	used, err := NewUsedTokenStore(db).IsUsed("jti-1")
	if err != nil {
		t.Fatalf("is used: %v", err)
	}
	if !used {
		t.Error("jti should be in the used ledger")
	}
}

func TestInvitationAcceptSecondCallConflicts(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	inviter := createTestUser(t, db, "primary@example.com")
	invitee := createTestUser(t, db, "new@example.com")
	s := NewInvitationStore(db)

	inv := newTestInvitation(t, s, household.ID, inviter.ID, "new@example.com", "jti-1")
	retained := time.Now().UTC().Add(24 * time.Hour)

	if _, err := s.Accept(inv.ID, "jti-1", invitee.ID, "secondary", retained); err != nil {
		t.Fatalf("accept: %v", err)
	}

	outcome, err := s.Accept(inv.ID, "jti-1", invitee.ID, "secondary", retained)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if outcome != AcceptConflict {
		t.Errorf("outcome = %v, want AcceptConflict for a spent invitation", outcome)
	}
}

func TestInvitationAcceptGuardianElsewhere(t *testing.T) {
	db := setupTestDB(t)
	inviter := createTestUser(t, db, "primary@example.com")
	invitee := createTestUser(t, db, "new@example.com")
	s := NewInvitationStore(db)
	hs := NewHouseholdStore(db)

	// Invitee already belongs to another household.
	other := createTestHousehold(t, db)
	if _, err := hs.AddGuardian(other.ID, invitee.ID, "primary"); err != nil {
		t.Fatalf("add guardian: %v", err)
	}

	household := createTestHousehold(t, db)
	inv := newTestInvitation(t, s, household.ID, inviter.ID, "new@example.com", "jti-1")

	outcome, err := s.Accept(inv.ID, "jti-1", invitee.ID, "secondary", time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if outcome != AcceptGuardianElsewhere {
		t.Fatalf("outcome = %v, want AcceptGuardianElsewhere", outcome)
	}

	// Nothing was applied: invitation still pending, jti unspent.
	got, err := s.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != model.InvitationPending {
		t.Errorf("status = %q, want pending after rollback", got.Status)
	}
	used, err := NewUsedTokenStore(db).IsUsed("jti-1")
	if err != nil {
		t.Fatalf("is used: %v", err)
	}
	if used {
		t.Error("jti should not be spent after rollback")
	}
}

func TestInvitationAcceptAlreadyMember(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	inviter := createTestUser(t, db, "primary@example.com")
	invitee := createTestUser(t, db, "new@example.com")
	s := NewInvitationStore(db)
	hs := NewHouseholdStore(db)

	if _, err := hs.AddGuardian(household.ID, invitee.ID, "secondary"); err != nil {
		t.Fatalf("add guardian: %v", err)
	}

	inv := newTestInvitation(t, s, household.ID, inviter.ID, "new@example.com", "jti-1")

	outcome, err := s.Accept(inv.ID, "jti-1", invitee.ID, "secondary", time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if outcome != AcceptAlreadyMember {
		t.Fatalf("outcome = %v, want AcceptAlreadyMember", outcome)
	}

	// The flip committed: the invitation is settled, not retryable.
	got, err := s.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != model.InvitationAccepted {
		t.Errorf("status = %q, want accepted", got.Status)
	}
}

func TestInvitationAcceptHouseholdFull(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	inviter := createTestUser(t, db, "primary@example.com")
	invitee := createTestUser(t, db, "new@example.com")
	s := NewInvitationStore(db)
	hs := NewHouseholdStore(db)

	inv := newTestInvitation(t, s, household.ID, inviter.ID, "new@example.com", "jti-1")

	// The household fills up after the invitation was created.
	for i := 0; i < model.MaxGuardiansPerHousehold; i++ {
		u := createTestUser(t, db, fmt.Sprintf("guardian%d@example.com", i))
		if _, err := hs.AddGuardian(household.ID, u.ID, "secondary"); err != nil {
			t.Fatalf("add guardian %d: %v", i, err)
		}
	}

	outcome, err := s.Accept(inv.ID, "jti-1", invitee.ID, "secondary", time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if outcome != AcceptHouseholdFull {
		t.Fatalf("outcome = %v, want AcceptHouseholdFull", outcome)
	}

	// Nothing was applied: invitation still pending, jti unspent.
	got, err := s.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != model.InvitationPending {
		t.Errorf("status = %q, want pending after rollback", got.Status)
	}
	used, err := NewUsedTokenStore(db).IsUsed("jti-1")
	if err != nil {
		t.Fatalf("is used: %v", err)
	}
	if used {
		t.Error("jti should not be spent after rollback")
	}
}

func newTestAdminInvitation(t *testing.T, s *InvitationStore, clubID, invitedBy int64, email, jti string) *model.Invitation {
	t.Helper()
	inv, err := s.Create(&model.Invitation{
		Kind:      model.InvitationAdmin,
		ClubID:    &clubID,
		InvitedBy: invitedBy,
		Email:     email,
		TokenJTI:  jti,
		ExpiresAt: time.Now().UTC().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create admin invitation: %v", err)
	}
	return inv
}

func TestInvitationAcceptAdminApplied(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	admin := createTestUser(t, db, "admin@example.com")
	invitee := createTestUser(t, db, "new-admin@example.com")
	s := NewInvitationStore(db)

	inv := newTestAdminInvitation(t, s, household.ClubID, admin.ID, "new-admin@example.com", "jti-1")

	outcome, err := s.AcceptAdmin(inv.ID, "jti-1", invitee.ID, time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("accept admin: %v", err)
	}
	if outcome != AcceptApplied {
		t.Fatalf("outcome = %v, want AcceptApplied", outcome)
	}

	got, err := s.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != model.InvitationAccepted {
		t.Errorf("status = %q, want accepted", got.Status)
	}

	user, err := NewUserStore(db).GetByID(invitee.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Role != "admin" {
		t.Errorf("role = %q, the grant must commit with the flip", user.Role)
	}

	used, err := NewUsedTokenStore(db).IsUsed("jti-1")
	if err != nil {
		t.Fatalf("is used: %v", err)
	}
	if !used {
		t.Error("jti should be in the used ledger")
	}
}

func TestInvitationAcceptAdminSecondCallConflicts(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	admin := createTestUser(t, db, "admin@example.com")
	invitee := createTestUser(t, db, "new-admin@example.com")
	s := NewInvitationStore(db)

	inv := newTestAdminInvitation(t, s, household.ClubID, admin.ID, "new-admin@example.com", "jti-1")
	retained := time.Now().UTC().Add(24 * time.Hour)

	if _, err := s.AcceptAdmin(inv.ID, "jti-1", invitee.ID, retained); err != nil {
		t.Fatalf("accept admin: %v", err)
	}

	outcome, err := s.AcceptAdmin(inv.ID, "jti-1", invitee.ID, retained)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if outcome != AcceptConflict {
		t.Errorf("outcome = %v, want AcceptConflict for a spent invitation", outcome)
	}
}

func TestInvitationAcceptAdminSpentJTIRollsBackGrant(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	admin := createTestUser(t, db, "admin@example.com")
	invitee := createTestUser(t, db, "new-admin@example.com")
	s := NewInvitationStore(db)

	inv := newTestAdminInvitation(t, s, household.ClubID, admin.ID, "new-admin@example.com", "jti-1")

	// The jti was spent through some other path; the whole acceptance must
	// roll back, role grant included.
	if err := NewUsedTokenStore(db).MarkUsed("jti-1", invitee.ID, "admin_invitation", time.Now().UTC().Add(24*time.Hour)); err != nil {
		t.Fatalf("mark used: %v", err)
	}

	outcome, err := s.AcceptAdmin(inv.ID, "jti-1", invitee.ID, time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("accept admin: %v", err)
	}
	if outcome != AcceptConflict {
		t.Fatalf("outcome = %v, want AcceptConflict", outcome)
	}

	got, err := s.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != model.InvitationPending {
		t.Errorf("status = %q, want pending after rollback", got.Status)
	}
	user, err := NewUserStore(db).GetByID(invitee.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Role == "admin" {
		t.Error("role grant should roll back with the flip")
	}
}

func TestInvitationMarkCancelledOnlyPending(t *testing.T) {
	db := setupTestDB(t)
	household := createTestHousehold(t, db)
	inviter := createTestUser(t, db, "primary@example.com")
	invitee := createTestUser(t, db, "new@example.com")
	s := NewInvitationStore(db)

	inv := newTestInvitation(t, s, household.ID, inviter.ID, "new@example.com", "jti-1")
	if _, err := s.Accept(inv.ID, "jti-1", invitee.ID, "secondary", time.Now().UTC().Add(24*time.Hour)); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := s.MarkCancelled(inv.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, err := s.GetByID(inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != model.InvitationAccepted {
		t.Errorf("status = %q, accepted invitations must not be cancelled", got.Status)
	}
}
