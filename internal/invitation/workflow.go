// Package invitation manages the guardian and admin invitation state machine
// on top of the token service and the stores. Invitations move
// pending -> accepted or pending -> cancelled; expiry is checked lazily on
// read and never transitioned in the background.
package invitation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dwrenner/clubdesk/internal/metrics"
	"github.com/dwrenner/clubdesk/internal/model"
	"github.com/dwrenner/clubdesk/internal/store"
	"github.com/dwrenner/clubdesk/internal/token"
)

var (
	ErrNotAuthorized   = errors.New("not authorized to manage invitations")
	ErrAlreadyGuardian = errors.New("contact is already a guardian of a household")
	ErrAlreadyInvited  = errors.New("a pending invitation already exists for this contact")
	ErrHouseholdFull   = errors.New("household guardian limit reached")
	ErrNotFound        = errors.New("invitation not found")
	ErrExpired         = errors.New("invitation has expired")
	ErrNotPending      = errors.New("invitation is no longer pending")
	ErrTokenInvalid    = errors.New("invitation token is invalid")
	ErrWrongEmail      = errors.New("invitation was issued to a different email")
	ErrAlreadyUsed     = errors.New("invitation has already been used")
)

const (
	tokenTypeGuardian = "guardian_invitation"
	tokenTypeAdmin    = "admin_invitation"
)

// Notifier is the outbound delivery collaborator.
type Notifier interface {
	SendInvitation(ctx context.Context, toEmail, token, householdName string) error
}

// Created is the outcome of Create or Resend. Delivered is false when the
// invitation was durably persisted but the notification transport failed; the
// invitee can be resent a link, so this is not a full failure.
type Created struct {
	Invitation *model.Invitation
	Token      string
	Delivered  bool
}

type Workflow struct {
	invitations *store.InvitationStore
	households  *store.HouseholdStore
	users       *store.UserStore
	tokens      *token.Service
	notifier    Notifier
	logger      *slog.Logger
}

func NewWorkflow(
	invitations *store.InvitationStore,
	households *store.HouseholdStore,
	users *store.UserStore,
	tokens *token.Service,
	notifier Notifier,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		invitations: invitations,
		households:  households,
		users:       users,
		tokens:      tokens,
		notifier:    notifier,
		logger:      logger,
	}
}

// Create invites a contact to join the inviter's household as a guardian.
// The inviter must be the household's primary guardian; the contact must not
// be a guardian anywhere and must not already hold a pending invitation here;
// guardians plus pending invitations must stay under the ceiling.
func (w *Workflow) Create(ctx context.Context, inviterID, householdID int64, emailAddr string) (*Created, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))

	inviter, err := w.households.GetGuardian(householdID, inviterID)
	if err != nil {
		return nil, err
	}
	if inviter == nil || inviter.Role != "primary" {
		return nil, ErrNotAuthorized
	}

	if err := w.checkTargetNotGuardian(emailAddr); err != nil {
		return nil, err
	}

	pending, err := w.invitations.GetPending(householdID, emailAddr)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, ErrAlreadyInvited
	}

	if err := w.checkCapacityForCreate(householdID); err != nil {
		return nil, err
	}

	household, err := w.households.GetByID(householdID)
	if err != nil {
		return nil, err
	}
	if household == nil {
		return nil, ErrNotFound
	}

	signed, jti, err := w.tokens.Issue(token.Params{
		Email: emailAddr,
		Type:  tokenTypeGuardian,
		TTL:   model.InvitationGuardian.TTL(),
	})
	if err != nil {
		return nil, err
	}

	inv, err := w.invitations.Create(&model.Invitation{
		Kind:        model.InvitationGuardian,
		HouseholdID: &householdID,
		InvitedBy:   inviterID,
		Email:       emailAddr,
		TokenJTI:    jti,
		ExpiresAt:   time.Now().UTC().Add(model.InvitationGuardian.TTL()),
	})
	if err != nil {
		return nil, err
	}

	delivered := w.dispatch(ctx, emailAddr, signed, household.Name)
	return &Created{Invitation: inv, Token: signed, Delivered: delivered}, nil
}

// CreateAdmin invites a contact to become a club admin. Only a system admin
// may issue admin invitations.
func (w *Workflow) CreateAdmin(ctx context.Context, inviterID, clubID int64, emailAddr string) (*Created, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))

	inviter, err := w.users.GetByID(inviterID)
	if err != nil {
		return nil, err
	}
	if inviter == nil || inviter.Role != "admin" {
		return nil, ErrNotAuthorized
	}

	signed, jti, err := w.tokens.Issue(token.Params{
		Email:  emailAddr,
		Type:   tokenTypeAdmin,
		ClubID: clubID,
		TTL:    model.InvitationAdmin.TTL(),
	})
	if err != nil {
		return nil, err
	}

	inv, err := w.invitations.Create(&model.Invitation{
		Kind:      model.InvitationAdmin,
		ClubID:    &clubID,
		InvitedBy: inviterID,
		Email:     emailAddr,
		TokenJTI:  jti,
		ExpiresAt: time.Now().UTC().Add(model.InvitationAdmin.TTL()),
	})
	if err != nil {
		return nil, err
	}

	delivered := w.dispatch(ctx, emailAddr, signed, "")
	return &Created{Invitation: inv, Token: signed, Delivered: delivered}, nil
}

// Accept consumes an invitation token on behalf of the authenticated user.
// The capacity and guardian-uniqueness invariants are re-checked here because
// they may have changed since creation; a violation cancels the invitation
// rather than leaving it dangling pending.
func (w *Workflow) Accept(ctx context.Context, signed string, user *model.User) (*model.Invitation, error) {
	v := w.tokens.Verify(signed)
	if !v.Valid {
		return nil, ErrTokenInvalid
	}

	inv, err := w.invitations.GetByJTI(v.Payload.JTI)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	if inv.Status == model.InvitationAccepted {
		return nil, ErrAlreadyUsed
	}
	if inv.Status != model.InvitationPending {
		return nil, ErrNotPending
	}
	if inv.Expired(time.Now().UTC()) {
		return nil, ErrExpired
	}
	if !strings.EqualFold(inv.Email, user.Email) {
		return nil, ErrWrongEmail
	}

	if inv.Kind == model.InvitationAdmin {
		return w.acceptAdmin(inv, v.Payload, user)
	}
	return w.acceptGuardian(inv, v.Payload, user)
}

func (w *Workflow) acceptGuardian(inv *model.Invitation, payload *token.Payload, user *model.User) (*model.Invitation, error) {
	householdID := *inv.HouseholdID

	// Re-check: the user may have joined another household since creation.
	existing, err := w.households.GetGuardianForUser(user.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.HouseholdID != householdID {
		w.cancel(inv.ID, "guardian of another household")
		return nil, ErrAlreadyGuardian
	}

	// Re-check: the household may have filled up from a concurrent acceptance.
	guardians, err := w.households.CountGuardians(householdID)
	if err != nil {
		return nil, err
	}
	if existing == nil && guardians >= model.MaxGuardiansPerHousehold {
		w.cancel(inv.ID, "household full")
		return nil, ErrHouseholdFull
	}

	outcome, err := w.invitations.Accept(
		inv.ID, payload.JTI, user.ID, "secondary", token.RetainUntil(payload.ExpiresAt),
	)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case store.AcceptApplied, store.AcceptAlreadyMember:
		return w.invitations.GetByID(inv.ID)
	case store.AcceptGuardianElsewhere:
		// The same race landed between our re-check and the transaction.
		w.cancel(inv.ID, "guardian of another household")
		return nil, ErrAlreadyGuardian
	case store.AcceptHouseholdFull:
		w.cancel(inv.ID, "household full")
		return nil, ErrHouseholdFull
	default:
		return nil, ErrAlreadyUsed
	}
}

func (w *Workflow) acceptAdmin(inv *model.Invitation, payload *token.Payload, user *model.User) (*model.Invitation, error) {
	// One transaction: the status flip, the jti burn, and the role grant
	// commit together or not at all.
	outcome, err := w.invitations.AcceptAdmin(
		inv.ID, payload.JTI, user.ID, token.RetainUntil(payload.ExpiresAt),
	)
	if err != nil {
		return nil, err
	}
	if outcome != store.AcceptApplied {
		return nil, ErrAlreadyUsed
	}
	return w.invitations.GetByID(inv.ID)
}

// Resend rotates the token and expiry on the existing row, preserving the
// invitation's identity for audit. Accepted invitations cannot be resent.
func (w *Workflow) Resend(ctx context.Context, invitationID, requesterID int64) (*Created, error) {
	inv, err := w.invitations.GetByID(invitationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	if inv.Status == model.InvitationAccepted {
		return nil, ErrNotPending
	}
	if err := w.authorizeManage(inv, requesterID); err != nil {
		return nil, err
	}

	kind, householdName := tokenTypeGuardian, ""
	if inv.Kind == model.InvitationAdmin {
		kind = tokenTypeAdmin
	} else if inv.HouseholdID != nil {
		if h, err := w.households.GetByID(*inv.HouseholdID); err == nil && h != nil {
			householdName = h.Name
		}
	}

	signed, jti, err := w.tokens.Issue(token.Params{
		Email: inv.Email,
		Type:  kind,
		TTL:   inv.Kind.TTL(),
	})
	if err != nil {
		return nil, err
	}

	rotated, err := w.invitations.RotateToken(inv.ID, jti, time.Now().UTC().Add(inv.Kind.TTL()))
	if err != nil {
		return nil, err
	}
	if rotated == nil {
		return nil, ErrNotPending
	}

	delivered := w.dispatch(ctx, inv.Email, signed, householdName)
	return &Created{Invitation: rotated, Token: signed, Delivered: delivered}, nil
}

// Cancel revokes a pending invitation.
func (w *Workflow) Cancel(invitationID, requesterID int64) error {
	inv, err := w.invitations.GetByID(invitationID)
	if err != nil {
		return err
	}
	if inv == nil {
		return ErrNotFound
	}
	if inv.Status != model.InvitationPending {
		return ErrNotPending
	}
	if err := w.authorizeManage(inv, requesterID); err != nil {
		return err
	}
	return w.invitations.MarkCancelled(inv.ID)
}

func (w *Workflow) authorizeManage(inv *model.Invitation, requesterID int64) error {
	if inv.Kind == model.InvitationAdmin {
		u, err := w.users.GetByID(requesterID)
		if err != nil {
			return err
		}
		if u == nil || u.Role != "admin" {
			return ErrNotAuthorized
		}
		return nil
	}
	g, err := w.households.GetGuardian(*inv.HouseholdID, requesterID)
	if err != nil {
		return err
	}
	if g == nil || g.Role != "primary" {
		return ErrNotAuthorized
	}
	return nil
}

func (w *Workflow) checkTargetNotGuardian(emailAddr string) error {
	target, err := w.users.GetByEmail(emailAddr)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	g, err := w.households.GetGuardianForUser(target.ID)
	if err != nil {
		return err
	}
	if g != nil {
		return ErrAlreadyGuardian
	}
	return nil
}

func (w *Workflow) checkCapacityForCreate(householdID int64) error {
	guardians, err := w.households.CountGuardians(householdID)
	if err != nil {
		return err
	}
	pending, err := w.invitations.CountPending(householdID)
	if err != nil {
		return err
	}
	if guardians+pending >= model.MaxGuardiansPerHousehold {
		return ErrHouseholdFull
	}
	return nil
}

func (w *Workflow) cancel(id int64, reason string) {
	if err := w.invitations.MarkCancelled(id); err != nil {
		w.logger.Error("cancel invitation", "invitation_id", id, "reason", reason, "error", err)
		return
	}
	w.logger.Info("invitation cancelled", "invitation_id", id, "reason", reason)
}

func (w *Workflow) dispatch(ctx context.Context, toEmail, signed, householdName string) bool {
	if err := w.notifier.SendInvitation(ctx, toEmail, signed, householdName); err != nil {
		w.logger.Error("send invitation", "email", toEmail, "error", err)
		metrics.InvitationsDispatched.WithLabelValues("failed").Inc()
		return false
	}
	metrics.InvitationsDispatched.WithLabelValues("sent").Inc()
	return true
}
