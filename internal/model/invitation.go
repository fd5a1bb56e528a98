package model

import "time"

type InvitationKind string

const (
	InvitationGuardian InvitationKind = "guardian"
	InvitationAdmin    InvitationKind = "admin"
)

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationCancelled InvitationStatus = "cancelled"
)

// Invitation invites a contact to become a household guardian or a club admin.
// The signed token itself is never stored; the row keeps the embedded jti so
// an accept or resend can find the invitation the token belongs to.
type Invitation struct {
	ID          int64            `json:"id"`
	Kind        InvitationKind   `json:"kind"`
	HouseholdID *int64           `json:"household_id"`
	ClubID      *int64           `json:"club_id"`
	InvitedBy   int64            `json:"invited_by"`
	Email       string           `json:"email"`
	TokenJTI    string           `json:"-"`
	Status      InvitationStatus `json:"status"`
	ExpiresAt   time.Time        `json:"expires_at"`
	AcceptedAt  *time.Time       `json:"accepted_at"`
	CancelledAt *time.Time       `json:"cancelled_at"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Expired reports lazy expiry; pending rows are never transitioned in the
// background, readers check this instead.
func (i *Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// TTL returns the issue-time expiry for the invitation kind.
func (k InvitationKind) TTL() time.Duration {
	if k == InvitationAdmin {
		return 48 * time.Hour
	}
	return 7 * 24 * time.Hour
}
