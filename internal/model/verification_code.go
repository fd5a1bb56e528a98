package model

import "time"

// CodeType identifies what a verification code is allowed to prove.
type CodeType string

const (
	CodeEmailVerification CodeType = "email_verification"
	CodePhoneVerification CodeType = "phone_verification"
	CodeAdminInvitation   CodeType = "admin_invitation"
	CodePasswordReset     CodeType = "password_reset"
	CodeTwoFactorLogin    CodeType = "2fa_login"
)

// TTL returns the issue-time expiry for the code type.
func (t CodeType) TTL() time.Duration {
	if t == CodeAdminInvitation {
		return 24 * time.Hour
	}
	return 10 * time.Minute
}

// VerificationCode is a short-lived one-time numeric code issued to a contact.
// Only the bcrypt hash of the code is stored; the plaintext exists just long
// enough to be dispatched.
type VerificationCode struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	CodeHash    string     `json:"-"`
	Type        CodeType   `json:"type"`
	Contact     string     `json:"contact"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConsumedAt  *time.Time `json:"consumed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Active reports whether the code can still be presented.
func (c *VerificationCode) Active(now time.Time) bool {
	return c.ConsumedAt == nil && c.ExpiresAt.After(now) && c.Attempts < c.MaxAttempts
}

// UsedToken is one row of the append-only jti ledger. Rows are retained past
// token expiry so a clock-skewed replay still hits the ledger.
type UsedToken struct {
	JTI           string    `json:"jti"`
	UserID        int64     `json:"user_id"`
	TokenType     string    `json:"token_type"`
	UsedAt        time.Time `json:"used_at"`
	RetainedUntil time.Time `json:"retained_until"`
}
