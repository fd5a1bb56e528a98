// Package token issues and verifies signed, time-boxed, single-use tokens
// for invitation and account-setup links. Verify is side-effect-free and may
// be repeated; Consume records the token's jti in the used-token ledger and
// is what makes a token single-use. The consumer calls Consume at the moment
// the authorized action commits, so consumption is atomic with the action.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dwrenner/clubdesk/internal/store"
)

// retention keeps ledger rows past token expiry to absorb clock skew.
const retention = 24 * time.Hour

// Params describes the token to issue. The payload carries identifiers only;
// it is unforgeable, not confidential.
type Params struct {
	Email  string
	UserID int64
	Type   string
	ClubID int64
	TTL    time.Duration
}

// Payload is the verified content of a token.
type Payload struct {
	Email     string
	UserID    int64
	Type      string
	ClubID    int64
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type claims struct {
	Email  string `json:"email"`
	UserID int64  `json:"uid"`
	Type   string `json:"typ"`
	ClubID int64  `json:"club_id,omitempty"`
	jwt.RegisteredClaims
}

// Verification is the outcome of Verify. Invalid tokens carry a caller-safe
// reason, never an error.
type Verification struct {
	Valid   bool
	Payload *Payload
	Reason  string
}

type Service struct {
	signingKey []byte
	usedTokens *store.UsedTokenStore
}

func NewService(signingKey []byte, usedTokens *store.UsedTokenStore) (*Service, error) {
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(signingKey))
	}
	return &Service{signingKey: signingKey, usedTokens: usedTokens}, nil
}

// Issue signs a token embedding a fresh jti and expiry. Returns the compact
// token and the jti so the caller can associate the token with its record.
func (s *Service) Issue(p Params) (token string, jti string, err error) {
	if p.Email == "" || p.Type == "" {
		return "", "", fmt.Errorf("token params require email and type")
	}
	if p.TTL <= 0 {
		return "", "", fmt.Errorf("token ttl must be positive")
	}

	jti = uuid.NewString()
	now := time.Now().UTC()

	c := claims{
		Email:  p.Email,
		UserID: p.UserID,
		Type:   p.Type,
		ClubID: p.ClubID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.signingKey)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return token, jti, nil
}

// Verify checks signature, expiry, and required fields. It does not check
// single-use; a token may legitimately be verified many times while a user
// fills out a form.
func (s *Service) Verify(token string) Verification {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Verification{Reason: "token has expired"}
	case err != nil:
		return Verification{Reason: "token is invalid"}
	case !parsed.Valid:
		return Verification{Reason: "token is invalid"}
	}

	if c.Email == "" || c.Type == "" || c.ID == "" || c.ExpiresAt == nil {
		return Verification{Reason: "token is missing required fields"}
	}

	return Verification{
		Valid: true,
		Payload: &Payload{
			Email:     c.Email,
			UserID:    c.UserID,
			Type:      c.Type,
			ClubID:    c.ClubID,
			JTI:       c.ID,
			IssuedAt:  c.IssuedAt.Time,
			ExpiresAt: c.ExpiresAt.Time,
		},
	}
}

// Consume records the jti as used. Exactly one caller succeeds; later calls
// get store.ErrTokenAlreadyUsed.
func (s *Service) Consume(p *Payload) error {
	return s.usedTokens.MarkUsed(p.JTI, p.UserID, p.Type, p.ExpiresAt.Add(retention))
}

// Consumed reports whether the jti is already in the ledger.
func (s *Service) Consumed(jti string) (bool, error) {
	return s.usedTokens.IsUsed(jti)
}

// RetainUntil returns the ledger retention horizon for a token expiry.
func RetainUntil(expiresAt time.Time) time.Time {
	return expiresAt.Add(retention)
}
