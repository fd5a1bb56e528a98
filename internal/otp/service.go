// Package otp generates, issues, and verifies short numeric one-time codes.
package otp

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dwrenner/clubdesk/internal/metrics"
	"github.com/dwrenner/clubdesk/internal/model"
	"github.com/dwrenner/clubdesk/internal/ratelimit"
	"github.com/dwrenner/clubdesk/internal/store"
)

const (
	maxAttempts = 5
	codeDigits  = 6

	actionSend   = "otp_send"
	actionFailed = "otp_failed"
)

// RateLimitedError reports a rejected issue request and when the window rolls.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// Issued is returned from Generate. Code is plaintext exactly once, for
// dispatch; only its bcrypt hash is persisted.
type Issued struct {
	Code              string
	ExpiresAt         time.Time
	AttemptsRemaining int
}

// Outcome is the result of a verification attempt. A wrong code is a normal
// negative outcome, not an error.
type Outcome struct {
	Success           bool
	Message           string
	AttemptsRemaining int
}

type Service struct {
	codes   *store.VerificationCodeStore
	limiter ratelimit.Limiter
	logger  *slog.Logger
}

func NewService(codes *store.VerificationCodeStore, limiter ratelimit.Limiter, logger *slog.Logger) *Service {
	return &Service{codes: codes, limiter: limiter, logger: logger}
}

// generateCode draws a uniform 6-digit code over the full 000000-999999 range.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// allow runs one rate-limit check with the documented fail-open policy: if
// the limiter itself errors, the request is admitted and the outage is logged
// distinctly from a rejection.
func (s *Service) allow(identifier string, rule ratelimit.Rule) (ratelimit.Result, bool) {
	res, err := s.limiter.Check(identifier, actionSend, rule.Max, rule.Window)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, failing open",
			"identifier", identifier, "error", err)
		metrics.RateLimitFailOpen.Inc()
		return ratelimit.Result{Allowed: true}, true
	}
	if !res.Allowed {
		metrics.RateLimitRejections.WithLabelValues(actionSend).Inc()
	}
	return res, res.Allowed
}

// Generate issues a fresh code for (userID, type, contact), invalidating any
// prior unconsumed code for the same triple first. The two steps are separate
// statements: a crash between them leaves zero active codes, never two.
func (s *Service) Generate(userID int64, typ model.CodeType, contact, remoteIP string) (*Issued, error) {
	contact = strings.ToLower(strings.TrimSpace(contact))
	if contact == "" {
		return nil, fmt.Errorf("contact is required")
	}

	checks := []struct {
		identifier string
		rule       ratelimit.Rule
	}{
		{ratelimit.UserKey(userID), ratelimit.OTPPerUser},
		{ratelimit.ContactKey(contact), ratelimit.OTPPerContact},
	}
	if remoteIP != "" {
		checks = append(checks, struct {
			identifier string
			rule       ratelimit.Rule
		}{ratelimit.IPKey(remoteIP), ratelimit.OTPPerIP})
	}
	for _, c := range checks {
		if res, ok := s.allow(c.identifier, c.rule); !ok {
			return nil, &RateLimitedError{ResetAt: res.ResetAt}
		}
	}

	if err := s.codes.InvalidateActive(userID, typ, contact); err != nil {
		return nil, err
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}

	vc, err := s.codes.Create(&model.VerificationCode{
		UserID:      userID,
		CodeHash:    string(hash),
		Type:        typ,
		Contact:     contact,
		MaxAttempts: maxAttempts,
		ExpiresAt:   time.Now().UTC().Add(typ.TTL()),
	})
	if err != nil {
		return nil, err
	}

	metrics.OTPIssued.WithLabelValues(string(typ)).Inc()
	return &Issued{
		Code:              code,
		ExpiresAt:         vc.ExpiresAt,
		AttemptsRemaining: vc.MaxAttempts,
	}, nil
}

// Verify compares a presented code against the active record and, on a match,
// consumes it. The consume step is a single guarded update, so concurrent
// correct attempts produce exactly one success.
func (s *Service) Verify(userID int64, code string, typ model.CodeType, contact string) (Outcome, error) {
	contact = strings.ToLower(strings.TrimSpace(contact))
	code = strings.TrimSpace(code)

	vc, err := s.codes.GetActive(userID, typ, contact)
	if err != nil {
		return Outcome{}, err
	}
	if vc == nil {
		metrics.OTPVerifications.WithLabelValues("expired_or_missing").Inc()
		return Outcome{Message: "Code has expired or already been used. Please request a new one."}, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(vc.CodeHash), []byte(code)) != nil {
		return s.recordMismatch(vc, userID)
	}

	ok, err := s.codes.Consume(vc.ID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		// Lost the race to a concurrent correct attempt, or expired between
		// lookup and consume. Either way the code is spent.
		metrics.OTPVerifications.WithLabelValues("conflict").Inc()
		return Outcome{Message: "Code has expired or already been used. Please request a new one."}, nil
	}

	metrics.OTPVerifications.WithLabelValues("success").Inc()
	return Outcome{Success: true, Message: "Verified."}, nil
}

func (s *Service) recordMismatch(vc *model.VerificationCode, userID int64) (Outcome, error) {
	attempts, err := s.codes.IncrementAttempts(vc.ID)
	if err != nil {
		return Outcome{}, err
	}
	metrics.OTPVerifications.WithLabelValues("mismatch").Inc()

	// Soft lockout: repeated failures across codes invalidate the active code
	// outright and force a fresh request.
	rule := ratelimit.FailedOTPUser
	res, err := s.limiter.Check(ratelimit.UserKey(userID), actionFailed, rule.Max, rule.Window)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, failing open",
			"identifier", ratelimit.UserKey(userID), "error", err)
		metrics.RateLimitFailOpen.Inc()
	} else if !res.Allowed {
		metrics.RateLimitRejections.WithLabelValues(actionFailed).Inc()
		if err := s.codes.InvalidateActive(vc.UserID, vc.Type, vc.Contact); err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: "Too many failed attempts. Please request a new code later."}, nil
	}

	remaining := vc.MaxAttempts - attempts
	if remaining <= 0 {
		return Outcome{Message: "Too many incorrect attempts. Please request a new code."}, nil
	}
	return Outcome{
		Message:           "Incorrect code. Please try again.",
		AttemptsRemaining: remaining,
	}, nil
}
