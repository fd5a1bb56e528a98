package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dwrenner/clubdesk/internal/auth"
	"github.com/dwrenner/clubdesk/internal/email"
	"github.com/dwrenner/clubdesk/internal/middleware"
	"github.com/dwrenner/clubdesk/internal/model"
	"github.com/dwrenner/clubdesk/internal/otp"
)

type OTPHandler struct {
	service     *otp.Service
	emailClient *email.Client
	// devEchoCode returns the plaintext code in the API response. Never set
	// in production.
	devEchoCode bool
	logger      *slog.Logger
}

func NewOTPHandler(service *otp.Service, ec *email.Client, devEchoCode bool, logger *slog.Logger) *OTPHandler {
	return &OTPHandler{
		service:     service,
		emailClient: ec,
		devEchoCode: devEchoCode,
		logger:      logger,
	}
}

func parseCodeType(s string) (model.CodeType, bool) {
	switch model.CodeType(s) {
	case model.CodeEmailVerification, model.CodePhoneVerification,
		model.CodePasswordReset, model.CodeTwoFactorLogin,
		model.CodeAdminInvitation:
		return model.CodeType(s), true
	}
	return "", false
}

// Send issues a fresh code for the authenticated user, superseding any
// active one for the same type and contact.
func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		Type    string `json:"type"`
		Contact string `json:"contact"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	typ, ok := parseCodeType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown code type")
		return
	}
	// Admin onboarding codes carry a 24h TTL; only admins may issue them.
	if typ == model.CodeAdminInvitation && !auth.IsAdmin(r.Context()) {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	contact := strings.TrimSpace(req.Contact)
	if contact == "" {
		writeError(w, http.StatusBadRequest, "contact is required")
		return
	}

	issued, err := h.service.Generate(userID, typ, contact, middleware.RealIP(r))
	if err != nil {
		var rl *otp.RateLimitedError
		if errors.As(err, &rl) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":    "too many code requests",
				"reset_at": rl.ResetAt,
			})
			return
		}
		h.logger.Error("issue code", "error", err)
		writeError(w, http.StatusInternalServerError, "could not issue code")
		return
	}

	if h.emailClient.Configured() {
		if err := h.emailClient.SendVerificationCode(r.Context(), contact, issued.Code, string(typ), typ.TTL()); err != nil {
			h.logger.Error("send verification code", "error", err)
		}
	}

	resp := map[string]any{
		"expires_at":         issued.ExpiresAt,
		"attempts_remaining": issued.AttemptsRemaining,
	}
	if h.devEchoCode {
		resp["code"] = issued.Code
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// Verify checks a presented code. A wrong code is a 200 with success=false;
// only transport and storage failures are 5xx.
func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		Type    string `json:"type"`
		Contact string `json:"contact"`
		Code    string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	typ, ok := parseCodeType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown code type")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	outcome, err := h.service.Verify(userID, req.Code, typ, req.Contact)
	if err != nil {
		h.logger.Error("verify code", "error", err)
		writeError(w, http.StatusInternalServerError, "could not verify code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            outcome.Success,
		"message":            outcome.Message,
		"attempts_remaining": outcome.AttemptsRemaining,
	})
}
