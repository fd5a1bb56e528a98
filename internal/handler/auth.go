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
	"github.com/dwrenner/clubdesk/internal/ratelimit"
	"github.com/dwrenner/clubdesk/internal/store"
)

type AuthHandler struct {
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	otpService   *otp.Service
	limiter      ratelimit.Limiter
	emailClient  *email.Client
	devEchoCode  bool
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ss *store.SessionStore,
	os *otp.Service,
	limiter ratelimit.Limiter,
	ec *email.Client,
	devEchoCode, secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		sessionStore: ss,
		otpService:   os,
		limiter:      limiter,
		emailClient:  ec,
		devEchoCode:  devEchoCode,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

func (h *AuthHandler) allow(identifier, action string, rule ratelimit.Rule) bool {
	res, err := h.limiter.Check(identifier, action, rule.Max, rule.Window)
	if err != nil {
		h.logger.Warn("rate limiter unavailable, failing open", "identifier", identifier, "error", err)
		return true
	}
	return res.Allowed
}

// Signup registers a member account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if !h.allow(ratelimit.IPKey(middleware.RealIP(r)), "signup", ratelimit.SignupPerIP) {
		writeError(w, http.StatusTooManyRequests, "too many signup attempts")
		return
	}

	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "email and name are required")
		return
	}

	user, err := h.userStore.Create(req.Email, req.Name, "member")
	if err != nil {
		if store.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "email is already registered")
			return
		}
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// Login emails a one-time login code. The response does not reveal whether
// the email is registered.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	if emailAddr == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if !h.allow(ratelimit.IPKey(middleware.RealIP(r)), "login", ratelimit.LoginPerIP) ||
		!h.allow(ratelimit.EmailKey(emailAddr), "login", ratelimit.LoginPerEmail) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	accepted := map[string]any{"message": "If that email is registered, a code is on its way."}

	user, err := h.userStore.GetByEmail(emailAddr)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	issued, err := h.otpService.Generate(user.ID, model.CodeTwoFactorLogin, emailAddr, middleware.RealIP(r))
	if err != nil {
		var rl *otp.RateLimitedError
		if errors.As(err, &rl) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":    "too many code requests",
				"reset_at": rl.ResetAt,
			})
			return
		}
		h.logger.Error("issue login code", "error", err)
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	if h.emailClient.Configured() {
		if err := h.emailClient.SendVerificationCode(r.Context(), emailAddr, issued.Code, string(model.CodeTwoFactorLogin), model.CodeTwoFactorLogin.TTL()); err != nil {
			h.logger.Error("send login code", "error", err)
		}
	}
	if h.devEchoCode {
		accepted["code"] = issued.Code
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

// VerifyLogin redeems a login code for a session cookie.
func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	if emailAddr == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	user, err := h.userStore.GetByEmail(emailAddr)
	if err != nil {
		h.logger.Error("verify login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid code")
		return
	}

	outcome, err := h.otpService.Verify(user.ID, req.Code, model.CodeTwoFactorLogin, emailAddr)
	if err != nil {
		h.logger.Error("verify login code", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !outcome.Success {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":              outcome.Message,
			"attempts_remaining": outcome.AttemptsRemaining,
		})
		return
	}

	sess, err := h.sessionStore.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// Logout deletes the session and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessionStore.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
