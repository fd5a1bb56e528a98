package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dwrenner/clubdesk/internal/auth"
	"github.com/dwrenner/clubdesk/internal/invitation"
	"github.com/dwrenner/clubdesk/internal/store"
)

type InvitationHandler struct {
	workflow  *invitation.Workflow
	userStore *store.UserStore
	baseURL   string
	logger    *slog.Logger
}

func NewInvitationHandler(wf *invitation.Workflow, us *store.UserStore, baseURL string, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{
		workflow:  wf,
		userStore: us,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// invitationStatus maps workflow sentinels to an HTTP status and a stable
// client-facing message.
func invitationStatus(err error) (int, string) {
	switch {
	case errors.Is(err, invitation.ErrNotAuthorized):
		return http.StatusForbidden, "not authorized"
	case errors.Is(err, invitation.ErrAlreadyGuardian):
		return http.StatusConflict, "already a guardian of a household"
	case errors.Is(err, invitation.ErrAlreadyInvited):
		return http.StatusConflict, "a pending invitation already exists"
	case errors.Is(err, invitation.ErrHouseholdFull):
		return http.StatusConflict, "household guardian limit reached"
	case errors.Is(err, invitation.ErrNotFound):
		return http.StatusNotFound, "invitation not found"
	case errors.Is(err, invitation.ErrExpired):
		return http.StatusBadRequest, "invitation has expired"
	case errors.Is(err, invitation.ErrNotPending):
		return http.StatusBadRequest, "invitation is no longer pending"
	case errors.Is(err, invitation.ErrTokenInvalid):
		return http.StatusBadRequest, "invitation link is invalid or expired"
	case errors.Is(err, invitation.ErrWrongEmail):
		return http.StatusForbidden, "invitation was issued to a different email"
	case errors.Is(err, invitation.ErrAlreadyUsed):
		return http.StatusBadRequest, "invitation has already been used"
	}
	return 0, ""
}

func (h *InvitationHandler) respondWorkflowError(w http.ResponseWriter, op string, err error) {
	if status, msg := invitationStatus(err); status != 0 {
		writeError(w, status, msg)
		return
	}
	h.logger.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// Invite creates a guardian invitation for a household. Only the household's
// primary guardian may invite.
func (h *InvitationHandler) Invite(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		HouseholdID int64  `json:"household_id"`
		Email       string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HouseholdID == 0 || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "household_id and email are required")
		return
	}

	created, err := h.workflow.Create(r.Context(), userID, req.HouseholdID, req.Email)
	if err != nil {
		h.respondWorkflowError(w, "create invitation", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"invitation": created.Invitation,
		"delivered":  created.Delivered,
	})
}

// InviteAdmin creates a club-admin invitation. System-admin only; the route
// is additionally gated by RequireAdmin.
func (h *InvitationHandler) InviteAdmin(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		ClubID int64  `json:"club_id"`
		Email  string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClubID == 0 || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "club_id and email are required")
		return
	}

	created, err := h.workflow.CreateAdmin(r.Context(), userID, req.ClubID, req.Email)
	if err != nil {
		h.respondWorkflowError(w, "create admin invitation", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"invitation": created.Invitation,
		"delivered":  created.Delivered,
	})
}

// Resend rotates the invitation's token and re-dispatches the email. The old
// link stops working immediately.
func (h *InvitationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invitation id")
		return
	}

	created, err := h.workflow.Resend(r.Context(), id, userID)
	if err != nil {
		h.respondWorkflowError(w, "resend invitation", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"invitation": created.Invitation,
		"delivered":  created.Delivered,
	})
}

// Cancel marks a pending invitation cancelled.
func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invitation id")
		return
	}

	if err := h.workflow.Cancel(id, userID); err != nil {
		h.respondWorkflowError(w, "cancel invitation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept redeems an invitation token for the authenticated user.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	user, err := h.userStore.GetByID(userID)
	if err != nil || user == nil {
		h.logger.Error("accept invitation user lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	inv, err := h.workflow.Accept(r.Context(), req.Token, user)
	if err != nil {
		h.respondWorkflowError(w, "accept invitation", err)
		return
	}

	redirect := h.baseURL + "/dashboard"
	if inv.HouseholdID != nil {
		redirect = h.baseURL + "/households/" + strconv.FormatInt(*inv.HouseholdID, 10)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invitation":  inv,
		"redirect_to": redirect,
	})
}
