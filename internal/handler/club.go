package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dwrenner/clubdesk/internal/store"
)

type ClubHandler struct {
	clubStore      *store.ClubStore
	householdStore *store.HouseholdStore
	logger         *slog.Logger
}

func NewClubHandler(cs *store.ClubStore, hs *store.HouseholdStore, logger *slog.Logger) *ClubHandler {
	return &ClubHandler{clubStore: cs, householdStore: hs, logger: logger}
}

// Create registers a new club. Admin only.
func (h *ClubHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	club, err := h.clubStore.Create(strings.TrimSpace(req.Name))
	if err != nil {
		h.logger.Error("create club", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create club")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"club": club})
}

// CreateHousehold registers a household within a club. Admin only; the
// creating flow adds the first (primary) guardian separately.
func (h *ClubHandler) CreateHousehold(w http.ResponseWriter, r *http.Request) {
	clubID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid club id")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	club, err := h.clubStore.GetByID(clubID)
	if err != nil {
		h.logger.Error("club lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if club == nil {
		writeError(w, http.StatusNotFound, "club not found")
		return
	}

	household, err := h.householdStore.Create(clubID, strings.TrimSpace(req.Name))
	if err != nil {
		h.logger.Error("create household", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create household")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"household": household})
}
