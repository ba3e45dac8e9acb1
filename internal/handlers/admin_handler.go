package handlers

import (
	"net/http"

	"jorra-tryon/internal/models"
	"jorra-tryon/internal/services"

	"github.com/rs/zerolog"
)

type AdminHandler struct {
	admin  *services.AdminService
	logger zerolog.Logger
}

func NewAdminHandler(admin *services.AdminService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

func (h *AdminHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := models.RequestStatus(r.URL.Query().Get("status"))
	page, err := h.admin.ListRequests(r.Context(), status, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to fetch requests")
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request ID")
		return
	}

	result, err := h.admin.Approve(r.Context(), id)
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to approve request")
		return
	}

	h.logger.Info().Int("request_id", id).Int("new_try_ons", result.NewCreditTotal).Msg("Request approved")
	respondWithJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) Deny(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request ID")
		return
	}

	result, err := h.admin.Deny(r.Context(), id)
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to deny request")
		return
	}

	h.logger.Info().Int("request_id", id).Msg("Request denied")
	respondWithJSON(w, http.StatusOK, result)
}
