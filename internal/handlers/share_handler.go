package handlers

import (
	"encoding/json"
	"net/http"

	"jorra-tryon/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type ShareHandler struct {
	shares *services.ShareService
	logger zerolog.Logger
}

func NewShareHandler(shares *services.ShareService, logger zerolog.Logger) *ShareHandler {
	return &ShareHandler{
		shares: shares,
		logger: logger,
	}
}

func (h *ShareHandler) Share(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid generation ID")
		return
	}

	var req struct {
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	link, err := h.shares.RequestShareLink(r.Context(), id, req.Platform)
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to create share link")
		return
	}
	respondWithJSON(w, http.StatusOK, link)
}

func (h *ShareHandler) GetShared(w http.ResponseWriter, r *http.Request) {
	shared, err := h.shares.GetShared(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		respondWithAppError(w, h.logger, err, "Shared generation not found")
		return
	}
	respondWithJSON(w, http.StatusOK, shared)
}

func (h *ShareHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	page, err := h.shares.ListShares(r.Context(), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to fetch shares")
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *ShareHandler) ClaimBonus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostURL string `json:"post_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	claim, err := h.shares.ClaimBonus(r.Context(), req.PostURL)
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to claim bonus")
		return
	}
	respondWithJSON(w, http.StatusOK, claim)
}
