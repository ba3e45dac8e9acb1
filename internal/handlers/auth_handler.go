package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"jorra-tryon/internal/apperrors"
	"jorra-tryon/internal/models"
	"jorra-tryon/internal/services"

	"github.com/rs/zerolog"
)

type AuthHandler struct {
	sessions *services.SessionManager
	logger   zerolog.Logger
}

func NewAuthHandler(sessions *services.SessionManager, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		logger:   logger,
	}
}

type authFunc func(ctx context.Context, username, password string) (*services.LoginResult, error)

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, http.StatusOK, h.sessions.Login, "Login failed")
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, http.StatusCreated, h.sessions.Signup, "Signup failed")
}

// The profile backfill started by a successful login keeps running after the response
// is written; the UI picks the user id up on its next /auth/me.
func (h *AuthHandler) authenticate(w http.ResponseWriter, r *http.Request, status int, fn authFunc, fallback string) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := fn(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithAppError(w, h.logger, err, fallback)
		return
	}

	respondWithJSON(w, status, result.Session)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Logout failed")
		respondWithError(w, http.StatusInternalServerError, "logout_failed", "Could not sign out. Please try again.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Signed out"})
}

// Me re-reads the profile from the backend, so it doubles as the page-load check.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Refresh(r.Context())
	if session == nil {
		respondWithAppError(w, h.logger, apperrors.Auth("Please sign in to continue."), "")
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}
