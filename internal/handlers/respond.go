package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"jorra-tryon/internal/apperrors"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const maxUploadBytes = 16 << 20

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, errorCode, message string) {
	respondWithJSON(w, code, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// respondWithAppError logs the technical cause and writes only the user-facing message.
func respondWithAppError(w http.ResponseWriter, logger zerolog.Logger, err error, fallback string) {
	code := apperrors.HTTPStatus(err)
	kind := apperrors.KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	logger.Warn().Err(err).Str("kind", string(kind)).Int("status", code).Msg("Request failed")
	respondWithError(w, code, string(kind), apperrors.UserMessage(err, fallback))
}

func pathInt(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[name])
	return n, err == nil && n > 0
}

func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return def
	}
	return n
}
