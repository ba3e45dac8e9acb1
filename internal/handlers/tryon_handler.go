package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"jorra-tryon/internal/models"
	"jorra-tryon/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type TryOnHandler struct {
	tryOn  *services.TryOnService
	logger zerolog.Logger
}

func NewTryOnHandler(tryOn *services.TryOnService, logger zerolog.Logger) *TryOnHandler {
	return &TryOnHandler{
		tryOn:  tryOn,
		logger: logger,
	}
}

// TryOn accepts a multipart body with a "selfie" file and either a "hairstyle_id" field
// or a "hairstyle" reference image. The response carries the transfer key the result
// page redeems through GET /results/{key}.
func (h *TryOnHandler) TryOn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid upload")
		return
	}

	photo, photoName, err := readFormFile(r, "selfie")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid upload")
		return
	}

	var result *models.GenerationResult
	if reference, referenceName, rerr := readFormFile(r, "hairstyle"); rerr == nil && len(reference) > 0 {
		result, err = h.tryOn.GenerateWithUpload(r.Context(), photo, photoName, reference, referenceName)
	} else {
		result, err = h.tryOn.Generate(r.Context(), services.GenerateInput{
			HairstyleID: models.FlexibleID(r.FormValue("hairstyle_id")),
			Photo:       photo,
			Filename:    photoName,
		})
	}
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to generate hairstyle")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// readFormFile returns an empty slice without error when the part is absent.
func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

func (h *TryOnHandler) Progress(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"in_flight": h.tryOn.InFlight(),
		"progress":  h.tryOn.Progress(),
	})
}

// Result hands a finished image to the result page. Each key works once.
func (h *TryOnHandler) Result(w http.ResponseWriter, r *http.Request) {
	result, ok := h.tryOn.TakeResult(mux.Vars(r)["key"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "not_found", "This result is no longer available. Please try again.")
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Hairstyle-ID", result.SourceHairstyleID.String())
	w.WriteHeader(http.StatusOK)
	w.Write(result.Image)
}

func (h *TryOnHandler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	page, err := h.tryOn.ListGenerations(r.Context(), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to fetch generations")
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *TryOnHandler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid generation ID")
		return
	}

	video, err := h.tryOn.GenerateVideo(r.Context(), id)
	if err != nil {
		respondWithAppError(w, h.logger, err, "Video generation is currently unavailable")
		return
	}

	w.Header().Set("Content-Type", video.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(video.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(video.Data)
}

func (h *TryOnHandler) ResetTryOns(w http.ResponseWriter, r *http.Request) {
	out, err := h.tryOn.ResetTryOns(r.Context())
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to reset try-ons")
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *TryOnHandler) RequestIncrease(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int    `json:"requested_amount"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	receipt, err := h.tryOn.RequestTryOnIncrease(r.Context(), req.Amount, req.Reason)
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to submit request")
		return
	}
	respondWithJSON(w, http.StatusCreated, receipt)
}
