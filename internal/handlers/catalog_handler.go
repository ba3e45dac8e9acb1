package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"jorra-tryon/internal/models"
	"jorra-tryon/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type CatalogHandler struct {
	catalog *services.CatalogService
	logger  zerolog.Logger
}

func NewCatalogHandler(catalog *services.CatalogService, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// ListHairstyles never fails; the catalog substitutes its fallback entries.
func (h *CatalogHandler) ListHairstyles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := h.catalog.ListHairstyles(r.Context(), models.HairstyleFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Limit:    queryInt(r, "limit", 0),
		Offset:   queryInt(r, "offset", 0),
	})
	respondWithJSON(w, http.StatusOK, page)
}

func (h *CatalogHandler) ListPartner(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.catalog.ListSecondaryCatalog(r.Context()))
}

func (h *CatalogHandler) ListMerged(w http.ResponseWriter, r *http.Request) {
	primary := h.catalog.ListHairstyles(r.Context(), models.HairstyleFilter{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Limit:    queryInt(r, "limit", 0),
	})
	secondary := h.catalog.ListSecondaryCatalog(r.Context())

	items := services.MergeCatalogs(primary.Items, secondary.Items)
	respondWithJSON(w, http.StatusOK, models.HairstylePage{
		Items: items,
		Total: len(items),
		Limit: len(items),
	})
}

// GetHairstyle resolves ids from either catalog.
func (h *CatalogHandler) GetHairstyle(w http.ResponseWriter, r *http.Request) {
	id := models.FlexibleID(mux.Vars(r)["id"])
	hairstyle, err := h.catalog.Resolve(r.Context(), id)
	if err != nil {
		respondWithAppError(w, h.logger, err, "Hairstyle not found")
		return
	}
	respondWithJSON(w, http.StatusOK, hairstyle)
}

func (h *CatalogHandler) AddHairstyle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid upload")
		return
	}

	in := models.NewHairstyle{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
	}
	if v := r.FormValue("category_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "validation", "Category must be a number.")
			return
		}
		in.CategoryID = id
	}
	if v := r.FormValue("tags"); v != "" {
		if err := json.Unmarshal([]byte(v), &in.Tags); err != nil {
			in.Tags = strings.Split(v, ",")
		}
	}

	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		in.Image, err = io.ReadAll(file)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid upload")
			return
		}
		in.Filename = header.Filename
	}

	hairstyle, err := h.catalog.AddHairstyle(r.Context(), in)
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to add hairstyle")
		return
	}
	respondWithJSON(w, http.StatusCreated, hairstyle)
}

func (h *CatalogHandler) DeleteHairstyle(w http.ResponseWriter, r *http.Request) {
	id := models.FlexibleID(mux.Vars(r)["id"])
	if err := h.catalog.DeleteHairstyle(r.Context(), id); err != nil {
		respondWithAppError(w, h.logger, err, "Failed to delete hairstyle")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Hairstyle deleted"})
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"categories": h.catalog.ListCategories(r.Context()),
	})
}

func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	category, err := h.catalog.CreateCategory(r.Context(), req.Name, req.Description)
	if err != nil {
		respondWithAppError(w, h.logger, err, "Failed to create category")
		return
	}
	respondWithJSON(w, http.StatusCreated, category)
}
