package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jorra-tryon/internal/apperrors"
	"jorra-tryon/internal/models"

	"github.com/rs/zerolog"
)

const defaultPageLimit = 10

// CatalogService reads the primary hairstyle catalog and the partner (NHB) catalog.
type CatalogService struct {
	api     *APIClient
	partner *APIClient
	session authenticator
	logger  zerolog.Logger
	now     func() time.Time
}

func NewCatalogService(api, partner *APIClient, session authenticator, logger zerolog.Logger) *CatalogService {
	return &CatalogService{
		api:     api,
		partner: partner,
		session: session,
		logger:  logger,
		now:     time.Now,
	}
}

type primaryHairstyle struct {
	ID          models.FlexibleID `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    flexibleName      `json:"category"`
	Tags        []string          `json:"tags"`
	ImageURL    string            `json:"image_url"`
	UploadedBy  string            `json:"uploaded_by"`
	CreatedAt   models.Timestamp  `json:"created_at"`
}

type primaryEnvelope struct {
	Hairstyles []primaryHairstyle `json:"hairstyles"`
	Total      int                `json:"total"`
	Offset     int                `json:"offset"`
	Limit      int                `json:"limit"`
}

type partnerThumbnail struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

type partnerHairstyle struct {
	ID              models.FlexibleID `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Category        flexibleName      `json:"category"`
	Tags            []string          `json:"tags"`
	Thumbnail       *partnerThumbnail `json:"thumbnail"`
	ImageURL        string            `json:"image_url"`
	UploadedBy      string            `json:"uploadedBy"`
	UploadedBySnake string            `json:"uploaded_by"`
	CreatedAt       models.Timestamp  `json:"createdAt"`
	CreatedAtSnake  models.Timestamp  `json:"created_at"`
}

type partnerEnvelope struct {
	Status     interface{}        `json:"status"`
	Message    string             `json:"message"`
	Data       []partnerHairstyle `json:"data"`
	Hairstyles []partnerHairstyle `json:"hairstyles"`
}

// flexibleName decodes either "Short" or {"name": "Short", ...}.
type flexibleName string

func (n *flexibleName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = flexibleName(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		*n = flexibleName(obj.Name)
		return nil
	}
	*n = ""
	return nil
}

// ListHairstyles never fails: on any error it returns the fixed fallback set so the
// catalog view is never empty.
func (s *CatalogService) ListHairstyles(ctx context.Context, filter models.HairstyleFilter) models.HairstylePage {
	q := url.Values{}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	for k, v := range pageQuery(filter.Limit, filter.Offset) {
		q[k] = v
	}

	page, err := s.fetchHairstyles(ctx, q)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Hairstyle catalog unavailable, using fallback data")
		return s.fallbackHairstyles(filter)
	}
	return page
}

func (s *CatalogService) fetchHairstyles(ctx context.Context, q url.Values) (models.HairstylePage, error) {
	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodGet, path: "/hairstyles", query: q})
	if err != nil {
		return models.HairstylePage{}, err
	}
	if !resp.ok() {
		return models.HairstylePage{}, resp.err("Failed to fetch hairstyles")
	}

	var env primaryEnvelope
	if err := resp.decode(&env); err != nil {
		return models.HairstylePage{}, err
	}

	items := make([]models.Hairstyle, 0, len(env.Hairstyles))
	for _, h := range env.Hairstyles {
		items = append(items, s.fromPrimary(h))
	}
	return models.HairstylePage{Items: items, Total: env.Total, Offset: env.Offset, Limit: env.Limit}, nil
}

func (s *CatalogService) fromPrimary(h primaryHairstyle) models.Hairstyle {
	return models.Hairstyle{
		ID:          h.ID,
		Name:        h.Name,
		Description: h.Description,
		Category:    string(h.Category),
		Tags:        models.NormalizeTags(h.Tags),
		ImageURL:    AbsoluteURL(s.api.BaseURL(), h.ImageURL),
		UploadedBy:  h.UploadedBy,
		CreatedAt:   h.CreatedAt,
		Source:      models.SourcePrimary,
	}
}

// ListSecondaryCatalog returns the partner catalog, or an empty page when it cannot be
// reached. Empty means the feature is unavailable; there is no fallback data.
func (s *CatalogService) ListSecondaryCatalog(ctx context.Context) models.HairstylePage {
	empty := models.HairstylePage{Items: []models.Hairstyle{}}
	if s.partner == nil {
		return empty
	}

	resp, err := s.partner.send(ctx, apiRequest{method: http.MethodGet, path: "hairstyles/hair/public"})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Partner catalog unreachable")
		return empty
	}
	if !resp.ok() {
		s.logger.Warn().Int("status", resp.status).Msg("Partner catalog error")
		return empty
	}

	var env partnerEnvelope
	if err := resp.decode(&env); err != nil {
		s.logger.Warn().Err(err).Msg("Partner catalog payload malformed")
		return empty
	}

	raw := env.Data
	if raw == nil {
		raw = env.Hairstyles
	}

	items := make([]models.Hairstyle, 0, len(raw))
	for _, h := range raw {
		items = append(items, s.fromPartner(h))
	}
	return models.HairstylePage{Items: items, Total: len(items), Offset: 0, Limit: len(items)}
}

func (s *CatalogService) fromPartner(h partnerHairstyle) models.Hairstyle {
	image := h.ImageURL
	if h.Thumbnail != nil {
		if h.Thumbnail.URL != "" {
			image = h.Thumbnail.URL
		} else if h.Thumbnail.Path != "" {
			image = h.Thumbnail.Path
		}
	}

	uploadedBy := h.UploadedBy
	if uploadedBy == "" {
		uploadedBy = h.UploadedBySnake
	}

	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = h.CreatedAtSnake
	}
	if createdAt.IsZero() {
		createdAt = models.NewTimestamp(s.now())
	}

	return models.Hairstyle{
		ID:          h.ID,
		Name:        h.Name,
		Description: h.Description,
		Category:    string(h.Category),
		Tags:        models.NormalizeTags(h.Tags),
		ImageURL:    AbsoluteURL(originOf(s.partner.BaseURL()), image),
		UploadedBy:  uploadedBy,
		CreatedAt:   createdAt,
		Source:      models.SourceSecondary,
	}
}

// ListCategories falls back to the fixed category set on any failure.
func (s *CatalogService) ListCategories(ctx context.Context) []models.Category {
	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodGet, path: "/categories"})
	if err == nil && !resp.ok() {
		err = resp.err("Failed to fetch categories")
	}
	if err == nil {
		var env struct {
			Categories []models.Category `json:"categories"`
		}
		if err = resp.decode(&env); err == nil {
			return env.Categories
		}
	}

	s.logger.Warn().Err(err).Msg("Categories unavailable, using fallback data")
	return fallbackCategories()
}

func (s *CatalogService) GetHairstyle(ctx context.Context, id models.FlexibleID) (*models.Hairstyle, error) {
	if id == "" {
		return nil, apperrors.Validation("Please select a hairstyle first.")
	}

	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodGet, path: "/hairstyles/" + url.PathEscape(id.String())})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Failed to fetch hairstyle")
	}

	var h primaryHairstyle
	if err := resp.decode(&h); err != nil {
		return nil, err
	}
	out := s.fromPrimary(h)
	return &out, nil
}

func (s *CatalogService) AddHairstyle(ctx context.Context, in models.NewHairstyle) (*models.Hairstyle, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.Validation("Please enter a name for the hairstyle.")
	}
	if len(in.Image) == 0 {
		return nil, apperrors.Validation("Please choose an image to upload.")
	}

	tags, err := json.Marshal(models.NormalizeTags(in.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	form := url.Values{}
	form.Set("name", strings.TrimSpace(in.Name))
	if in.Description != "" {
		form.Set("description", in.Description)
	}
	if in.CategoryID > 0 {
		form.Set("category_id", strconv.Itoa(in.CategoryID))
	}
	form.Set("tags", string(tags))

	filename := in.Filename
	if filename == "" {
		filename = "hairstyle.jpg"
	}

	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{
		method: http.MethodPost,
		path:   "/hairstyles/add",
		form:   form,
		files:  []filePart{{field: "image", filename: filename, data: in.Image}},
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Failed to add hairstyle")
	}

	var h primaryHairstyle
	if err := resp.decode(&h); err != nil {
		return nil, err
	}
	out := s.fromPrimary(h)
	s.logger.Info().Str("hairstyle_id", out.ID.String()).Str("name", out.Name).Msg("Hairstyle added")
	return &out, nil
}

func (s *CatalogService) DeleteHairstyle(ctx context.Context, id models.FlexibleID) error {
	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodDelete, path: "/hairstyles/" + url.PathEscape(id.String())})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return resp.err("Failed to delete hairstyle")
	}
	s.logger.Info().Str("hairstyle_id", id.String()).Msg("Hairstyle deleted")
	return nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, name, description string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("Please enter a category name.")
	}

	form := url.Values{}
	form.Set("name", name)
	if description != "" {
		form.Set("description", description)
	}

	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodPost, path: "/categories", form: form})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Failed to create category")
	}

	var c models.Category
	if err := resp.decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Resolve finds a hairstyle by id, consulting the primary catalog first. An id present
// in both catalogs resolves to the primary entry.
func (s *CatalogService) Resolve(ctx context.Context, id models.FlexibleID) (*models.Hairstyle, error) {
	if id == "" {
		return nil, apperrors.Validation("Please select a hairstyle first.")
	}

	h, err := s.GetHairstyle(ctx, id)
	if err == nil {
		return h, nil
	}

	for _, p := range s.ListSecondaryCatalog(ctx).Items {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}

	if apperrors.KindOf(err) == apperrors.KindNotFound {
		return nil, apperrors.NotFound("That hairstyle is no longer available.")
	}
	return nil, err
}

// MergeCatalogs appends partner entries whose id is not already in the primary list.
func MergeCatalogs(primary, secondary []models.Hairstyle) []models.Hairstyle {
	out := make([]models.Hairstyle, 0, len(primary)+len(secondary))
	seen := make(map[models.FlexibleID]struct{}, len(primary))
	for _, h := range primary {
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	for _, h := range secondary {
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	return out
}

// AbsoluteURL prefixes origin onto raw unless raw already carries a scheme.
func AbsoluteURL(origin, raw string) string {
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return raw
	}
	origin = strings.TrimRight(origin, "/")
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return origin + raw
}

func originOf(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" {
		return base
	}
	return u.Scheme + "://" + u.Host
}

func (s *CatalogService) fallbackHairstyles(filter models.HairstyleFilter) models.HairstylePage {
	now := models.NewTimestamp(s.now())
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	return models.HairstylePage{
		Items: []models.Hairstyle{
			{
				ID:          "1",
				Name:        "Classic Bob",
				Description: "A timeless bob cut that works for any occasion",
				Category:    "Short",
				Tags:        []string{"classic", "professional", "easy-care"},
				ImageURL:    "/classic-bob-hairstyle.jpg",
				UploadedBy:  "admin",
				CreatedAt:   now,
				Source:      models.SourceFallback,
			},
			{
				ID:          "2",
				Name:        "Beach Waves",
				Description: "Effortless wavy hair perfect for summer",
				Category:    "Medium",
				Tags:        []string{"casual", "wavy", "beachy"},
				ImageURL:    "/beach-waves-hairstyle.jpg",
				UploadedBy:  "admin",
				CreatedAt:   now,
				Source:      models.SourceFallback,
			},
			{
				ID:          "3",
				Name:        "Long Layers",
				Description: "Flowing layers that add movement and volume",
				Category:    "Long",
				Tags:        []string{"layered", "volume", "flowing"},
				ImageURL:    "/long-layered-hairstyle.jpg",
				UploadedBy:  "admin",
				CreatedAt:   now,
				Source:      models.SourceFallback,
			},
		},
		Total:  3,
		Offset: filter.Offset,
		Limit:  limit,
	}
}

func fallbackCategories() []models.Category {
	return []models.Category{
		{ID: 1, Name: "Short", Description: "Short hairstyles"},
		{ID: 2, Name: "Medium", Description: "Medium length hairstyles"},
		{ID: 3, Name: "Long", Description: "Long hairstyles"},
		{ID: 4, Name: "Curly", Description: "Curly hairstyles"},
		{ID: 5, Name: "Straight", Description: "Straight hairstyles"},
		{ID: 6, Name: "Wavy", Description: "Wavy hairstyles"},
	}
}
