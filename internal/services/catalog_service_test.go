package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"jorra-tryon/internal/apperrors"
	"jorra-tryon/internal/logger"
	"jorra-tryon/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T, timeout time.Duration) (*CatalogService, *fakeBackend, *fakeBackend) {
	t.Helper()
	primary := newFakeBackend(t)
	partner := newFakeBackend(t)
	api := newTestAPI(primary.URL, timeout)
	session, _ := newTestSession(api)
	svc := NewCatalogService(api, newTestAPI(partner.URL+"/api/v1/", timeout), session, logger.Nop())
	return svc, primary, partner
}

func TestListHairstyles_NormalizesURLs(t *testing.T) {
	svc, primary, _ := newCatalog(t, time.Second)
	primary.handle("/hairstyles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bob", r.URL.Query().Get("search"))
		assert.Equal(t, "Short", r.URL.Query().Get("category"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "", r.URL.Query().Get("offset"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"hairstyles": []map[string]interface{}{
				{"id": 7, "name": "Pixie", "category": "Short", "tags": []string{"Bold", "bold"}, "image_url": "/static/pixie.jpg", "uploaded_by": "admin", "created_at": "2025-01-02T03:04:05"},
				{"id": 8, "name": "Bob", "category": "Short", "image_url": "https://cdn.example.com/bob.jpg"},
			},
			"total":  2,
			"offset": 0,
			"limit":  5,
		})
	})

	page := svc.ListHairstyles(context.Background(), models.HairstyleFilter{Search: "bob", Category: "Short", Limit: 5})

	require.Len(t, page.Items, 2)
	assert.Equal(t, primary.URL+"/static/pixie.jpg", page.Items[0].ImageURL)
	assert.Equal(t, "https://cdn.example.com/bob.jpg", page.Items[1].ImageURL)
	assert.Equal(t, []string{"bold"}, page.Items[0].Tags)
	assert.Equal(t, models.FlexibleID("7"), page.Items[0].ID)
	assert.Equal(t, models.SourcePrimary, page.Items[0].Source)
	assert.Equal(t, 2, page.Total)
}

func assertFallback(t *testing.T, page models.HairstylePage) {
	t.Helper()
	require.Len(t, page.Items, 3)
	assert.Equal(t, "Classic Bob", page.Items[0].Name)
	assert.Equal(t, "Beach Waves", page.Items[1].Name)
	assert.Equal(t, "Long Layers", page.Items[2].Name)
	assert.Equal(t, []models.FlexibleID{"1", "2", "3"}, []models.FlexibleID{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})
	assert.Equal(t, 3, page.Total)
}

func TestListHairstyles_TimeoutUsesFallback(t *testing.T) {
	svc, primary, _ := newCatalog(t, 20*time.Millisecond)
	primary.handle("/hairstyles", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	assertFallback(t, svc.ListHairstyles(context.Background(), models.HairstyleFilter{}))
}

func TestListHairstyles_ServerErrorUsesFallback(t *testing.T) {
	svc, primary, _ := newCatalog(t, time.Second)
	primary.handle("/hairstyles", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	page := svc.ListHairstyles(context.Background(), models.HairstyleFilter{Offset: 20})
	assertFallback(t, page)
	assert.Equal(t, 20, page.Offset)
	assert.Equal(t, 10, page.Limit)
}

func TestListHairstyles_MalformedBodyUsesFallback(t *testing.T) {
	svc, primary, _ := newCatalog(t, time.Second)
	primary.handle("/hairstyles", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hairstyles": [`))
	})

	assertFallback(t, svc.ListHairstyles(context.Background(), models.HairstyleFilter{}))
}

func TestListSecondaryCatalog_AdaptsPartnerShape(t *testing.T) {
	svc, _, partner := newCatalog(t, time.Second)
	partner.handle("/api/v1/hairstyles/hair/public", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "success",
			"message": "ok",
			"data": []map[string]interface{}{
				{"id": "abc", "name": "Braids", "thumbnail": map[string]string{"url": "https://img.nhb.example/braids.png"}, "image_url": "/ignored.png", "category": map[string]string{"name": "Protective"}, "uploadedBy": "salon-1", "createdAt": "2025-05-01T10:00:00Z"},
				{"id": 9, "name": "Locs", "thumbnail": map[string]string{"path": "/media/locs.png"}, "category": "Protective", "uploaded_by": "salon-2"},
			},
		})
	})

	page := svc.ListSecondaryCatalog(context.Background())

	require.Len(t, page.Items, 2)
	braids := page.Items[0]
	assert.Equal(t, models.FlexibleID("abc"), braids.ID)
	assert.Equal(t, "https://img.nhb.example/braids.png", braids.ImageURL)
	assert.Equal(t, "Protective", braids.Category)
	assert.Equal(t, "salon-1", braids.UploadedBy)
	assert.Equal(t, 2025, braids.CreatedAt.Year())
	assert.Equal(t, models.SourceSecondary, braids.Source)

	locs := page.Items[1]
	assert.Equal(t, partner.URL+"/media/locs.png", locs.ImageURL)
	assert.Equal(t, "salon-2", locs.UploadedBy)
	assert.False(t, locs.CreatedAt.IsZero())
	assert.Equal(t, 2, page.Total)
}

func TestListSecondaryCatalog_FailureIsEmpty(t *testing.T) {
	svc, _, partner := newCatalog(t, time.Second)
	partner.handle("/api/v1/hairstyles/hair/public", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	page := svc.ListSecondaryCatalog(context.Background())
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Total)
}

func TestListCategories_Fallback(t *testing.T) {
	svc, primary, _ := newCatalog(t, time.Second)
	primary.handle("/categories", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	cats := svc.ListCategories(context.Background())
	require.Len(t, cats, 6)
	assert.Equal(t, "Short", cats[0].Name)
	assert.Equal(t, "Wavy", cats[5].Name)
}

func TestListCategories_Success(t *testing.T) {
	svc, primary, _ := newCatalog(t, time.Second)
	primary.handle("/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"categories": []map[string]interface{}{{"id": 11, "name": "Fade"}}})
	})

	cats := svc.ListCategories(context.Background())
	require.Len(t, cats, 1)
	assert.Equal(t, "Fade", cats[0].Name)
}

func TestAddHairstyle_Multipart(t *testing.T) {
	svc, primary, _ := newCatalog(t, time.Second)
	primary.handle("/hairstyles/add", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Curtain Bangs", r.FormValue("name"))
		assert.Equal(t, "3", r.FormValue("category_id"))
		assert.JSONEq(t, `["soft","face-framing"]`, r.FormValue("tags"))
		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		f.Close()
		assert.Equal(t, "bangs.png", hdr.Filename)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": 99, "name": "Curtain Bangs", "image_url": "/uploads/99.png"})
	})

	h, err := svc.AddHairstyle(context.Background(), models.NewHairstyle{
		Name:       "Curtain Bangs",
		CategoryID: 3,
		Tags:       []string{"Soft", "face-framing", "soft"},
		Filename:   "bangs.png",
		Image:      []byte("\x89PNG\r\n\x1a\nfake"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.FlexibleID("99"), h.ID)
	assert.Equal(t, primary.URL+"/uploads/99.png", h.ImageURL)
}

func TestAddHairstyle_Validation(t *testing.T) {
	svc, primary, _ := newCatalog(t, time.Second)

	_, err := svc.AddHairstyle(context.Background(), models.NewHairstyle{Name: "x"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, 0, primary.count("POST /hairstyles/add"))
}

func TestResolve_PrimaryAuthoritative(t *testing.T) {
	svc, primary, partner := newCatalog(t, time.Second)
	primary.handle("/hairstyles/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/hairstyles/5" {
			writeJSON(w, http.StatusOK, map[string]interface{}{"id": 5, "name": "Primary Five"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Hairstyle not found"})
	})
	partner.handle("/api/v1/hairstyles/hair/public", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": []map[string]interface{}{
			{"id": 5, "name": "Partner Five"},
			{"id": "p-1", "name": "Partner Only"},
		}})
	})

	h, err := svc.Resolve(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "Primary Five", h.Name)

	h, err = svc.Resolve(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Partner Only", h.Name)

	_, err = svc.Resolve(context.Background(), "missing")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestMergeCatalogs(t *testing.T) {
	primary := []models.Hairstyle{{ID: "1", Name: "P1"}, {ID: "2", Name: "P2"}}
	secondary := []models.Hairstyle{{ID: "2", Name: "S2"}, {ID: "x", Name: "SX"}, {ID: "x", Name: "SX dup"}}

	merged := MergeCatalogs(primary, secondary)

	require.Len(t, merged, 3)
	assert.Equal(t, "P1", merged[0].Name)
	assert.Equal(t, "P2", merged[1].Name)
	assert.Equal(t, "SX", merged[2].Name)
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		origin, raw, want string
	}{
		{"https://api.example.com", "/img/a.jpg", "https://api.example.com/img/a.jpg"},
		{"https://api.example.com/", "img/a.jpg", "https://api.example.com/img/a.jpg"},
		{"https://api.example.com", "http://cdn.example.com/a.jpg", "http://cdn.example.com/a.jpg"},
		{"https://api.example.com", "data:image/png;base64,AA", "data:image/png;base64,AA"},
		{"https://api.example.com", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AbsoluteURL(tt.origin, tt.raw), tt.raw)
	}
}
