package services

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"jorra-tryon/internal/apperrors"
	"jorra-tryon/internal/models"
	"jorra-tryon/internal/progress"
	"jorra-tryon/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRfake-image-data")

func TestGenerate_PreconditionsInOrder(t *testing.T) {
	f := newTryOnFixture(t, time.Second)
	signIn(t, f.session, f.creds, 0)
	ctx := context.Background()

	_, err := f.service.Generate(ctx, GenerateInput{})
	assert.Equal(t, MsgSelectHairstyle, apperrors.UserMessage(err, ""))

	_, err = f.service.Generate(ctx, GenerateInput{HairstyleID: "42"})
	assert.Equal(t, MsgNoPhoto, apperrors.UserMessage(err, ""))

	_, err = f.service.Generate(ctx, GenerateInput{HairstyleID: "42", Photo: pngBytes})
	assert.Equal(t, MsgNoTryOns, apperrors.UserMessage(err, ""))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	assert.Equal(t, 0, f.backend.count("POST /apply-hairstyle/42"))
	assert.False(t, f.service.estimator.Running())
}

func TestGenerate_RequiresSession(t *testing.T) {
	f := newTryOnFixture(t, time.Second)

	_, err := f.service.Generate(context.Background(), GenerateInput{HairstyleID: "42", Photo: pngBytes})
	assert.Equal(t, apperrors.KindAuth, apperrors.KindOf(err))
}

// A user with one try-on generates once, is re-synced to zero, and is then blocked.
func TestGenerate_SuccessThenOutOfCredits(t *testing.T) {
	f := newTryOnFixture(t, time.Second)
	signIn(t, f.session, f.creds, 1)

	f.backend.handle("/apply-hairstyle/42", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		file, hdr, err := r.FormFile("selfie")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, pngBytes, data)
		assert.Equal(t, "me.png", hdr.Filename)

		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	f.backend.handle("/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"username": "ada", "try_ons": 0, "user_id": 7})
	})

	ctx := context.Background()
	res, err := f.service.Generate(ctx, GenerateInput{HairstyleID: "42", Photo: pngBytes, Filename: "me.png"})
	require.NoError(t, err)

	assert.Equal(t, pngBytes, res.Image)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, "42", res.SourceHairstyleID.String())
	assert.False(t, res.CompletedAt.Before(res.IssuedAt))
	assert.Equal(t, 100, f.service.Progress().Percent)
	assert.Equal(t, progress.PhaseComplete, f.service.Progress().Phase)
	assert.Equal(t, 0, f.session.Current().CreditsRemaining)
	assert.Equal(t, 1, f.backend.count("POST /apply-hairstyle/42"))

	require.NotEmpty(t, res.TransferKey)
	handed, ok := f.service.TakeResult(res.TransferKey)
	require.True(t, ok)
	assert.Equal(t, res, handed)
	_, ok = f.service.TakeResult(res.TransferKey)
	assert.False(t, ok)

	_, err = f.service.Generate(ctx, GenerateInput{HairstyleID: "42", Photo: pngBytes})
	assert.Equal(t, MsgNoTryOns, apperrors.UserMessage(err, ""))
	assert.Equal(t, 1, f.backend.count("POST /apply-hairstyle/42"))
}

func TestGenerate_ResultSurvivesFailedRefresh(t *testing.T) {
	f := newTryOnFixture(t, time.Second)
	signIn(t, f.session, f.creds, 1)
	f.backend.handle("/apply-hairstyle/42", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	f.backend.handle("/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
	})

	res, err := f.service.Generate(context.Background(), GenerateInput{HairstyleID: "42", Photo: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, pngBytes, res.Image)
	assert.NotEmpty(t, res.TransferKey)
	assert.Equal(t, 1, f.backend.count("GET /me"))
	assert.Equal(t, progress.PhaseComplete, f.service.Progress().Phase)
	assert.False(t, f.service.InFlight())
}

func TestGenerate_FullTransferStoreEmbedsResult(t *testing.T) {
	transfers := store.NewTransferStore(time.Minute, 1)
	_, err := transfers.Put(&models.GenerationResult{Image: []byte("earlier")})
	require.NoError(t, err)

	f := newTryOnFixtureWithStore(t, time.Second, transfers)
	signIn(t, f.session, f.creds, 1)
	f.backend.handle("/apply-hairstyle/42", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	f.backend.handle("/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"username": "ada", "try_ons": 0, "user_id": 7})
	})

	res, err := f.service.Generate(context.Background(), GenerateInput{HairstyleID: "42", Photo: pngBytes})
	require.NoError(t, err)
	assert.Empty(t, res.TransferKey)
	assert.Equal(t, store.DataURL("image/png", pngBytes), res.FallbackURL)
	assert.True(t, strings.HasPrefix(res.FallbackURL, "data:image/png;base64,"))
}

func TestGenerate_FailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    apperrors.Kind
		message string
	}{
		{"gateway timeout", http.StatusGatewayTimeout, ``, apperrors.KindServer, apperrors.MsgTooSlow},
		{"request timeout", http.StatusRequestTimeout, ``, apperrors.KindServer, apperrors.MsgTooSlow},
		{"server error", http.StatusInternalServerError, `{"detail":"CUDA out of memory"}`, apperrors.KindServer, apperrors.MsgServerError},
		{"rate limited", http.StatusTooManyRequests, ``, apperrors.KindRateLimit, apperrors.MsgRateLimited},
		{"server detail", http.StatusBadRequest, `{"detail":"No face detected in selfie"}`, apperrors.KindValidation, "No face detected in selfie"},
		{"generic", http.StatusBadRequest, `not json`, apperrors.KindValidation, "Failed to generate hairstyle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTryOnFixture(t, time.Second)
			signIn(t, f.session, f.creds, 3)
			f.backend.handle("/apply-hairstyle/7", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := f.service.Generate(context.Background(), GenerateInput{HairstyleID: "7", Photo: pngBytes})
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
			assert.Equal(t, tt.message, apperrors.UserMessage(err, ""))

			// no optimistic decrement, no refresh, ticker gone, progress back to zero
			assert.Equal(t, 3, f.session.Current().CreditsRemaining)
			assert.Equal(t, 0, f.backend.count("GET /me"))
			assert.False(t, f.service.estimator.Running())
			assert.Equal(t, 0, f.service.Progress().Percent)
			assert.Equal(t, 1, f.backend.count("POST /apply-hairstyle/7"), "failures are never retried")
		})
	}
}

func TestGenerate_ClientTimeout(t *testing.T) {
	f := newTryOnFixture(t, 30*time.Millisecond)
	signIn(t, f.session, f.creds, 3)
	f.backend.handle("/apply-hairstyle/7", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	_, err := f.service.Generate(context.Background(), GenerateInput{HairstyleID: "7", Photo: pngBytes})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, apperrors.MsgTimeout, apperrors.UserMessage(err, ""))
	assert.False(t, f.service.InFlight())
}

func TestGenerate_RejectsOverlappingAttempt(t *testing.T) {
	f := newTryOnFixture(t, time.Second)
	signIn(t, f.session, f.creds, 3)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.handle("/apply-hairstyle/7", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	f.backend.handle("/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"username": "ada", "try_ons": 2, "user_id": 7})
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = f.service.Generate(context.Background(), GenerateInput{HairstyleID: "7", Photo: pngBytes})
	}()

	<-entered
	assert.True(t, f.service.InFlight())
	assert.Equal(t, progress.PhaseRunning, f.service.Progress().Phase)

	_, err := f.service.Generate(context.Background(), GenerateInput{HairstyleID: "7", Photo: pngBytes})
	assert.Equal(t, MsgAlreadyRunning, apperrors.UserMessage(err, ""))

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, 1, f.backend.count("POST /apply-hairstyle/7"))
}

func TestGenerate_UnauthorizedSignsOut(t *testing.T) {
	f := newTryOnFixture(t, time.Second)
	signIn(t, f.session, f.creds, 3)
	f.backend.handle("/apply-hairstyle/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
	})

	_, err := f.service.Generate(context.Background(), GenerateInput{HairstyleID: "7", Photo: pngBytes})
	assert.Equal(t, apperrors.KindAuth, apperrors.KindOf(err))
	assert.Nil(t, f.session.Current())
}

func TestGenerateWithUpload(t *testing.T) {
	f := newTryOnFixture(t, time.Second)
	signIn(t, f.session, f.creds, 2)
	f.backend.handle("/apply-hairstyle/", func(w http.ResponseWriter, r *http.Request) {
		_, _, err := r.FormFile("selfie")
		require.NoError(t, err)
		_, _, err = r.FormFile("hairstyle")
		require.NoError(t, err)
		w.Write(pngBytes)
	})
	f.backend.handle("/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"username": "ada", "try_ons": 1, "user_id": 7})
	})

	res, err := f.service.GenerateWithUpload(context.Background(), pngBytes, "", pngBytes, "ref.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, 1, f.session.Current().CreditsRemaining)
}

func TestRequestTryOnIncrease_Validation(t *testing.T) {
	f := newTryOnFixture(t, time.Second)
	signIn(t, f.session, f.creds, 0)
	ctx := context.Background()

	_, err := f.service.RequestTryOnIncrease(ctx, 0, "need more")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	_, err = f.service.RequestTryOnIncrease(ctx, 101, "need more")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	_, err = f.service.RequestTryOnIncrease(ctx, 5, "   ")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, 0, f.backend.count("POST /request-tryon-increase"))

	f.backend.handle("/request-tryon-increase", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "5", r.PostForm.Get("requested_amount"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Request submitted", "request_id": 12})
	})
	receipt, err := f.service.RequestTryOnIncrease(ctx, 5, "wedding prep")
	require.NoError(t, err)
	assert.Equal(t, 12, receipt.RequestID)
}

func TestListGenerations_AbsoluteURLs(t *testing.T) {
	f := newTryOnFixture(t, time.Second)
	signIn(t, f.session, f.creds, 1)
	f.backend.handle("/my-generations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"generations": []map[string]interface{}{
				{"id": 1, "result_url": "/results/1.png", "hairstyle": map[string]interface{}{"id": 3, "name": "Bob", "image_url": "/h/3.png"}, "created_at": "2025-02-01T00:00:00"},
			},
			"total": 1,
		})
	})

	page, err := f.service.ListGenerations(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, page.Generations, 1)
	assert.Equal(t, f.backend.URL+"/results/1.png", page.Generations[0].ResultURL)
	assert.Equal(t, f.backend.URL+"/h/3.png", page.Generations[0].Hairstyle.ImageURL)
}
