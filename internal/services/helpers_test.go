package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"jorra-tryon/internal/logger"
	"jorra-tryon/internal/models"
	"jorra-tryon/internal/progress"
	"jorra-tryon/internal/store"

	"github.com/stretchr/testify/require"
)

// fakeBackend is an httptest server that counts hits per "METHOD path".
type fakeBackend struct {
	*httptest.Server
	mux  *http.ServeMux
	mu   sync.Mutex
	hits map[string]int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{mux: http.NewServeMux(), hits: make(map[string]int)}
	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.hits[r.Method+" "+r.URL.Path]++
		fb.mu.Unlock()
		fb.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fb.Close)
	return fb
}

func (fb *fakeBackend) handle(pattern string, h http.HandlerFunc) {
	fb.mux.HandleFunc(pattern, h)
}

func (fb *fakeBackend) count(key string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.hits[key]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestAPI(baseURL string, timeout time.Duration) *APIClient {
	return NewAPIClient(baseURL, ClientOptions{Timeout: timeout}, logger.Nop())
}

func newTestSession(api *APIClient) (*SessionManager, *store.MemoryCredentialStore) {
	creds := store.NewMemoryCredentialStore()
	return NewSessionManager(api, creds, logger.Nop()), creds
}

// signIn puts the manager straight into the authenticated state.
func signIn(t *testing.T, m *SessionManager, creds *store.MemoryCredentialStore, credits int) {
	t.Helper()
	signInAs(t, m, creds, &models.Session{Username: "ada", CreditsRemaining: credits, UserID: 7, AuthToken: "tok-1"})
}

func signInAs(t *testing.T, m *SessionManager, creds *store.MemoryCredentialStore, session *models.Session) {
	t.Helper()
	require.NoError(t, creds.Set(context.Background(), session.AuthToken))
	m.mu.Lock()
	m.session = session
	m.epoch++
	m.mu.Unlock()
}

type tryOnFixture struct {
	backend *fakeBackend
	session *SessionManager
	creds   *store.MemoryCredentialStore
	service *TryOnService
}

func newTryOnFixture(t *testing.T, generationTimeout time.Duration) *tryOnFixture {
	t.Helper()
	return newTryOnFixtureWithStore(t, generationTimeout, store.NewTransferStore(time.Minute, 8))
}

func newTryOnFixtureWithStore(t *testing.T, generationTimeout time.Duration, transfers *store.TransferStore) *tryOnFixture {
	t.Helper()
	fb := newFakeBackend(t)
	api := newTestAPI(fb.URL, time.Second)
	session, creds := newTestSession(api)
	svc := NewTryOnService(
		api,
		session,
		transfers,
		progress.New(time.Millisecond, nil),
		TryOnOptions{GenerationTimeout: generationTimeout, NominalDuration: time.Second},
		logger.Nop(),
	)
	return &tryOnFixture{backend: fb, session: session, creds: creds, service: svc}
}
