package services

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"jorra-tryon/internal/apperrors"
	"jorra-tryon/internal/models"
	"jorra-tryon/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// SessionManager is the single owner of the authenticated user. Every transition
// (login, refresh, logout, 401) happens under mu, so callers never observe a session
// whose token differs from the stored one.
type SessionManager struct {
	api    *APIClient
	creds  store.CredentialStore
	logger zerolog.Logger

	mu      sync.Mutex
	session *models.Session
	// epoch changes on every login and logout; a refresh started under an older
	// epoch must not overwrite the newer state.
	epoch uint64

	now func() time.Time
}

func NewSessionManager(api *APIClient, creds store.CredentialStore, logger zerolog.Logger) *SessionManager {
	return &SessionManager{
		api:    api,
		creds:  creds,
		logger: logger,
		now:    time.Now,
	}
}

// RefreshTask is the profile backfill started by Login and Signup. Callers may wait
// for it or ignore it.
type RefreshTask struct {
	done    chan struct{}
	session *models.Session
}

func (t *RefreshTask) Done() <-chan struct{} {
	return t.done
}

// Wait returns the refreshed session, or nil if the backfill found the token invalid.
func (t *RefreshTask) Wait(ctx context.Context) (*models.Session, error) {
	select {
	case <-t.done:
		return t.session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type LoginResult struct {
	Session  *models.Session
	Backfill *RefreshTask
}

func (m *SessionManager) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	return m.authenticate(ctx, "/authenticate", username, password, "Login failed")
}

func (m *SessionManager) Signup(ctx context.Context, username, password string) (*LoginResult, error) {
	return m.authenticate(ctx, "/signup", username, password, "Signup failed")
}

func (m *SessionManager) authenticate(ctx context.Context, path, username, password, fallback string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.Validation("Username and password are required.")
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	resp, err := m.api.send(ctx, apiRequest{method: http.MethodPost, path: path, form: form})
	if err != nil {
		return nil, err
	}

	if !resp.ok() {
		m.logger.Warn().Str("username", username).Str("path", path).Int("status", resp.status).Msg("Authentication rejected")
		if resp.status >= 500 || resp.status == http.StatusTooManyRequests {
			return nil, resp.err(fallback)
		}
		detail := resp.detail()
		if detail == "" {
			detail = fallback
		}
		return nil, apperrors.Auth(detail)
	}

	var auth models.AuthResponse
	if err := resp.decode(&auth); err != nil {
		return nil, err
	}
	if auth.Token == "" {
		return nil, apperrors.Auth(fallback)
	}

	session := &models.Session{
		Username:         auth.Username,
		CreditsRemaining: max(auth.TryOns, 0),
		UserID:           models.PlaceholderUserID,
		AuthToken:        auth.Token,
	}

	m.mu.Lock()
	if err := m.creds.Set(ctx, auth.Token); err != nil {
		m.mu.Unlock()
		m.logger.Error().Err(err).Msg("Failed to store token")
		return nil, err
	}
	m.session = session
	m.epoch++
	m.mu.Unlock()

	m.logger.Info().Str("username", session.Username).Int("try_ons", session.CreditsRemaining).Msg("User authenticated")

	task := &RefreshTask{done: make(chan struct{})}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(task.done)
		task.session = m.Refresh(bg)
		if task.session == nil {
			m.logger.Warn().Str("username", session.Username).Msg("Background profile refresh failed")
		}
	}()

	return &LoginResult{Session: copySession(session), Backfill: task}, nil
}

// Refresh re-reads the profile for the stored token. It returns nil without error when
// there is no token or the backend does not accept it; in that case the token is
// cleared. It is safe to call on every page load.
func (m *SessionManager) Refresh(ctx context.Context) *models.Session {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	token, err := m.creds.Get(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Stored token unreadable")
		m.invalidate(ctx, epoch)
		return nil
	}
	if token == "" {
		m.invalidate(ctx, epoch)
		return nil
	}
	if m.tokenExpired(token) {
		m.logger.Info().Msg("Stored token expired")
		m.invalidate(ctx, epoch)
		return nil
	}

	resp, err := m.api.send(ctx, apiRequest{method: http.MethodGet, path: "/me", token: token})
	if err != nil {
		m.invalidate(ctx, epoch)
		return nil
	}
	if !resp.ok() || !resp.isJSON() {
		// a non-JSON body means the backend (or a tunnel in front of it) is down
		m.logger.Warn().Int("status", resp.status).Str("content_type", resp.header.Get("Content-Type")).Msg("Profile refresh rejected")
		m.invalidate(ctx, epoch)
		return nil
	}

	var profile models.Profile
	if err := resp.decode(&profile); err != nil {
		m.logger.Warn().Err(err).Msg("Profile payload malformed")
		m.invalidate(ctx, epoch)
		return nil
	}

	session := &models.Session{
		Username:         profile.Username,
		CreditsRemaining: max(profile.TryOns, 0),
		UserID:           profile.UserID,
		AuthToken:        token,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return copySession(m.session)
	}
	m.session = session
	return copySession(session)
}

// Logout clears the token and the in-memory session. Calling it again is a no-op.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	m.epoch++
	if err := m.creds.Clear(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to clear stored token")
		return err
	}
	return nil
}

// HandleUnauthorized is invoked when an authenticated call comes back 401.
func (m *SessionManager) HandleUnauthorized(ctx context.Context) {
	m.logger.Info().Msg("Backend rejected token, signing out")
	_ = m.Logout(ctx)
}

func (m *SessionManager) Current() *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.session)
}

func (m *SessionManager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.AuthToken
}

func (m *SessionManager) Authenticated() bool {
	return m.Current() != nil
}

func (m *SessionManager) invalidate(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return
	}
	m.session = nil
	m.epoch++
	if err := m.creds.Clear(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to clear stored token")
	}
}

// tokenExpired reports whether token is a JWT whose exp is already past. The claims
// are not verified; the backend stays the authority, this only skips a doomed call.
func (m *SessionManager) tokenExpired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(m.now())
}

func copySession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
