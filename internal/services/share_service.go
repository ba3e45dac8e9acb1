package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"jorra-tryon/internal/apperrors"
	"jorra-tryon/internal/models"

	"github.com/rs/zerolog"
)

const (
	CampaignTag        = "#jorra"
	CampaignTagEncoded = "%23jorra"

	MsgMissingTag      = "Post must include #jorra hashtag to claim bonus"
	MsgBonusUnverified = "Unable to verify post. Make sure it's public and includes #jorra"
)

// shareKey scopes a cached link to the session token that requested it.
type shareKey struct {
	token        string
	generationID int
	platform     string
}

type ShareService struct {
	api     *APIClient
	session sessionSource
	logger  zerolog.Logger

	mu    sync.Mutex
	links map[shareKey]*models.ShareLink
}

func NewShareService(api *APIClient, session sessionSource, logger zerolog.Logger) *ShareService {
	return &ShareService{
		api:     api,
		session: session,
		logger:  logger,
		links:   make(map[shareKey]*models.ShareLink),
	}
}

// RequestShareLink returns the share link for a generation on a platform. The first
// successful answer is cached for as long as the same session holds.
func (s *ShareService) RequestShareLink(ctx context.Context, generationID int, platform string) (*models.ShareLink, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if generationID <= 0 {
		return nil, apperrors.Validation("Please choose a generation to share.")
	}
	if platform == "" {
		return nil, apperrors.Validation("Please choose where to share.")
	}

	token := s.session.Token()
	if token == "" {
		return nil, apperrors.Auth(apperrors.MsgUnauthorized)
	}

	key := shareKey{token: token, generationID: generationID, platform: platform}
	s.mu.Lock()
	cached, ok := s.links[key]
	s.mu.Unlock()
	if ok {
		c := *cached
		return &c, nil
	}

	form := url.Values{}
	form.Set("platform", platform)

	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{
		method: http.MethodPost,
		path:   "/share-generation/" + strconv.Itoa(generationID),
		form:   form,
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Failed to share generation")
	}

	var link models.ShareLink
	if err := resp.decode(&link); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for k := range s.links {
		if k.token != token {
			delete(s.links, k)
		}
	}
	s.links[key] = &link
	s.mu.Unlock()

	s.logger.Info().Int("generation_id", generationID).Str("platform", platform).Msg("Share link created")
	out := link
	return &out, nil
}

// ClaimBonus submits a public social post for bonus credits. The campaign tag is
// checked locally first; only the server's success flag counts as success.
func (s *ShareService) ClaimBonus(ctx context.Context, postURL string) (*models.BonusClaim, error) {
	postURL = strings.TrimSpace(postURL)
	if postURL == "" {
		return nil, apperrors.Validation("Please enter the link to your post.")
	}
	if !HasCampaignTag(postURL) {
		return nil, apperrors.Validation(MsgMissingTag)
	}

	form := url.Values{}
	form.Set("post_url", postURL)

	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodPost, path: "/claim-social-bonus", form: form})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err(MsgBonusUnverified)
	}

	var claim models.BonusClaim
	if err := resp.decode(&claim); err != nil {
		return nil, err
	}
	if !claim.Success {
		return nil, apperrors.Validation(MsgBonusUnverified)
	}

	s.logger.Info().Int("credits_added", claim.CreditsAdded).Msg("Social bonus claimed")
	s.session.Refresh(ctx)
	return &claim, nil
}

func HasCampaignTag(postURL string) bool {
	return strings.Contains(postURL, CampaignTag) || strings.Contains(postURL, CampaignTagEncoded)
}

func (s *ShareService) GetShared(ctx context.Context, token string) (*models.SharedGeneration, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NotFound("Shared generation not found")
	}

	resp, err := s.api.send(ctx, apiRequest{method: http.MethodGet, path: "/shared/" + url.PathEscape(token)})
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, apperrors.NotFound("Shared generation not found")
	}
	if !resp.ok() {
		return nil, resp.err("Shared generation not found")
	}

	var shared models.SharedGeneration
	if err := resp.decode(&shared); err != nil {
		return nil, err
	}
	shared.ImageURL = AbsoluteURL(s.api.BaseURL(), shared.ImageURL)
	return &shared, nil
}

func (s *ShareService) ListShares(ctx context.Context, limit, offset int) (*models.SharePage, error) {
	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodGet, path: "/my-shares", query: pageQuery(limit, offset)})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Failed to fetch shares")
	}

	var page models.SharePage
	if err := resp.decode(&page); err != nil {
		return nil, err
	}
	for i := range page.Shares {
		page.Shares[i].ResultURL = AbsoluteURL(s.api.BaseURL(), page.Shares[i].ResultURL)
	}
	return &page, nil
}
