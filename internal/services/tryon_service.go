package services

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"jorra-tryon/internal/apperrors"
	"jorra-tryon/internal/models"
	"jorra-tryon/internal/progress"
	"jorra-tryon/internal/store"

	"github.com/rs/zerolog"
)

const (
	MsgSelectHairstyle = "Please select a hairstyle first."
	MsgNoPhoto         = "Please take or upload a photo first."
	MsgNoTryOns        = "You have no try-ons remaining. Please reset your try-ons or wait for them to refresh."
	MsgSignInRequired  = "Please sign in to try on hairstyles."
	MsgAlreadyRunning  = "A generation is already in progress. Please wait for it to finish."
	MsgEmptyResult     = "The server returned an empty image. Please try again."
)

// sessionSource is what the generation flow needs from the session manager.
type sessionSource interface {
	authenticator
	Current() *models.Session
	Refresh(ctx context.Context) *models.Session
}

type TryOnService struct {
	api       *APIClient
	session   sessionSource
	transfers *store.TransferStore
	estimator *progress.Estimator
	logger    zerolog.Logger

	generationTimeout time.Duration
	nominal           time.Duration

	inFlight atomic.Bool
	now      func() time.Time
}

type TryOnOptions struct {
	GenerationTimeout time.Duration
	NominalDuration   time.Duration
}

func NewTryOnService(api *APIClient, session sessionSource, transfers *store.TransferStore, estimator *progress.Estimator, opts TryOnOptions, logger zerolog.Logger) *TryOnService {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = GenerationTimeout
	}
	if opts.NominalDuration <= 0 {
		opts.NominalDuration = 20 * time.Second
	}
	return &TryOnService{
		api:               api,
		session:           session,
		transfers:         transfers,
		estimator:         estimator,
		logger:            logger,
		generationTimeout: opts.GenerationTimeout,
		nominal:           opts.NominalDuration,
		now:               time.Now,
	}
}

type GenerateInput struct {
	HairstyleID models.FlexibleID
	Photo       []byte
	Filename    string
	// NominalDuration overrides the progress estimate's nominal length for this call.
	NominalDuration time.Duration
}

// Generate applies a catalog hairstyle to a photo. Preconditions are checked locally,
// in order, before anything is sent; a failed attempt is never retried.
func (s *TryOnService) Generate(ctx context.Context, in GenerateInput) (*models.GenerationResult, error) {
	if strings.TrimSpace(in.HairstyleID.String()) == "" {
		return nil, apperrors.Validation(MsgSelectHairstyle)
	}
	if len(in.Photo) == 0 {
		return nil, apperrors.Validation(MsgNoPhoto)
	}
	if err := s.checkCredits(); err != nil {
		return nil, err
	}

	req := models.GenerationRequest{
		SourceImage:       in.Photo,
		Filename:          filenameOr(in.Filename, "selfie.jpg"),
		TargetHairstyleID: in.HairstyleID,
	}
	return s.run(ctx, req, in.NominalDuration, apiRequest{
		method:  http.MethodPost,
		path:    "/apply-hairstyle/" + url.PathEscape(in.HairstyleID.String()),
		files:   []filePart{{field: "selfie", filename: req.Filename, data: req.SourceImage}},
		timeout: s.generationTimeout,
	})
}

// GenerateWithUpload applies a hairstyle taken from a reference photo the user uploads.
func (s *TryOnService) GenerateWithUpload(ctx context.Context, photo []byte, photoName string, hairstyleImage []byte, hairstyleName string) (*models.GenerationResult, error) {
	if len(hairstyleImage) == 0 {
		return nil, apperrors.Validation(MsgSelectHairstyle)
	}
	if len(photo) == 0 {
		return nil, apperrors.Validation(MsgNoPhoto)
	}
	if err := s.checkCredits(); err != nil {
		return nil, err
	}

	req := models.GenerationRequest{
		SourceImage: photo,
		Filename:    filenameOr(photoName, "selfie.jpg"),
	}
	return s.run(ctx, req, 0, apiRequest{
		method: http.MethodPost,
		path:   "/apply-hairstyle/",
		files: []filePart{
			{field: "selfie", filename: req.Filename, data: photo},
			{field: "hairstyle", filename: filenameOr(hairstyleName, "hairstyle.jpg"), data: hairstyleImage},
		},
		timeout: s.generationTimeout,
	})
}

func (s *TryOnService) checkCredits() error {
	session := s.session.Current()
	if session == nil {
		return apperrors.Auth(MsgSignInRequired)
	}
	if session.CreditsRemaining <= 0 {
		return apperrors.Validation(MsgNoTryOns)
	}
	return nil
}

func (s *TryOnService) run(ctx context.Context, req models.GenerationRequest, nominal time.Duration, call apiRequest) (*models.GenerationResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, apperrors.Validation(MsgAlreadyRunning)
	}
	defer s.inFlight.Store(false)

	if nominal <= 0 {
		nominal = s.nominal
	}

	req.IssuedAt = s.now()
	s.estimator.Start(nominal)
	completed := false
	defer func() {
		if !completed {
			s.estimator.Reset()
		}
	}()

	log := s.logger.With().Str("hairstyle_id", req.TargetHairstyleID.String()).Logger()
	log.Info().Int("photo_bytes", len(req.SourceImage)).Msg("Generation started")

	resp, err := s.api.sendAuthed(ctx, s.session, call)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", s.now().Sub(req.IssuedAt)).Msg("Generation request failed")
		return nil, err
	}
	if !resp.ok() {
		genErr := resp.err("Failed to generate hairstyle")
		log.Error().Int("status", resp.status).Str("detail", resp.detail()).Msg("Generation rejected")
		return nil, genErr
	}
	if len(resp.body) == 0 {
		log.Error().Msg("Generation returned an empty body")
		return nil, &apperrors.Error{Kind: apperrors.KindServer, Message: MsgEmptyResult, Status: resp.status}
	}

	s.estimator.Complete()
	completed = true

	completedAt := s.now()
	if completedAt.Before(req.IssuedAt) {
		completedAt = req.IssuedAt
	}

	contentType := resp.header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(resp.body)
	}

	result := &models.GenerationResult{
		Image:             resp.body,
		ContentType:       contentType,
		SourceHairstyleID: req.TargetHairstyleID,
		IssuedAt:          req.IssuedAt,
		CompletedAt:       completedAt,
	}

	// best effort: the generation already succeeded
	if refreshed := s.session.Refresh(ctx); refreshed == nil {
		log.Warn().Msg("Credit refresh after generation failed")
	}

	if key, err := s.transfers.Put(result); err != nil {
		log.Warn().Err(err).Msg("Transfer store unavailable, embedding result")
		result.FallbackURL = store.DataURL(contentType, result.Image)
	} else {
		result.TransferKey = key
	}

	log.Info().
		Dur("elapsed", completedAt.Sub(req.IssuedAt)).
		Int("result_bytes", len(result.Image)).
		Msg("Generation completed")
	return result, nil
}

func (s *TryOnService) Progress() progress.Snapshot {
	return s.estimator.Snapshot()
}

func (s *TryOnService) InFlight() bool {
	return s.inFlight.Load()
}

// TakeResult consumes a handed-off result.
func (s *TryOnService) TakeResult(key string) (*models.GenerationResult, bool) {
	return s.transfers.Take(key)
}

func (s *TryOnService) ListGenerations(ctx context.Context, limit, offset int) (*models.GenerationPage, error) {
	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodGet, path: "/my-generations", query: pageQuery(limit, offset)})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Failed to fetch generations")
	}

	var page models.GenerationPage
	if err := resp.decode(&page); err != nil {
		return nil, err
	}
	for i := range page.Generations {
		g := &page.Generations[i]
		g.ResultURL = AbsoluteURL(s.api.BaseURL(), g.ResultURL)
		if g.Hairstyle != nil {
			g.Hairstyle.ImageURL = AbsoluteURL(s.api.BaseURL(), g.Hairstyle.ImageURL)
		}
	}
	return &page, nil
}

func (s *TryOnService) GenerateVideo(ctx context.Context, generationID int) (*models.Video, error) {
	if generationID <= 0 {
		return nil, apperrors.Validation("Please choose a generation first.")
	}

	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{
		method:  http.MethodPost,
		path:    "/generate-video/" + strconv.Itoa(generationID),
		timeout: s.generationTimeout,
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Video generation is currently unavailable")
	}

	contentType := resp.header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	s.logger.Info().Int("generation_id", generationID).Int("bytes", len(resp.body)).Msg("Video generated")
	return &models.Video{Data: resp.body, ContentType: contentType}, nil
}

func (s *TryOnService) ResetTryOns(ctx context.Context) (*models.TryOnReset, error) {
	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodPost, path: "/reset-tryons"})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Failed to reset try-ons")
	}

	var out models.TryOnReset
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	s.session.Refresh(ctx)
	return &out, nil
}

func (s *TryOnService) RequestTryOnIncrease(ctx context.Context, amount int, reason string) (*models.CreditRequestReceipt, error) {
	if amount < models.MinRequestedAmount || amount > models.MaxRequestedAmount {
		return nil, apperrors.Validation("Please request between 1 and 100 try-ons.")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("Please tell us why you need more try-ons.")
	}

	form := url.Values{}
	form.Set("requested_amount", strconv.Itoa(amount))
	form.Set("reason", reason)

	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodPost, path: "/request-tryon-increase", form: form})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Failed to submit request")
	}

	var out models.CreditRequestReceipt
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	s.logger.Info().Int("request_id", out.RequestID).Int("amount", amount).Msg("Try-on increase requested")
	return &out, nil
}

func filenameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// IsTimeout reports whether err is a client-side timeout rather than a server error.
func IsTimeout(err error) bool {
	var e *apperrors.Error
	return errors.As(err, &e) && e.Kind == apperrors.KindNetwork && e.Message == apperrors.MsgTimeout
}
