package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"jorra-tryon/internal/apperrors"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout    = 10 * time.Second
	GenerationTimeout = 120 * time.Second

	maxResponseBytes = 64 << 20
	tunnelHeader     = "ngrok-skip-browser-warning"
)

// APIClient talks to one backend origin. Every call is bounded by its own timeout;
// the underlying http.Client has none.
type APIClient struct {
	baseURL      string
	httpClient   *http.Client
	timeout      time.Duration
	tunnelBypass bool
	limiter      *rate.Limiter
	logger       zerolog.Logger
}

type ClientOptions struct {
	Timeout      time.Duration
	TunnelBypass bool
	// Limiter throttles outbound calls; nil disables throttling.
	Limiter    *rate.Limiter
	HTTPClient *http.Client
}

func NewAPIClient(baseURL string, opts ClientOptions, logger zerolog.Logger) *APIClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &APIClient{
		baseURL:      baseURL,
		httpClient:   opts.HTTPClient,
		timeout:      opts.Timeout,
		tunnelBypass: opts.TunnelBypass,
		limiter:      opts.Limiter,
		logger:       logger,
	}
}

func (c *APIClient) BaseURL() string {
	return c.baseURL
}

type filePart struct {
	field    string
	filename string
	data     []byte
}

type apiRequest struct {
	method  string
	path    string
	query   url.Values
	form    url.Values
	files   []filePart
	token   string
	timeout time.Duration
}

type apiResponse struct {
	status int
	header http.Header
	body   []byte
}

func (r *apiResponse) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *apiResponse) isJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.header.Get("Content-Type"))
	return err == nil && (mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"))
}

// detail extracts the server-supplied message from an error body, if any.
func (r *apiResponse) detail() string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(r.body, &payload); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil && s != "" {
		return s
	}
	// validation errors arrive as [{"msg": ...}, ...]
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &list); err == nil && len(list) > 0 && list[0].Msg != "" {
		return list[0].Msg
	}
	return payload.Message
}

func (r *apiResponse) err(fallback string) *apperrors.Error {
	return apperrors.FromStatus(r.status, r.detail(), fallback)
}

func (r *apiResponse) decode(v interface{}) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return &apperrors.Error{
			Kind:    apperrors.KindServer,
			Message: apperrors.MsgServerError,
			Status:  r.status,
			Err:     fmt.Errorf("malformed response: %w", err),
		}
	}
	return nil
}

// send performs one call. Transport failures come back as NetworkError; any HTTP
// status, including non-2xx, comes back as a response for the caller to classify.
func (c *APIClient) send(ctx context.Context, r apiRequest) (*apiResponse, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.Network(apperrors.MsgTimeout, err)
		}
	}

	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", r.method).Str("path", r.path).Msg("Backend call failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Network(apperrors.MsgTimeout, err)
		}
		return nil, apperrors.Network(apperrors.MsgNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Network(apperrors.MsgTimeout, err)
		}
		return nil, apperrors.Network(apperrors.MsgNetwork, err)
	}

	c.logger.Debug().
		Str("method", r.method).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Backend call completed")

	return &apiResponse{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (c *APIClient) newRequest(ctx context.Context, r apiRequest) (*http.Request, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(r.files) > 0:
		buf, ct, err := encodeMultipart(r.form, r.files)
		if err != nil {
			return nil, fmt.Errorf("failed to encode upload: %w", err)
		}
		body, contentType = buf, ct
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, */*")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if c.tunnelBypass {
		req.Header.Set(tunnelHeader, "true")
	}
	return req, nil
}

func encodeMultipart(fields url.Values, files []filePart) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for key, values := range fields {
		for _, v := range values {
			if err := w.WriteField(key, v); err != nil {
				return nil, "", err
			}
		}
	}

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", http.DetectContentType(f.data))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// authenticator is the view of the session manager that authenticated calls need.
type authenticator interface {
	Token() string
	HandleUnauthorized(ctx context.Context)
}

// sendAuthed attaches the bearer token and clears the session when the backend
// answers 401.
func (c *APIClient) sendAuthed(ctx context.Context, auth authenticator, r apiRequest) (*apiResponse, error) {
	r.token = auth.Token()
	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized && r.token != "" {
		auth.HandleUnauthorized(ctx)
	}
	return resp, nil
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	return q
}
