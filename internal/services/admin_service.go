package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"jorra-tryon/internal/apperrors"
	"jorra-tryon/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type reviewOutcome struct {
	status   models.RequestStatus
	approval *models.ApprovalResult
	denial   *models.DenialResult
}

// reviewKey scopes a recorded review to the session token that made it.
type reviewKey struct {
	token     string
	requestID int
}

// AdminService reviews try-on credit requests. Review is one-way: concurrent calls for
// one request id share a single network call, and a reviewed id is not sent again
// while the same session holds.
type AdminService struct {
	api     *APIClient
	session authenticator
	logger  zerolog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	reviewed map[reviewKey]reviewOutcome
}

func NewAdminService(api *APIClient, session authenticator, logger zerolog.Logger) *AdminService {
	return &AdminService{
		api:      api,
		session:  session,
		logger:   logger,
		reviewed: make(map[reviewKey]reviewOutcome),
	}
}

// ListRequests lists credit requests; an empty status lists all of them.
func (s *AdminService) ListRequests(ctx context.Context, status models.RequestStatus, limit, offset int) (*models.CreditRequestPage, error) {
	q := pageQuery(limit, offset)
	if status != "" {
		if !status.Valid() {
			return nil, apperrors.Validation("Unknown request status.")
		}
		q.Set("status", string(status))
	}

	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{method: http.MethodGet, path: "/admin/tryon-requests", query: q})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err("Failed to fetch requests")
	}

	var page models.CreditRequestPage
	if err := resp.decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *AdminService) Approve(ctx context.Context, requestID int) (*models.ApprovalResult, error) {
	outcome, err := s.review(ctx, requestID, models.RequestStatusApproved)
	if err != nil {
		return nil, err
	}
	c := *outcome.approval
	return &c, nil
}

func (s *AdminService) Deny(ctx context.Context, requestID int) (*models.DenialResult, error) {
	outcome, err := s.review(ctx, requestID, models.RequestStatusDenied)
	if err != nil {
		return nil, err
	}
	c := *outcome.denial
	return &c, nil
}

func (s *AdminService) review(ctx context.Context, requestID int, want models.RequestStatus) (reviewOutcome, error) {
	if requestID <= 0 {
		return reviewOutcome{}, apperrors.Validation("Invalid request.")
	}
	token := s.session.Token()
	if token == "" {
		return reviewOutcome{}, apperrors.Auth(apperrors.MsgUnauthorized)
	}

	key := reviewKey{token: token, requestID: requestID}
	if outcome, ok := s.lookup(key); ok {
		return matchOutcome(outcome, want)
	}

	// The collapsed call serves every waiter, so one caller leaving must not cancel
	// it. send still bounds it by the client timeout.
	callCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(token+":"+strconv.Itoa(requestID), func() (interface{}, error) {
		if outcome, ok := s.lookup(key); ok {
			return outcome, nil
		}
		outcome, err := s.send(callCtx, requestID, want)
		if err != nil {
			return nil, err
		}
		s.record(key, outcome)
		return outcome, nil
	})

	select {
	case <-ctx.Done():
		return reviewOutcome{}, apperrors.Network(apperrors.MsgTimeout, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return reviewOutcome{}, res.Err
		}
		if res.Shared {
			s.logger.Debug().Int("request_id", requestID).Msg("Review collapsed into in-flight call")
		}
		return matchOutcome(res.Val.(reviewOutcome), want)
	}
}

func (s *AdminService) send(ctx context.Context, requestID int, want models.RequestStatus) (reviewOutcome, error) {
	action := "approve"
	if want == models.RequestStatusDenied {
		action = "deny"
	}

	resp, err := s.api.sendAuthed(ctx, s.session, apiRequest{
		method: http.MethodPut,
		path:   fmt.Sprintf("/admin/%s-tryon-request/%d", action, requestID),
	})
	if err != nil {
		return reviewOutcome{}, err
	}
	if !resp.ok() {
		s.logger.Warn().Int("request_id", requestID).Int("status", resp.status).Str("action", action).Msg("Review rejected")
		return reviewOutcome{}, resp.err(fmt.Sprintf("Failed to %s request", action))
	}

	// The mutation has been applied once the server says 2xx; an unreadable body
	// only loses the details.
	outcome := reviewOutcome{status: want}
	var decodeErr error
	if want == models.RequestStatusApproved {
		var res models.ApprovalResult
		decodeErr = resp.decode(&res)
		outcome.approval = &res
	} else {
		var res models.DenialResult
		decodeErr = resp.decode(&res)
		outcome.denial = &res
	}
	if decodeErr != nil {
		s.logger.Warn().Err(decodeErr).Int("request_id", requestID).Str("action", action).Msg("Review applied but response unreadable")
	}

	s.logger.Info().Int("request_id", requestID).Str("action", action).Msg("Request reviewed")
	return outcome, nil
}

func (s *AdminService) lookup(key reviewKey) (reviewOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.reviewed[key]
	return outcome, ok
}

// record stores an outcome and drops those recorded under any other session.
func (s *AdminService) record(key reviewKey, outcome reviewOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.reviewed {
		if k.token != key.token {
			delete(s.reviewed, k)
		}
	}
	s.reviewed[key] = outcome
}

func matchOutcome(outcome reviewOutcome, want models.RequestStatus) (reviewOutcome, error) {
	if outcome.status != want {
		return reviewOutcome{}, apperrors.Validation(fmt.Sprintf("This request has already been %s.", outcome.status))
	}
	return outcome, nil
}
