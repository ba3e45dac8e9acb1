// Package apperrors classifies failures of backend calls and local checks into the
// small set of kinds the UI knows how to render.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
	KindServer     Kind = "server"
	KindRateLimit  Kind = "rate_limit"
	KindNotFound   Kind = "not_found"
)

// User-facing messages. Status codes and causes never go into these.
const (
	MsgTimeout      = "Request timed out. Please check your connection and try again."
	MsgNetwork      = "Network error. Please check your connection and try again."
	MsgTooSlow      = "The server took too long to respond. Please try again."
	MsgServerError  = "Server error. Please try again in a moment."
	MsgRateLimited  = "Too many requests. Please wait a moment and try again."
	MsgUnauthorized = "Your session has expired. Please sign in again."
)

type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperrors.ErrAuth) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrAuth       = &Error{Kind: KindAuth}
	ErrValidation = &Error{Kind: KindValidation}
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrServer     = &Error{Kind: KindServer}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
	ErrNotFound   = &Error{Kind: KindNotFound}
)

func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Message: message, Status: http.StatusUnauthorized}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Network(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: err}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Status: http.StatusNotFound}
}

// FromStatus builds the error for a non-2xx response. detail is the server-supplied
// message, used only for the classes that have no fixed wording.
func FromStatus(status int, detail, fallback string) *Error {
	message := detail
	if message == "" {
		message = fallback
	}

	switch {
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return &Error{Kind: KindServer, Message: MsgTooSlow, Status: status}
	case status >= 500:
		return &Error{Kind: KindServer, Message: MsgServerError, Status: status}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, Message: MsgRateLimited, Status: status}
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Message: message, Status: status}
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Message: message, Status: status}
	default:
		return &Error{Kind: KindValidation, Message: message, Status: status}
	}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage returns the plain-language text for err, never its technical detail.
func UserMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// HTTPStatus maps a kind onto the status the companion server responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNetwork:
		return http.StatusBadGateway
	case KindServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
