package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		detail  string
		kind    Kind
		message string
	}{
		{"gateway timeout", http.StatusGatewayTimeout, "upstream", KindServer, MsgTooSlow},
		{"request timeout", http.StatusRequestTimeout, "", KindServer, MsgTooSlow},
		{"internal error", http.StatusInternalServerError, "boom", KindServer, MsgServerError},
		{"rate limited", http.StatusTooManyRequests, "slow down", KindRateLimit, MsgRateLimited},
		{"unauthorized", http.StatusUnauthorized, "Invalid credentials", KindAuth, "Invalid credentials"},
		{"not found", http.StatusNotFound, "", KindNotFound, "fallback"},
		{"bad request uses detail", http.StatusBadRequest, "No face detected", KindValidation, "No face detected"},
		{"bad request without detail", http.StatusBadRequest, "", KindValidation, "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus(tt.status, tt.detail, "fallback")
			assert.Equal(t, tt.kind, err.Kind)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.status, err.Status)
		})
	}
}

func TestErrorsIsAndAs(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", Auth("bad password"))

	assert.True(t, errors.Is(wrapped, ErrAuth))
	assert.False(t, errors.Is(wrapped, ErrNetwork))
	assert.Equal(t, KindAuth, KindOf(wrapped))
	assert.Equal(t, "bad password", UserMessage(wrapped, "x"))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(wrapped))
}

func TestUserMessageHidesCause(t *testing.T) {
	err := Network(MsgNetwork, errors.New("dial tcp 10.0.0.1:443: connection refused"))

	assert.Equal(t, MsgNetwork, UserMessage(err, "x"))
	assert.NotContains(t, UserMessage(err, "x"), "dial tcp")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "generic", UserMessage(errors.New("raw"), "generic"))
}
