package engine

import (
	"testing"

	"whatsam/internal/domain/repository"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCloseByStatusCode(t *testing.T) {
	tests := []struct {
		name string
		code int
		msg  string
		want CloseReason
	}{
		{"logged out code", repository.CloseCodeLoggedOut, "", CloseLoggedOut},
		{"replaced", repository.CloseCodeConnectionReplaced, "", CloseReplaced},
		{"bad session", repository.CloseCodeBadSession, "", CloseBadSession},
		{"client outdated", repository.CloseCodeClientOutdated, "", CloseBadSession},
		{"restart required", repository.CloseCodeRestartRequired, "", CloseRestartRequired},
		{"timed out", repository.CloseCodeTimedOut, "", CloseTimedOut},
		{"plain close", repository.CloseCodeConnectionClosed, "connection closed", CloseRetryable},
		{"unknown code", 0, "", CloseRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyClose(tt.code, tt.msg))
		})
	}
}

// The substring match is the fallback for library versions that only
// surface text.
func TestClassifyCloseByMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want CloseReason
	}{
		{"Stream Errored (conflict)", CloseLoggedOut},
		{"stream: conflict detected", CloseLoggedOut},
		{"device was logged out remotely", CloseLoggedOut},
		{"read tcp: connection reset", CloseRetryable},
		{"", CloseRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyClose(0, tt.msg))
		})
	}
}

func TestCloseReasonStrings(t *testing.T) {
	assert.Equal(t, "logged_out", CloseLoggedOut.String())
	assert.Equal(t, "connection_replaced", CloseReplaced.String())
	assert.Equal(t, "bad_session", CloseBadSession.String())
	assert.Equal(t, "restart_required", CloseRestartRequired.String())
	assert.Equal(t, "timed_out", CloseTimedOut.String())
	assert.Equal(t, "connection_lost", CloseRetryable.String())
}

func TestCloseReasonReconnectPolicy(t *testing.T) {
	assert.True(t, CloseRetryable.Reconnects())
	assert.True(t, CloseTimedOut.Reconnects())
	assert.True(t, CloseRestartRequired.Reconnects())
	assert.False(t, CloseLoggedOut.Reconnects())
	assert.False(t, CloseReplaced.Reconnects())
	assert.False(t, CloseBadSession.Reconnects())
}
