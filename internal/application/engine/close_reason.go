package engine

import (
	"strings"

	"whatsam/internal/domain/repository"
)

// CloseReason is the engine's classification of a protocol disconnect.
// It drives state transitions, not user-facing errors.
type CloseReason int

const (
	// CloseRetryable covers every disconnect that should reconnect after
	// the standard delay.
	CloseRetryable CloseReason = iota

	// CloseLoggedOut means the phone unlinked this device; auth is dead.
	CloseLoggedOut

	// CloseReplaced means another client took the connection slot.
	CloseReplaced

	// CloseBadSession means the stored credentials are corrupt.
	CloseBadSession

	// CloseRestartRequired asks for an immediate socket restart.
	CloseRestartRequired

	// CloseTimedOut reconnects after the longer timeout delay.
	CloseTimedOut
)

// String returns the reason name used in webhooks and logs.
func (r CloseReason) String() string {
	switch r {
	case CloseLoggedOut:
		return "logged_out"
	case CloseReplaced:
		return "connection_replaced"
	case CloseBadSession:
		return "bad_session"
	case CloseRestartRequired:
		return "restart_required"
	case CloseTimedOut:
		return "timed_out"
	default:
		return "connection_lost"
	}
}

// Reconnects reports whether policy schedules a reconnect for the reason.
func (r CloseReason) Reconnects() bool {
	switch r {
	case CloseRetryable, CloseTimedOut, CloseRestartRequired:
		return true
	}
	return false
}

// ClassifyClose maps a protocol disconnect onto the reconnect policy.
// The status code is authoritative; the message substring match on
// conflict/logout phrasing stays as a last-resort fallback for library
// versions that only surface text.
func ClassifyClose(statusCode int, message string) CloseReason {
	switch statusCode {
	case repository.CloseCodeLoggedOut:
		return CloseLoggedOut
	case repository.CloseCodeConnectionReplaced:
		return CloseReplaced
	case repository.CloseCodeBadSession, repository.CloseCodeClientOutdated:
		return CloseBadSession
	case repository.CloseCodeRestartRequired:
		return CloseRestartRequired
	case repository.CloseCodeTimedOut:
		return CloseTimedOut
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(message, "Stream Errored (conflict)"),
		strings.Contains(lower, "conflict"),
		strings.Contains(lower, "logged out"):
		return CloseLoggedOut
	}

	return CloseRetryable
}
