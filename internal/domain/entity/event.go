package entity

import "time"

// EventType identifies a session-state transition mirrored to the backend
// and to live stream subscribers.
type EventType string

const (
	EventSessionCreated          EventType = "session_created"
	EventQRReady                 EventType = "qr_ready"
	EventConnected               EventType = "connected"
	EventReconnecting            EventType = "reconnecting"
	EventDisconnected            EventType = "disconnected"
	EventSessionLoggedOut        EventType = "session_logged_out"
	EventSessionAutoDisconnected EventType = "session_auto_disconnected"
	EventSessionDeleted          EventType = "session_deleted"
	EventSessionFailed           EventType = "session_failed"
)

// SessionStatusEvent is the payload for the backend's session-status
// webhook. The body always carries sessionId, status and timestamp;
// the optional fields depend on the transition.
type SessionStatusEvent struct {
	Type      EventType     `json:"event"`
	SessionID string        `json:"sessionId"`
	Status    BackendStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`

	QRCode           string `json:"qrCode,omitempty"`
	QRAttempt        int    `json:"qrAttempt,omitempty"`
	AutoDisconnectIn int    `json:"autoDisconnectIn,omitempty"` // seconds
	PhoneNumber      string `json:"phoneNumber,omitempty"`
	DisplayName      string `json:"displayName,omitempty"`
	Reason           string `json:"reason,omitempty"`
	RequiresAuth     bool   `json:"requiresAuth,omitempty"`
}

// MessageStatusEvent is the payload for the backend's message-status
// webhook, one per delivery update.
type MessageStatusEvent struct {
	SessionID string    `json:"sessionId"`
	MessageID string    `json:"messageId"`
	To        string    `json:"to"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
