package repository

import (
	"context"

	"whatsam/internal/domain/entity"
)

// ProtocolEventKind discriminates events surfaced by the protocol library.
type ProtocolEventKind int

const (
	ProtocolEventConnecting ProtocolEventKind = iota
	ProtocolEventQR
	ProtocolEventOpen
	ProtocolEventClose
	ProtocolEventCredsUpdate
	ProtocolEventMessageStatus
)

// ProtocolEvent is one event from the protocol library's bus, funneled
// into the owning session task and processed in arrival order.
type ProtocolEvent struct {
	Kind ProtocolEventKind

	// QR carries the raw pairing challenge for ProtocolEventQR.
	QR string

	// JID and PushName are set on ProtocolEventOpen.
	JID      string
	PushName string

	// StatusCode and Message describe the disconnect cause on
	// ProtocolEventClose.
	StatusCode int
	Message    string

	// MessageID, Chat and DeliveryStatus are set on
	// ProtocolEventMessageStatus.
	MessageID      string
	Chat           string
	DeliveryStatus string
}

// Close status codes surfaced by the protocol library on disconnect.
// These mirror the multi-device stream error codes.
const (
	CloseCodeLoggedOut          = 401
	CloseCodeClientOutdated     = 405
	CloseCodeTimedOut           = 408
	CloseCodeConnectionClosed   = 428
	CloseCodeConnectionReplaced = 440
	CloseCodeBadSession         = 500
	CloseCodeRestartRequired    = 515
)

// PresenceState mirrors the presence values the protocol library accepts.
type PresenceState string

const (
	PresenceAvailable PresenceState = "available"
	PresenceComposing PresenceState = "composing"
	PresencePaused    PresenceState = "paused"
)

// ProtocolClient is the per-session handle into the WhatsApp protocol
// library. The engine treats it as a black box: an event bus plus send
// calls. Implementations must close Events() when the socket ends.
type ProtocolClient interface {
	// Events returns the inbound event stream for this client instance.
	Events() <-chan ProtocolEvent

	// Connect opens the socket and starts pairing or resuming.
	Connect(ctx context.Context) error

	// SendMessage dispatches one outbound payload and returns the
	// protocol-assigned message id.
	SendMessage(ctx context.Context, msg *entity.OutboundMessage) (string, error)

	// SendPresence publishes a presence state, optionally scoped to a chat.
	SendPresence(ctx context.Context, state PresenceState, to string) error

	// MarkRead acknowledges the given message ids in a chat.
	MarkRead(ctx context.Context, to string, messageIDs []string) error

	// IsAuthenticated reports whether the client has a paired user.
	IsAuthenticated() bool

	// Logout invalidates the device on the WhatsApp servers.
	Logout(ctx context.Context) error

	// End closes the socket without touching stored credentials.
	End()
}

// ProtocolFactory builds protocol clients bound to a session's auth
// directory. One client per connection attempt; restarts create new ones.
type ProtocolFactory interface {
	New(ctx context.Context, sessionID, authDir string) (ProtocolClient, error)

	// Healthy reports whether the protocol service is usable (backing
	// store reachable). Feeds the /health endpoint.
	Healthy(ctx context.Context) bool
}
