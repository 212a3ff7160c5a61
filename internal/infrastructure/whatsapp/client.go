package whatsapp

import (
	"context"
	"strings"
	"time"

	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/errors"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Client wraps one whatsmeow client instance behind the protocol
// contract: an event stream plus send calls. The lifecycle engine treats
// it as a black box.
type Client struct {
	sessionID string
	wa        *whatsmeow.Client
	cfg       config.WhatsAppConfig
	log       logger.Logger

	events chan repository.ProtocolEvent
	done   chan struct{}

	// lifetime outlives any caller context: the QR pairing loop must keep
	// producing challenges after the triggering request returns.
	lifetime context.Context
	end      context.CancelFunc
}

var _ repository.ProtocolClient = (*Client)(nil)

func newClient(sessionID string, wa *whatsmeow.Client, cfg config.WhatsAppConfig, log logger.Logger) *Client {
	lifetime, end := context.WithCancel(context.Background())
	c := &Client{
		sessionID: sessionID,
		wa:        wa,
		cfg:       cfg,
		log:       log,
		events:    make(chan repository.ProtocolEvent, 32),
		done:      make(chan struct{}),
		lifetime:  lifetime,
		end:       end,
	}
	wa.AddEventHandler(c.handleEvent)
	return c
}

// Events returns the inbound event stream. The stream ends when End is
// called; consumers watch their own cancellation as well.
func (c *Client) Events() <-chan repository.ProtocolEvent {
	return c.events
}

// Connect opens the socket. A client without stored credentials starts
// the QR pairing flow and forwards each challenge as a QR event.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		// GetQRChannel must be armed before the socket opens, and it lives
		// as long as the client, not the caller's request.
		qrChan, err := c.wa.GetQRChannel(c.lifetime)
		if err != nil {
			return errors.ErrInternal.WithCause(err).WithMessage("failed to open QR channel")
		}
		go c.pumpQR(qrChan)
	}

	retry := NewRetryPolicy(RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	})
	if err := retry.Execute(ctx, func() error {
		return c.wa.Connect()
	}); err != nil {
		return errors.ErrTransient.WithCause(err).WithMessage("failed to connect socket")
	}
	return nil
}

// pumpQR forwards pairing challenges from whatsmeow's QR channel.
func (c *Client) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.emit(repository.ProtocolEvent{
				Kind: repository.ProtocolEventQR,
				QR:   item.Code,
			})
		case "timeout":
			c.emit(repository.ProtocolEvent{
				Kind:       repository.ProtocolEventClose,
				StatusCode: repository.CloseCodeTimedOut,
				Message:    "QR pairing timed out",
			})
		case "success":
			// Connected/PairSuccess events carry the open transition.
		}
	}
}

// handleEvent maps whatsmeow bus events onto the protocol contract.
func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.emitOpen()
	case *events.PairSuccess:
		// The open event fires on Connected; pairing alone does not mean
		// the socket is ready.
	case *events.LoggedOut:
		c.emit(repository.ProtocolEvent{
			Kind:       repository.ProtocolEventClose,
			StatusCode: repository.CloseCodeLoggedOut,
			Message:    "logged out: " + v.Reason.String(),
		})
	case *events.StreamReplaced:
		c.emit(repository.ProtocolEvent{
			Kind:       repository.ProtocolEventClose,
			StatusCode: repository.CloseCodeConnectionReplaced,
			Message:    "Stream Errored (conflict): connection replaced",
		})
	case *events.StreamError:
		c.emit(repository.ProtocolEvent{
			Kind:       repository.ProtocolEventClose,
			StatusCode: repository.CloseCodeConnectionClosed,
			Message:    "stream error: " + v.Code,
		})
	case *events.ConnectFailure:
		c.emit(repository.ProtocolEvent{
			Kind:       repository.ProtocolEventClose,
			StatusCode: int(v.Reason),
			Message:    v.Message,
		})
	case *events.ClientOutdated:
		c.emit(repository.ProtocolEvent{
			Kind:       repository.ProtocolEventClose,
			StatusCode: repository.CloseCodeBadSession,
			Message:    "client outdated",
		})
	case *events.TemporaryBan:
		c.emit(repository.ProtocolEvent{
			Kind:       repository.ProtocolEventClose,
			StatusCode: repository.CloseCodeConnectionClosed,
			Message:    "temporary ban: " + v.String(),
		})
	case *events.KeepAliveTimeout:
		c.emit(repository.ProtocolEvent{
			Kind:       repository.ProtocolEventClose,
			StatusCode: repository.CloseCodeTimedOut,
			Message:    "keepalive timed out",
		})
	case *events.Disconnected:
		c.emit(repository.ProtocolEvent{
			Kind:       repository.ProtocolEventClose,
			StatusCode: repository.CloseCodeConnectionClosed,
			Message:    "connection closed",
		})
	case *events.Receipt:
		c.emitReceipt(v)
	}
}

func (c *Client) emitOpen() {
	evt := repository.ProtocolEvent{Kind: repository.ProtocolEventOpen}
	if c.wa.Store.ID != nil {
		evt.JID = c.wa.Store.ID.String()
	}
	evt.PushName = c.wa.Store.PushName
	c.emit(evt)

	// Credentials were (re)written by the library on pairing.
	c.emit(repository.ProtocolEvent{Kind: repository.ProtocolEventCredsUpdate})
}

func (c *Client) emitReceipt(receipt *events.Receipt) {
	var status string
	switch receipt.Type {
	case types.ReceiptTypeDelivered:
		status = "delivered"
	case types.ReceiptTypeRead:
		status = "read"
	default:
		return
	}

	for _, id := range receipt.MessageIDs {
		c.emit(repository.ProtocolEvent{
			Kind:           repository.ProtocolEventMessageStatus,
			MessageID:      string(id),
			Chat:           receipt.MessageSource.Chat.String(),
			DeliveryStatus: status,
		})
	}
}

// emit delivers an event without ever blocking whatsmeow's dispatch past
// End.
func (c *Client) emit(evt repository.ProtocolEvent) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.events <- evt:
	case <-c.done:
	}
}

// SendMessage dispatches one outbound payload.
func (c *Client) SendMessage(ctx context.Context, msg *entity.OutboundMessage) (string, error) {
	if !c.wa.IsConnected() {
		return "", errors.ErrNotConnected
	}
	if c.wa.Store.ID == nil {
		return "", errors.ErrNotAuthenticated
	}

	to, err := parseRecipient(msg.To)
	if err != nil {
		return "", err
	}

	waMsg, err := c.buildMessage(ctx, msg)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	resp, err := c.wa.SendMessage(ctx, to, waMsg)
	if err != nil {
		return "", errors.ErrMessageSendFailed.WithCause(err)
	}
	return string(resp.ID), nil
}

// SendPresence publishes a presence state, optionally scoped to a chat.
func (c *Client) SendPresence(ctx context.Context, state repository.PresenceState, to string) error {
	if !c.wa.IsConnected() {
		return errors.ErrNotConnected
	}

	switch state {
	case repository.PresenceAvailable:
		return c.wa.SendPresence(ctx, types.PresenceAvailable)
	case repository.PresenceComposing, repository.PresencePaused:
		jid, err := parseRecipient(to)
		if err != nil {
			return err
		}
		chatState := types.ChatPresenceComposing
		if state == repository.PresencePaused {
			chatState = types.ChatPresencePaused
		}
		return c.wa.SendChatPresence(ctx, jid, chatState, types.ChatPresenceMediaText)
	}
	return nil
}

// MarkRead acknowledges the given message ids in a chat.
func (c *Client) MarkRead(ctx context.Context, to string, messageIDs []string) error {
	if !c.wa.IsConnected() {
		return errors.ErrNotConnected
	}

	jid, err := parseRecipient(to)
	if err != nil {
		return err
	}

	ids := make([]types.MessageID, 0, len(messageIDs))
	for _, id := range messageIDs {
		ids = append(ids, types.MessageID(id))
	}
	return c.wa.MarkRead(ctx, ids, time.Now(), jid, jid, types.ReceiptTypeRead)
}

// IsAuthenticated reports whether the client has a paired user.
func (c *Client) IsAuthenticated() bool {
	return c.wa.Store.ID != nil
}

// Logout invalidates the device on the WhatsApp servers.
func (c *Client) Logout(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()
	if err := c.wa.Logout(ctx); err != nil {
		return errors.ErrTransient.WithCause(err).WithMessage("protocol logout failed")
	}
	return nil
}

// End closes the socket without touching stored credentials.
func (c *Client) End() {
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.end()
	c.wa.Disconnect()
}

// parseRecipient turns a phone number or JID string into a protocol JID.
func parseRecipient(to string) (types.JID, error) {
	raw := to
	if raw == "" {
		return types.JID{}, errors.ErrInvalidPhoneNumber.WithMessage("recipient is required")
	}
	raw = strings.TrimPrefix(raw, "+")
	if !strings.ContainsRune(raw, '@') {
		raw += "@s.whatsapp.net"
	}
	jid, err := types.ParseJID(raw)
	if err != nil {
		return types.JID{}, errors.ErrInvalidPhoneNumber.WithCause(err)
	}
	return jid, nil
}
