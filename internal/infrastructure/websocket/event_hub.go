package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/logger"

	"github.com/gorilla/websocket"
)

// HubConfig holds configuration for the EventHub
type HubConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// DefaultHubConfig returns default configuration
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Client represents one connected stream subscriber. An empty sessionID
// subscribes to every session.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

// EventHub streams session-status and message-status events to WebSocket
// subscribers (operator UIs watching QR pairing live). It implements the
// status notifier; a slow subscriber is dropped, never waited on.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	cfg     HubConfig
	log     logger.Logger
}

var _ repository.StatusNotifier = (*EventHub)(nil)

// NewEventHub creates the hub.
func NewEventHub(cfg HubConfig, log logger.Logger) *EventHub {
	return &EventHub{
		clients: make(map[*Client]struct{}),
		cfg:     cfg,
		log:     log.WithComponent("ws-hub"),
	}
}

// Register attaches a subscriber connection and starts its pumps.
func (h *EventHub) Register(conn *websocket.Conn, sessionID string) {
	client := &Client{
		conn:      conn,
		send:      make(chan []byte, 64),
		sessionID: sessionID,
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)

	h.log.Debug("stream subscriber attached",
		logger.String("session_id", sessionID),
		logger.Int("subscribers", h.Count()))
}

// Count returns the number of attached subscribers.
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifySessionStatus broadcasts a session transition to its subscribers.
func (h *EventHub) NotifySessionStatus(event entity.SessionStatusEvent) {
	h.broadcast(event.SessionID, map[string]interface{}{
		"type":    "session_status",
		"payload": event,
	})
}

// NotifyMessageStatus broadcasts a delivery update to its subscribers.
func (h *EventHub) NotifyMessageStatus(event entity.MessageStatusEvent) {
	h.broadcast(event.SessionID, map[string]interface{}{
		"type":    "message_status",
		"payload": event,
	})
}

func (h *EventHub) broadcast(sessionID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Warn("failed to marshal stream event", logger.Err(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.sessionID != "" && client.sessionID != sessionID {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Subscriber is not keeping up; the write pump will close it
			// once the channel backlog turns into write timeouts.
		}
	}
}

func (h *EventHub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	_ = client.conn.Close()
}

// writePump drains the client's send queue and keeps the connection alive
// with pings.
func (h *EventHub) writePump(client *Client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		h.remove(client)
	}()

	for {
		select {
		case data, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is detecting the close.
func (h *EventHub) readPump(client *Client) {
	defer h.remove(client)
	client.conn.SetReadLimit(1024)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close drops every subscriber.
func (h *EventHub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}
