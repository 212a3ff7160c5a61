package ws

import (
	"net/http"

	ws "whatsam/internal/infrastructure/websocket"
	"whatsam/internal/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// StreamHandler upgrades operator connections onto the event hub so QR
// challenges and status transitions stream live.
type StreamHandler struct {
	hub      *ws.EventHub
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewStreamHandler creates the WebSocket stream handler.
func NewStreamHandler(hub *ws.EventHub, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The worker sits behind the control plane; origin policy is
			// the deployment's concern.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.WithComponent("ws"),
	}
}

// RegisterRoutes attaches the stream endpoints to the router.
func (h *StreamHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/sessions", h.handleStream)
	r.GET("/ws/sessions/:sessionId", h.handleStream)
}

func (h *StreamHandler) handleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Err(err))
		return
	}
	h.hub.Register(conn, c.Param("sessionId"))
}
