package http

import (
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"
	"whatsam/internal/infrastructure/metrics"
	"whatsam/internal/infrastructure/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the gin engine with middleware and routes.
func NewRouter(h *Handler, cfg *config.Config, m *metrics.Metrics, limiter *ratelimit.Limiter, log logger.Logger) *gin.Engine {
	if cfg.Worker.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(log))
	if cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware(m))
	}

	// Health surface stays open: probes carry no credentials.
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/live", h.Live)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
		r.GET(cfg.Metrics.Path+"/json", h.MetricsJSON)
	}

	api := r.Group("/api")
	api.Use(APIKeyMiddleware(cfg.APIKey))
	if cfg.RateLimit.Enabled {
		api.Use(RateLimitMiddleware(limiter, cfg.APIKey.Header))
	}

	session := api.Group("/session")
	{
		session.POST("/start", h.StartSession)
		session.POST("/create", h.CreateSession)
		session.GET("/:sessionId/status", h.GetSessionStatus)
		session.GET("/:sessionId/qr", h.GetSessionQR)
		session.POST("/:sessionId/restart", h.RestartSession)
		session.POST("/:sessionId/disconnect", h.DisconnectSession)
		session.POST("/:sessionId/logout", h.LogoutSession)
		session.DELETE("/:sessionId", h.DeleteSession)
	}

	api.GET("/sessions", h.ListSessions)

	// The static session/sessions segments resolve before this parameter
	// segment, so ids "session" and "sessions" cannot reach the send routes.
	api.POST("/:sessionId/send", h.SendMessage)
	api.POST("/:sessionId/send-bulk", h.SendBulk)

	return r
}
