package http

import (
	"net/http"
	"strconv"
	"time"

	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"
	"whatsam/internal/infrastructure/metrics"
	"whatsam/internal/infrastructure/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "request_id"

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LoggingMiddleware logs request and response information
func LoggingMiddleware(log logger.Logger) gin.HandlerFunc {
	httpLog := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		requestID, _ := c.Get(RequestIDKey)
		httpLog.Info("request",
			logger.Any("request_id", requestID),
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency_ms", float64(time.Since(start).Milliseconds())))
	}
}

// APIKeyMiddleware enforces the optional API key header.
func APIKeyMiddleware(cfg config.APIKeyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		key := c.GetHeader(cfg.Header)
		if key == "" {
			respondWithError(c, http.StatusUnauthorized, "MISSING_API_KEY", "API key is required", nil)
			c.Abort()
			return
		}
		if key != cfg.Key {
			respondWithError(c, http.StatusUnauthorized, "INVALID_API_KEY", "API key is invalid", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware applies the token-bucket limiter. Keying follows
// the API key when the caller presents one, the client IP otherwise.
func RateLimitMiddleware(limiter *ratelimit.Limiter, apiKeyHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ratelimit.RequestKey(c.Request, apiKeyHeader)

		info := limiter.GetLimitInfo(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.Reset, 10))

		if !limiter.Allow(key) {
			respondWithError(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// MetricsMiddleware records request counters and latency.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
