package http

import (
	"net/http"

	"whatsam/internal/infrastructure/metrics"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health: 200 iff the protocol service is reachable,
// 503 otherwise. The body always carries the full dependency report.
func (h *Handler) Health(c *gin.Context) {
	report := h.checker.Check(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Ready handles GET /ready: 200 iff core services initialized.
func (h *Handler) Ready(c *gin.Context) {
	if !h.checker.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// Live handles GET /live: 200 whenever the process answers.
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true})
}

// MetricsJSON handles GET /metrics/json: the per-session and aggregate
// snapshot the registry heartbeat reuses.
func (h *Handler) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions":   h.sessionUC.List(),
		"statistics": h.sessionUC.Statistics(),
		"process":    metrics.Process(),
	})
}
