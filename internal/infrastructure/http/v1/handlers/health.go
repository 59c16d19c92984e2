package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler provides liveness and readiness probes.
type HealthHandler struct {
	ping    func(ctx context.Context) error
	stats   func() any
	storage string
	version string
}

// NewHealthHandler creates a health handler. ping checks the storage
// backend named by storage; stats, when set, is reported by Info.
func NewHealthHandler(ping func(ctx context.Context) error, stats func() any, storage, version string) *HealthHandler {
	return &HealthHandler{ping: ping, stats: stats, storage: storage, version: version}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "error",
				"checks": map[string]string{"storage": "unhealthy: " + err.Error()},
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{"storage": "healthy"},
	})
}

// Info handles GET /health/info.
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":     "orderflow",
		"version": h.version,
		"storage": h.storage,
	}
	if h.stats != nil {
		body["pool"] = h.stats()
	}
	c.JSON(http.StatusOK, body)
}
