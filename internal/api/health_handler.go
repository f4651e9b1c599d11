package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recon-rules/internal/cache"
	"recon-rules/internal/repository"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	rulesRepo *repository.RulesRepository
	refCache  *cache.ReferentialCache
	logger    *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(rulesRepo *repository.RulesRepository, refCache *cache.ReferentialCache, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		rulesRepo: rulesRepo,
		refCache:  refCache,
		logger:    logger,
	}
}

// Health returns basic health status
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "recon-rules",
		"version":   "1.0.0",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Ready checks if the service can reach its storage and cache
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	start := time.Now()

	checks := make(map[string]interface{})
	allHealthy := true

	dbCtx, dbCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer dbCancel()

	dbStart := time.Now()
	if err := h.rulesRepo.HealthCheck(dbCtx); err != nil {
		checks["database"] = map[string]interface{}{
			"status":   "unhealthy",
			"error":    err.Error(),
			"duration": time.Since(dbStart).Milliseconds(),
		}
		allHealthy = false
		h.logger.Warn("database health check failed", zap.Error(err))
	} else {
		checks["database"] = map[string]interface{}{
			"status":   "healthy",
			"duration": time.Since(dbStart).Milliseconds(),
		}
	}

	cacheCtx, cacheCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cacheCancel()

	cacheStart := time.Now()
	if err := h.refCache.Ping(cacheCtx); err != nil {
		// The cache is a read-through accelerator; losing it degrades
		// latency, not correctness
		checks["cache"] = map[string]interface{}{
			"status":   "degraded",
			"error":    err.Error(),
			"duration": time.Since(cacheStart).Milliseconds(),
		}
		h.logger.Warn("cache health check failed", zap.Error(err))
	} else {
		checks["cache"] = map[string]interface{}{
			"status":   "healthy",
			"duration": time.Since(cacheStart).Milliseconds(),
		}
	}

	status := http.StatusOK
	overallStatus := "ready"
	if !allHealthy {
		status = http.StatusServiceUnavailable
		overallStatus = "not_ready"
	}

	c.JSON(status, gin.H{
		"status":         overallStatus,
		"service":        "recon-rules",
		"checks":         checks,
		"total_duration": time.Since(start).Milliseconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Live checks if the service is alive
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   "recon-rules",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
