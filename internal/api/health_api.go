package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leozerbib/gile-back-sub001/internal/monitoring"
)

// getHealth reports folded service health. Degraded still answers 200 so
// load balancers keep routing while operators investigate; only unhealthy
// takes the instance out of rotation.
func (s *Server) getHealth(c *gin.Context) {
	health := s.health.GetServiceHealthMetrics()
	status := http.StatusOK
	if health.Status == monitoring.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

// getMetrics returns the service's internal statistics as JSON. The
// Prometheus scrape surface lives at /metrics on the root router.
func (s *Server) getMetrics(c *gin.Context) {
	resp := gin.H{
		"operations":  s.health.AllStats(),
		"queue_depth": s.intake.QueueDepth(),
		"embedding": gin.H{
			"provider":   s.embedder.ProviderName(),
			"dimensions": s.embedder.Dimensions(),
		},
	}
	if s.breakers != nil {
		resp["circuit_breakers"] = s.breakers.AllStats()
	}
	c.JSON(http.StatusOK, resp)
}

// getStoreStats summarizes vector store contents, optionally scoped to one
// workspace via the workspace_id query parameter.
func (s *Server) getStoreStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context(), c.Query("workspace_id"))
	if err != nil {
		s.logger.Error("Failed to collect store stats", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
