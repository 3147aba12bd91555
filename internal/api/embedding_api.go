package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Leozerbib/gile-back-sub001/internal/embedding"
	"github.com/Leozerbib/gile-back-sub001/internal/resilience"
)

// EmbeddingRequest asks for a raw embedding vector of the given text.
type EmbeddingRequest struct {
	Text        string `json:"text" binding:"required"`
	EntityType  string `json:"entity_type"`
	EntityID    int64  `json:"entity_id"`
	WorkspaceID string `json:"workspace_id"`
}

// generateEmbedding returns the embedding of the request text. Unlike the
// search endpoints this one surfaces failures: callers use it to build
// their own pipelines and need to distinguish rejection from outage.
func (s *Server) generateEmbedding(c *gin.Context) {
	var req EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := make([]embedding.GenerateOption, 0, 2)
	if req.EntityType != "" && req.EntityID > 0 {
		opts = append(opts, embedding.WithEntity(req.EntityType, req.EntityID))
	}
	if req.WorkspaceID != "" {
		opts = append(opts, embedding.WithWorkspace(req.WorkspaceID))
	}

	vector, err := s.embedder.GenerateEmbedding(c.Request.Context(), req.Text, opts...)
	if err != nil {
		s.respondEmbeddingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"embedding":  vector,
		"dimensions": len(vector),
		"provider":   s.embedder.ProviderName(),
	})
}

func (s *Server) respondEmbeddingError(c *gin.Context, err error) {
	var coe *resilience.CircuitOpenError
	switch {
	case errors.Is(err, embedding.ErrEmptyText):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &coe):
		c.Header("Retry-After", retryAfterSeconds(coe.RetryAfter))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case resilience.IsTimeout(err):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Failed to generate embedding", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// retryAfterSeconds renders a duration as a Retry-After header value,
// rounded up so clients never retry before the breaker would admit them.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
