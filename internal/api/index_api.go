package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leozerbib/gile-back-sub001/internal/models"
)

// IndexRequest identifies the entity to process or remove.
type IndexRequest struct {
	SourceTable string `json:"source_table" binding:"required"`
	SourceID    int64  `json:"source_id" binding:"required"`
	WorkspaceID string `json:"workspace_id" binding:"required"`
}

func (r IndexRequest) ref() models.EntityRef {
	return models.EntityRef{
		SourceTable: models.SourceTable(r.SourceTable),
		SourceID:    r.SourceID,
		WorkspaceID: r.WorkspaceID,
	}
}

// processEntity runs the reindex cascade for the entity inline. Processing
// failures are reported in the response envelope, not as a 5xx: the caller
// asked for a best-effort refresh and retry belongs to the event pipeline.
func (s *Server) processEntity(c *gin.Context) {
	ref, ok := s.bindIndexRequest(c)
	if !ok {
		return
	}

	if err := s.indexer.ProcessEntityForEmbedding(c.Request.Context(), ref); err != nil {
		s.logger.Error("Failed to process entity", map[string]interface{}{
			"entity": ref.Key(),
			"error":  err.Error(),
		})
		c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "entity processed"})
}

// removeEntity deletes the entity's document and refreshes its neighbors.
func (s *Server) removeEntity(c *gin.Context) {
	ref, ok := s.bindIndexRequest(c)
	if !ok {
		return
	}

	if err := s.indexer.RemoveEntityEmbedding(c.Request.Context(), ref); err != nil {
		s.logger.Error("Failed to remove entity embedding", map[string]interface{}{
			"entity": ref.Key(),
			"error":  err.Error(),
		})
		c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "entity removed"})
}

func (s *Server) bindIndexRequest(c *gin.Context) (models.EntityRef, bool) {
	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return models.EntityRef{}, false
	}
	ref := req.ref()
	if err := ref.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return models.EntityRef{}, false
	}
	return ref, true
}
