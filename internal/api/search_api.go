package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leozerbib/gile-back-sub001/internal/embedding"
	"github.com/Leozerbib/gile-back-sub001/internal/models"
	"github.com/Leozerbib/gile-back-sub001/internal/vectorstore"
)

// SearchRequest is a free-text semantic search over indexed documents.
type SearchRequest struct {
	Query        string  `json:"query" binding:"required"`
	WorkspaceID  string  `json:"workspace_id" binding:"required"`
	ProjectID    *int64  `json:"project_id"`
	SourceTable  string  `json:"source_table"`
	DocumentType string  `json:"document_type"`
	Limit        int     `json:"limit"`
	Threshold    float64 `json:"threshold"`
}

// SimilarRequest asks for documents similar to an already-indexed entity.
type SimilarRequest struct {
	SourceTable string  `json:"source_table" binding:"required"`
	SourceID    int64   `json:"source_id" binding:"required"`
	WorkspaceID string  `json:"workspace_id" binding:"required"`
	Limit       int     `json:"limit"`
	Threshold   float64 `json:"threshold"`
}

// searchDocuments embeds the query text and searches the vector store.
// Internal failures degrade to an empty result set: search is an assistive
// feature and a provider outage must not break the caller.
func (s *Server) searchDocuments(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SourceTable != "" && !models.ValidSourceTable(req.SourceTable) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source table " + req.SourceTable})
		return
	}

	vector, err := s.embedder.GenerateEmbedding(c.Request.Context(), req.Query,
		embedding.WithWorkspace(req.WorkspaceID),
	)
	if err != nil {
		s.logger.Error("Search query embedding failed, returning empty results", map[string]interface{}{
			"workspace_id": req.WorkspaceID,
			"error":        err.Error(),
		})
		s.respondSearchResults(c, nil)
		return
	}

	results, err := s.store.SemanticSearch(c.Request.Context(), vector, models.SearchOptions{
		WorkspaceID:  req.WorkspaceID,
		ProjectID:    req.ProjectID,
		SourceTable:  req.SourceTable,
		DocumentType: req.DocumentType,
		Limit:        req.Limit,
		Threshold:    req.Threshold,
	})
	if err != nil {
		s.logger.Error("Semantic search failed, returning empty results", map[string]interface{}{
			"workspace_id": req.WorkspaceID,
			"error":        err.Error(),
		})
		s.respondSearchResults(c, nil)
		return
	}
	s.respondSearchResults(c, results)
}

// searchSimilar looks up the reference document and searches by its stored
// embedding, excluding the reference itself. A reference that was never
// indexed yields empty results rather than an error.
func (s *Server) searchSimilar(c *gin.Context) {
	var req SimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ref := models.EntityRef{
		SourceTable: models.SourceTable(req.SourceTable),
		SourceID:    req.SourceID,
		WorkspaceID: req.WorkspaceID,
	}
	if err := ref.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := s.store.Get(c.Request.Context(), ref)
	if err != nil {
		if vectorstore.IsNotFound(err) {
			s.logger.Debug("similar search reference not indexed", map[string]interface{}{
				"entity": ref.Key(),
			})
		} else {
			s.logger.Error("Similar search reference lookup failed, returning empty results", map[string]interface{}{
				"entity": ref.Key(),
				"error":  err.Error(),
			})
		}
		s.respondSearchResults(c, nil)
		return
	}

	results, err := s.store.SemanticSearch(c.Request.Context(), doc.Embedding, models.SearchOptions{
		WorkspaceID: req.WorkspaceID,
		Limit:       req.Limit,
		Threshold:   req.Threshold,
		ExcludeRef:  &ref,
	})
	if err != nil {
		s.logger.Error("Similar search failed, returning empty results", map[string]interface{}{
			"entity": ref.Key(),
			"error":  err.Error(),
		})
		s.respondSearchResults(c, nil)
		return
	}
	s.respondSearchResults(c, results)
}

func (s *Server) respondSearchResults(c *gin.Context, results []models.SearchResult) {
	if results == nil {
		results = []models.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": results,
		"count":   len(results),
	})
}
