package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Leozerbib/gile-back-sub001/internal/events"
)

// eventSchemaJSON validates change-event payloads before they reach the
// dispatcher. Extra fields are tolerated so producers can evolve ahead of
// the indexer.
const eventSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "type", "source_table", "source_id", "workspace_id"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"type": {"type": "string", "enum": ["created", "updated", "deleted"]},
		"source_table": {"type": "string", "enum": ["tickets", "epics", "sprints", "tasks", "projects"]},
		"source_id": {"type": "integer", "minimum": 1},
		"workspace_id": {"type": "string", "minLength": 1},
		"occurred_at": {"type": "string", "format": "date-time"}
	}
}`

// Hint for producers hitting a full queue; the worker pool drains in well
// under a second when the embedding provider is healthy.
const queueFullRetryAfter = "1"

// ingestEvent validates a change event against the JSON schema and hands it
// to the dispatcher. 202 means accepted for asynchronous processing, not
// processed.
func (s *Server) ingestEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "failed to read request body"})
		return
	}

	result, err := s.eventSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "malformed event payload: " + err.Error()})
		return
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": strings.Join(msgs, "; ")})
		return
	}

	var ev events.EntityChangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	if err := s.intake.Enqueue(c.Request.Context(), ev); err != nil {
		if errors.Is(err, events.ErrQueueFull) {
			c.Header("Retry-After", queueFullRetryAfter)
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": err.Error()})
			return
		}
		s.logger.Error("Failed to enqueue event", map[string]interface{}{
			"event_id": ev.ID,
			"entity":   ev.Ref().Key(),
			"error":    err.Error(),
		})
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":  true,
		"message":  "event accepted",
		"event_id": ev.ID,
	})
}
