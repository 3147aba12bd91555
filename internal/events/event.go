// Package events accepts entity change notifications, de-duplicates
// re-deliveries, and drives the indexing pipeline through a bounded worker
// pool with event-level redelivery and dead-lettering.
package events

import (
	"fmt"
	"time"

	"github.com/Leozerbib/gile-back-sub001/internal/models"
)

// Change event types.
const (
	TypeCreated = "created"
	TypeUpdated = "updated"
	TypeDeleted = "deleted"
)

// EntityChangeEvent notifies the indexer that a business entity was
// created, updated or deleted.
type EntityChangeEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	SourceTable string    `json:"source_table"`
	SourceID    int64     `json:"source_id"`
	WorkspaceID string    `json:"workspace_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Ref returns the entity the event refers to.
func (e *EntityChangeEvent) Ref() models.EntityRef {
	return models.EntityRef{
		SourceTable: models.SourceTable(e.SourceTable),
		SourceID:    e.SourceID,
		WorkspaceID: e.WorkspaceID,
	}
}

// Validate rejects events that could never be processed.
func (e *EntityChangeEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	switch e.Type {
	case TypeCreated, TypeUpdated, TypeDeleted:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return e.Ref().Validate()
}
