package models

import "time"

// RelationType classifies an edge between two entities.
type RelationType string

const (
	// RelationDependsOn links a ticket to a ticket it depends on
	RelationDependsOn RelationType = "depends_on"
	// RelationBlocks links a ticket to a ticket it blocks
	RelationBlocks RelationType = "blocks"
	// RelationRelatesTo is an untyped association between tickets
	RelationRelatesTo RelationType = "relates_to"
	// RelationParentChild links a ticket to one of its tasks
	RelationParentChild RelationType = "parent_child"
	// RelationEpicTicket links an epic to a member ticket
	RelationEpicTicket RelationType = "epic_ticket"
	// RelationSprintTicket links a sprint to a scheduled ticket
	RelationSprintTicket RelationType = "sprint_ticket"
)

// Direction tells which end of an edge the subject entity is on.
type Direction string

const (
	// DirectionOutgoing means the subject entity owns the edge
	DirectionOutgoing Direction = "outgoing"
	// DirectionIncoming means the edge points at the subject entity
	DirectionIncoming Direction = "incoming"
)

// TicketRelation is a row of the ticket_dependencies table. Relation is one
// of depends_on, blocks or relates_to; the structural relation types
// (parent_child, epic_ticket, sprint_ticket) derive from foreign keys
// instead.
type TicketRelation struct {
	ID                int64        `db:"id" json:"id"`
	WorkspaceID       string       `db:"workspace_id" json:"workspace_id"`
	TicketID          int64        `db:"ticket_id" json:"ticket_id"`
	DependsOnTicketID int64        `db:"depends_on_ticket_id" json:"depends_on_ticket_id"`
	Relation          RelationType `db:"relation_type" json:"relation_type"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
}

// Dependency is a resolved edge of the dependency graph as seen from one
// entity: the other end, the relation type, the direction, and the other
// end's display title when it could be resolved.
type Dependency struct {
	Ref       EntityRef    `json:"ref"`
	Relation  RelationType `json:"relation"`
	Direction Direction    `json:"direction"`
	Title     string       `json:"title,omitempty"`
}
