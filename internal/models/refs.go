// Package models defines the domain types shared across the indexing
// service: business entities, entity references, relationship edges, and
// embedding documents.
package models

import "fmt"

// SourceTable identifies which platform table an entity lives in.
type SourceTable string

const (
	// TableTickets is the tickets table
	TableTickets SourceTable = "tickets"
	// TableEpics is the epics table
	TableEpics SourceTable = "epics"
	// TableSprints is the sprints table
	TableSprints SourceTable = "sprints"
	// TableTasks is the tasks table
	TableTasks SourceTable = "tasks"
	// TableProjects is the projects table
	TableProjects SourceTable = "projects"
)

// ValidSourceTable reports whether s names a known source table.
func ValidSourceTable(s string) bool {
	switch SourceTable(s) {
	case TableTickets, TableEpics, TableSprints, TableTasks, TableProjects:
		return true
	default:
		return false
	}
}

// DocumentType returns the document type stored for entities of this table.
func (s SourceTable) DocumentType() string {
	switch s {
	case TableTickets:
		return "ticket"
	case TableEpics:
		return "epic"
	case TableSprints:
		return "sprint"
	case TableTasks:
		return "task"
	case TableProjects:
		return "project"
	default:
		return string(s)
	}
}

// EntityRef uniquely identifies an entity across the platform tables.
// The triple also keys documents in the vector store.
type EntityRef struct {
	SourceTable SourceTable `json:"source_table"`
	SourceID    int64       `json:"source_id"`
	WorkspaceID string      `json:"workspace_id"`
}

// Key returns a stable string form of the ref, used for locking,
// de-duplication, and logging.
func (r EntityRef) Key() string {
	return fmt.Sprintf("%s:%d:%s", r.SourceTable, r.SourceID, r.WorkspaceID)
}

// Validate checks the ref fields.
func (r EntityRef) Validate() error {
	if !ValidSourceTable(string(r.SourceTable)) {
		return fmt.Errorf("unknown source table %q", r.SourceTable)
	}
	if r.SourceID <= 0 {
		return fmt.Errorf("source id must be positive, got %d", r.SourceID)
	}
	if r.WorkspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}
	return nil
}
