package models

import (
	"time"

	"github.com/lib/pq"
)

// Ticket is a work item inside a project. Epic and sprint membership are
// optional; labels and the assignee display name are denormalized by the
// entity store queries.
type Ticket struct {
	ID           int64          `db:"id" json:"id"`
	WorkspaceID  string         `db:"workspace_id" json:"workspace_id"`
	ProjectID    int64          `db:"project_id" json:"project_id"`
	EpicID       *int64         `db:"epic_id" json:"epic_id,omitempty"`
	SprintID     *int64         `db:"sprint_id" json:"sprint_id,omitempty"`
	Title        string         `db:"title" json:"title"`
	Description  string         `db:"description" json:"description"`
	Status       string         `db:"status" json:"status"`
	Priority     string         `db:"priority" json:"priority"`
	AssigneeName *string        `db:"assignee_name" json:"assignee_name,omitempty"`
	Labels       pq.StringArray `db:"labels" json:"labels,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Epic groups tickets under a shared goal.
type Epic struct {
	ID          int64     `db:"id" json:"id"`
	WorkspaceID string    `db:"workspace_id" json:"workspace_id"`
	ProjectID   int64     `db:"project_id" json:"project_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Sprint is a time-boxed iteration tickets are scheduled into.
type Sprint struct {
	ID          int64      `db:"id" json:"id"`
	WorkspaceID string     `db:"workspace_id" json:"workspace_id"`
	ProjectID   int64      `db:"project_id" json:"project_id"`
	Name        string     `db:"name" json:"name"`
	Goal        string     `db:"goal" json:"goal"`
	Status      string     `db:"status" json:"status"`
	StartDate   *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate     *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Task is a checklist item under a ticket.
type Task struct {
	ID          int64     `db:"id" json:"id"`
	WorkspaceID string    `db:"workspace_id" json:"workspace_id"`
	TicketID    int64     `db:"ticket_id" json:"ticket_id"`
	Title       string    `db:"title" json:"title"`
	Done        bool      `db:"done" json:"done"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Project is the top-level container inside a workspace.
type Project struct {
	ID          int64     `db:"id" json:"id"`
	WorkspaceID string    `db:"workspace_id" json:"workspace_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

