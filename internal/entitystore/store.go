// Package entitystore provides read access to the platform tables the
// indexing pipeline aggregates from: tickets, epics, sprints, tasks,
// projects, and ticket_dependencies. All queries are workspace-scoped.
package entitystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Leozerbib/gile-back-sub001/internal/models"
)

// Reader is the read surface consumed by the dependency tracker and the
// content builders.
type Reader interface {
	GetTicket(ctx context.Context, id int64, workspaceID string) (*models.Ticket, error)
	GetEpic(ctx context.Context, id int64, workspaceID string) (*models.Epic, error)
	GetSprint(ctx context.Context, id int64, workspaceID string) (*models.Sprint, error)
	GetTask(ctx context.Context, id int64, workspaceID string) (*models.Task, error)
	GetProject(ctx context.Context, id int64, workspaceID string) (*models.Project, error)

	ListTicketsByEpic(ctx context.Context, epicID int64, workspaceID string) ([]models.Ticket, error)
	ListTicketsBySprint(ctx context.Context, sprintID int64, workspaceID string) ([]models.Ticket, error)
	ListTicketsByProject(ctx context.Context, projectID int64, workspaceID string) ([]models.Ticket, error)
	ListEpicsByProject(ctx context.Context, projectID int64, workspaceID string) ([]models.Epic, error)
	ListSprintsByProject(ctx context.Context, projectID int64, workspaceID string) ([]models.Sprint, error)
	ListTasksByTicket(ctx context.Context, ticketID int64, workspaceID string) ([]models.Task, error)

	ListTicketRelations(ctx context.Context, ticketID int64, workspaceID string) ([]models.TicketRelation, error)
	ListTicketDependents(ctx context.Context, ticketID int64, workspaceID string) ([]models.TicketRelation, error)
}

// selectTicket denormalizes the assignee display name onto the row so
// callers never touch the users table directly.
const selectTicket = `
	SELECT t.id, t.workspace_id, t.project_id, t.epic_id, t.sprint_id,
	       t.title, COALESCE(t.description, '') AS description,
	       t.status, t.priority,
	       u.display_name AS assignee_name, t.labels,
	       t.created_at, t.updated_at
	FROM tickets t
	LEFT JOIN users u ON u.id = t.assignee_id`

// Store implements Reader against the platform database.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a read-only entity store over the given database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// GetTicket retrieves a ticket by ID within a workspace.
func (s *Store) GetTicket(ctx context.Context, id int64, workspaceID string) (*models.Ticket, error) {
	var ticket models.Ticket
	query := selectTicket + `
	WHERE t.id = $1 AND t.workspace_id = $2`

	err := s.db.GetContext(ctx, &ticket, query, id, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "ticket", ID: id}
		}
		return nil, fmt.Errorf("failed to get ticket %d: %w", id, err)
	}

	return &ticket, nil
}

// GetEpic retrieves an epic by ID within a workspace.
func (s *Store) GetEpic(ctx context.Context, id int64, workspaceID string) (*models.Epic, error) {
	var epic models.Epic
	query := `
	SELECT id, workspace_id, project_id, name,
	       COALESCE(description, '') AS description, status,
	       created_at, updated_at
	FROM epics
	WHERE id = $1 AND workspace_id = $2`

	err := s.db.GetContext(ctx, &epic, query, id, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "epic", ID: id}
		}
		return nil, fmt.Errorf("failed to get epic %d: %w", id, err)
	}

	return &epic, nil
}

// GetSprint retrieves a sprint by ID within a workspace.
func (s *Store) GetSprint(ctx context.Context, id int64, workspaceID string) (*models.Sprint, error) {
	var sprint models.Sprint
	query := `
	SELECT id, workspace_id, project_id, name,
	       COALESCE(goal, '') AS goal, status, start_date, end_date,
	       created_at, updated_at
	FROM sprints
	WHERE id = $1 AND workspace_id = $2`

	err := s.db.GetContext(ctx, &sprint, query, id, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "sprint", ID: id}
		}
		return nil, fmt.Errorf("failed to get sprint %d: %w", id, err)
	}

	return &sprint, nil
}

// GetTask retrieves a task by ID within a workspace.
func (s *Store) GetTask(ctx context.Context, id int64, workspaceID string) (*models.Task, error) {
	var task models.Task
	query := `
	SELECT id, workspace_id, ticket_id, title, done, created_at, updated_at
	FROM tasks
	WHERE id = $1 AND workspace_id = $2`

	err := s.db.GetContext(ctx, &task, query, id, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "task", ID: id}
		}
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}

	return &task, nil
}

// GetProject retrieves a project by ID within a workspace.
func (s *Store) GetProject(ctx context.Context, id int64, workspaceID string) (*models.Project, error) {
	var project models.Project
	query := `
	SELECT id, workspace_id, name,
	       COALESCE(description, '') AS description,
	       created_at, updated_at
	FROM projects
	WHERE id = $1 AND workspace_id = $2`

	err := s.db.GetContext(ctx, &project, query, id, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "project", ID: id}
		}
		return nil, fmt.Errorf("failed to get project %d: %w", id, err)
	}

	return &project, nil
}

// ListTicketsByEpic returns the tickets assigned to an epic.
func (s *Store) ListTicketsByEpic(ctx context.Context, epicID int64, workspaceID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	query := selectTicket + `
	WHERE t.epic_id = $1 AND t.workspace_id = $2
	ORDER BY t.id`

	if err := s.db.SelectContext(ctx, &tickets, query, epicID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to list tickets for epic %d: %w", epicID, err)
	}

	return tickets, nil
}

// ListTicketsBySprint returns the tickets scheduled into a sprint.
func (s *Store) ListTicketsBySprint(ctx context.Context, sprintID int64, workspaceID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	query := selectTicket + `
	WHERE t.sprint_id = $1 AND t.workspace_id = $2
	ORDER BY t.id`

	if err := s.db.SelectContext(ctx, &tickets, query, sprintID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to list tickets for sprint %d: %w", sprintID, err)
	}

	return tickets, nil
}

// ListTicketsByProject returns all tickets in a project.
func (s *Store) ListTicketsByProject(ctx context.Context, projectID int64, workspaceID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	query := selectTicket + `
	WHERE t.project_id = $1 AND t.workspace_id = $2
	ORDER BY t.id`

	if err := s.db.SelectContext(ctx, &tickets, query, projectID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to list tickets for project %d: %w", projectID, err)
	}

	return tickets, nil
}

// ListEpicsByProject returns all epics in a project.
func (s *Store) ListEpicsByProject(ctx context.Context, projectID int64, workspaceID string) ([]models.Epic, error) {
	var epics []models.Epic
	query := `
	SELECT id, workspace_id, project_id, name,
	       COALESCE(description, '') AS description, status,
	       created_at, updated_at
	FROM epics
	WHERE project_id = $1 AND workspace_id = $2
	ORDER BY id`

	if err := s.db.SelectContext(ctx, &epics, query, projectID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to list epics for project %d: %w", projectID, err)
	}

	return epics, nil
}

// ListSprintsByProject returns all sprints in a project.
func (s *Store) ListSprintsByProject(ctx context.Context, projectID int64, workspaceID string) ([]models.Sprint, error) {
	var sprints []models.Sprint
	query := `
	SELECT id, workspace_id, project_id, name,
	       COALESCE(goal, '') AS goal, status, start_date, end_date,
	       created_at, updated_at
	FROM sprints
	WHERE project_id = $1 AND workspace_id = $2
	ORDER BY id`

	if err := s.db.SelectContext(ctx, &sprints, query, projectID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to list sprints for project %d: %w", projectID, err)
	}

	return sprints, nil
}

// ListTasksByTicket returns the checklist tasks under a ticket.
func (s *Store) ListTasksByTicket(ctx context.Context, ticketID int64, workspaceID string) ([]models.Task, error) {
	var tasks []models.Task
	query := `
	SELECT id, workspace_id, ticket_id, title, done, created_at, updated_at
	FROM tasks
	WHERE ticket_id = $1 AND workspace_id = $2
	ORDER BY id`

	if err := s.db.SelectContext(ctx, &tasks, query, ticketID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to list tasks for ticket %d: %w", ticketID, err)
	}

	return tasks, nil
}

// ListTicketRelations returns the outgoing dependency rows owned by a
// ticket (rows where it is the subject).
func (s *Store) ListTicketRelations(ctx context.Context, ticketID int64, workspaceID string) ([]models.TicketRelation, error) {
	var relations []models.TicketRelation
	query := `
	SELECT id, workspace_id, ticket_id, depends_on_ticket_id, relation_type, created_at
	FROM ticket_dependencies
	WHERE ticket_id = $1 AND workspace_id = $2
	ORDER BY id`

	if err := s.db.SelectContext(ctx, &relations, query, ticketID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to list relations for ticket %d: %w", ticketID, err)
	}

	return relations, nil
}

// ListTicketDependents returns the incoming dependency rows pointing at a
// ticket (rows where it is the target).
func (s *Store) ListTicketDependents(ctx context.Context, ticketID int64, workspaceID string) ([]models.TicketRelation, error) {
	var relations []models.TicketRelation
	query := `
	SELECT id, workspace_id, ticket_id, depends_on_ticket_id, relation_type, created_at
	FROM ticket_dependencies
	WHERE depends_on_ticket_id = $1 AND workspace_id = $2
	ORDER BY id`

	if err := s.db.SelectContext(ctx, &relations, query, ticketID, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to list dependents for ticket %d: %w", ticketID, err)
	}

	return relations, nil
}
