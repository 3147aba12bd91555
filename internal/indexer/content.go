package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Leozerbib/gile-back-sub001/internal/entitystore"
	"github.com/Leozerbib/gile-back-sub001/internal/models"
)

// maxMemberTitles caps how many member ticket titles an epic or sprint
// document spells out; the remainder is summarized as a count.
const maxMemberTitles = 10

const dateLayout = "2006-01-02"

// buildDocument aggregates one entity's searchable text and wraps it in a
// store-ready document without an embedding. A not-found error on the root
// row propagates so the caller can drop the stale document instead.
func (o *Orchestrator) buildDocument(ctx context.Context, ref models.EntityRef) (*models.EmbeddingDocument, error) {
	switch ref.SourceTable {
	case models.TableTickets:
		return o.ticketDocument(ctx, ref)
	case models.TableEpics:
		return o.epicDocument(ctx, ref)
	case models.TableSprints:
		return o.sprintDocument(ctx, ref)
	case models.TableTasks:
		return o.taskDocument(ctx, ref)
	default:
		return o.projectDocument(ctx, ref)
	}
}

func (o *Orchestrator) ticketDocument(ctx context.Context, ref models.EntityRef) (*models.EmbeddingDocument, error) {
	ticket, err := o.entities.GetTicket(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}

	lines := []string{"Ticket: " + ticket.Title}
	lines = appendField(lines, "Description", ticket.Description)
	lines = appendField(lines, "Status", ticket.Status)
	lines = appendField(lines, "Priority", ticket.Priority)
	lines = appendField(lines, "Labels", strings.Join(ticket.Labels, ", "))
	if ticket.AssigneeName != nil {
		lines = appendField(lines, "Assignee", *ticket.AssigneeName)
	}

	metadata := map[string]interface{}{
		"status":   ticket.Status,
		"priority": ticket.Priority,
	}
	if len(ticket.Labels) > 0 {
		metadata["labels"] = []string(ticket.Labels)
	}

	if ticket.EpicID != nil {
		metadata["epic_id"] = *ticket.EpicID
		epic, err := o.entities.GetEpic(ctx, *ticket.EpicID, ref.WorkspaceID)
		if err != nil && !entitystore.IsNotFound(err) {
			return nil, err
		}
		if err == nil {
			lines = appendField(lines, "Epic", epic.Name)
		}
	}
	if ticket.SprintID != nil {
		metadata["sprint_id"] = *ticket.SprintID
		sprint, err := o.entities.GetSprint(ctx, *ticket.SprintID, ref.WorkspaceID)
		if err != nil && !entitystore.IsNotFound(err) {
			return nil, err
		}
		if err == nil {
			lines = appendField(lines, "Sprint", sprint.Name)
		}
	}

	return o.finishDocument(ctx, ref, lines, &ticket.ProjectID, metadata)
}

func (o *Orchestrator) epicDocument(ctx context.Context, ref models.EntityRef) (*models.EmbeddingDocument, error) {
	epic, err := o.entities.GetEpic(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}

	tickets, err := o.entities.ListTicketsByEpic(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}

	lines := []string{"Epic: " + epic.Name}
	lines = appendField(lines, "Description", epic.Description)
	lines = appendField(lines, "Status", epic.Status)
	lines = appendField(lines, "Tickets", memberTitles(tickets))

	metadata := map[string]interface{}{
		"status":       epic.Status,
		"ticket_count": len(tickets),
	}
	return o.finishDocument(ctx, ref, lines, &epic.ProjectID, metadata)
}

func (o *Orchestrator) sprintDocument(ctx context.Context, ref models.EntityRef) (*models.EmbeddingDocument, error) {
	sprint, err := o.entities.GetSprint(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}

	tickets, err := o.entities.ListTicketsBySprint(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}

	lines := []string{"Sprint: " + sprint.Name}
	lines = appendField(lines, "Goal", sprint.Goal)
	if sprint.StartDate != nil {
		lines = appendField(lines, "Starts", sprint.StartDate.Format(dateLayout))
	}
	if sprint.EndDate != nil {
		lines = appendField(lines, "Ends", sprint.EndDate.Format(dateLayout))
	}
	lines = appendField(lines, "Tickets", memberTitles(tickets))

	metadata := map[string]interface{}{
		"status":       sprint.Status,
		"ticket_count": len(tickets),
	}
	return o.finishDocument(ctx, ref, lines, &sprint.ProjectID, metadata)
}

func (o *Orchestrator) taskDocument(ctx context.Context, ref models.EntityRef) (*models.EmbeddingDocument, error) {
	task, err := o.entities.GetTask(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}

	status := "pending"
	if task.Done {
		status = "done"
	}
	lines := []string{"Task: " + task.Title, "Status: " + status}

	var projectID *int64
	ticket, err := o.entities.GetTicket(ctx, task.TicketID, ref.WorkspaceID)
	if err != nil && !entitystore.IsNotFound(err) {
		return nil, err
	}
	if err == nil {
		lines = appendField(lines, "Ticket", ticket.Title)
		projectID = &ticket.ProjectID
	}

	metadata := map[string]interface{}{
		"done":      task.Done,
		"ticket_id": task.TicketID,
	}
	return o.finishDocument(ctx, ref, lines, projectID, metadata)
}

func (o *Orchestrator) projectDocument(ctx context.Context, ref models.EntityRef) (*models.EmbeddingDocument, error) {
	project, err := o.entities.GetProject(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}

	tickets, err := o.entities.ListTicketsByProject(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}
	epics, err := o.entities.ListEpicsByProject(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}
	sprints, err := o.entities.ListSprintsByProject(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return nil, err
	}

	lines := []string{"Project: " + project.Name}
	lines = appendField(lines, "Description", project.Description)
	if len(tickets)+len(epics)+len(sprints) > 0 {
		lines = append(lines, fmt.Sprintf("Contains: %d tickets, %d epics, %d sprints",
			len(tickets), len(epics), len(sprints)))
	}

	metadata := map[string]interface{}{
		"ticket_count": len(tickets),
		"epic_count":   len(epics),
		"sprint_count": len(sprints),
	}
	return o.finishDocument(ctx, ref, lines, &project.ID, metadata)
}

// finishDocument appends the relation digest and assembles the document.
func (o *Orchestrator) finishDocument(ctx context.Context, ref models.EntityRef, lines []string, projectID *int64, metadata map[string]interface{}) (*models.EmbeddingDocument, error) {
	digest, err := o.tracker.GetDependencyContext(ctx, ref)
	if err != nil {
		return nil, err
	}
	if digest != "" {
		lines = append(lines, digest)
	}

	content := strings.Join(lines, "\n")
	return &models.EmbeddingDocument{
		SourceTable:  ref.SourceTable,
		SourceID:     ref.SourceID,
		WorkspaceID:  ref.WorkspaceID,
		ProjectID:    projectID,
		DocumentType: ref.SourceTable.DocumentType(),
		Content:      content,
		ContentHash:  contentHash(content),
		Metadata:     metadata,
	}, nil
}

func appendField(lines []string, label, value string) []string {
	if value == "" {
		return lines
	}
	return append(lines, label+": "+value)
}

func memberTitles(tickets []models.Ticket) string {
	if len(tickets) == 0 {
		return ""
	}
	titles := make([]string, 0, maxMemberTitles)
	for i, ticket := range tickets {
		if i == maxMemberTitles {
			break
		}
		titles = append(titles, ticket.Title)
	}
	out := strings.Join(titles, ", ")
	if extra := len(tickets) - maxMemberTitles; extra > 0 {
		out += fmt.Sprintf(" and %d more", extra)
	}
	return out
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
