package dependency

import (
	"context"
	"fmt"
	"strings"

	"github.com/Leozerbib/gile-back-sub001/internal/entitystore"
	"github.com/Leozerbib/gile-back-sub001/internal/models"
)

const contextPrefix = "Dependency context: "

// GetDependencyContext renders a natural-language digest of an entity's
// relations, grouped by relation type with fixed verbs, for inclusion in
// its aggregated document text. An entity with nothing to say yields "".
func (t *Tracker) GetDependencyContext(ctx context.Context, ref models.EntityRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}

	switch ref.SourceTable {
	case models.TableTickets:
		return t.ticketContext(ctx, ref.SourceID, ref.WorkspaceID)
	case models.TableEpics:
		return t.epicContext(ctx, ref.SourceID, ref.WorkspaceID)
	case models.TableSprints:
		return t.sprintContext(ctx, ref.SourceID, ref.WorkspaceID)
	case models.TableTasks:
		return t.taskContext(ctx, ref.SourceID, ref.WorkspaceID)
	default:
		// Projects sit at the top of the containment tree; their documents
		// carry counts instead of a relation digest.
		return "", nil
	}
}

func (t *Tracker) ticketContext(ctx context.Context, id int64, workspaceID string) (string, error) {
	ticket, err := t.store.GetTicket(ctx, id, workspaceID)
	if err != nil {
		if entitystore.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}

	var sentences []string

	outgoing, err := t.store.ListTicketRelations(ctx, id, workspaceID)
	if err != nil {
		return "", err
	}
	var dependsOn, blocks, relatesTo []string
	for _, rel := range outgoing {
		title, err := t.ticketTitle(ctx, rel.DependsOnTicketID, workspaceID)
		if err != nil {
			return "", err
		}
		if title == "" {
			continue
		}
		quoted := fmt.Sprintf("%q", title)
		switch rel.Relation {
		case models.RelationDependsOn:
			dependsOn = append(dependsOn, quoted)
		case models.RelationBlocks:
			blocks = append(blocks, quoted)
		case models.RelationRelatesTo:
			relatesTo = append(relatesTo, quoted)
		}
	}
	if len(dependsOn) > 0 {
		sentences = append(sentences, "This ticket depends on "+strings.Join(dependsOn, ", ")+".")
	}
	if len(blocks) > 0 {
		sentences = append(sentences, "It blocks "+strings.Join(blocks, ", ")+".")
	}
	if len(relatesTo) > 0 {
		sentences = append(sentences, "It relates to "+strings.Join(relatesTo, ", ")+".")
	}

	if ticket.EpicID != nil {
		epic, err := t.store.GetEpic(ctx, *ticket.EpicID, workspaceID)
		if err != nil && !entitystore.IsNotFound(err) {
			return "", err
		}
		if err == nil {
			sentences = append(sentences, fmt.Sprintf("It belongs to epic %q.", epic.Name))
		}
	}

	if ticket.SprintID != nil {
		sprint, err := t.store.GetSprint(ctx, *ticket.SprintID, workspaceID)
		if err != nil && !entitystore.IsNotFound(err) {
			return "", err
		}
		if err == nil {
			sentences = append(sentences, fmt.Sprintf("It is scheduled in sprint %q.", sprint.Name))
		}
	}

	tasks, err := t.store.ListTasksByTicket(ctx, id, workspaceID)
	if err != nil {
		return "", err
	}
	if len(tasks) > 0 {
		titles := make([]string, len(tasks))
		for i, task := range tasks {
			titles[i] = fmt.Sprintf("%q", task.Title)
		}
		sentences = append(sentences, fmt.Sprintf("It has %d subtasks: %s.", len(tasks), strings.Join(titles, ", ")))
	}

	return joinSentences(sentences), nil
}

func (t *Tracker) epicContext(ctx context.Context, id int64, workspaceID string) (string, error) {
	epic, err := t.store.GetEpic(ctx, id, workspaceID)
	if err != nil {
		if entitystore.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}

	var sentences []string

	project, err := t.store.GetProject(ctx, epic.ProjectID, workspaceID)
	if err != nil && !entitystore.IsNotFound(err) {
		return "", err
	}
	if err == nil {
		sentences = append(sentences, fmt.Sprintf("This epic belongs to project %q.", project.Name))
	}

	tickets, err := t.store.ListTicketsByEpic(ctx, id, workspaceID)
	if err != nil {
		return "", err
	}
	if len(tickets) > 0 {
		sentences = append(sentences, fmt.Sprintf("It contains %d tickets.", len(tickets)))
	}

	return joinSentences(sentences), nil
}

func (t *Tracker) sprintContext(ctx context.Context, id int64, workspaceID string) (string, error) {
	sprint, err := t.store.GetSprint(ctx, id, workspaceID)
	if err != nil {
		if entitystore.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}

	var sentences []string

	project, err := t.store.GetProject(ctx, sprint.ProjectID, workspaceID)
	if err != nil && !entitystore.IsNotFound(err) {
		return "", err
	}
	if err == nil {
		sentences = append(sentences, fmt.Sprintf("This sprint belongs to project %q.", project.Name))
	}

	tickets, err := t.store.ListTicketsBySprint(ctx, id, workspaceID)
	if err != nil {
		return "", err
	}
	if len(tickets) > 0 {
		sentences = append(sentences, fmt.Sprintf("It schedules %d tickets.", len(tickets)))
	}

	return joinSentences(sentences), nil
}

func (t *Tracker) taskContext(ctx context.Context, id int64, workspaceID string) (string, error) {
	task, err := t.store.GetTask(ctx, id, workspaceID)
	if err != nil {
		if entitystore.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}

	title, err := t.ticketTitle(ctx, task.TicketID, workspaceID)
	if err != nil {
		return "", err
	}
	if title == "" {
		return "", nil
	}
	return contextPrefix + fmt.Sprintf("This task belongs to ticket %q.", title), nil
}

func joinSentences(sentences []string) string {
	if len(sentences) == 0 {
		return ""
	}
	return contextPrefix + strings.Join(sentences, " ")
}
