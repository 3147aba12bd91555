// Package dependency resolves the relationship graph around a platform
// entity: typed edges in both directions, the one-hop set of entities whose
// documents a change invalidates, and a natural-language digest of the
// relations for inclusion in aggregated text.
package dependency

import (
	"context"

	"github.com/Leozerbib/gile-back-sub001/internal/entitystore"
	"github.com/Leozerbib/gile-back-sub001/internal/models"
	"github.com/Leozerbib/gile-back-sub001/internal/observability"
)

// Tracker answers dependency questions using fixed table-specific lookups,
// not a generic graph walk.
type Tracker struct {
	store  entitystore.Reader
	logger observability.Logger
}

// NewTracker creates a tracker over the given entity store.
func NewTracker(store entitystore.Reader, logger observability.Logger) *Tracker {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Tracker{store: store, logger: logger.WithPrefix("dependency")}
}

func ticketRef(id int64, workspaceID string) models.EntityRef {
	return models.EntityRef{SourceTable: models.TableTickets, SourceID: id, WorkspaceID: workspaceID}
}

func epicRef(id int64, workspaceID string) models.EntityRef {
	return models.EntityRef{SourceTable: models.TableEpics, SourceID: id, WorkspaceID: workspaceID}
}

func sprintRef(id int64, workspaceID string) models.EntityRef {
	return models.EntityRef{SourceTable: models.TableSprints, SourceID: id, WorkspaceID: workspaceID}
}

func taskRef(id int64, workspaceID string) models.EntityRef {
	return models.EntityRef{SourceTable: models.TableTasks, SourceID: id, WorkspaceID: workspaceID}
}

func projectRef(id int64, workspaceID string) models.EntityRef {
	return models.EntityRef{SourceTable: models.TableProjects, SourceID: id, WorkspaceID: workspaceID}
}

// GetEntityDependencies returns the typed edges around an entity in both
// directions. Edge rows whose far end no longer resolves keep their edge
// with an empty title.
func (t *Tracker) GetEntityDependencies(ctx context.Context, ref models.EntityRef) ([]models.Dependency, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	switch ref.SourceTable {
	case models.TableTickets:
		return t.ticketDependencies(ctx, ref.SourceID, ref.WorkspaceID)
	case models.TableEpics:
		return t.epicDependencies(ctx, ref.SourceID, ref.WorkspaceID)
	case models.TableSprints:
		return t.sprintDependencies(ctx, ref.SourceID, ref.WorkspaceID)
	case models.TableTasks:
		return t.taskDependencies(ctx, ref.SourceID, ref.WorkspaceID)
	default:
		return t.projectDependencies(ctx, ref.SourceID, ref.WorkspaceID)
	}
}

func (t *Tracker) ticketDependencies(ctx context.Context, id int64, workspaceID string) ([]models.Dependency, error) {
	ticket, err := t.store.GetTicket(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}

	var deps []models.Dependency

	outgoing, err := t.store.ListTicketRelations(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, rel := range outgoing {
		title, err := t.ticketTitle(ctx, rel.DependsOnTicketID, workspaceID)
		if err != nil {
			return nil, err
		}
		deps = append(deps, models.Dependency{
			Ref:       ticketRef(rel.DependsOnTicketID, workspaceID),
			Relation:  rel.Relation,
			Direction: models.DirectionOutgoing,
			Title:     title,
		})
	}

	incoming, err := t.store.ListTicketDependents(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, rel := range incoming {
		title, err := t.ticketTitle(ctx, rel.TicketID, workspaceID)
		if err != nil {
			return nil, err
		}
		deps = append(deps, models.Dependency{
			Ref:       ticketRef(rel.TicketID, workspaceID),
			Relation:  rel.Relation,
			Direction: models.DirectionIncoming,
			Title:     title,
		})
	}

	if ticket.EpicID != nil {
		title := ""
		epic, err := t.store.GetEpic(ctx, *ticket.EpicID, workspaceID)
		if err != nil && !entitystore.IsNotFound(err) {
			return nil, err
		}
		if err == nil {
			title = epic.Name
		}
		deps = append(deps, models.Dependency{
			Ref:       epicRef(*ticket.EpicID, workspaceID),
			Relation:  models.RelationEpicTicket,
			Direction: models.DirectionIncoming,
			Title:     title,
		})
	}

	if ticket.SprintID != nil {
		title := ""
		sprint, err := t.store.GetSprint(ctx, *ticket.SprintID, workspaceID)
		if err != nil && !entitystore.IsNotFound(err) {
			return nil, err
		}
		if err == nil {
			title = sprint.Name
		}
		deps = append(deps, models.Dependency{
			Ref:       sprintRef(*ticket.SprintID, workspaceID),
			Relation:  models.RelationSprintTicket,
			Direction: models.DirectionIncoming,
			Title:     title,
		})
	}

	tasks, err := t.store.ListTasksByTicket(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		deps = append(deps, models.Dependency{
			Ref:       taskRef(task.ID, workspaceID),
			Relation:  models.RelationParentChild,
			Direction: models.DirectionOutgoing,
			Title:     task.Title,
		})
	}

	projectTitle := ""
	project, err := t.store.GetProject(ctx, ticket.ProjectID, workspaceID)
	if err != nil && !entitystore.IsNotFound(err) {
		return nil, err
	}
	if err == nil {
		projectTitle = project.Name
	}
	deps = append(deps, models.Dependency{
		Ref:       projectRef(ticket.ProjectID, workspaceID),
		Relation:  models.RelationParentChild,
		Direction: models.DirectionIncoming,
		Title:     projectTitle,
	})

	return deps, nil
}

func (t *Tracker) epicDependencies(ctx context.Context, id int64, workspaceID string) ([]models.Dependency, error) {
	epic, err := t.store.GetEpic(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}

	var deps []models.Dependency

	tickets, err := t.store.ListTicketsByEpic(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, ticket := range tickets {
		deps = append(deps, models.Dependency{
			Ref:       ticketRef(ticket.ID, workspaceID),
			Relation:  models.RelationEpicTicket,
			Direction: models.DirectionOutgoing,
			Title:     ticket.Title,
		})
	}

	deps = append(deps, t.projectEdge(ctx, epic.ProjectID, workspaceID))
	return deps, nil
}

func (t *Tracker) sprintDependencies(ctx context.Context, id int64, workspaceID string) ([]models.Dependency, error) {
	sprint, err := t.store.GetSprint(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}

	var deps []models.Dependency

	tickets, err := t.store.ListTicketsBySprint(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, ticket := range tickets {
		deps = append(deps, models.Dependency{
			Ref:       ticketRef(ticket.ID, workspaceID),
			Relation:  models.RelationSprintTicket,
			Direction: models.DirectionOutgoing,
			Title:     ticket.Title,
		})
	}

	deps = append(deps, t.projectEdge(ctx, sprint.ProjectID, workspaceID))
	return deps, nil
}

func (t *Tracker) taskDependencies(ctx context.Context, id int64, workspaceID string) ([]models.Dependency, error) {
	task, err := t.store.GetTask(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}

	title, err := t.ticketTitle(ctx, task.TicketID, workspaceID)
	if err != nil {
		return nil, err
	}
	return []models.Dependency{{
		Ref:       ticketRef(task.TicketID, workspaceID),
		Relation:  models.RelationParentChild,
		Direction: models.DirectionIncoming,
		Title:     title,
	}}, nil
}

func (t *Tracker) projectDependencies(ctx context.Context, id int64, workspaceID string) ([]models.Dependency, error) {
	if _, err := t.store.GetProject(ctx, id, workspaceID); err != nil {
		return nil, err
	}

	var deps []models.Dependency

	tickets, err := t.store.ListTicketsByProject(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, ticket := range tickets {
		deps = append(deps, models.Dependency{
			Ref:       ticketRef(ticket.ID, workspaceID),
			Relation:  models.RelationParentChild,
			Direction: models.DirectionOutgoing,
			Title:     ticket.Title,
		})
	}

	epics, err := t.store.ListEpicsByProject(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, epic := range epics {
		deps = append(deps, models.Dependency{
			Ref:       epicRef(epic.ID, workspaceID),
			Relation:  models.RelationParentChild,
			Direction: models.DirectionOutgoing,
			Title:     epic.Name,
		})
	}

	sprints, err := t.store.ListSprintsByProject(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, sprint := range sprints {
		deps = append(deps, models.Dependency{
			Ref:       sprintRef(sprint.ID, workspaceID),
			Relation:  models.RelationParentChild,
			Direction: models.DirectionOutgoing,
			Title:     sprint.Name,
		})
	}

	return deps, nil
}

// projectEdge builds the containment edge up to an entity's project.
func (t *Tracker) projectEdge(ctx context.Context, projectID int64, workspaceID string) models.Dependency {
	title := ""
	project, err := t.store.GetProject(ctx, projectID, workspaceID)
	if err == nil {
		title = project.Name
	} else if !entitystore.IsNotFound(err) {
		t.logger.Warn("failed to resolve project for containment edge", map[string]interface{}{
			"project_id":   projectID,
			"workspace_id": workspaceID,
			"error":        err.Error(),
		})
	}
	return models.Dependency{
		Ref:       projectRef(projectID, workspaceID),
		Relation:  models.RelationParentChild,
		Direction: models.DirectionIncoming,
		Title:     title,
	}
}

// ticketTitle resolves a related ticket's title. A missing row is not an
// error; edge rows can outlive their targets briefly.
func (t *Tracker) ticketTitle(ctx context.Context, id int64, workspaceID string) (string, error) {
	ticket, err := t.store.GetTicket(ctx, id, workspaceID)
	if err != nil {
		if entitystore.IsNotFound(err) {
			t.logger.Debug("related ticket no longer exists", map[string]interface{}{
				"ticket_id":    id,
				"workspace_id": workspaceID,
			})
			return "", nil
		}
		return "", err
	}
	return ticket.Title, nil
}

// refSet is an insertion-ordered set of entity refs.
type refSet struct {
	seen map[string]struct{}
	out  []models.EntityRef
}

func newRefSet() *refSet {
	return &refSet{seen: make(map[string]struct{})}
}

func (s *refSet) add(ref models.EntityRef) {
	key := ref.Key()
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.out = append(s.out, ref)
}

// GetAffectedEntities returns the de-duplicated one-hop set of entities
// whose stored documents a change to ref invalidates: the entity itself,
// everything whose aggregated text references it, and the targets of its
// own depends_on edges. The expansion is one hop per trigger; cascades do
// not propagate further.
func (t *Tracker) GetAffectedEntities(ctx context.Context, ref models.EntityRef) ([]models.EntityRef, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	set := newRefSet()
	set.add(ref)

	var err error
	switch ref.SourceTable {
	case models.TableTickets:
		err = t.collectTicketAffected(ctx, ref, set)
	case models.TableEpics:
		err = t.collectMemberTicketsAffected(ctx, t.store.ListTicketsByEpic, ref, set)
	case models.TableSprints:
		err = t.collectMemberTicketsAffected(ctx, t.store.ListTicketsBySprint, ref, set)
	case models.TableTasks:
		err = t.collectTaskAffected(ctx, ref, set)
	case models.TableProjects:
		// Project documents carry only their own fields and counts, so a
		// project change stays local and member changes never reach here.
	}
	if err != nil {
		return nil, err
	}

	t.logger.Debug("resolved affected entities", map[string]interface{}{
		"trigger":  ref.Key(),
		"affected": len(set.out),
	})
	return set.out, nil
}

func (t *Tracker) collectTicketAffected(ctx context.Context, ref models.EntityRef, set *refSet) error {
	workspaceID := ref.WorkspaceID

	// Edge and child rows stay queryable even when the ticket row itself is
	// already gone, which keeps removal cascades working.
	incoming, err := t.store.ListTicketDependents(ctx, ref.SourceID, workspaceID)
	if err != nil {
		return err
	}
	for _, rel := range incoming {
		set.add(ticketRef(rel.TicketID, workspaceID))
	}

	outgoing, err := t.store.ListTicketRelations(ctx, ref.SourceID, workspaceID)
	if err != nil {
		return err
	}
	for _, rel := range outgoing {
		if rel.Relation == models.RelationDependsOn {
			set.add(ticketRef(rel.DependsOnTicketID, workspaceID))
		}
	}

	tasks, err := t.store.ListTasksByTicket(ctx, ref.SourceID, workspaceID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		set.add(taskRef(task.ID, workspaceID))
	}

	ticket, err := t.store.GetTicket(ctx, ref.SourceID, workspaceID)
	if err != nil {
		if entitystore.IsNotFound(err) {
			t.logger.Debug("ticket row missing during cascade, continuing with edge-derived set", map[string]interface{}{
				"trigger": ref.Key(),
			})
			return nil
		}
		return err
	}
	if ticket.EpicID != nil {
		set.add(epicRef(*ticket.EpicID, workspaceID))
	}
	if ticket.SprintID != nil {
		set.add(sprintRef(*ticket.SprintID, workspaceID))
	}
	return nil
}

// collectMemberTicketsAffected covers containers whose documents list their
// member tickets: the members reference the container by name, so a
// container change refreshes them.
func (t *Tracker) collectMemberTicketsAffected(
	ctx context.Context,
	list func(ctx context.Context, id int64, workspaceID string) ([]models.Ticket, error),
	ref models.EntityRef,
	set *refSet,
) error {
	tickets, err := list(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		return err
	}
	for _, ticket := range tickets {
		set.add(ticketRef(ticket.ID, ref.WorkspaceID))
	}
	return nil
}

func (t *Tracker) collectTaskAffected(ctx context.Context, ref models.EntityRef, set *refSet) error {
	task, err := t.store.GetTask(ctx, ref.SourceID, ref.WorkspaceID)
	if err != nil {
		if entitystore.IsNotFound(err) {
			t.logger.Debug("task row missing during cascade", map[string]interface{}{
				"trigger": ref.Key(),
			})
			return nil
		}
		return err
	}
	set.add(ticketRef(task.TicketID, ref.WorkspaceID))
	return nil
}
