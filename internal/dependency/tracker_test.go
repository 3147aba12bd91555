package dependency

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leozerbib/gile-back-sub001/internal/entitystore"
	"github.com/Leozerbib/gile-back-sub001/internal/models"
)

const ws = "ws_1"

// fakeStore is an in-memory entitystore.Reader with the same not-found and
// ordering behavior as the real store.
type fakeStore struct {
	tickets   map[int64]models.Ticket
	epics     map[int64]models.Epic
	sprints   map[int64]models.Sprint
	tasks     map[int64]models.Task
	projects  map[int64]models.Project
	relations []models.TicketRelation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tickets:  make(map[int64]models.Ticket),
		epics:    make(map[int64]models.Epic),
		sprints:  make(map[int64]models.Sprint),
		tasks:    make(map[int64]models.Task),
		projects: make(map[int64]models.Project),
	}
}

func (f *fakeStore) GetTicket(_ context.Context, id int64, workspaceID string) (*models.Ticket, error) {
	ticket, ok := f.tickets[id]
	if !ok || ticket.WorkspaceID != workspaceID {
		return nil, &entitystore.NotFoundError{Entity: "ticket", ID: id}
	}
	return &ticket, nil
}

func (f *fakeStore) GetEpic(_ context.Context, id int64, workspaceID string) (*models.Epic, error) {
	epic, ok := f.epics[id]
	if !ok || epic.WorkspaceID != workspaceID {
		return nil, &entitystore.NotFoundError{Entity: "epic", ID: id}
	}
	return &epic, nil
}

func (f *fakeStore) GetSprint(_ context.Context, id int64, workspaceID string) (*models.Sprint, error) {
	sprint, ok := f.sprints[id]
	if !ok || sprint.WorkspaceID != workspaceID {
		return nil, &entitystore.NotFoundError{Entity: "sprint", ID: id}
	}
	return &sprint, nil
}

func (f *fakeStore) GetTask(_ context.Context, id int64, workspaceID string) (*models.Task, error) {
	task, ok := f.tasks[id]
	if !ok || task.WorkspaceID != workspaceID {
		return nil, &entitystore.NotFoundError{Entity: "task", ID: id}
	}
	return &task, nil
}

func (f *fakeStore) GetProject(_ context.Context, id int64, workspaceID string) (*models.Project, error) {
	project, ok := f.projects[id]
	if !ok || project.WorkspaceID != workspaceID {
		return nil, &entitystore.NotFoundError{Entity: "project", ID: id}
	}
	return &project, nil
}

func (f *fakeStore) ListTicketsByEpic(_ context.Context, epicID int64, workspaceID string) ([]models.Ticket, error) {
	return f.filterTickets(workspaceID, func(t models.Ticket) bool {
		return t.EpicID != nil && *t.EpicID == epicID
	}), nil
}

func (f *fakeStore) ListTicketsBySprint(_ context.Context, sprintID int64, workspaceID string) ([]models.Ticket, error) {
	return f.filterTickets(workspaceID, func(t models.Ticket) bool {
		return t.SprintID != nil && *t.SprintID == sprintID
	}), nil
}

func (f *fakeStore) ListTicketsByProject(_ context.Context, projectID int64, workspaceID string) ([]models.Ticket, error) {
	return f.filterTickets(workspaceID, func(t models.Ticket) bool {
		return t.ProjectID == projectID
	}), nil
}

func (f *fakeStore) filterTickets(workspaceID string, keep func(models.Ticket) bool) []models.Ticket {
	var out []models.Ticket
	for _, ticket := range f.tickets {
		if ticket.WorkspaceID == workspaceID && keep(ticket) {
			out = append(out, ticket)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) ListEpicsByProject(_ context.Context, projectID int64, workspaceID string) ([]models.Epic, error) {
	var out []models.Epic
	for _, epic := range f.epics {
		if epic.WorkspaceID == workspaceID && epic.ProjectID == projectID {
			out = append(out, epic)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListSprintsByProject(_ context.Context, projectID int64, workspaceID string) ([]models.Sprint, error) {
	var out []models.Sprint
	for _, sprint := range f.sprints {
		if sprint.WorkspaceID == workspaceID && sprint.ProjectID == projectID {
			out = append(out, sprint)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListTasksByTicket(_ context.Context, ticketID int64, workspaceID string) ([]models.Task, error) {
	var out []models.Task
	for _, task := range f.tasks {
		if task.WorkspaceID == workspaceID && task.TicketID == ticketID {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListTicketRelations(_ context.Context, ticketID int64, workspaceID string) ([]models.TicketRelation, error) {
	var out []models.TicketRelation
	for _, rel := range f.relations {
		if rel.WorkspaceID == workspaceID && rel.TicketID == ticketID {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTicketDependents(_ context.Context, ticketID int64, workspaceID string) ([]models.TicketRelation, error) {
	var out []models.TicketRelation
	for _, rel := range f.relations {
		if rel.WorkspaceID == workspaceID && rel.DependsOnTicketID == ticketID {
			out = append(out, rel)
		}
	}
	return out, nil
}

// newAuthStore builds the shared fixture: ticket 1 ("Fix login redirect")
// in epic 11 and sprint 4, depending on tickets 2 and 5, blocking ticket 6,
// related from ticket 9, with subtasks 21 and 22, all in project 3.
func newAuthStore() *fakeStore {
	s := newFakeStore()
	epicID, sprintID := int64(11), int64(4)

	s.projects[3] = models.Project{ID: 3, WorkspaceID: ws, Name: "Platform"}
	s.epics[11] = models.Epic{ID: 11, WorkspaceID: ws, ProjectID: 3, Name: "Auth revamp"}
	s.sprints[4] = models.Sprint{ID: 4, WorkspaceID: ws, ProjectID: 3, Name: "Sprint 12"}
	s.tickets[1] = models.Ticket{ID: 1, WorkspaceID: ws, ProjectID: 3, EpicID: &epicID, SprintID: &sprintID, Title: "Fix login redirect"}
	s.tickets[2] = models.Ticket{ID: 2, WorkspaceID: ws, ProjectID: 3, Title: "Payment API"}
	s.tickets[5] = models.Ticket{ID: 5, WorkspaceID: ws, ProjectID: 3, Title: "User Service"}
	s.tickets[6] = models.Ticket{ID: 6, WorkspaceID: ws, ProjectID: 3, Title: "Checkout flow"}
	s.tickets[9] = models.Ticket{ID: 9, WorkspaceID: ws, ProjectID: 3, Title: "Search rework"}
	s.relations = []models.TicketRelation{
		{ID: 1, WorkspaceID: ws, TicketID: 1, DependsOnTicketID: 2, Relation: models.RelationDependsOn},
		{ID: 2, WorkspaceID: ws, TicketID: 1, DependsOnTicketID: 5, Relation: models.RelationDependsOn},
		{ID: 3, WorkspaceID: ws, TicketID: 1, DependsOnTicketID: 6, Relation: models.RelationBlocks},
		{ID: 4, WorkspaceID: ws, TicketID: 9, DependsOnTicketID: 1, Relation: models.RelationRelatesTo},
	}
	s.tasks[21] = models.Task{ID: 21, WorkspaceID: ws, TicketID: 1, Title: "Write tests"}
	s.tasks[22] = models.Task{ID: 22, WorkspaceID: ws, TicketID: 1, Title: "Update docs"}
	return s
}

func TestGetEntityDependenciesTicket(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)

	deps, err := tracker.GetEntityDependencies(context.Background(), ticketRef(1, ws))
	require.NoError(t, err)

	expected := []models.Dependency{
		{Ref: ticketRef(2, ws), Relation: models.RelationDependsOn, Direction: models.DirectionOutgoing, Title: "Payment API"},
		{Ref: ticketRef(5, ws), Relation: models.RelationDependsOn, Direction: models.DirectionOutgoing, Title: "User Service"},
		{Ref: ticketRef(6, ws), Relation: models.RelationBlocks, Direction: models.DirectionOutgoing, Title: "Checkout flow"},
		{Ref: ticketRef(9, ws), Relation: models.RelationRelatesTo, Direction: models.DirectionIncoming, Title: "Search rework"},
		{Ref: epicRef(11, ws), Relation: models.RelationEpicTicket, Direction: models.DirectionIncoming, Title: "Auth revamp"},
		{Ref: sprintRef(4, ws), Relation: models.RelationSprintTicket, Direction: models.DirectionIncoming, Title: "Sprint 12"},
		{Ref: taskRef(21, ws), Relation: models.RelationParentChild, Direction: models.DirectionOutgoing, Title: "Write tests"},
		{Ref: taskRef(22, ws), Relation: models.RelationParentChild, Direction: models.DirectionOutgoing, Title: "Update docs"},
		{Ref: projectRef(3, ws), Relation: models.RelationParentChild, Direction: models.DirectionIncoming, Title: "Platform"},
	}
	assert.ElementsMatch(t, expected, deps)
}

func TestGetEntityDependenciesMissingTicket(t *testing.T) {
	tracker := NewTracker(newFakeStore(), nil)

	_, err := tracker.GetEntityDependencies(context.Background(), ticketRef(404, ws))
	require.Error(t, err)
	assert.True(t, entitystore.IsNotFound(err))
}

func TestGetEntityDependenciesKeepsDanglingEdge(t *testing.T) {
	store := newFakeStore()
	store.projects[3] = models.Project{ID: 3, WorkspaceID: ws, Name: "Platform"}
	store.tickets[1] = models.Ticket{ID: 1, WorkspaceID: ws, ProjectID: 3, Title: "Fix login redirect"}
	store.relations = []models.TicketRelation{
		{ID: 1, WorkspaceID: ws, TicketID: 1, DependsOnTicketID: 99, Relation: models.RelationDependsOn},
	}
	tracker := NewTracker(store, nil)

	deps, err := tracker.GetEntityDependencies(context.Background(), ticketRef(1, ws))
	require.NoError(t, err)

	var edge *models.Dependency
	for i := range deps {
		if deps[i].Ref == ticketRef(99, ws) {
			edge = &deps[i]
		}
	}
	require.NotNil(t, edge, "dangling edge should still be reported")
	assert.Empty(t, edge.Title)
}

func TestGetEntityDependenciesEpic(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)

	deps, err := tracker.GetEntityDependencies(context.Background(), epicRef(11, ws))
	require.NoError(t, err)

	expected := []models.Dependency{
		{Ref: ticketRef(1, ws), Relation: models.RelationEpicTicket, Direction: models.DirectionOutgoing, Title: "Fix login redirect"},
		{Ref: projectRef(3, ws), Relation: models.RelationParentChild, Direction: models.DirectionIncoming, Title: "Platform"},
	}
	assert.ElementsMatch(t, expected, deps)
}

func TestGetEntityDependenciesProject(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)

	deps, err := tracker.GetEntityDependencies(context.Background(), projectRef(3, ws))
	require.NoError(t, err)

	// 5 tickets, 1 epic, 1 sprint, all containment edges.
	assert.Len(t, deps, 7)
	for _, dep := range deps {
		assert.Equal(t, models.RelationParentChild, dep.Relation)
		assert.Equal(t, models.DirectionOutgoing, dep.Direction)
	}
}

func TestGetAffectedEntitiesTicket(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)
	trigger := ticketRef(1, ws)

	affected, err := tracker.GetAffectedEntities(context.Background(), trigger)
	require.NoError(t, err)

	assert.Equal(t, trigger, affected[0], "trigger itself comes first")
	assert.ElementsMatch(t, []models.EntityRef{
		ticketRef(1, ws),  // the trigger
		ticketRef(9, ws),  // references ticket 1 via an incoming edge
		ticketRef(2, ws),  // depends_on target
		ticketRef(5, ws),  // depends_on target
		taskRef(21, ws),  // subtasks mention the parent title
		taskRef(22, ws),
		epicRef(11, ws),  // epic lists member tickets
		sprintRef(4, ws), // sprint lists member tickets
	}, affected)
}

func TestGetAffectedEntitiesCascadeExample(t *testing.T) {
	// T1 depends on T2 and both sit in epic E1; a change to T2 must refresh
	// T2 itself, T1, and E1.
	store := newFakeStore()
	epicID := int64(100)
	store.epics[100] = models.Epic{ID: 100, WorkspaceID: ws, ProjectID: 3, Name: "E1"}
	store.tickets[1] = models.Ticket{ID: 1, WorkspaceID: ws, ProjectID: 3, EpicID: &epicID, Title: "T1"}
	store.tickets[2] = models.Ticket{ID: 2, WorkspaceID: ws, ProjectID: 3, EpicID: &epicID, Title: "T2"}
	store.relations = []models.TicketRelation{
		{ID: 1, WorkspaceID: ws, TicketID: 1, DependsOnTicketID: 2, Relation: models.RelationDependsOn},
	}
	tracker := NewTracker(store, nil)

	affected, err := tracker.GetAffectedEntities(context.Background(), ticketRef(2, ws))
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.EntityRef{
		ticketRef(2, ws),
		ticketRef(1, ws),
		epicRef(100, ws),
	}, affected)

	// The outgoing direction reaches the same trio from T1.
	affected, err = tracker.GetAffectedEntities(context.Background(), ticketRef(1, ws))
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.EntityRef{
		ticketRef(1, ws),
		ticketRef(2, ws),
		epicRef(100, ws),
	}, affected)
}

func TestGetAffectedEntitiesMissingRootKeepsEdgeNeighbors(t *testing.T) {
	store := newFakeStore()
	store.tickets[9] = models.Ticket{ID: 9, WorkspaceID: ws, ProjectID: 3, Title: "Search rework"}
	store.relations = []models.TicketRelation{
		{ID: 1, WorkspaceID: ws, TicketID: 9, DependsOnTicketID: 42, Relation: models.RelationDependsOn},
	}
	store.tasks[31] = models.Task{ID: 31, WorkspaceID: ws, TicketID: 42, Title: "Leftover subtask"}
	tracker := NewTracker(store, nil)

	affected, err := tracker.GetAffectedEntities(context.Background(), ticketRef(42, ws))
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.EntityRef{
		ticketRef(42, ws),
		ticketRef(9, ws),
		taskRef(31, ws),
	}, affected)
}

func TestGetAffectedEntitiesSprint(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)

	affected, err := tracker.GetAffectedEntities(context.Background(), sprintRef(4, ws))
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.EntityRef{
		sprintRef(4, ws),
		ticketRef(1, ws),
	}, affected)
}

func TestGetAffectedEntitiesTask(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)

	affected, err := tracker.GetAffectedEntities(context.Background(), taskRef(21, ws))
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.EntityRef{
		taskRef(21, ws),
		ticketRef(1, ws),
	}, affected)
}

func TestGetAffectedEntitiesProjectStaysLocal(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)
	trigger := projectRef(3, ws)

	affected, err := tracker.GetAffectedEntities(context.Background(), trigger)
	require.NoError(t, err)
	assert.Equal(t, []models.EntityRef{trigger}, affected)
}

func TestGetAffectedEntitiesDeduplicates(t *testing.T) {
	store := newFakeStore()
	store.tickets[1] = models.Ticket{ID: 1, WorkspaceID: ws, ProjectID: 3, Title: "T1"}
	store.tickets[2] = models.Ticket{ID: 2, WorkspaceID: ws, ProjectID: 3, Title: "T2"}
	store.relations = []models.TicketRelation{
		{ID: 1, WorkspaceID: ws, TicketID: 1, DependsOnTicketID: 2, Relation: models.RelationDependsOn},
		{ID: 2, WorkspaceID: ws, TicketID: 2, DependsOnTicketID: 1, Relation: models.RelationDependsOn},
	}
	tracker := NewTracker(store, nil)

	affected, err := tracker.GetAffectedEntities(context.Background(), ticketRef(1, ws))
	require.NoError(t, err)
	// Ticket 2 shows up both as a dependent and as a depends_on target but
	// is reported once.
	assert.ElementsMatch(t, []models.EntityRef{
		ticketRef(1, ws),
		ticketRef(2, ws),
	}, affected)
}

func TestGetAffectedEntitiesRejectsInvalidRef(t *testing.T) {
	tracker := NewTracker(newFakeStore(), nil)

	_, err := tracker.GetAffectedEntities(context.Background(), models.EntityRef{SourceTable: "users", SourceID: 1, WorkspaceID: ws})
	assert.Error(t, err)
}

func TestGetDependencyContextTicket(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)

	digest, err := tracker.GetDependencyContext(context.Background(), ticketRef(1, ws))
	require.NoError(t, err)
	assert.Equal(t,
		`Dependency context: This ticket depends on "Payment API", "User Service". `+
			`It blocks "Checkout flow". `+
			`It belongs to epic "Auth revamp". `+
			`It is scheduled in sprint "Sprint 12". `+
			`It has 2 subtasks: "Write tests", "Update docs".`,
		digest)
}

func TestGetDependencyContextOmitsEmptyGroups(t *testing.T) {
	store := newFakeStore()
	store.tickets[1] = models.Ticket{ID: 1, WorkspaceID: ws, ProjectID: 3, Title: "Fix login redirect"}
	store.tickets[6] = models.Ticket{ID: 6, WorkspaceID: ws, ProjectID: 3, Title: "Checkout flow"}
	store.relations = []models.TicketRelation{
		{ID: 1, WorkspaceID: ws, TicketID: 1, DependsOnTicketID: 6, Relation: models.RelationBlocks},
	}
	tracker := NewTracker(store, nil)

	digest, err := tracker.GetDependencyContext(context.Background(), ticketRef(1, ws))
	require.NoError(t, err)
	assert.Equal(t, `Dependency context: It blocks "Checkout flow".`, digest)
}

func TestGetDependencyContextNoRelations(t *testing.T) {
	store := newFakeStore()
	store.tickets[1] = models.Ticket{ID: 1, WorkspaceID: ws, ProjectID: 3, Title: "Fix login redirect"}
	tracker := NewTracker(store, nil)

	digest, err := tracker.GetDependencyContext(context.Background(), ticketRef(1, ws))
	require.NoError(t, err)
	assert.Empty(t, digest)
}

func TestGetDependencyContextSkipsMissingTargets(t *testing.T) {
	store := newFakeStore()
	store.tickets[1] = models.Ticket{ID: 1, WorkspaceID: ws, ProjectID: 3, Title: "Fix login redirect"}
	store.relations = []models.TicketRelation{
		{ID: 1, WorkspaceID: ws, TicketID: 1, DependsOnTicketID: 99, Relation: models.RelationDependsOn},
	}
	tracker := NewTracker(store, nil)

	digest, err := tracker.GetDependencyContext(context.Background(), ticketRef(1, ws))
	require.NoError(t, err)
	assert.Empty(t, digest)
}

func TestGetDependencyContextEpic(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)

	digest, err := tracker.GetDependencyContext(context.Background(), epicRef(11, ws))
	require.NoError(t, err)
	assert.Equal(t, `Dependency context: This epic belongs to project "Platform". It contains 1 tickets.`, digest)
}

func TestGetDependencyContextTask(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)

	digest, err := tracker.GetDependencyContext(context.Background(), taskRef(21, ws))
	require.NoError(t, err)
	assert.Equal(t, `Dependency context: This task belongs to ticket "Fix login redirect".`, digest)
}

func TestGetDependencyContextProjectIsEmpty(t *testing.T) {
	tracker := NewTracker(newAuthStore(), nil)

	digest, err := tracker.GetDependencyContext(context.Background(), projectRef(3, ws))
	require.NoError(t, err)
	assert.Empty(t, digest)
}

func TestGetDependencyContextMissingEntity(t *testing.T) {
	tracker := NewTracker(newFakeStore(), nil)

	digest, err := tracker.GetDependencyContext(context.Background(), ticketRef(404, ws))
	require.NoError(t, err)
	assert.Empty(t, digest)
}
