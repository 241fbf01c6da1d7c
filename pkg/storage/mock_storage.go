package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
)

// mockState holds one consistent snapshot of the stored data.
type mockState struct {
	templates   map[int64]models.TaskTemplate
	edges       []models.PrerequisiteEdge
	workflows   map[int64]models.Workflow
	tasks       map[int64]models.TaskInstance
	deps        []models.TaskDependency
	transitions []models.TransitionLog

	nextTemplateID   int64
	nextWorkflowID   int64
	nextTaskID       int64
	nextTransitionID int64
}

func newMockState() *mockState {
	return &mockState{
		templates: make(map[int64]models.TaskTemplate),
		workflows: make(map[int64]models.Workflow),
		tasks:     make(map[int64]models.TaskInstance),
	}
}

func (s *mockState) clone() *mockState {
	c := newMockState()
	for id, t := range s.templates {
		c.templates[id] = t
	}
	for id, w := range s.workflows {
		c.workflows[id] = w
	}
	for id, t := range s.tasks {
		c.tasks[id] = t
	}
	c.edges = append([]models.PrerequisiteEdge(nil), s.edges...)
	c.deps = append([]models.TaskDependency(nil), s.deps...)
	c.transitions = append([]models.TransitionLog(nil), s.transitions...)
	c.nextTemplateID = s.nextTemplateID
	c.nextWorkflowID = s.nextWorkflowID
	c.nextTaskID = s.nextTaskID
	c.nextTransitionID = s.nextTransitionID
	return c
}

// MockStore implements Store with in-memory storage. Begin clones the current
// state; Commit publishes the clone back and Rollback discards it, so
// transactional semantics behave like the real store's.
type MockStore struct {
	mu     *sync.Mutex
	parent *MockStore // nil on the root store
	state  *mockState
	done   bool

	// FailSaveTaskAt makes the Nth SaveTask call (1-based, counted across
	// the store's lifetime) fail. Zero disables. Used by tests to force a
	// mid-instantiation failure.
	FailSaveTaskAt int
	taskSaves      *int
}

func NewMockStore() *MockStore {
	return &MockStore{
		mu:        &sync.Mutex{},
		state:     newMockState(),
		taskSaves: new(int),
	}
}

func (m *MockStore) Begin() (Store, error) {
	if m.parent != nil {
		return nil, errors.New("nested transactions not supported")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &MockStore{
		mu:             m.mu,
		parent:         m,
		state:          m.state.clone(),
		FailSaveTaskAt: m.FailSaveTaskAt,
		taskSaves:      m.taskSaves,
	}, nil
}

func (m *MockStore) Commit() error {
	if m.parent == nil {
		return errors.New("cannot commit: not a transaction")
	}
	if m.done {
		return errors.New("transaction already finished")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parent.state = m.state
	m.done = true
	return nil
}

func (m *MockStore) Rollback() error {
	if m.parent == nil {
		return errors.New("cannot rollback: not a transaction")
	}
	if m.done {
		return errors.New("transaction already finished")
	}
	m.done = true
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) SaveTemplate(t models.TaskTemplate) (int64, error) {
	m.state.nextTemplateID++
	t.ID = m.state.nextTemplateID
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	m.state.templates[t.ID] = t
	return t.ID, nil
}

func (m *MockStore) GetTemplate(id int64) (models.TaskTemplate, error) {
	t, ok := m.state.templates[id]
	if !ok {
		return models.TaskTemplate{}, ErrNotFound
	}
	return t, nil
}

func (m *MockStore) ListTemplates() ([]models.TaskTemplate, error) {
	out := make([]models.TaskTemplate, 0, len(m.state.templates))
	for _, t := range m.state.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) UpdateTemplate(t models.TaskTemplate) error {
	existing, ok := m.state.templates[t.ID]
	if !ok {
		return ErrNotFound
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()
	m.state.templates[t.ID] = t
	return nil
}

func (m *MockStore) DeleteTemplate(id int64) error {
	if _, ok := m.state.templates[id]; !ok {
		return ErrNotFound
	}
	delete(m.state.templates, id)
	// Edges cascade with the template.
	kept := m.state.edges[:0]
	for _, e := range m.state.edges {
		if e.TemplateID != id && e.PrerequisiteID != id {
			kept = append(kept, e)
		}
	}
	m.state.edges = kept
	return nil
}

func (m *MockStore) LockTemplateGraph() error {
	return nil
}

func (m *MockStore) ListPrerequisiteEdges() ([]models.PrerequisiteEdge, error) {
	return append([]models.PrerequisiteEdge(nil), m.state.edges...), nil
}

func (m *MockStore) SavePrerequisiteEdge(e models.PrerequisiteEdge) error {
	for _, existing := range m.state.edges {
		if existing == e {
			return ErrDuplicate
		}
	}
	m.state.edges = append(m.state.edges, e)
	return nil
}

func (m *MockStore) DeletePrerequisiteEdge(e models.PrerequisiteEdge) error {
	for i, existing := range m.state.edges {
		if existing == e {
			m.state.edges = append(m.state.edges[:i], m.state.edges[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MockStore) GetPrerequisites(templateID int64) ([]models.TaskTemplate, error) {
	var out []models.TaskTemplate
	for _, e := range m.state.edges {
		if e.TemplateID == templateID {
			if t, ok := m.state.templates[e.PrerequisiteID]; ok {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) GetDependents(templateID int64) ([]models.TaskTemplate, error) {
	var out []models.TaskTemplate
	for _, e := range m.state.edges {
		if e.PrerequisiteID == templateID {
			if t, ok := m.state.templates[e.TemplateID]; ok {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) SaveWorkflow(w models.Workflow) (int64, error) {
	for _, existing := range m.state.workflows {
		if existing.EventID == w.EventID {
			return 0, ErrDuplicate
		}
	}
	m.state.nextWorkflowID++
	w.ID = m.state.nextWorkflowID
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now
	w.Tasks = nil
	w.Dependencies = nil
	m.state.workflows[w.ID] = w
	return w.ID, nil
}

func (m *MockStore) GetWorkflowByEvent(eventID int64) (models.Workflow, error) {
	for _, w := range m.state.workflows {
		if w.EventID == eventID {
			return m.assembleWorkflow(w), nil
		}
	}
	return models.Workflow{}, ErrNotFound
}

func (m *MockStore) assembleWorkflow(w models.Workflow) models.Workflow {
	for _, t := range m.state.tasks {
		if t.WorkflowID == w.ID {
			w.Tasks = append(w.Tasks, t)
		}
	}
	sort.Slice(w.Tasks, func(i, j int) bool { return w.Tasks[i].ID < w.Tasks[j].ID })
	for _, d := range m.state.deps {
		if d.WorkflowID == w.ID {
			w.Dependencies = append(w.Dependencies, d)
		}
	}
	sort.Slice(w.Dependencies, func(i, j int) bool {
		if w.Dependencies[i].Position != w.Dependencies[j].Position {
			return w.Dependencies[i].Position < w.Dependencies[j].Position
		}
		return w.Dependencies[i].PrerequisiteTaskID < w.Dependencies[j].PrerequisiteTaskID
	})
	return w
}

func (m *MockStore) DeleteWorkflowByEvent(eventID int64) error {
	for id, w := range m.state.workflows {
		if w.EventID != eventID {
			continue
		}
		delete(m.state.workflows, id)
		for taskID, t := range m.state.tasks {
			if t.WorkflowID == id {
				delete(m.state.tasks, taskID)
			}
		}
		keptDeps := m.state.deps[:0]
		for _, d := range m.state.deps {
			if d.WorkflowID != id {
				keptDeps = append(keptDeps, d)
			}
		}
		m.state.deps = keptDeps
		keptLogs := m.state.transitions[:0]
		for _, l := range m.state.transitions {
			if l.WorkflowID != id {
				keptLogs = append(keptLogs, l)
			}
		}
		m.state.transitions = keptLogs
		return nil
	}
	return ErrNotFound
}

func (m *MockStore) LockWorkflow(id int64) error {
	if _, ok := m.state.workflows[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func (m *MockStore) SaveTask(t models.TaskInstance) (int64, error) {
	*m.taskSaves++
	if m.FailSaveTaskAt > 0 && *m.taskSaves == m.FailSaveTaskAt {
		return 0, errors.New("injected task save failure")
	}
	m.state.nextTaskID++
	t.ID = m.state.nextTaskID
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	m.state.tasks[t.ID] = t
	return t.ID, nil
}

func (m *MockStore) GetTask(id int64) (models.TaskInstance, error) {
	t, ok := m.state.tasks[id]
	if !ok {
		return models.TaskInstance{}, ErrNotFound
	}
	return t, nil
}

func (m *MockStore) ListWorkflowTasks(workflowID int64) ([]models.TaskInstance, error) {
	var out []models.TaskInstance
	for _, t := range m.state.tasks {
		if t.WorkflowID == workflowID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) UpdateTaskStatus(id int64, status models.TaskStatus, startedAt, finishedAt *time.Time) error {
	t, ok := m.state.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	if startedAt != nil {
		t.StartedAt = startedAt
	}
	if finishedAt != nil {
		t.FinishedAt = finishedAt
	}
	t.UpdatedAt = time.Now()
	m.state.tasks[id] = t
	return nil
}

func (m *MockStore) SaveTaskDependency(d models.TaskDependency) error {
	for _, existing := range m.state.deps {
		if existing.TaskID == d.TaskID && existing.PrerequisiteTaskID == d.PrerequisiteTaskID {
			return ErrDuplicate
		}
	}
	m.state.deps = append(m.state.deps, d)
	return nil
}

func (m *MockStore) ListWorkflowDependencies(workflowID int64) ([]models.TaskDependency, error) {
	var out []models.TaskDependency
	for _, d := range m.state.deps {
		if d.WorkflowID == workflowID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MockStore) SaveTransition(l models.TransitionLog) (int64, error) {
	m.state.nextTransitionID++
	l.ID = m.state.nextTransitionID
	if l.LoggedAt.IsZero() {
		l.LoggedAt = time.Now()
	}
	m.state.transitions = append(m.state.transitions, l)
	return l.ID, nil
}

func (m *MockStore) ListTransitions(taskID int64) ([]models.TransitionLog, error) {
	var out []models.TransitionLog
	for _, l := range m.state.transitions {
		if l.TaskID == taskID {
			out = append(out, l)
		}
	}
	return out, nil
}
