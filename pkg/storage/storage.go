package storage

import (
	"time"

	"github.com/pkg/errors"

	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint (duplicate edge, second workflow for the same event).
	ErrDuplicate = errors.New("duplicate")
)

// Store defines the persistence operations the workflow engine needs.
// Begin returns a transaction-scoped Store; services run every mutating
// operation through one and commit or roll back as a unit.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Template operations
	SaveTemplate(t models.TaskTemplate) (int64, error)
	GetTemplate(id int64) (models.TaskTemplate, error)
	ListTemplates() ([]models.TaskTemplate, error)
	UpdateTemplate(t models.TaskTemplate) error
	DeleteTemplate(id int64) error

	// Prerequisite-edge operations. LockTemplateGraph serializes edge
	// writers for the duration of the transaction so a cycle check and its
	// insert form one atomic unit.
	LockTemplateGraph() error
	ListPrerequisiteEdges() ([]models.PrerequisiteEdge, error)
	SavePrerequisiteEdge(e models.PrerequisiteEdge) error
	DeletePrerequisiteEdge(e models.PrerequisiteEdge) error
	GetPrerequisites(templateID int64) ([]models.TaskTemplate, error)
	GetDependents(templateID int64) ([]models.TaskTemplate, error)

	// Workflow operations. LockWorkflow takes a row lock so concurrent
	// completions within one workflow serialize.
	SaveWorkflow(w models.Workflow) (int64, error)
	GetWorkflowByEvent(eventID int64) (models.Workflow, error)
	DeleteWorkflowByEvent(eventID int64) error
	LockWorkflow(id int64) error

	// Task-instance operations
	SaveTask(t models.TaskInstance) (int64, error)
	GetTask(id int64) (models.TaskInstance, error)
	ListWorkflowTasks(workflowID int64) ([]models.TaskInstance, error)
	UpdateTaskStatus(id int64, status models.TaskStatus, startedAt, finishedAt *time.Time) error

	// Instance-dependency operations
	SaveTaskDependency(d models.TaskDependency) error
	ListWorkflowDependencies(workflowID int64) ([]models.TaskDependency, error)

	// Transition audit trail
	SaveTransition(l models.TransitionLog) (int64, error)
	ListTransitions(taskID int64) ([]models.TransitionLog, error)
}
