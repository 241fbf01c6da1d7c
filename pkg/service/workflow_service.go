package service

import (
	"time"

	"github.com/pkg/errors"

	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/graph"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/storage"
)

// WorkflowService resolves template selections into their transitive
// prerequisite closure and materializes the closure into per-event workflows.
// Instantiation is all-or-nothing: a failure anywhere rolls back the whole
// workflow.
type WorkflowService struct {
	store  storage.Store
	logger Logger
}

func NewWorkflowService(store storage.Store, logger Logger) *WorkflowService {
	return &WorkflowService{
		store:  store,
		logger: logger,
	}
}

// ResolveClosure returns the exact set of templates a workflow for the given
// selection must contain, in dependency order: every prerequisite precedes
// every template that requires it, ties broken by ascending id. The same code
// path runs inside InstantiateWorkflow; this entrypoint exists for previews.
func (s *WorkflowService) ResolveClosure(selected []int64) ([]int64, error) {
	g, _, err := loadGraph(s.store)
	if err != nil {
		return nil, err
	}
	order, err := g.Closure(selected)
	if errors.Is(err, graph.ErrUnknownTemplate) {
		return nil, errors.Wrap(ErrTemplateNotFound, err.Error())
	}
	return order, err
}

// InstantiateWorkflow materializes the closure of the selected templates into
// a workflow for one event, inside a single transaction: the workflow row,
// one task instance per closure member (due date resolved against the event's
// own dates, initial status delegated to the status engine) and one
// dependency row per direct template prerequisite, mirroring the template
// graph restricted to the closure. Any failure rolls the whole workflow back
// and surfaces as an *InstantiationError.
func (s *WorkflowService) InstantiateWorkflow(eventID int64, eventStart, eventEnd time.Time, selected []int64) (wf models.Workflow, err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return models.Workflow{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if _, err = txStore.GetWorkflowByEvent(eventID); err == nil {
		return models.Workflow{}, errors.Wrapf(ErrWorkflowExists, "event %d", eventID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.Workflow{}, err
	}

	g, byID, err := loadGraph(txStore)
	if err != nil {
		return models.Workflow{}, err
	}
	order, err := g.Closure(selected)
	if err != nil {
		if errors.Is(err, graph.ErrUnknownTemplate) {
			err = errors.Wrap(ErrTemplateNotFound, err.Error())
		}
		return models.Workflow{}, err
	}

	workflowID, err := txStore.SaveWorkflow(models.Workflow{EventID: eventID})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return models.Workflow{}, errors.Wrapf(ErrWorkflowExists, "event %d", eventID)
		}
		return models.Workflow{}, &InstantiationError{EventID: eventID, Cause: err}
	}

	// Creation in topological order guarantees every prerequisite instance
	// exists before the instances that depend on it.
	instances := make(map[int64]models.TaskInstance, len(order))
	for i, templateID := range order {
		tmpl := byID[templateID]
		prereqTemplates := g.Prerequisites(templateID)
		prereqInstances := make([]models.TaskInstance, 0, len(prereqTemplates))
		for _, p := range prereqTemplates {
			prereqInstances = append(prereqInstances, instances[p])
		}

		task := models.TaskInstance{
			WorkflowID:   workflowID,
			TemplateID:   tmpl.ID,
			DepartmentID: tmpl.DepartmentID,
			Title:        tmpl.Title,
			Status:       InitialStatus(prereqInstances),
			DueDate:      tmpl.DueDateFor(eventStart, eventEnd),
		}
		task.ID, err = txStore.SaveTask(task)
		if err != nil {
			return models.Workflow{}, &InstantiationError{EventID: eventID, Cause: err}
		}
		instances[templateID] = task

		for _, p := range prereqTemplates {
			if err = txStore.SaveTaskDependency(models.TaskDependency{
				WorkflowID:         workflowID,
				TaskID:             task.ID,
				PrerequisiteTaskID: instances[p].ID,
				Position:           i,
			}); err != nil {
				return models.Workflow{}, &InstantiationError{EventID: eventID, Cause: err}
			}
		}
	}

	wf, err = txStore.GetWorkflowByEvent(eventID)
	if err != nil {
		return models.Workflow{}, &InstantiationError{EventID: eventID, Cause: err}
	}
	s.logger.Infof("Instantiated workflow %d for event %d with %d tasks", wf.ID, eventID, len(wf.Tasks))
	return wf, nil
}

// GetWorkflow returns the event's workflow with its full task list and
// instance-level dependency edges.
func (s *WorkflowService) GetWorkflow(eventID int64) (models.Workflow, error) {
	wf, err := s.store.GetWorkflowByEvent(eventID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Workflow{}, errors.Wrapf(ErrWorkflowNotFound, "event %d", eventID)
	}
	if err != nil {
		return models.Workflow{}, err
	}
	return wf, nil
}

// DeleteWorkflow removes the event's workflow and, by cascade, its tasks,
// dependency edges and transition logs. Called when the owning event is
// removed.
func (s *WorkflowService) DeleteWorkflow(eventID int64) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.DeleteWorkflowByEvent(eventID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errors.Wrapf(ErrWorkflowNotFound, "event %d", eventID)
		}
		return err
	}
	s.logger.Infof("Deleted workflow for event %d", eventID)
	return nil
}
