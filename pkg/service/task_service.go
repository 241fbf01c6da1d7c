package service

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/storage"
)

// TaskService is the state machine governing task-instance lifecycle.
//
// Transitions:
//
//	waiting     -> pending      automatic only, when every prerequisite completes
//	pending     -> in_progress  manual
//	in_progress -> completed    manual, terminal, cascades unlocks
//	waiting, pending, in_progress -> cancelled  manual, terminal
//
// Everything else is rejected with ErrInvalidTransition. A completion and any
// cascade it causes commit as one transaction; notification delivery happens
// after commit and never rolls anything back.
type TaskService struct {
	store    storage.Store
	logger   Logger
	notifier Notifier
}

func NewTaskService(store storage.Store, logger Logger, notifier Notifier) *TaskService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &TaskService{
		store:    store,
		logger:   logger,
		notifier: notifier,
	}
}

// allowedManualTransition reports whether a caller may move a task from
// `from` to `to`. waiting -> pending is absent on purpose: only the cascade
// may assert that every prerequisite has completed.
func allowedManualTransition(from, to models.TaskStatus) bool {
	switch to {
	case models.InProgressTaskStatus:
		return from == models.PendingTaskStatus
	case models.CompletedTaskStatus:
		return from == models.InProgressTaskStatus
	case models.CancelledTaskStatus:
		return from == models.WaitingTaskStatus ||
			from == models.PendingTaskStatus ||
			from == models.InProgressTaskStatus
	}
	return false
}

// StartTask moves a pending task to in_progress.
func (ts *TaskService) StartTask(taskID int64) error {
	return ts.TransitionTask(taskID, models.InProgressTaskStatus)
}

// CompleteTask moves an in_progress task to completed and cascades unlocks to
// its dependents.
func (ts *TaskService) CompleteTask(taskID int64) error {
	return ts.TransitionTask(taskID, models.CompletedTaskStatus)
}

// CancelTask moves a waiting, pending or in_progress task to cancelled.
// Cancelled prerequisites never satisfy dependents; those stay waiting until
// cancelled themselves.
func (ts *TaskService) CancelTask(taskID int64) error {
	return ts.TransitionTask(taskID, models.CancelledTaskStatus)
}

// TransitionTask is the generic manual entrypoint. Invalid requests are
// rejected synchronously with ErrInvalidTransition and never retried.
func (ts *TaskService) TransitionTask(taskID int64, to models.TaskStatus) error {
	if !to.Valid() {
		return errors.Wrapf(ErrInvalidTransition, "unknown status %q", to)
	}
	task, unlocked, err := ts.apply(taskID, to)
	if err != nil {
		return err
	}

	// Post-commit, best-effort: the committed state change is the source of
	// truth and a delivery failure must not undo it.
	if to == models.CompletedTaskStatus {
		if notifyErr := ts.notifier.TaskCompleted(task); notifyErr != nil {
			ts.logger.Errorf("Failed to notify completion of task %d: %v", task.ID, notifyErr)
		}
		for _, u := range unlocked {
			if notifyErr := ts.notifier.TaskUnlocked(u); notifyErr != nil {
				ts.logger.Errorf("Failed to notify unlock of task %d: %v", u.ID, notifyErr)
			}
		}
	}
	return nil
}

// apply validates and commits one manual transition, plus the unlock cascade
// when the transition is a completion.
func (ts *TaskService) apply(taskID int64, to models.TaskStatus) (task models.TaskInstance, unlocked []models.TaskInstance, err error) {
	txStore, err := ts.store.Begin()
	if err != nil {
		return models.TaskInstance{}, nil, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				ts.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			ts.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	task, err = txStore.GetTask(taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.TaskInstance{}, nil, errors.Wrapf(ErrTaskNotFound, "task %d", taskID)
		}
		return models.TaskInstance{}, nil, err
	}

	// Serialize transitions within the workflow, then re-read: two sibling
	// completions must each observe the other's committed status or the
	// cascade could miss a newly satisfied dependent.
	if err = txStore.LockWorkflow(task.WorkflowID); err != nil {
		return models.TaskInstance{}, nil, err
	}
	task, err = txStore.GetTask(taskID)
	if err != nil {
		return models.TaskInstance{}, nil, err
	}

	if !allowedManualTransition(task.Status, to) {
		return models.TaskInstance{}, nil, errors.Wrapf(ErrInvalidTransition, "task %d: %s -> %s", taskID, task.Status, to)
	}

	from := task.Status
	now := time.Now()
	var startedAt, finishedAt *time.Time
	switch to {
	case models.InProgressTaskStatus:
		startedAt = &now
	case models.CompletedTaskStatus, models.CancelledTaskStatus:
		finishedAt = &now
	}
	if err = txStore.UpdateTaskStatus(taskID, to, startedAt, finishedAt); err != nil {
		return models.TaskInstance{}, nil, err
	}
	if _, err = txStore.SaveTransition(models.TransitionLog{
		WorkflowID: task.WorkflowID,
		TaskID:     taskID,
		FromStatus: from,
		ToStatus:   to,
	}); err != nil {
		return models.TaskInstance{}, nil, err
	}
	task.Status = to
	task.StartedAt = coalesce(task.StartedAt, startedAt)
	task.FinishedAt = coalesce(task.FinishedAt, finishedAt)

	if to == models.CompletedTaskStatus {
		unlocked, err = ts.cascade(txStore, task)
		if err != nil {
			return models.TaskInstance{}, nil, err
		}
	}
	ts.logger.Infof("Task %d transitioned %s -> %s", taskID, from, to)
	return task, unlocked, nil
}

func coalesce(current, updated *time.Time) *time.Time {
	if updated != nil {
		return updated
	}
	return current
}

// cascade computes the unlock frontier as a pure function over the
// workflow's current instances and dependency edges: every waiting task
// whose prerequisite instances are all completed moves to pending. The
// frontier is recomputed until it stops growing, so chains satisfied within
// the same pass unlock together.
func (ts *TaskService) cascade(txStore storage.Store, completed models.TaskInstance) ([]models.TaskInstance, error) {
	tasks, err := txStore.ListWorkflowTasks(completed.WorkflowID)
	if err != nil {
		return nil, err
	}
	deps, err := txStore.ListWorkflowDependencies(completed.WorkflowID)
	if err != nil {
		return nil, err
	}

	status := make(map[int64]models.TaskStatus, len(tasks))
	for _, t := range tasks {
		status[t.ID] = t.Status
	}
	prereqs := make(map[int64][]int64, len(deps))
	for _, d := range deps {
		prereqs[d.TaskID] = append(prereqs[d.TaskID], d.PrerequisiteTaskID)
	}

	var unlocked []models.TaskInstance
	for changed := true; changed; {
		changed = false
		for _, t := range tasks {
			if status[t.ID] != models.WaitingTaskStatus {
				continue
			}
			satisfied := true
			for _, p := range prereqs[t.ID] {
				if status[p] != models.CompletedTaskStatus {
					satisfied = false
					break
				}
			}
			if !satisfied {
				continue
			}
			status[t.ID] = models.PendingTaskStatus
			changed = true

			if err := txStore.UpdateTaskStatus(t.ID, models.PendingTaskStatus, nil, nil); err != nil {
				return nil, err
			}
			if _, err := txStore.SaveTransition(models.TransitionLog{
				WorkflowID: t.WorkflowID,
				TaskID:     t.ID,
				FromStatus: models.WaitingTaskStatus,
				ToStatus:   models.PendingTaskStatus,
				Automatic:  true,
				Message:    fmt.Sprintf("unlocked by completion of task %d", completed.ID),
			}); err != nil {
				return nil, err
			}
			t.Status = models.PendingTaskStatus
			unlocked = append(unlocked, t)
			ts.logger.Infof("Task %d unlocked by completion of task %d", t.ID, completed.ID)
		}
	}
	return unlocked, nil
}

// GetTask returns one task instance.
func (ts *TaskService) GetTask(taskID int64) (models.TaskInstance, error) {
	task, err := ts.store.GetTask(taskID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.TaskInstance{}, errors.Wrapf(ErrTaskNotFound, "task %d", taskID)
	}
	if err != nil {
		return models.TaskInstance{}, err
	}
	return task, nil
}

// ListTransitions returns the task's transition audit trail in order.
func (ts *TaskService) ListTransitions(taskID int64) ([]models.TransitionLog, error) {
	if _, err := ts.GetTask(taskID); err != nil {
		return nil, err
	}
	return ts.store.ListTransitions(taskID)
}
