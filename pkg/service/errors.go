package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// Engine error taxonomy. Callers match with errors.Is; the HTTP layer maps
// these onto status codes.
var (
	// ErrTemplateNotFound is returned when an operation names a template id
	// that does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrSelfReference is returned when a template is offered as its own
	// prerequisite.
	ErrSelfReference = errors.New("template cannot be its own prerequisite")

	// ErrDuplicateEdge is returned when the ordered prerequisite pair
	// already exists.
	ErrDuplicateEdge = errors.New("prerequisite already exists")

	// ErrCycleDetected is returned when inserting a prerequisite edge would
	// close a directed cycle in the template graph.
	ErrCycleDetected = errors.New("prerequisite would create a cycle")

	// ErrInvalidTransition is returned for any task status change the state
	// machine does not permit.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrTaskNotFound is returned when an operation names a task instance
	// that does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrWorkflowNotFound is returned when no workflow exists for an event.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowExists is returned when an event already has a workflow.
	ErrWorkflowExists = errors.New("workflow already exists for event")

	// ErrWorkflowInstantiation marks any failure inside the atomic
	// instantiate step. Match with errors.Is; the concrete error is always
	// an *InstantiationError carrying the cause.
	ErrWorkflowInstantiation = errors.New("workflow instantiation failed")
)

// InstantiationError aggregates whatever failed while materializing a
// workflow. The whole workflow has been rolled back by the time the caller
// sees it.
type InstantiationError struct {
	EventID int64
	Cause   error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("workflow for event %d could not be created: %v", e.EventID, e.Cause)
}

func (e *InstantiationError) Unwrap() error { return e.Cause }

func (e *InstantiationError) Is(target error) bool { return target == ErrWorkflowInstantiation }
