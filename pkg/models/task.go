package models

import "time"

type TaskStatus string

const (
	WaitingTaskStatus    TaskStatus = "waiting"     // Blocked on incomplete prerequisites
	PendingTaskStatus    TaskStatus = "pending"     // Ready to be started
	InProgressTaskStatus TaskStatus = "in_progress" // Started by a user
	CompletedTaskStatus  TaskStatus = "completed"   // Terminal
	CancelledTaskStatus  TaskStatus = "cancelled"   // Terminal
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case WaitingTaskStatus, PendingTaskStatus, InProgressTaskStatus,
		CompletedTaskStatus, CancelledTaskStatus:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == CompletedTaskStatus || s == CancelledTaskStatus
}

// TaskInstance is a concrete task created for one event, derived from exactly
// one template. Instances are created atomically at workflow instantiation and
// afterwards mutate only through status transitions.
type TaskInstance struct {
	ID           int64      `json:"id" db:"id"`                             // Unique identifier (PostgreSQL auto-increment)
	WorkflowID   int64      `json:"workflow_id" db:"workflow_id"`           // Foreign key to Workflow
	TemplateID   int64      `json:"template_id" db:"template_id"`           // Template this instance was derived from
	DepartmentID int64      `json:"department_id" db:"department_id"`       // Copied from the template
	Title        string     `json:"title" db:"title"`                       // Copied from the template
	Status       TaskStatus `json:"status" db:"status"`                     // "waiting", "pending", "in_progress", "completed", "cancelled"
	DueDate      time.Time  `json:"due_date" db:"due_date"`                 // Resolved against the event's dates
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`   // Set on pending -> in_progress
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"` // Set on completion or cancellation
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
