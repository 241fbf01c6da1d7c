package models

import "time"

// TransitionLog records one task status transition for auditing. Rows are
// written in the same transaction as the transition itself, so the trail never
// disagrees with task state.
type TransitionLog struct {
	ID         int64      `json:"id" db:"id"`                     // Auto-incremented log ID
	WorkflowID int64      `json:"workflow_id" db:"workflow_id"`   // Parent workflow
	TaskID     int64      `json:"task_id" db:"task_id"`           // Task being logged
	FromStatus TaskStatus `json:"from_status" db:"from_status"`   // Status before
	ToStatus   TaskStatus `json:"to_status" db:"to_status"`       // Status after
	Automatic  bool       `json:"automatic" db:"automatic"`       // True for cascade unlocks
	Message    string     `json:"message,omitempty" db:"message"` // Details (e.g., which completion unlocked it)
	LoggedAt   time.Time  `json:"logged_at" db:"logged_at"`       // Timestamp of log entry
}
