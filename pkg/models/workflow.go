package models

import "time"

// Workflow groups the task instances materialized for one event. Exactly one
// workflow exists per event; deleting it (when the event is removed) cascades
// to its tasks and dependency edges.
type Workflow struct {
	ID        int64     `json:"id" db:"id"`             // Unique identifier (PostgreSQL auto-increment)
	EventID   int64     `json:"event_id" db:"event_id"` // Owning event (unique)
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Tasks        []TaskInstance   `json:"tasks,omitempty"`        // Instances in creation (dependency) order
	Dependencies []TaskDependency `json:"dependencies,omitempty"` // Instance-level edges
}
