package models

// TaskDependency links a task instance to one of its prerequisite instances
// within the same workflow. A task may hold several rows here, one per
// prerequisite; together they mirror the template graph restricted to the
// workflow's resolved closure.
type TaskDependency struct {
	WorkflowID         int64 `json:"workflow_id" db:"workflow_id"`                   // Foreign key to Workflow
	TaskID             int64 `json:"task_id" db:"task_id"`                           // Dependent instance
	PrerequisiteTaskID int64 `json:"prerequisite_task_id" db:"prerequisite_task_id"` // Instance that must complete first
	Position           int   `json:"position" db:"position"`                         // Display order index
}
