package models

import "time"

// DueBasis anchors a template's due date to one end of the event window.
type DueBasis string

const (
	EventStartBasis DueBasis = "event_start"
	EventEndBasis   DueBasis = "event_end"
)

// Valid reports whether b is a known due-date basis.
func (b DueBasis) Valid() bool {
	return b == EventStartBasis || b == EventEndBasis
}

// TaskTemplate is a department-owned, reusable task definition. Templates are
// long-lived and independent of any event; workflows copy their fields at
// instantiation time.
type TaskTemplate struct {
	ID              int64     `json:"id" db:"id"`                             // Unique identifier (PostgreSQL auto-increment)
	DepartmentID    int64     `json:"department_id" db:"department_id"`       // Owning department
	Title           string    `json:"title" db:"title"`                       // Descriptive name (e.g., "Book venue security")
	DefaultSelected bool      `json:"default_selected" db:"default_selected"` // Pre-checked during event creation
	DueBasis        DueBasis  `json:"due_basis" db:"due_basis"`               // "event_start" or "event_end"
	DueOffsetDays   int       `json:"due_offset_days" db:"due_offset_days"`   // Signed day offset from the anchor
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// DueDateFor resolves the template's due date against an event's dates.
func (t TaskTemplate) DueDateFor(eventStart, eventEnd time.Time) time.Time {
	anchor := eventStart
	if t.DueBasis == EventEndBasis {
		anchor = eventEnd
	}
	return anchor.AddDate(0, 0, t.DueOffsetDays)
}
