package models

// PrerequisiteEdge declares that one template requires another: TemplateID
// cannot begin until PrerequisiteID's task is completed. At most one edge per
// ordered pair; self-edges are rejected; the edge set over all templates must
// remain acyclic at all times.
type PrerequisiteEdge struct {
	TemplateID     int64 `json:"template_id" db:"template_id"`         // Dependent template
	PrerequisiteID int64 `json:"prerequisite_id" db:"prerequisite_id"` // Template it requires
}
