package service

import (
	"github.com/pkg/errors"

	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/storage"
)

// TemplateService is the authoritative, cycle-safe surface over task
// templates and their prerequisite edges. Every edge insertion runs its
// reachability check and the insert as one transaction under the template
// graph lock, so concurrent editors cannot sneak a cycle past each other.
type TemplateService struct {
	store  storage.Store
	logger Logger
}

func NewTemplateService(store storage.Store, logger Logger) *TemplateService {
	return &TemplateService{
		store:  store,
		logger: logger,
	}
}

func (s *TemplateService) CreateTemplate(t models.TaskTemplate) (created models.TaskTemplate, err error) {
	if t.Title == "" {
		return models.TaskTemplate{}, errors.New("template title cannot be empty")
	}
	if t.DueBasis == "" {
		t.DueBasis = models.EventStartBasis
	}
	if !t.DueBasis.Valid() {
		return models.TaskTemplate{}, errors.Errorf("invalid due basis %q; must be %q or %q",
			t.DueBasis, models.EventStartBasis, models.EventEndBasis)
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return models.TaskTemplate{}, err
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

	id, err := txStore.SaveTemplate(t)
	if err != nil {
		return models.TaskTemplate{}, err
	}
	created, err = txStore.GetTemplate(id)
	if err != nil {
		return models.TaskTemplate{}, err
	}
	s.logger.Infof("Created template '%s' with ID %d for department %d", created.Title, created.ID, created.DepartmentID)
	return created, nil
}

func (s *TemplateService) GetTemplate(id int64) (models.TaskTemplate, error) {
	t, err := s.store.GetTemplate(id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.TaskTemplate{}, errors.Wrapf(ErrTemplateNotFound, "template %d", id)
	}
	if err != nil {
		return models.TaskTemplate{}, err
	}
	return t, nil
}

func (s *TemplateService) ListTemplates() ([]models.TaskTemplate, error) {
	return s.store.ListTemplates()
}

func (s *TemplateService) UpdateTemplate(t models.TaskTemplate) (err error) {
	if t.Title == "" {
		return errors.New("template title cannot be empty")
	}
	if !t.DueBasis.Valid() {
		return errors.Errorf("invalid due basis %q; must be %q or %q",
			t.DueBasis, models.EventStartBasis, models.EventEndBasis)
	}

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

	if err = txStore.UpdateTemplate(t); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errors.Wrapf(ErrTemplateNotFound, "template %d", t.ID)
		}
		return err
	}
	s.logger.Infof("Updated template %d", t.ID)
	return nil
}

// DeleteTemplate removes a template and, by cascade, every prerequisite edge
// touching it. Task instances already materialized from it carry copies and
// are unaffected.
func (s *TemplateService) DeleteTemplate(id int64) (err error) {
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

	if err = txStore.DeleteTemplate(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errors.Wrapf(ErrTemplateNotFound, "template %d", id)
		}
		return err
	}
	s.logger.Infof("Deleted template %d", id)
	return nil
}

// AddPrerequisite inserts the edge (templateID requires prerequisiteID). The
// reachability check and the insert run inside one transaction holding the
// template graph lock; a failed validation leaves the graph unchanged.
func (s *TemplateService) AddPrerequisite(templateID, prerequisiteID int64) (err error) {
	if templateID == prerequisiteID {
		return errors.Wrapf(ErrSelfReference, "template %d", templateID)
	}

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

	// Single writer for the edge namespace: two concurrent inserts that each
	// pass the cycle check against the pre-insert snapshot could otherwise
	// together close a cycle.
	if err = txStore.LockTemplateGraph(); err != nil {
		return err
	}

	for _, id := range []int64{templateID, prerequisiteID} {
		if _, err = txStore.GetTemplate(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return errors.Wrapf(ErrTemplateNotFound, "template %d", id)
			}
			return err
		}
	}

	g, _, err := loadGraph(txStore)
	if err != nil {
		return err
	}
	if g.HasEdge(templateID, prerequisiteID) {
		return errors.Wrapf(ErrDuplicateEdge, "template %d already requires %d", templateID, prerequisiteID)
	}
	if g.WouldCreateCycle(templateID, prerequisiteID) {
		return errors.Wrapf(ErrCycleDetected, "template %d is required by %d", templateID, prerequisiteID)
	}

	if err = txStore.SavePrerequisiteEdge(models.PrerequisiteEdge{
		TemplateID:     templateID,
		PrerequisiteID: prerequisiteID,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return errors.Wrapf(ErrDuplicateEdge, "template %d already requires %d", templateID, prerequisiteID)
		}
		return err
	}
	s.logger.Infof("Added prerequisite %d to template %d", prerequisiteID, templateID)
	return nil
}

// RemovePrerequisite deletes the edge if present. Removal cannot introduce a
// cycle, so it is idempotent and unchecked.
func (s *TemplateService) RemovePrerequisite(templateID, prerequisiteID int64) (err error) {
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

	if err = txStore.DeletePrerequisiteEdge(models.PrerequisiteEdge{
		TemplateID:     templateID,
		PrerequisiteID: prerequisiteID,
	}); err != nil {
		return err
	}
	s.logger.Infof("Removed prerequisite %d from template %d", prerequisiteID, templateID)
	return nil
}

// GetPrerequisites returns the templates directly required by templateID.
func (s *TemplateService) GetPrerequisites(templateID int64) ([]models.TaskTemplate, error) {
	if _, err := s.GetTemplate(templateID); err != nil {
		return nil, err
	}
	return s.store.GetPrerequisites(templateID)
}

// GetDependents returns the templates that directly require templateID.
func (s *TemplateService) GetDependents(templateID int64) ([]models.TaskTemplate, error) {
	if _, err := s.GetTemplate(templateID); err != nil {
		return nil, err
	}
	return s.store.GetDependents(templateID)
}

// AvailablePrerequisites returns the templates that may legally be added as
// direct prerequisites of templateID: the template itself, its existing
// direct prerequisites and any candidate that would close a cycle are
// excluded. The department UI renders this as the addable candidate list.
func (s *TemplateService) AvailablePrerequisites(templateID int64) ([]models.TaskTemplate, error) {
	g, byID, err := loadGraph(s.store)
	if err != nil {
		return nil, err
	}
	if !g.Has(templateID) {
		return nil, errors.Wrapf(ErrTemplateNotFound, "template %d", templateID)
	}
	ids := g.AvailablePrerequisites(templateID)
	out := make([]models.TaskTemplate, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

// DefaultSelection returns the ids of templates flagged default-selected, in
// ascending order. Event creation prefills its template selection with these.
func (s *TemplateService) DefaultSelection() ([]int64, error) {
	templates, err := s.store.ListTemplates()
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, t := range templates {
		if t.DefaultSelected {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}
