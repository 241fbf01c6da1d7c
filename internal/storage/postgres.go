package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/storage"
)

// templateGraphLockKey is the advisory-lock key serializing prerequisite-edge
// writers. One key for the whole graph: edge writes are rare and the cycle
// check must see every edge anyway.
const templateGraphLockKey = 420001

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// mapError translates driver-level failures into the store's sentinel errors.
func mapError(err error) error {
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return storage.ErrDuplicate
	}
	return err
}

// SaveTemplate creates a template and returns its ID
func (s *PostgresStore) SaveTemplate(t models.TaskTemplate) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO task_templates (department_id, title, default_selected, due_basis, due_offset_days)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		t.DepartmentID, t.Title, t.DefaultSelected, t.DueBasis, t.DueOffsetDays).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save template: %w", mapError(err))
	}
	return id, nil
}

func (s *PostgresStore) GetTemplate(id int64) (models.TaskTemplate, error) {
	var t models.TaskTemplate
	err := s.db.Get(&t, "SELECT * FROM task_templates WHERE id = $1", id)
	if err != nil {
		return models.TaskTemplate{}, mapError(err)
	}
	return t, nil
}

func (s *PostgresStore) ListTemplates() ([]models.TaskTemplate, error) {
	templates := []models.TaskTemplate{}
	err := s.db.Select(&templates, "SELECT * FROM task_templates ORDER BY id")
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *PostgresStore) UpdateTemplate(t models.TaskTemplate) error {
	res, err := s.db.Exec(`
		UPDATE task_templates
		SET department_id = $1, title = $2, default_selected = $3, due_basis = $4,
		    due_offset_days = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $6`,
		t.DepartmentID, t.Title, t.DefaultSelected, t.DueBasis, t.DueOffsetDays, t.ID)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteTemplate(id int64) error {
	res, err := s.db.Exec("DELETE FROM task_templates WHERE id = $1", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LockTemplateGraph takes the transaction-scoped advisory lock that makes
// edge mutation effectively single-writer. Released automatically on commit
// or rollback.
func (s *PostgresStore) LockTemplateGraph() error {
	if _, ok := s.db.(*sqlx.Tx); !ok {
		return fmt.Errorf("cannot lock template graph: not a transaction")
	}
	_, err := s.db.Exec("SELECT pg_advisory_xact_lock($1)", templateGraphLockKey)
	return err
}

func (s *PostgresStore) ListPrerequisiteEdges() ([]models.PrerequisiteEdge, error) {
	edges := []models.PrerequisiteEdge{}
	err := s.db.Select(&edges, "SELECT template_id, prerequisite_id FROM template_prerequisites ORDER BY template_id, prerequisite_id")
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (s *PostgresStore) SavePrerequisiteEdge(e models.PrerequisiteEdge) error {
	_, err := s.db.Exec("INSERT INTO template_prerequisites (template_id, prerequisite_id) VALUES ($1, $2)",
		e.TemplateID, e.PrerequisiteID)
	return mapError(err)
}

func (s *PostgresStore) DeletePrerequisiteEdge(e models.PrerequisiteEdge) error {
	_, err := s.db.Exec("DELETE FROM template_prerequisites WHERE template_id = $1 AND prerequisite_id = $2",
		e.TemplateID, e.PrerequisiteID)
	return err
}

func (s *PostgresStore) GetPrerequisites(templateID int64) ([]models.TaskTemplate, error) {
	templates := []models.TaskTemplate{}
	err := s.db.Select(&templates, `
		SELECT t.* FROM task_templates t
		JOIN template_prerequisites p ON p.prerequisite_id = t.id
		WHERE p.template_id = $1
		ORDER BY t.id`, templateID)
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *PostgresStore) GetDependents(templateID int64) ([]models.TaskTemplate, error) {
	templates := []models.TaskTemplate{}
	err := s.db.Select(&templates, `
		SELECT t.* FROM task_templates t
		JOIN template_prerequisites p ON p.template_id = t.id
		WHERE p.prerequisite_id = $1
		ORDER BY t.id`, templateID)
	if err != nil {
		return nil, err
	}
	return templates, nil
}

// SaveWorkflow creates a workflow row and returns its ID (no tasks/deps)
func (s *PostgresStore) SaveWorkflow(w models.Workflow) (int64, error) {
	var id int64
	err := s.db.QueryRowx("INSERT INTO workflows (event_id) VALUES ($1) RETURNING id", w.EventID).Scan(&id)
	if err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

// GetWorkflowByEvent retrieves the event's workflow with its tasks (in
// creation order) and instance-level dependency edges.
func (s *PostgresStore) GetWorkflowByEvent(eventID int64) (models.Workflow, error) {
	var wf models.Workflow
	err := s.db.Get(&wf, "SELECT id, event_id, created_at, updated_at FROM workflows WHERE event_id = $1", eventID)
	if err != nil {
		return models.Workflow{}, mapError(err)
	}

	err = s.db.Select(&wf.Tasks, "SELECT * FROM workflow_tasks WHERE workflow_id = $1 ORDER BY id", wf.ID)
	if err != nil {
		return models.Workflow{}, fmt.Errorf("get workflow for event %d: %w", eventID, err)
	}

	err = s.db.Select(&wf.Dependencies, `
		SELECT workflow_id, task_id, prerequisite_task_id, position
		FROM task_dependencies WHERE workflow_id = $1
		ORDER BY position, prerequisite_task_id`, wf.ID)
	if err != nil {
		return models.Workflow{}, fmt.Errorf("get workflow for event %d: %w", eventID, err)
	}
	return wf, nil
}

func (s *PostgresStore) DeleteWorkflowByEvent(eventID int64) error {
	res, err := s.db.Exec("DELETE FROM workflows WHERE event_id = $1", eventID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// LockWorkflow takes a row lock on the workflow, serializing status
// transitions (and their cascades) within it.
func (s *PostgresStore) LockWorkflow(id int64) error {
	if _, ok := s.db.(*sqlx.Tx); !ok {
		return fmt.Errorf("cannot lock workflow: not a transaction")
	}
	var locked int64
	err := s.db.Get(&locked, "SELECT id FROM workflows WHERE id = $1 FOR UPDATE", id)
	return mapError(err)
}

// SaveTask creates a task instance and returns its ID
func (s *PostgresStore) SaveTask(t models.TaskInstance) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO workflow_tasks (workflow_id, template_id, department_id, title, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		t.WorkflowID, t.TemplateID, t.DepartmentID, t.Title, t.Status, t.DueDate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save task: %w", mapError(err))
	}
	return id, nil
}

func (s *PostgresStore) GetTask(id int64) (models.TaskInstance, error) {
	var task models.TaskInstance
	err := s.db.Get(&task, "SELECT * FROM workflow_tasks WHERE id = $1", id)
	if err != nil {
		return models.TaskInstance{}, mapError(err)
	}
	return task, nil
}

func (s *PostgresStore) ListWorkflowTasks(workflowID int64) ([]models.TaskInstance, error) {
	tasks := []models.TaskInstance{}
	err := s.db.Select(&tasks, "SELECT * FROM workflow_tasks WHERE workflow_id = $1 ORDER BY id", workflowID)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateTaskStatus updates a task's status; started_at/finished_at change
// only when the caller provides them.
func (s *PostgresStore) UpdateTaskStatus(id int64, status models.TaskStatus, startedAt, finishedAt *time.Time) error {
	res, err := s.db.Exec(`
		UPDATE workflow_tasks
		SET status = $1,
		    started_at = COALESCE($2, started_at),
		    finished_at = COALESCE($3, finished_at),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $4`,
		status, startedAt, finishedAt, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) SaveTaskDependency(d models.TaskDependency) error {
	_, err := s.db.Exec(`
		INSERT INTO task_dependencies (workflow_id, task_id, prerequisite_task_id, position)
		VALUES ($1, $2, $3, $4)`,
		d.WorkflowID, d.TaskID, d.PrerequisiteTaskID, d.Position)
	return mapError(err)
}

func (s *PostgresStore) ListWorkflowDependencies(workflowID int64) ([]models.TaskDependency, error) {
	deps := []models.TaskDependency{}
	err := s.db.Select(&deps, `
		SELECT workflow_id, task_id, prerequisite_task_id, position
		FROM task_dependencies WHERE workflow_id = $1
		ORDER BY position, prerequisite_task_id`, workflowID)
	if err != nil {
		return nil, err
	}
	return deps, nil
}

func (s *PostgresStore) SaveTransition(l models.TransitionLog) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO task_transitions (workflow_id, task_id, from_status, to_status, automatic, message)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		l.WorkflowID, l.TaskID, l.FromStatus, l.ToStatus, l.Automatic, l.Message).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save transition: %w", mapError(err))
	}
	return id, nil
}

func (s *PostgresStore) ListTransitions(taskID int64) ([]models.TransitionLog, error) {
	logs := []models.TransitionLog{}
	err := s.db.Select(&logs, "SELECT * FROM task_transitions WHERE task_id = $1 ORDER BY id", taskID)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
