package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_storage "github.com/Amine-Ecssr/event-management-system-sub004/internal/storage"
	"github.com/Amine-Ecssr/event-management-system-sub004/internal/testutil"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/storage"
)

func TestPostgresStore(t *testing.T) {
	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	// Helper to create a transactional store; rolled back on cleanup so
	// subtests stay isolated.
	newTxStore := func(t *testing.T) storage.Store {
		store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		require.NoError(t, err)
		txStore, err := store.Begin()
		require.NoError(t, err)
		t.Cleanup(func() { _ = txStore.Rollback() })
		return txStore
	}

	saveTemplate := func(t *testing.T, store storage.Store, title string) int64 {
		id, err := store.SaveTemplate(models.TaskTemplate{
			DepartmentID: 1,
			Title:        title,
			DueBasis:     models.EventStartBasis,
		})
		require.NoError(t, err)
		return id
	}

	t.Run("TemplateCRUD", func(t *testing.T) {
		store := newTxStore(t)

		id := saveTemplate(t, store, "Book venue")
		assert.Greater(t, id, int64(0))

		tmpl, err := store.GetTemplate(id)
		require.NoError(t, err)
		assert.Equal(t, "Book venue", tmpl.Title)
		assert.Equal(t, models.EventStartBasis, tmpl.DueBasis)
		assert.False(t, tmpl.DefaultSelected)

		tmpl.Title = "Book venue and security"
		tmpl.DefaultSelected = true
		tmpl.DueBasis = models.EventEndBasis
		tmpl.DueOffsetDays = -3
		require.NoError(t, store.UpdateTemplate(tmpl))

		updated, err := store.GetTemplate(id)
		require.NoError(t, err)
		assert.Equal(t, "Book venue and security", updated.Title)
		assert.True(t, updated.DefaultSelected)
		assert.Equal(t, -3, updated.DueOffsetDays)

		templates, err := store.ListTemplates()
		require.NoError(t, err)
		assert.Len(t, templates, 1)

		require.NoError(t, store.DeleteTemplate(id))
		_, err = store.GetTemplate(id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, store.DeleteTemplate(id), storage.ErrNotFound)
	})

	t.Run("PrerequisiteEdges", func(t *testing.T) {
		store := newTxStore(t)
		a := saveTemplate(t, store, "A")
		b := saveTemplate(t, store, "B")

		require.NoError(t, store.LockTemplateGraph())
		require.NoError(t, store.SavePrerequisiteEdge(models.PrerequisiteEdge{TemplateID: a, PrerequisiteID: b}))

		// Duplicate pair maps the unique violation to ErrDuplicate.
		err := store.SavePrerequisiteEdge(models.PrerequisiteEdge{TemplateID: a, PrerequisiteID: b})
		assert.ErrorIs(t, err, storage.ErrDuplicate)

		edges, err := store.ListPrerequisiteEdges()
		require.NoError(t, err)
		assert.Len(t, edges, 1)

		prereqs, err := store.GetPrerequisites(a)
		require.NoError(t, err)
		require.Len(t, prereqs, 1)
		assert.Equal(t, b, prereqs[0].ID)

		dependents, err := store.GetDependents(b)
		require.NoError(t, err)
		require.Len(t, dependents, 1)
		assert.Equal(t, a, dependents[0].ID)

		require.NoError(t, store.DeletePrerequisiteEdge(models.PrerequisiteEdge{TemplateID: a, PrerequisiteID: b}))
		edges, err = store.ListPrerequisiteEdges()
		require.NoError(t, err)
		assert.Empty(t, edges)
	})

	t.Run("EdgesCascadeWithTemplate", func(t *testing.T) {
		store := newTxStore(t)
		a := saveTemplate(t, store, "A")
		b := saveTemplate(t, store, "B")
		require.NoError(t, store.SavePrerequisiteEdge(models.PrerequisiteEdge{TemplateID: a, PrerequisiteID: b}))

		require.NoError(t, store.DeleteTemplate(b))
		edges, err := store.ListPrerequisiteEdges()
		require.NoError(t, err)
		assert.Empty(t, edges)
	})

	t.Run("WorkflowAssembledRead", func(t *testing.T) {
		store := newTxStore(t)
		tmplA := saveTemplate(t, store, "A")
		tmplB := saveTemplate(t, store, "B")

		wfID, err := store.SaveWorkflow(models.Workflow{EventID: 500})
		require.NoError(t, err)

		due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
		taskA, err := store.SaveTask(models.TaskInstance{
			WorkflowID: wfID, TemplateID: tmplA, DepartmentID: 1,
			Title: "A", Status: models.PendingTaskStatus, DueDate: due,
		})
		require.NoError(t, err)
		taskB, err := store.SaveTask(models.TaskInstance{
			WorkflowID: wfID, TemplateID: tmplB, DepartmentID: 2,
			Title: "B", Status: models.WaitingTaskStatus, DueDate: due,
		})
		require.NoError(t, err)
		require.NoError(t, store.SaveTaskDependency(models.TaskDependency{
			WorkflowID: wfID, TaskID: taskB, PrerequisiteTaskID: taskA, Position: 1,
		}))

		wf, err := store.GetWorkflowByEvent(500)
		require.NoError(t, err)
		assert.Equal(t, wfID, wf.ID)
		require.Len(t, wf.Tasks, 2)
		assert.Equal(t, taskA, wf.Tasks[0].ID)
		assert.Equal(t, models.WaitingTaskStatus, wf.Tasks[1].Status)
		require.Len(t, wf.Dependencies, 1)
		assert.Equal(t, taskA, wf.Dependencies[0].PrerequisiteTaskID)

		// One workflow per event.
		_, err = store.SaveWorkflow(models.Workflow{EventID: 500})
		assert.ErrorIs(t, err, storage.ErrDuplicate)
	})

	t.Run("TaskStatusUpdate", func(t *testing.T) {
		store := newTxStore(t)
		tmpl := saveTemplate(t, store, "A")
		wfID, err := store.SaveWorkflow(models.Workflow{EventID: 501})
		require.NoError(t, err)
		taskID, err := store.SaveTask(models.TaskInstance{
			WorkflowID: wfID, TemplateID: tmpl, DepartmentID: 1,
			Title: "A", Status: models.PendingTaskStatus,
			DueDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		started := time.Now().UTC()
		require.NoError(t, store.UpdateTaskStatus(taskID, models.InProgressTaskStatus, &started, nil))

		task, err := store.GetTask(taskID)
		require.NoError(t, err)
		assert.Equal(t, models.InProgressTaskStatus, task.Status)
		require.NotNil(t, task.StartedAt)
		assert.Nil(t, task.FinishedAt)

		finished := time.Now().UTC()
		require.NoError(t, store.UpdateTaskStatus(taskID, models.CompletedTaskStatus, nil, &finished))
		task, err = store.GetTask(taskID)
		require.NoError(t, err)
		assert.Equal(t, models.CompletedTaskStatus, task.Status)
		assert.NotNil(t, task.StartedAt, "COALESCE keeps the earlier started_at")
		assert.NotNil(t, task.FinishedAt)

		assert.ErrorIs(t, store.UpdateTaskStatus(9999, models.PendingTaskStatus, nil, nil), storage.ErrNotFound)
	})

	t.Run("TransitionLog", func(t *testing.T) {
		store := newTxStore(t)
		tmpl := saveTemplate(t, store, "A")
		wfID, err := store.SaveWorkflow(models.Workflow{EventID: 502})
		require.NoError(t, err)
		taskID, err := store.SaveTask(models.TaskInstance{
			WorkflowID: wfID, TemplateID: tmpl, DepartmentID: 1,
			Title: "A", Status: models.WaitingTaskStatus,
			DueDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		_, err = store.SaveTransition(models.TransitionLog{
			WorkflowID: wfID, TaskID: taskID,
			FromStatus: models.WaitingTaskStatus, ToStatus: models.PendingTaskStatus,
			Automatic: true, Message: "unlocked by completion of task 1",
		})
		require.NoError(t, err)

		logs, err := store.ListTransitions(taskID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.True(t, logs[0].Automatic)
		assert.False(t, logs[0].LoggedAt.IsZero())
	})

	t.Run("DeleteWorkflowCascades", func(t *testing.T) {
		store := newTxStore(t)
		tmpl := saveTemplate(t, store, "A")
		wfID, err := store.SaveWorkflow(models.Workflow{EventID: 503})
		require.NoError(t, err)
		taskID, err := store.SaveTask(models.TaskInstance{
			WorkflowID: wfID, TemplateID: tmpl, DepartmentID: 1,
			Title: "A", Status: models.PendingTaskStatus,
			DueDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		require.NoError(t, store.DeleteWorkflowByEvent(503))
		_, err = store.GetWorkflowByEvent(503)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.GetTask(taskID)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.ErrorIs(t, store.DeleteWorkflowByEvent(503), storage.ErrNotFound)
	})

	t.Run("LockWorkflow", func(t *testing.T) {
		store := newTxStore(t)
		wfID, err := store.SaveWorkflow(models.Workflow{EventID: 504})
		require.NoError(t, err)

		require.NoError(t, store.LockWorkflow(wfID))
		assert.ErrorIs(t, store.LockWorkflow(9999), storage.ErrNotFound)
	})
}
