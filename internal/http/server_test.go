package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_http "github.com/Amine-Ecssr/event-management-system-sub004/internal/http"
	"github.com/Amine-Ecssr/event-management-system-sub004/internal/log"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/service"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := storage.NewMockStore()
	logger := log.GetLogger()
	srv := internal_http.NewServer(
		service.NewTemplateService(store, logger),
		service.NewWorkflowService(store, logger),
		service.NewTaskService(store, logger, service.NoopNotifier{}),
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func createTemplate(t *testing.T, ts *httptest.Server, title string, departmentID int64) models.TaskTemplate {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/templates", map[string]interface{}{
		"department_id": departmentID,
		"title":         title,
		"due_basis":     "event_start",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var tmpl models.TaskTemplate
	require.NoError(t, json.Unmarshal(body, &tmpl))
	return tmpl
}

func addPrerequisite(t *testing.T, ts *httptest.Server, templateID, prerequisiteID int64) *http.Response {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, fmt.Sprintf("%s/templates/%d/prerequisites", ts.URL, templateID),
		map[string]int64{"prerequisite_id": prerequisiteID})
	return resp
}

func TestServer(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		ts := newTestServer(t)
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("TemplateCRUD", func(t *testing.T) {
		ts := newTestServer(t)
		tmpl := createTemplate(t, ts, "Book venue", 1)

		resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/templates/%d", ts.URL, tmpl.ID), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got models.TaskTemplate
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "Book venue", got.Title)

		resp, body = doJSON(t, http.MethodPut, fmt.Sprintf("%s/templates/%d", ts.URL, tmpl.ID), map[string]interface{}{
			"department_id": 1,
			"title":         "Book venue and security",
			"due_basis":     "event_end",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "Book venue and security", got.Title)
		assert.Equal(t, models.EventEndBasis, got.DueBasis)

		resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/templates/%d", ts.URL, tmpl.ID), nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/templates/%d", ts.URL, tmpl.ID), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("GraphEditingErrorMapping", func(t *testing.T) {
		ts := newTestServer(t)
		a := createTemplate(t, ts, "A", 1)
		b := createTemplate(t, ts, "B", 1)

		// Self reference -> 409.
		assert.Equal(t, http.StatusConflict, addPrerequisite(t, ts, a.ID, a.ID).StatusCode)
		// Valid edge -> 204, then duplicate -> 409.
		assert.Equal(t, http.StatusNoContent, addPrerequisite(t, ts, a.ID, b.ID).StatusCode)
		assert.Equal(t, http.StatusConflict, addPrerequisite(t, ts, a.ID, b.ID).StatusCode)
		// Closing the cycle -> 409.
		assert.Equal(t, http.StatusConflict, addPrerequisite(t, ts, b.ID, a.ID).StatusCode)
		// Unknown template -> 404.
		assert.Equal(t, http.StatusNotFound, addPrerequisite(t, ts, a.ID, 99).StatusCode)

		// Available prerequisites for B excludes A (cycle closer) and B itself.
		resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/templates/%d/prerequisites/available", ts.URL, b.ID), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var available []models.TaskTemplate
		require.NoError(t, json.Unmarshal(body, &available))
		assert.Empty(t, available)

		// Dependents of B is A.
		resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/templates/%d/dependents", ts.URL, b.ID), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var dependents []models.TaskTemplate
		require.NoError(t, json.Unmarshal(body, &dependents))
		require.Len(t, dependents, 1)
		assert.Equal(t, a.ID, dependents[0].ID)

		// Removal is idempotent -> 204 both times.
		url := fmt.Sprintf("%s/templates/%d/prerequisites/%d", ts.URL, a.ID, b.ID)
		resp, _ = doJSON(t, http.MethodDelete, url, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp, _ = doJSON(t, http.MethodDelete, url, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("WorkflowLifecycle", func(t *testing.T) {
		ts := newTestServer(t)
		t1 := createTemplate(t, ts, "T1", 1)
		t2 := createTemplate(t, ts, "T2", 1)
		require.Equal(t, http.StatusNoContent, addPrerequisite(t, ts, t2.ID, t1.ID).StatusCode)

		resp, body := doJSON(t, http.MethodPost, ts.URL+"/workflows", map[string]interface{}{
			"event_id":     42,
			"event_start":  time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
			"event_end":    time.Date(2026, 10, 2, 18, 0, 0, 0, time.UTC),
			"template_ids": []int64{t2.ID},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var wf models.Workflow
		require.NoError(t, json.Unmarshal(body, &wf))
		require.Len(t, wf.Tasks, 2)
		require.Len(t, wf.Dependencies, 1)
		assert.Equal(t, models.PendingTaskStatus, wf.Tasks[0].Status)
		assert.Equal(t, models.WaitingTaskStatus, wf.Tasks[1].Status)

		// Second workflow for the same event -> 409.
		resp, _ = doJSON(t, http.MethodPost, ts.URL+"/workflows", map[string]interface{}{
			"event_id":     42,
			"event_start":  time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
			"event_end":    time.Date(2026, 10, 2, 18, 0, 0, 0, time.UTC),
			"template_ids": []int64{t1.ID},
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		// Drive the first task through its lifecycle and watch the unlock.
		statusURL := fmt.Sprintf("%s/tasks/%d/status", ts.URL, wf.Tasks[0].ID)
		resp, _ = doJSON(t, http.MethodPost, statusURL, map[string]string{"status": "in_progress"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp, body = doJSON(t, http.MethodPost, statusURL, map[string]string{"status": "completed"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var task models.TaskInstance
		require.NoError(t, json.Unmarshal(body, &task))
		assert.Equal(t, models.CompletedTaskStatus, task.Status)

		resp, body = doJSON(t, http.MethodGet, ts.URL+"/workflows/42", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, json.Unmarshal(body, &wf))
		assert.Equal(t, models.PendingTaskStatus, wf.Tasks[1].Status)

		// Invalid transition -> 409.
		resp, _ = doJSON(t, http.MethodPost, statusURL, map[string]string{"status": "in_progress"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		// Audit trail for the unlocked task shows the automatic transition.
		resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/tasks/%d/transitions", ts.URL, wf.Tasks[1].ID), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var logs []models.TransitionLog
		require.NoError(t, json.Unmarshal(body, &logs))
		require.Len(t, logs, 1)
		assert.True(t, logs[0].Automatic)

		resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/workflows/42", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp, _ = doJSON(t, http.MethodGet, ts.URL+"/workflows/42", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("IncludeDefaults", func(t *testing.T) {
		ts := newTestServer(t)
		resp, body := doJSON(t, http.MethodPost, ts.URL+"/templates", map[string]interface{}{
			"department_id":    1,
			"title":            "always included",
			"default_selected": true,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		extra := createTemplate(t, ts, "picked by hand", 2)

		resp, body = doJSON(t, http.MethodPost, ts.URL+"/workflows", map[string]interface{}{
			"event_id":         7,
			"event_start":      time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
			"event_end":        time.Date(2026, 10, 2, 18, 0, 0, 0, time.UTC),
			"template_ids":     []int64{extra.ID},
			"include_defaults": true,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var wf models.Workflow
		require.NoError(t, json.Unmarshal(body, &wf))
		assert.Len(t, wf.Tasks, 2)
	})

	t.Run("BadRequests", func(t *testing.T) {
		ts := newTestServer(t)

		req, err := http.NewRequest(http.MethodPost, ts.URL+"/templates", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp2, _ := doJSON(t, http.MethodGet, ts.URL+"/templates/abc", nil)
		assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

		resp3, _ := doJSON(t, http.MethodPost, ts.URL+"/workflows", map[string]interface{}{"event_id": 0})
		assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
	})
}
