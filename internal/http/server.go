package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/Amine-Ecssr/event-management-system-sub004/internal/log"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/service"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/storage"
)

// Server exposes the engine's admin/query surface as a JSON API. Transports
// for outbound notifications live with the notification collaborator, not
// here.
type Server struct {
	templates *service.TemplateService
	workflows *service.WorkflowService
	tasks     *service.TaskService
}

func NewServer(templates *service.TemplateService, workflows *service.WorkflowService, tasks *service.TaskService) *Server {
	return &Server{
		templates: templates,
		workflows: workflows,
		tasks:     tasks,
	}
}

// StartServer wires the services over the given store and serves until the
// listener fails.
func StartServer(port string, store storage.Store, notifier service.Notifier) error {
	logger := log.GetLogger()
	srv := NewServer(
		service.NewTemplateService(store, logger),
		service.NewWorkflowService(store, logger),
		service.NewTaskService(store, logger, notifier),
	)
	log.GetLogger().Infof("Starting evflow server on :%s", port)
	return http.ListenAndServe(":"+port, srv.Router())
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.health)

	r.Route("/templates", func(r chi.Router) {
		r.Post("/", s.createTemplate)
		r.Get("/", s.listTemplates)
		r.Route("/{templateID}", func(r chi.Router) {
			r.Get("/", s.getTemplate)
			r.Put("/", s.updateTemplate)
			r.Delete("/", s.deleteTemplate)
			r.Get("/prerequisites", s.listPrerequisites)
			r.Get("/prerequisites/available", s.listAvailablePrerequisites)
			r.Post("/prerequisites", s.addPrerequisite)
			r.Delete("/prerequisites/{prerequisiteID}", s.removePrerequisite)
			r.Get("/dependents", s.listDependents)
		})
	})

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", s.instantiateWorkflow)
		r.Route("/{eventID}", func(r chi.Router) {
			r.Get("/", s.getWorkflow)
			r.Delete("/", s.deleteWorkflow)
		})
	})

	r.Route("/tasks/{taskID}", func(r chi.Router) {
		r.Get("/", s.getTask)
		r.Post("/status", s.transitionTask)
		r.Get("/transitions", s.listTransitions)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps the engine's error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrTemplateNotFound),
		errors.Is(err, service.ErrWorkflowNotFound),
		errors.Is(err, service.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrSelfReference),
		errors.Is(err, service.ErrDuplicateEdge),
		errors.Is(err, service.ErrCycleDetected),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrWorkflowExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.GetLogger().Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid %s", name)
	}
	return id, nil
}

type templateRequest struct {
	DepartmentID    int64           `json:"department_id"`
	Title           string          `json:"title"`
	DefaultSelected bool            `json:"default_selected"`
	DueBasis        models.DueBasis `json:"due_basis"`
	DueOffsetDays   int             `json:"due_offset_days"`
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	created, err := s.templates.CreateTemplate(models.TaskTemplate{
		DepartmentID:    req.DepartmentID,
		Title:           req.Title,
		DefaultSelected: req.DefaultSelected,
		DueBasis:        req.DueBasis,
		DueOffsetDays:   req.DueOffsetDays,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.templates.ListTemplates()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "templateID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	tmpl, err := s.templates.GetTemplate(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) updateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "templateID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := s.templates.UpdateTemplate(models.TaskTemplate{
		ID:              id,
		DepartmentID:    req.DepartmentID,
		Title:           req.Title,
		DefaultSelected: req.DefaultSelected,
		DueBasis:        req.DueBasis,
		DueOffsetDays:   req.DueOffsetDays,
	}); err != nil {
		writeError(w, err)
		return
	}
	tmpl, err := s.templates.GetTemplate(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "templateID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.templates.DeleteTemplate(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPrerequisites(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "templateID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	prereqs, err := s.templates.GetPrerequisites(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prereqs)
}

func (s *Server) listDependents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "templateID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	dependents, err := s.templates.GetDependents(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dependents)
}

func (s *Server) listAvailablePrerequisites(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "templateID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	available, err := s.templates.AvailablePrerequisites(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, available)
}

func (s *Server) addPrerequisite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "templateID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		PrerequisiteID int64 `json:"prerequisite_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := s.templates.AddPrerequisite(id, req.PrerequisiteID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removePrerequisite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "templateID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	prereqID, err := pathID(r, "prerequisiteID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.templates.RemovePrerequisite(id, prereqID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type instantiateRequest struct {
	EventID         int64     `json:"event_id"`
	EventStart      time.Time `json:"event_start"`
	EventEnd        time.Time `json:"event_end"`
	TemplateIDs     []int64   `json:"template_ids"`
	IncludeDefaults bool      `json:"include_defaults"`
}

func (s *Server) instantiateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req instantiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if req.EventID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event_id is required"})
		return
	}

	selected := req.TemplateIDs
	if req.IncludeDefaults {
		defaults, err := s.templates.DefaultSelection()
		if err != nil {
			writeError(w, err)
			return
		}
		// The closure deduplicates ids selected both ways.
		selected = append(append([]int64{}, selected...), defaults...)
	}

	wf, err := s.workflows.InstantiateWorkflow(req.EventID, req.EventStart, req.EventEnd, selected)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	wf, err := s.workflows.GetWorkflow(eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.workflows.DeleteWorkflow(eventID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "taskID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	task, err := s.tasks.GetTask(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) transitionTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "taskID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req struct {
		Status models.TaskStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := s.tasks.TransitionTask(taskID, req.Status); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.tasks.GetTask(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "taskID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	logs, err := s.tasks.ListTransitions(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
