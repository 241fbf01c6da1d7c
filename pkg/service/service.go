package service

import (
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/graph"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/storage"
)

// Logger defines the logging interface the services depend on
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// loadGraph reads the full template graph through the given store (plain or
// transaction-scoped) into an in-memory snapshot. Cycle checks and closure
// resolution run against the snapshot instead of issuing per-edge queries.
func loadGraph(store storage.Store) (*graph.Graph, map[int64]models.TaskTemplate, error) {
	templates, err := store.ListTemplates()
	if err != nil {
		return nil, nil, err
	}
	edges, err := store.ListPrerequisiteEdges()
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int64, len(templates))
	byID := make(map[int64]models.TaskTemplate, len(templates))
	for i, t := range templates {
		ids[i] = t.ID
		byID[t.ID] = t
	}
	return graph.New(ids, edges), byID, nil
}

// InitialStatus decides the status a freshly created task instance starts in:
// waiting while at least one prerequisite instance is not completed, pending
// otherwise.
func InitialStatus(prerequisites []models.TaskInstance) models.TaskStatus {
	for _, p := range prerequisites {
		if p.Status != models.CompletedTaskStatus {
			return models.WaitingTaskStatus
		}
	}
	return models.PendingTaskStatus
}
