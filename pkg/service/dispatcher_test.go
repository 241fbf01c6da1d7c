package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/service"
)

// countingSink records deliveries and can refuse the first N attempts per
// signal kind.
type countingSink struct {
	mu           sync.Mutex
	completed    int
	unlocked     int
	failuresLeft int
}

func (s *countingSink) TaskCompleted(models.TaskInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return errors.New("collaborator unavailable")
	}
	s.completed++
	return nil
}

func (s *countingSink) TaskUnlocked(models.TaskInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return errors.New("collaborator unavailable")
	}
	s.unlocked++
	return nil
}

func (s *countingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.unlocked
}

func TestDispatcher(t *testing.T) {
	task := models.TaskInstance{ID: 7, WorkflowID: 1, Status: models.CompletedTaskStatus}

	t.Run("DeliversBothSignalKinds", func(t *testing.T) {
		sink := &countingSink{}
		d := service.NewDispatcher(sink, logger{})
		d.Start(2)

		require.NoError(t, d.TaskCompleted(task))
		require.NoError(t, d.TaskUnlocked(task))
		d.Stop()

		completed, unlocked := sink.counts()
		assert.Equal(t, 1, completed)
		assert.Equal(t, 1, unlocked)
	})

	t.Run("RetriesFailedDeliveries", func(t *testing.T) {
		sink := &countingSink{failuresLeft: 2}
		d := service.NewDispatcher(sink, logger{})
		d.Start(1)

		require.NoError(t, d.TaskCompleted(task))
		d.Stop()

		completed, _ := sink.counts()
		assert.Equal(t, 1, completed, "third attempt should succeed")
	})

	t.Run("GivesUpAfterMaxAttempts", func(t *testing.T) {
		sink := &countingSink{failuresLeft: 100}
		d := service.NewDispatcher(sink, logger{})
		d.Start(1)

		require.NoError(t, d.TaskCompleted(task))
		d.Stop()

		completed, unlocked := sink.counts()
		assert.Zero(t, completed)
		assert.Zero(t, unlocked)
	})

	t.Run("StopDrainsQueue", func(t *testing.T) {
		sink := &countingSink{}
		d := service.NewDispatcher(sink, logger{})
		d.Start(1)

		for i := 0; i < 10; i++ {
			require.NoError(t, d.TaskUnlocked(task))
		}
		d.Stop()

		_, unlocked := sink.counts()
		assert.Equal(t, 10, unlocked)
	})

	t.Run("WrapsStatusEngine", func(t *testing.T) {
		// The dispatcher sits between the status engine and the collaborator:
		// completions flow through asynchronously.
		env := newTestEnv()
		tmpl := env.createTemplate(t, "solo", 1)
		wf, err := env.workflows.InstantiateWorkflow(200,
			time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 12, 2, 0, 0, 0, 0, time.UTC),
			[]int64{tmpl.ID})
		require.NoError(t, err)

		sink := &countingSink{}
		d := service.NewDispatcher(sink, logger{})
		d.Start(1)
		tasks := service.NewTaskService(env.store, logger{}, d)

		require.NoError(t, tasks.StartTask(wf.Tasks[0].ID))
		require.NoError(t, tasks.CompleteTask(wf.Tasks[0].ID))
		d.Stop()

		completed, _ := sink.counts()
		assert.Equal(t, 1, completed)
	})
}
