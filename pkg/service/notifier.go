package service

import "github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"

// Notifier receives task lifecycle signals for the notification collaborator
// (email/WhatsApp delivery lives outside this engine). Implementations are
// best-effort: a returned error is logged by the caller and never rolls back
// the state change that produced the signal.
type Notifier interface {
	TaskCompleted(task models.TaskInstance) error
	TaskUnlocked(task models.TaskInstance) error
}

// NoopNotifier discards every signal.
type NoopNotifier struct{}

func (NoopNotifier) TaskCompleted(models.TaskInstance) error { return nil }
func (NoopNotifier) TaskUnlocked(models.TaskInstance) error  { return nil }
