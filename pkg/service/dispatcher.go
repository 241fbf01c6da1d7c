package service

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
)

const (
	// delivery retry policy; the only retry concept in the engine, allowed
	// because notification is decoupled from the transactional boundary
	defaultDeliveryAttempts = 3
	defaultDeliveryBackoff  = 100 * time.Millisecond

	defaultQueueSize = 64
)

type signalKind string

const (
	taskCompletedSignal signalKind = "task_completed"
	taskUnlockedSignal  signalKind = "task_unlocked"
)

type signal struct {
	id   string // correlation id for log lines
	kind signalKind
	task models.TaskInstance
}

// Dispatcher decouples notification delivery from the status engine: it
// implements Notifier by enqueueing signals and hands them to the wrapped
// sink from a pool of workers, retrying each delivery a few times before
// giving up. A full queue drops the signal with a log line rather than block
// a status transition.
type Dispatcher struct {
	sink     Notifier
	logger   Logger
	queue    chan signal
	wg       sync.WaitGroup
	stopOnce sync.Once

	attempts int
	backoff  time.Duration
}

func NewDispatcher(sink Notifier, logger Logger) *Dispatcher {
	return &Dispatcher{
		sink:     sink,
		logger:   logger,
		queue:    make(chan signal, defaultQueueSize),
		attempts: defaultDeliveryAttempts,
		backoff:  defaultDeliveryBackoff,
	}
}

// Start launches the delivery workers. Non-positive workers defaults to the
// number of CPUs.
func (d *Dispatcher) Start(workers int) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop closes the queue, drains the signals already enqueued and waits for
// the workers to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) TaskCompleted(task models.TaskInstance) error {
	d.enqueue(signal{id: uuid.NewString(), kind: taskCompletedSignal, task: task})
	return nil
}

func (d *Dispatcher) TaskUnlocked(task models.TaskInstance) error {
	d.enqueue(signal{id: uuid.NewString(), kind: taskUnlockedSignal, task: task})
	return nil
}

func (d *Dispatcher) enqueue(sig signal) {
	select {
	case d.queue <- sig:
	default:
		d.logger.Errorf("[%s] Notification queue full, dropping %s for task %d", sig.id, sig.kind, sig.task.ID)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for sig := range d.queue {
		d.deliver(sig)
	}
}

func (d *Dispatcher) deliver(sig signal) {
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		switch sig.kind {
		case taskCompletedSignal:
			err = d.sink.TaskCompleted(sig.task)
		case taskUnlockedSignal:
			err = d.sink.TaskUnlocked(sig.task)
		}
		if err == nil {
			d.logger.Infof("[%s] Delivered %s for task %d", sig.id, sig.kind, sig.task.ID)
			return
		}
		d.logger.Errorf("[%s] Delivery attempt %d/%d of %s for task %d failed: %v",
			sig.id, attempt, d.attempts, sig.kind, sig.task.ID, err)
		if attempt < d.attempts {
			time.Sleep(d.backoff)
		}
	}
	d.logger.Errorf("[%s] Dropping %s for task %d after %d attempts: %v",
		sig.id, sig.kind, sig.task.ID, d.attempts, err)
}
