package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TaskRunner tracks background jobs (client listener loops and delivery
// fan-out tasks) so they can be cancelled by id and reclaimed on completion.
// One instance is constructed at startup and passed to every component that
// spawns work; there is no process-wide singleton.
type TaskRunner struct {
	mu      sync.Mutex
	tasks   map[string]context.CancelFunc
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewTaskRunner creates a runner whose tasks are all bound to parent: when
// parent is cancelled every tracked job observes cancellation.
func NewTaskRunner(parent context.Context) *TaskRunner {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &TaskRunner{
		tasks:   make(map[string]context.CancelFunc),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Dispatch starts job concurrently and returns its task id. The id is
// registered in the tracked set before Dispatch returns, so a Stop issued
// immediately after is always observed; a completion hook removes the id when
// the job finishes for any reason. The name is used only for logging.
func (r *TaskRunner) Dispatch(name string, job func(ctx context.Context)) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(r.baseCtx)

	r.mu.Lock()
	r.tasks[id] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.remove(id)
		defer cancel()
		job(ctx)
		log.WithFields(log.Fields{"task": name, "id": id}).Debug("Task exited")
	}()

	return id
}

// Stop signals cooperative cancellation of the tracked task. Unknown or
// already-completed ids are a no-op, never an error.
func (r *TaskRunner) Stop(id string) {
	r.mu.Lock()
	cancel, ok := r.tasks[id]
	r.mu.Unlock()

	if ok {
		cancel()
		log.WithField("id", id).Debug("Stopped task")
	}
}

// Len reports the number of currently tracked tasks.
func (r *TaskRunner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Shutdown cancels every tracked task and waits for all of them to finish,
// up to the timeout. It returns context.DeadlineExceeded if some tasks are
// still running when the timeout elapses.
func (r *TaskRunner) Shutdown(timeout time.Duration) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		log.Warn("Task runner shutdown timeout reached, some tasks may still be running")
		return context.DeadlineExceeded
	}
}

func (r *TaskRunner) remove(id string) {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
}
