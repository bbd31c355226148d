package local

import (
	"context"
	"sync"
)

// TaskRegistry maps running task ids to the cancel func of their send. It is
// safe for concurrent use.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]context.CancelFunc
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]context.CancelFunc),
	}
}

// Add registers a running task.
func (r *TaskRegistry) Add(taskID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = cancel
}

// Remove forgets a finished task.
func (r *TaskRegistry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
}

// Cancel stops a running task and reports whether it was found.
func (r *TaskRegistry) Cancel(taskID string) bool {
	r.mu.Lock()
	cancel, ok := r.tasks[taskID]
	delete(r.tasks, taskID)
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Active returns the ids of all running tasks.
func (r *TaskRegistry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	return ids
}
