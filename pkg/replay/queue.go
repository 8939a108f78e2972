package replay

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound indicates the action is not in the queue.
var ErrNotFound = errors.New("action not found")

// Queue is the durable store of deferred actions.
//
// List returns actions in enqueue order. Put inserts or replaces by ID
// (replacing is how the replayer persists attempt counters). Remove is
// called only after an observably successful replay.
type Queue interface {
	List(ctx context.Context) ([]Action, error)
	Put(ctx context.Context, action Action) error
	Remove(ctx context.Context, id string) error
}

// MemoryQueue is an in-memory Queue for tests and ephemeral deployments.
type MemoryQueue struct {
	mu      sync.Mutex
	actions map[string]Action
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{actions: make(map[string]Action)}
}

// List implements Queue.
func (q *MemoryQueue) List(_ context.Context) ([]Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Action, 0, len(q.actions))
	for _, a := range q.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out, nil
}

// Put implements Queue.
func (q *MemoryQueue) Put(_ context.Context, action Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions[action.ID] = action
	return nil
}

// Remove implements Queue.
func (q *MemoryQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.actions[id]; !ok {
		return ErrNotFound
	}
	delete(q.actions, id)
	return nil
}

// Len returns the queue depth (for tests).
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}
