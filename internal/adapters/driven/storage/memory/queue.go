package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Ensure TaskQueue implements the interface.
var _ driven.TaskQueue = (*TaskQueue)(nil)

type queuedTask struct {
	task       domain.Task
	visibleAt  time.Time
	createdAt  time.Time
	deliveries int
}

// TaskQueue is an in-memory implementation of driven.TaskQueue with the
// same visibility timeout semantics as the SQLite queue.
type TaskQueue struct {
	mu         sync.Mutex
	visibility time.Duration
	tasks      map[string]*queuedTask
}

// NewTaskQueue creates a new in-memory task queue.
func NewTaskQueue(visibility time.Duration) *TaskQueue {
	if visibility <= 0 {
		visibility = 2 * time.Minute
	}
	return &TaskQueue{
		visibility: visibility,
		tasks:      make(map[string]*queuedTask),
	}
}

// Publish enqueues a task, visible after delay. Re-publishing a pending
// queue identity is a no-op.
func (q *TaskQueue) Publish(_ context.Context, task domain.Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := task.QueueID()
	if _, exists := q.tasks[id]; exists {
		return nil
	}
	now := time.Now()
	q.tasks[id] = &queuedTask{
		task:      task,
		visibleAt: now.Add(delay),
		createdAt: now,
	}
	return nil
}

// Claim leases up to limit visible tasks.
func (q *TaskQueue) Claim(_ context.Context, limit int) ([]driven.ClaimedTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var ids []string
	for id, t := range q.tasks {
		if !t.visibleAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return q.tasks[ids[i]].visibleAt.Before(q.tasks[ids[j]].visibleAt)
	})

	claimed := []driven.ClaimedTask{}
	for _, id := range ids {
		if len(claimed) >= limit {
			break
		}
		t := q.tasks[id]
		t.visibleAt = now.Add(q.visibility)
		t.deliveries++
		claimed = append(claimed, driven.ClaimedTask{
			Task:       t.task,
			Receipt:    id,
			Deliveries: t.deliveries,
		})
	}
	return claimed, nil
}

// Ack removes a claimed task.
func (q *TaskQueue) Ack(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tasks, receipt)
	return nil
}

// Nack returns a claimed task to the queue, visible after delay.
func (q *TaskQueue) Nack(_ context.Context, receipt string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.tasks[receipt]; ok {
		t.visibleAt = time.Now().Add(delay)
	}
	return nil
}

// Extend pushes a claim's visibility deadline forward.
func (q *TaskQueue) Extend(_ context.Context, receipt string, d time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.tasks[receipt]; ok {
		t.visibleAt = time.Now().Add(d)
	}
	return nil
}

// Pending returns the number of tasks not yet acked.
func (q *TaskQueue) Pending(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks), nil
}
