package driven

import (
	"context"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
)

// ClaimedTask is a task leased to a worker. The worker must Ack, Nack
// or let the visibility timeout reclaim it.
type ClaimedTask struct {
	// Task is the decoded payload.
	Task domain.Task

	// Receipt identifies this claim for Ack/Nack/Extend.
	Receipt string

	// Deliveries counts how many times the task has been claimed,
	// including this claim.
	Deliveries int
}

// TaskQueue is the durable at-least-once transport between pipeline
// stages. Tasks survive process restarts; an unacked claim becomes
// visible again after the visibility timeout.
type TaskQueue interface {
	// Publish enqueues a task, visible after the given delay. A task
	// whose QueueID is already pending is left untouched.
	Publish(ctx context.Context, task domain.Task, delay time.Duration) error

	// Claim leases up to limit visible tasks, hiding each for the
	// visibility timeout. Returns an empty slice when none are visible.
	Claim(ctx context.Context, limit int) ([]ClaimedTask, error)

	// Ack removes a claimed task permanently.
	Ack(ctx context.Context, receipt string) error

	// Nack returns a claimed task to the queue, visible after delay.
	Nack(ctx context.Context, receipt string, delay time.Duration) error

	// Extend pushes a claim's visibility deadline out by the given
	// duration for long-running handlers.
	Extend(ctx context.Context, receipt string, d time.Duration) error

	// Pending returns the number of tasks not yet acked.
	Pending(ctx context.Context) (int, error)
}
