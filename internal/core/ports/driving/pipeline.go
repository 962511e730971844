package driving

import (
	"context"
)

// PipelineRunner drives the task workers. The serve command owns one.
type PipelineRunner interface {
	// Run claims and executes tasks until the context is cancelled.
	// Returns the context's error on shutdown.
	Run(ctx context.Context) error

	// RunOnce claims and executes at most one batch of tasks.
	// Returns the number of tasks handled.
	RunOnce(ctx context.Context) (int, error)
}
