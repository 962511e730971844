package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/core/ports/driving"
	"github.com/docrelay/docrelay/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.PipelineRunner = (*Orchestrator)(nil)

// defaultPollInterval paces queue polling when no tasks are visible.
const defaultPollInterval = time.Second

// Orchestrator claims tasks from the durable queue and routes them to
// the stage services. Tasks are delivered at least once; the
// orchestrator decides per error class whether a failed task is acked
// or returned for redelivery.
type Orchestrator struct {
	queue      driven.TaskQueue
	convert    *ConvertService
	extract    *ExtractService
	dispatch   *DispatchService
	settings   *SettingsService
	workers    int
	visibility time.Duration
	limiter    *rate.Limiter
}

// NewOrchestrator creates a new orchestrator. Workers bounds how many
// tasks run concurrently; visibility must match the queue's timeout so
// the heartbeat extends claims in time.
func NewOrchestrator(
	queue driven.TaskQueue,
	convert *ConvertService,
	extract *ExtractService,
	dispatch *DispatchService,
	settings *SettingsService,
	workers int,
	visibility time.Duration,
) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	if visibility <= 0 {
		visibility = 2 * time.Minute
	}
	return &Orchestrator{
		queue:      queue,
		convert:    convert,
		extract:    extract,
		dispatch:   dispatch,
		settings:   settings,
		workers:    workers,
		visibility: visibility,
		limiter:    rate.NewLimiter(rate.Every(defaultPollInterval), 1),
	}
}

// Run claims and executes tasks until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger.Info("pipeline: %d workers, visibility %s", o.workers, o.visibility)
	for {
		handled, err := o.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("pipeline: claim cycle failed: %v", err)
		}
		if handled > 0 {
			continue
		}
		// Idle: pace the polling instead of spinning on the queue.
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
	}
}

// RunOnce claims and executes at most one batch of tasks. Returns the
// number of tasks handled.
func (o *Orchestrator) RunOnce(ctx context.Context) (int, error) {
	claimed, err := o.queue.Claim(ctx, o.workers)
	if err != nil {
		return 0, fmt.Errorf("claiming tasks: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, ct := range claimed {
		ct := ct
		g.Go(func() error {
			o.handle(gctx, ct)
			return nil
		})
	}
	_ = g.Wait()
	return len(claimed), nil
}

// handle executes one claimed task with a visibility heartbeat and
// settles the claim according to the outcome.
func (o *Orchestrator) handle(ctx context.Context, ct driven.ClaimedTask) {
	task := ct.Task
	// The queue's delivery counter is the attempt number: a nacked task
	// comes back with the same payload but one more delivery.
	task.Attempt = ct.Deliveries

	done := make(chan struct{})
	go o.heartbeat(ctx, ct.Receipt, done)
	err := o.route(ctx, task)
	close(done)

	o.settle(ctx, ct, task, err)
}

// route runs the stage handler for a task.
func (o *Orchestrator) route(ctx context.Context, task domain.Task) error {
	switch task.Stage {
	case domain.StageConvert:
		return o.convert.Run(ctx, task)
	case domain.StageExtract:
		return o.extract.Run(ctx, task)
	case domain.StageDispatch:
		return o.dispatch.Run(ctx, task)
	case domain.StageDeliver:
		return o.dispatch.Deliver(ctx, task)
	default:
		return domain.Classified(domain.ErrClassPermanent,
			fmt.Errorf("unknown stage %q", task.Stage))
	}
}

// settle acks or nacks a claim based on the handler's error class.
// Only transient failures are redelivered; everything else is final
// because the stage service already recorded the terminal state.
func (o *Orchestrator) settle(ctx context.Context, ct driven.ClaimedTask, task domain.Task, err error) {
	if err == nil {
		o.ack(ctx, ct.Receipt)
		return
	}

	if errors.Is(err, domain.ErrDocumentCancelled) {
		logger.Info("pipeline: %s skipped, document cancelled", task.QueueID())
		o.ack(ctx, ct.Receipt)
		return
	}

	class := domain.Classify(err)
	if !class.Retryable() {
		o.fail(ctx, task, err)
		o.ack(ctx, ct.Receipt)
		return
	}

	maxAttempts := o.settings.Int(ctx, domain.KeyDeliverAttempts, 5)
	if task.Attempt >= maxAttempts {
		logger.Error("pipeline: %s gave up after %d attempts: %v", task.QueueID(), task.Attempt, err)
		o.fail(ctx, task, err)
		o.ack(ctx, ct.Receipt)
		return
	}

	delay := o.dispatch.RetryDelay(ctx, task.Attempt)
	logger.Warn("pipeline: %s attempt %d failed, retrying in %s: %v", task.QueueID(), task.Attempt, delay, err)
	if nackErr := o.queue.Nack(ctx, ct.Receipt, delay); nackErr != nil {
		logger.Error("pipeline: nacking %s: %v", task.QueueID(), nackErr)
	}
}

// fail records a terminal stage failure. Only conversion fails the
// whole document; delivery failures are already recorded per pair and
// extraction never fails a document at all.
func (o *Orchestrator) fail(ctx context.Context, task domain.Task, err error) {
	logger.Error("pipeline: %s failed terminally: %v", task.QueueID(), err)
	if task.Stage == domain.StageConvert {
		o.convert.Fail(ctx, task.DocumentID)
	}
}

// heartbeat extends the claim's visibility while the handler runs.
func (o *Orchestrator) heartbeat(ctx context.Context, receipt string, done <-chan struct{}) {
	interval := o.visibility / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.queue.Extend(ctx, receipt, o.visibility); err != nil {
				logger.Warn("pipeline: extending claim %s: %v", receipt, err)
			}
		}
	}
}

func (o *Orchestrator) ack(ctx context.Context, receipt string) {
	if err := o.queue.Ack(ctx, receipt); err != nil {
		logger.Error("pipeline: acking %s: %v", receipt, err)
	}
}
