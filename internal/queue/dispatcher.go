// -----------------------------------------------------------------------
// Dispatcher - Worker loop claiming and executing extraction tasks
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/common"
	"github.com/ternarybob/tabula/internal/interfaces"
	"github.com/ternarybob/tabula/internal/models"
	"github.com/ternarybob/tabula/internal/scraper"
)

// Dispatcher runs a pool of worker loops. Each cycle a worker tries to
// claim the oldest pending task; the claim is atomic in the task store, so
// workers and other dispatcher processes never run the same task twice.
//
// Each claimed task executes in its own goroutine behind a wall-clock
// timeout and a panic recovery boundary. Whatever happens inside the
// pipeline, the task always reaches a terminal state.
type Dispatcher struct {
	storage      interfaces.TaskStorage
	pipeline     *scraper.Pipeline
	logger       arbor.ILogger
	pollInterval time.Duration
	concurrency  int
	taskTimeout  time.Duration
	lease        time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher from configuration
func NewDispatcher(config *common.Config, storage interfaces.TaskStorage, pipeline *scraper.Pipeline, logger arbor.ILogger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	concurrency := config.Dispatcher.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Dispatcher{
		storage:      storage,
		pipeline:     pipeline,
		logger:       logger,
		pollInterval: config.PollIntervalDuration(),
		concurrency:  concurrency,
		taskTimeout:  config.TaskTimeoutDuration(),
		lease:        config.LeaseDurationParsed(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the worker loops
func (d *Dispatcher) Start() error {
	d.logger.Info().
		Int("concurrency", d.concurrency).
		Dur("poll_interval", d.pollInterval).
		Dur("task_timeout", d.taskTimeout).
		Msg("Starting dispatcher")

	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return nil
}

// Stop stops the worker loops and waits for in-flight tasks to settle
func (d *Dispatcher) Stop() error {
	d.logger.Info().Msg("Stopping dispatcher")
	d.cancel()
	d.wg.Wait()
	return nil
}

// worker is the main poll loop for one worker slot
func (d *Dispatcher) worker(slot int) {
	defer d.wg.Done()

	workerID := fmt.Sprintf("worker-%d", slot)

	// Stagger worker starts to reduce claim contention
	staggerDelay := (d.pollInterval / time.Duration(d.concurrency)) * time.Duration(slot)
	if staggerDelay > 0 {
		select {
		case <-d.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	d.logger.Debug().
		Str("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debug().Str("worker_id", workerID).Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain the pending queue before sleeping again
			for d.claimAndRun(workerID) {
				if d.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// claimAndRun claims one task and executes it. Returns true if a task was
// claimed, false when the queue was empty this cycle.
func (d *Dispatcher) claimAndRun(workerID string) bool {
	task, err := d.storage.ClaimNextPending(d.ctx, workerID, d.lease)
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("worker_id", workerID).
			Msg("Claim attempt failed")
		return false
	}
	if task == nil {
		return false
	}

	d.execute(workerID, task)
	return true
}

// execute runs the pipeline for a claimed task inside the isolation
// boundary and settles the task to a terminal state
func (d *Dispatcher) execute(workerID string, task *models.Task) {
	task.MarkStarted()
	if err := d.storage.UpdateTask(d.ctx, task); err != nil {
		d.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("Failed to mark task running")
		return
	}

	d.logger.Info().
		Str("task_id", task.ID).
		Str("worker_id", workerID).
		Strs("selection", task.RequestedSelection).
		Msg("Executing task")

	artifactPath, runErr := d.runIsolated(task)

	if runErr != nil {
		kind := scraper.ClassifyKind(runErr)
		if kind == models.ErrorKindCrash && errors.Is(runErr, context.DeadlineExceeded) {
			kind = models.ErrorKindTimeout
		}
		task.MarkFailed(kind, runErr.Error())
		if err := d.storage.UpdateTask(context.Background(), task); err != nil {
			d.logger.Error().
				Err(err).
				Str("task_id", task.ID).
				Msg("Failed to record task failure")
			return
		}
		d.logger.Warn().
			Str("task_id", task.ID).
			Str("error_kind", task.ErrorKind).
			Str("error", task.ErrorDetail).
			Msg("Task failed")
		return
	}

	// Artifact is durably written before completed is ever recorded.
	task.MarkCompleted(artifactPath)
	if err := d.storage.UpdateTask(context.Background(), task); err != nil {
		d.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("Failed to record task completion")
		return
	}

	d.logger.Info().
		Str("task_id", task.ID).
		Str("artifact", artifactPath).
		Msg("Task completed")
}

// runIsolated executes the pipeline in its own goroutine with a wall-clock
// budget. A hang becomes a timeout error, a panic becomes a crash error,
// and in both cases the worker loop itself keeps running.
func (d *Dispatcher) runIsolated(task *models.Task) (string, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.taskTimeout)
	defer cancel()

	type result struct {
		path string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().
					Str("task_id", task.ID).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", common.GetStackTrace()).
					Msg("Task pipeline panicked")
				done <- result{err: fmt.Errorf("pipeline crashed: %v", r)}
			}
		}()

		path, err := d.pipeline.Run(ctx, task)
		done <- result{path: path, err: err}
	}()

	select {
	case res := <-done:
		return res.path, res.err
	case <-ctx.Done():
		if d.ctx.Err() != nil {
			return "", fmt.Errorf("dispatcher shutting down: %w", d.ctx.Err())
		}
		return "", fmt.Errorf("task exceeded %s budget: %w", d.taskTimeout, ctx.Err())
	}
}
