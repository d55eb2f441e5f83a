// -----------------------------------------------------------------------
// Lease Reaper - Periodic recovery of tasks orphaned by dead dispatchers
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/interfaces"
)

// Reaper periodically fails claimed or running tasks whose lease expired.
// A healthy dispatcher settles its tasks well inside the lease window, so
// anything the reaper touches was orphaned by a crash.
type Reaper struct {
	storage interfaces.TaskStorage
	cron    *cron.Cron
	logger  arbor.ILogger
}

// NewReaper creates a lease reaper
func NewReaper(storage interfaces.TaskStorage, logger arbor.ILogger) *Reaper {
	return &Reaper{
		storage: storage,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
	}
}

// Start begins the scheduled reaping
func (r *Reaper) Start(schedule string) error {
	if schedule == "" {
		// Default: every minute
		schedule = "0 * * * * *"
	}

	_, err := r.cron.AddFunc(schedule, func() {
		r.runReap()
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info().
		Str("schedule", schedule).
		Msg("Lease reaper started")

	return nil
}

// Stop stops the reaper
func (r *Reaper) Stop() {
	r.cron.Stop()
	r.logger.Info().Msg("Lease reaper stopped")
}

// RunNow triggers an immediate reap pass
func (r *Reaper) RunNow() {
	r.logger.Info().Msg("Triggering immediate reap pass")
	go r.runReap()
}

func (r *Reaper) runReap() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	reaped, err := r.storage.FailExpiredLeases(ctx)
	if err != nil {
		r.logger.Error().
			Err(err).
			Msg("Reap pass failed")
		return
	}

	if len(reaped) > 0 {
		r.logger.Warn().
			Int("reaped", len(reaped)).
			Strs("task_ids", reaped).
			Msg("Reap pass failed expired tasks")
	}
}
