package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// New creates a new scheduler. Schedules carry a leading seconds field.
// A job whose previous run is still in progress skips its next tick.
func New(log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 30 13 * * MON-FRI" - 13:30 on weekdays
//   - "@every 1h"           - Every hour
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.execute(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run(s.ctx)
}

func (s *Scheduler) execute(job Job) {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	if err := job.Run(s.ctx); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Msg("Job failed")
		return
	}
	s.log.Debug().Str("job", job.Name()).Msg("Job completed")
}
