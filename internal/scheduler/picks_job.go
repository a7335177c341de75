package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

// PipelineRunner runs one pick generation pass
type PipelineRunner interface {
	Run(ctx context.Context, in models.ReviewInput) *models.PipelineRun
}

// ErrNoOpinions is returned when every opinion source failed
var ErrNoOpinions = errors.New("no opinion source succeeded")

// PicksJob triggers the pick pipeline
type PicksJob struct {
	runner  PipelineRunner
	timeout time.Duration
}

// NewPicksJob creates the job. timeout bounds a whole run; 0 means none.
func NewPicksJob(runner PipelineRunner, timeout time.Duration) *PicksJob {
	return &PicksJob{runner: runner, timeout: timeout}
}

// Name identifies the job in logs
func (j *PicksJob) Name() string {
	return "generate_picks"
}

// Run executes the pipeline with an empty review context
func (j *PicksJob) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	run := j.runner.Run(ctx, models.ReviewInput{})
	if run.Batch.SuccessfulCount == 0 {
		return ErrNoOpinions
	}
	return nil
}
