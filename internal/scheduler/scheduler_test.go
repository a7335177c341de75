package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

type fakeRunner struct {
	mu       sync.Mutex
	batch    models.AggregateBatch
	deadline bool
}

func (r *fakeRunner) Run(ctx context.Context, in models.ReviewInput) *models.PipelineRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, r.deadline = ctx.Deadline()
	return &models.PipelineRun{Batch: r.batch}
}

func TestScheduler_AddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", &countingJob{})

	assert.Error(t, err)
}

func TestScheduler_RunsJobOnSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_AcceptsWeekdaySchedule(t *testing.T) {
	s := New(zerolog.Nop())

	assert.NoError(t, s.AddJob("0 30 13 * * MON-FRI", &countingJob{}))
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}

	err := s.RunNow(job)

	assert.EqualError(t, err, "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

type blockingJob struct{}

func (blockingJob) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingJob) Name() string { return "blocking" }

func TestScheduler_RunNow_CancelledByStop(t *testing.T) {
	s := New(zerolog.Nop())
	done := make(chan error, 1)

	go func() { done <- s.RunNow(blockingJob{}) }()
	s.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunNow did not return after Stop")
	}
}

func TestPicksJob_Run(t *testing.T) {
	runner := &fakeRunner{batch: models.NewAggregateBatch([]models.ProviderResult{
		{AIName: "GPT-4", Success: true, Picks: []models.Pick{{Symbol: "NVDA"}}},
	})}
	job := NewPicksJob(runner, time.Minute)

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, runner.deadline)
	assert.Equal(t, "generate_picks", job.Name())
}

func TestPicksJob_NoOpinions(t *testing.T) {
	runner := &fakeRunner{batch: models.NewAggregateBatch([]models.ProviderResult{
		models.FailedResult("GPT-4", errors.New("401")),
	})}

	err := NewPicksJob(runner, 0).Run(context.Background())

	assert.ErrorIs(t, err, ErrNoOpinions)
	assert.False(t, runner.deadline)
}
