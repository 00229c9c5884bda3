package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name     string
	interval time.Duration
	runs     int64
	err      error
}

func (j *countingJob) Name() string           { return j.name }
func (j *countingJob) Interval() time.Duration { return j.interval }
func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt64(&j.runs, 1)
	return j.err
}

func TestScheduler_RunsEachJobOnItsInterval(t *testing.T) {
	job := &countingJob{name: "fast", interval: 10 * time.Millisecond}
	s := New(job)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&job.runs) >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	s.Stop()
}

func TestScheduler_StopWaitsForJobsToExit(t *testing.T) {
	job := &countingJob{name: "slow", interval: 5 * time.Millisecond}
	s := New(job)
	s.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	runsAtStop := atomic.LoadInt64(&job.runs)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runsAtStop, atomic.LoadInt64(&job.runs))
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := New(&countingJob{name: "noop", interval: time.Hour})
	s.Start(context.Background())
	s.Stop()
	assert.NotPanics(t, func() { s.Stop() })
}

func TestScheduler_SurvivesJobError(t *testing.T) {
	job := &countingJob{name: "flaky", interval: 10 * time.Millisecond, err: assertErr}
	s := New(job)
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&job.runs) >= 2
	}, time.Second, 5*time.Millisecond)

	s.Stop()
}

var assertErr = errAlways{}

type errAlways struct{}

func (errAlways) Error() string { return "always fails" }
