package scheduler

import (
	"context"
	"time"
)

// tickFirer fires one lifecycle Tick event. Callers pass a closure over
// agent.Orchestrator.Brain().Fire(agent.LifecycleTick, "", "") rather than
// this package importing pkg/agent directly, keeping pkg/scheduler
// agent-agnostic the way pkg/queue never imports the session package it
// drives.
type tickFirer func()

// BrainTickJob fires the agent's lifecycle Tick event on a fixed period,
// independent of whether any wakeup or scheduled task is due, so brain
// plugins observe regular heartbeats per spec.md §4.5/§4.6.
type BrainTickJob struct {
	Fire         tickFirer
	PollInterval time.Duration
}

func (j *BrainTickJob) Name() string { return "brain_tick" }

func (j *BrainTickJob) Interval() time.Duration {
	if j.PollInterval <= 0 {
		return time.Minute
	}
	return j.PollInterval
}

// Run fires the tick callback. Plugin failures are already swallowed and
// logged inside agent.BrainManager.Fire, so this never returns an error.
func (j *BrainTickJob) Run(ctx context.Context) error {
	if j.Fire != nil {
		j.Fire()
	}
	return nil
}
