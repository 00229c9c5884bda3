package scheduler

import (
	"context"
	"time"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/store"
)

// turnRunner is the subset of agent.Orchestrator a job needs to drive a
// turn, kept narrow so scheduler tests can fake it without constructing
// a full Orchestrator.
type turnRunner interface {
	ProcessText(ctx context.Context, userID, query string) (string, error)
}

// jobCallTimeout bounds any single LLM-backed call a scheduler job makes,
// per spec.md §4.6/§5's 120s soft timeout on autonomy/job turns.
const jobCallTimeout = 120 * time.Second

// ScheduledTasksJob claims due one-shot and recurring scheduled tasks and
// runs each through the agent, grounded on store.TaskStore.ClaimDue which
// already disables one-shot tasks and rearms recurring ones inside a
// single transaction — the job itself only needs to claim and execute.
type ScheduledTasksJob struct {
	Tasks        *store.TaskStore
	Runner       turnRunner
	Audit        *AuditLogger
	PollInterval time.Duration
	Limit        int
	Now          func() int64
}

func (j *ScheduledTasksJob) Name() string { return "scheduled_tasks" }

func (j *ScheduledTasksJob) Interval() time.Duration {
	if j.PollInterval <= 0 {
		return time.Minute
	}
	return j.PollInterval
}

func (j *ScheduledTasksJob) limit() int {
	if j.Limit <= 0 {
		return 32
	}
	return j.Limit
}

func (j *ScheduledTasksJob) now() int64 {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now().Unix()
}

func (j *ScheduledTasksJob) Run(ctx context.Context) error {
	due, err := j.Tasks.ClaimDue(ctx, j.now(), j.limit())
	if err != nil {
		j.Audit.Record(j.Name(), "error", map[string]any{"error": err.Error()})
		return err
	}

	for _, task := range due {
		callCtx, cancel := context.WithTimeout(ctx, jobCallTimeout)
		_, runErr := j.Runner.ProcessText(callCtx, task.UserID, task.Prompt)
		cancel()

		if runErr != nil {
			j.Audit.Record(j.Name(), "error", map[string]any{
				"task_id": task.ID,
				"user_id": task.UserID,
				"error":   runErr.Error(),
			})
			continue
		}
		j.Audit.Record(j.Name(), "ok", map[string]any{
			"task_id": task.ID,
			"user_id": task.UserID,
			"name":    task.Name,
		})
	}

	return nil
}
