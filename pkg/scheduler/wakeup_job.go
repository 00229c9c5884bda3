package scheduler

import (
	"context"
	"time"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/store"
)

// wakeupRunner extends turnRunner with the per-tick heartbeat/prompt
// reload spec.md §4.6 requires of the wakeup job specifically;
// *agent.Orchestrator satisfies both without change.
type wakeupRunner interface {
	turnRunner
	ReloadPromptMaterial(ctx context.Context) error
}

// WakeupJob reloads heartbeat/prompt markdown, processes due wakeup
// tasks and, when the autonomy cooldown allows it, spawns one autonomy
// turn so the agent's heartbeat/prompt material stays exercised even
// with no due wakeups, per spec.md §4.6.
//
// Grounded on store.WakeupStore.ClaimDue, which already rearms
// last_run_at inside the claiming transaction the same way
// store.TaskStore.ClaimDue rearms recurring scheduled tasks — the job
// only reloads, claims, runs, and audits.
type WakeupJob struct {
	Wakeups      *store.WakeupStore
	Runner       wakeupRunner
	Cooldown     *AutonomyCooldown
	Audit        *AuditLogger
	PollInterval time.Duration
	Limit        int
	Now          func() int64

	// AutonomyPrompt is the query sent for the cooldown-gated autonomy
	// turn. It must be recognizable by agent.isAutonomyTick (containing
	// both "autonomous" and "heartbeat").
	AutonomyPrompt string
}

func (j *WakeupJob) Name() string { return "wakeup" }

func (j *WakeupJob) Interval() time.Duration {
	if j.PollInterval <= 0 {
		return time.Minute
	}
	return j.PollInterval
}

func (j *WakeupJob) limit() int {
	if j.Limit <= 0 {
		return 32
	}
	return j.Limit
}

func (j *WakeupJob) now() int64 {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now().Unix()
}

func (j *WakeupJob) autonomyPrompt() string {
	if j.AutonomyPrompt != "" {
		return j.AutonomyPrompt
	}
	return "This is an autonomous heartbeat tick. Review pending context and act if needed."
}

func (j *WakeupJob) Run(ctx context.Context) error {
	now := j.now()

	if err := j.Runner.ReloadPromptMaterial(ctx); err != nil {
		j.Audit.Record(j.Name(), "error", map[string]any{"reload": true, "error": err.Error()})
	} else {
		j.Audit.Record(j.Name(), "ok", map[string]any{"reload": true})
	}

	due, err := j.Wakeups.ClaimDue(ctx, now, j.limit())
	if err != nil {
		j.Audit.Record(j.Name(), "error", map[string]any{"error": err.Error()})
		return err
	}

	for _, w := range due {
		callCtx, cancel := context.WithTimeout(ctx, jobCallTimeout)
		_, runErr := j.Runner.ProcessText(callCtx, w.UserID, w.Prompt)
		cancel()

		if runErr != nil {
			j.Audit.Record(j.Name(), "error", map[string]any{
				"wakeup_id": w.ID,
				"user_id":   w.UserID,
				"error":     runErr.Error(),
			})
			continue
		}
		j.Audit.Record(j.Name(), "ok", map[string]any{
			"wakeup_id": w.ID,
			"user_id":   w.UserID,
			"name":      w.Name,
		})
	}

	if j.Cooldown == nil {
		return nil
	}

	if _, ok := j.Cooldown.TryBegin(now); !ok {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, jobCallTimeout)
	defer cancel()
	if _, runErr := j.Runner.ProcessText(callCtx, "system", j.autonomyPrompt()); runErr != nil {
		j.Audit.Record(j.Name(), "error", map[string]any{"autonomy": true, "error": runErr.Error()})
		return runErr
	}
	j.Audit.Record(j.Name(), "ok", map[string]any{"autonomy": true})

	return nil
}
