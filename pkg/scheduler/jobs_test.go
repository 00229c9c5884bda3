package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/store"
)

func newTestDB(t *testing.T) *database.Client {
	t.Helper()
	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "butterfly.db"))
	c, err := database.NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type fakeRunner struct {
	calls     int64
	lastID    string
	err       error
	reloads   int64
	reloadErr error
}

func (f *fakeRunner) ProcessText(ctx context.Context, userID, query string) (string, error) {
	atomic.AddInt64(&f.calls, 1)
	f.lastID = userID
	if f.err != nil {
		return "", f.err
	}
	return "ok: " + query, nil
}

func (f *fakeRunner) ReloadPromptMaterial(ctx context.Context) error {
	atomic.AddInt64(&f.reloads, 1)
	return f.reloadErr
}

func TestScheduledTasksJob_RunsDueTaskAndAudits(t *testing.T) {
	db := newTestDB(t)
	tasks := store.NewTaskStore(db)
	_, err := tasks.Create(context.Background(), "alice", "reminder-check", "check inbox", 1000, nil)
	require.NoError(t, err)

	runner := &fakeRunner{}
	auditPath := filepath.Join(t.TempDir(), "tasks.log")
	job := &ScheduledTasksJob{
		Tasks:  tasks,
		Runner: runner,
		Audit:  NewAuditLogger(auditPath),
		Now:    func() int64 { return 1500 },
	}

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&runner.calls))
	assert.Equal(t, "alice", runner.lastID)

	due, err := tasks.ClaimDue(context.Background(), 2000, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "one-shot task should be disabled after firing")
}

func TestScheduledTasksJob_RecurringTaskRearms(t *testing.T) {
	db := newTestDB(t)
	tasks := store.NewTaskStore(db)
	interval := int64(5)
	_, err := tasks.Create(context.Background(), "bob", "poll", "poll feed", 1000, &interval)
	require.NoError(t, err)

	runner := &fakeRunner{}
	job := &ScheduledTasksJob{Tasks: tasks, Runner: runner, Audit: NewAuditLogger(""), Now: func() int64 { return 1000 }}
	require.NoError(t, job.Run(context.Background()))

	due, err := tasks.ClaimDue(context.Background(), 1000+5*60, 10)
	require.NoError(t, err)
	require.Len(t, due, 1, "recurring task should be rearmed and due again after interval")
}

func TestScheduledTasksJob_RunnerErrorIsAuditedNotFatal(t *testing.T) {
	db := newTestDB(t)
	tasks := store.NewTaskStore(db)
	_, err := tasks.Create(context.Background(), "carl", "fails", "do thing", 1000, nil)
	require.NoError(t, err)

	runner := &fakeRunner{err: assertErr}
	job := &ScheduledTasksJob{Tasks: tasks, Runner: runner, Audit: NewAuditLogger(""), Now: func() int64 { return 1000 }}
	assert.NoError(t, job.Run(context.Background()))
}

func TestScheduledTasksJob_DefaultInterval(t *testing.T) {
	job := &ScheduledTasksJob{}
	assert.Equal(t, time.Minute, job.Interval())
}

func TestWakeupJob_RunsDueWakeupAndRearms(t *testing.T) {
	db := newTestDB(t)
	wakeups := store.NewWakeupStore(db)
	_, err := wakeups.Create(context.Background(), "dana", "daily", "summarize day", 1)
	require.NoError(t, err)

	runner := &fakeRunner{}
	job := &WakeupJob{
		Wakeups: wakeups,
		Runner:  runner,
		Audit:   NewAuditLogger(""),
		Now:     func() int64 { return 1000 },
	}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&runner.calls))

	due, err := wakeups.ClaimDue(context.Background(), 1000, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "just-claimed wakeup should not be immediately due again")

	due, err = wakeups.ClaimDue(context.Background(), 1000+60, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1, "wakeup should be due again after its interval elapses")
}

func TestWakeupJob_FiresAutonomyTurnWhenCooldownAllows(t *testing.T) {
	db := newTestDB(t)
	wakeups := store.NewWakeupStore(db)
	runner := &fakeRunner{}
	job := &WakeupJob{
		Wakeups:  wakeups,
		Runner:   runner,
		Cooldown: NewAutonomyCooldown(60),
		Audit:    NewAuditLogger(""),
		Now:      func() int64 { return 1000 },
	}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&runner.calls))
	assert.Equal(t, "system", runner.lastID)
}

func TestWakeupJob_SkipsAutonomyTurnWhenCooldownActive(t *testing.T) {
	db := newTestDB(t)
	wakeups := store.NewWakeupStore(db)
	runner := &fakeRunner{}
	cooldown := NewAutonomyCooldown(60)
	cooldown.TryBegin(990)

	job := &WakeupJob{
		Wakeups:  wakeups,
		Runner:   runner,
		Cooldown: cooldown,
		Audit:    NewAuditLogger(""),
		Now:      func() int64 { return 1000 },
	}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(0), atomic.LoadInt64(&runner.calls))
}

func TestWakeupJob_ReloadsPromptMaterialEveryTick(t *testing.T) {
	db := newTestDB(t)
	wakeups := store.NewWakeupStore(db)
	runner := &fakeRunner{}
	job := &WakeupJob{Wakeups: wakeups, Runner: runner, Audit: NewAuditLogger(""), Now: func() int64 { return 1000 }}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&runner.reloads))
}

func TestWakeupJob_ReloadFailureIsAuditedNotFatal(t *testing.T) {
	db := newTestDB(t)
	wakeups := store.NewWakeupStore(db)
	runner := &fakeRunner{reloadErr: assertErr}
	job := &WakeupJob{Wakeups: wakeups, Runner: runner, Audit: NewAuditLogger(""), Now: func() int64 { return 1000 }}
	assert.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&runner.reloads))
}

func TestWakeupJob_NilCooldownSkipsAutonomyTurn(t *testing.T) {
	db := newTestDB(t)
	wakeups := store.NewWakeupStore(db)
	runner := &fakeRunner{}
	job := &WakeupJob{Wakeups: wakeups, Runner: runner, Audit: NewAuditLogger(""), Now: func() int64 { return 1000 }}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(0), atomic.LoadInt64(&runner.calls))
}

func TestBrainTickJob_FiresCallback(t *testing.T) {
	var fired int64
	job := &BrainTickJob{Fire: func() { atomic.AddInt64(&fired, 1) }}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))
}

func TestBrainTickJob_NilFireIsNoOp(t *testing.T) {
	job := &BrainTickJob{}
	assert.NoError(t, job.Run(context.Background()))
}

func TestBrainTickJob_DefaultInterval(t *testing.T) {
	job := &BrainTickJob{}
	assert.Equal(t, time.Minute, job.Interval())
}
