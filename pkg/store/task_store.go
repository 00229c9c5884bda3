package store

import (
	"context"
	"fmt"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
)

// ScheduledTask mirrors the tasks table. One-shot if IntervalMinutes is
// nil, otherwise recurring.
type ScheduledTask struct {
	ID               int64
	UserID           string
	Name             string
	Prompt           string
	RunAt            int64
	IntervalMinutes  *int64
	Enabled          bool
	CreatedAt        int64
	UpdatedAt        int64
}

type TaskStore struct {
	db *database.Client
}

func NewTaskStore(db *database.Client) *TaskStore {
	return &TaskStore{db: db}
}

func (s *TaskStore) Create(ctx context.Context, userID, name, prompt string, runAt int64, intervalMinutes *int64) (ScheduledTask, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	encName, err := s.db.Cipher.Encrypt(name)
	if err != nil {
		return ScheduledTask{}, fmt.Errorf("create task: encrypt: %w", err)
	}
	encPrompt, err := s.db.Cipher.Encrypt(prompt)
	if err != nil {
		return ScheduledTask{}, fmt.Errorf("create task: encrypt: %w", err)
	}

	now := nowFunc()
	res, err := s.db.WriteDB().ExecContext(ctx,
		`INSERT INTO tasks (user_id, name, prompt, run_at, interval_minutes, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		userID, encName, encPrompt, runAt, intervalMinutes, now, now)
	if err != nil {
		return ScheduledTask{}, fmt.Errorf("create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ScheduledTask{}, err
	}
	return ScheduledTask{ID: id, UserID: userID, Name: name, Prompt: prompt, RunAt: runAt,
		IntervalMinutes: intervalMinutes, Enabled: true, CreatedAt: now, UpdatedAt: now}, nil
}

// ListByUser returns every task for userID, enabled or not, newest first.
func (s *TaskStore) ListByUser(ctx context.Context, userID string) ([]ScheduledTask, error) {
	rows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT id, user_id, name, prompt, run_at, interval_minutes, enabled, created_at, updated_at
		FROM tasks WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []ScheduledTask
	for rows.Next() {
		var t ScheduledTask
		var enabled int
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Prompt, &t.RunAt, &t.IntervalMinutes, &enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Enabled = enabled == 1
		var decErr error
		if t.Name, decErr = s.db.Cipher.Decrypt(t.Name); decErr != nil {
			return nil, fmt.Errorf("list tasks: decrypt: %w", decErr)
		}
		if t.Prompt, decErr = s.db.Cipher.Decrypt(t.Prompt); decErr != nil {
			return nil, fmt.Errorf("list tasks: decrypt: %w", decErr)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetEnabled enables or disables a task without touching its schedule.
func (s *TaskStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	val := 0
	if enabled {
		val = 1
	}
	_, err := s.db.WriteDB().ExecContext(ctx,
		`UPDATE tasks SET enabled = ?, updated_at = ? WHERE id = ?`, val, nowFunc(), id)
	if err != nil {
		return fmt.Errorf("set task enabled: %w", err)
	}
	return nil
}

// Delete removes a task permanently.
func (s *TaskStore) Delete(ctx context.Context, id int64) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	if _, err := s.db.WriteDB().ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ClaimDue claims up to limit due, enabled tasks within one transaction.
// One-shot tasks are disabled (marked completed); recurring tasks are
// re-armed to now + max(1, interval)*60.
func (s *TaskStore) ClaimDue(ctx context.Context, now int64, limit int) ([]ScheduledTask, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	tx, err := s.db.WriteDB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_id, name, prompt, run_at, interval_minutes, enabled, created_at, updated_at
		FROM tasks WHERE enabled = 1 AND run_at <= ? ORDER BY run_at ASC LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: select: %w", err)
	}
	var due []ScheduledTask
	for rows.Next() {
		var t ScheduledTask
		var enabled int
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Prompt, &t.RunAt, &t.IntervalMinutes, &enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		t.Enabled = enabled == 1
		var decErr error
		if t.Name, decErr = s.db.Cipher.Decrypt(t.Name); decErr != nil {
			rows.Close()
			return nil, fmt.Errorf("claim due tasks: decrypt: %w", decErr)
		}
		if t.Prompt, decErr = s.db.Cipher.Decrypt(t.Prompt); decErr != nil {
			rows.Close()
			return nil, fmt.Errorf("claim due tasks: decrypt: %w", decErr)
		}
		due = append(due, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range due {
		if t.IntervalMinutes == nil {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET enabled = 0, updated_at = ? WHERE id = ?`, now, t.ID); err != nil {
				return nil, fmt.Errorf("claim due tasks: disable one-shot: %w", err)
			}
			continue
		}
		interval := *t.IntervalMinutes
		if interval < 1 {
			interval = 1
		}
		nextRun := now + interval*60
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET run_at = ?, updated_at = ? WHERE id = ?`, nextRun, now, t.ID); err != nil {
			return nil, fmt.Errorf("claim due tasks: rearm recurring: %w", err)
		}
	}

	return due, tx.Commit()
}
