package store

import (
	"context"
	"fmt"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
)

// WakeupTask mirrors the wakeup_tasks table. Always recurring.
type WakeupTask struct {
	ID              int64
	UserID          string
	Name            string
	Prompt          string
	IntervalMinutes int64
	Enabled         bool
	LastRunAt       *int64
}

type WakeupStore struct {
	db *database.Client
}

func NewWakeupStore(db *database.Client) *WakeupStore {
	return &WakeupStore{db: db}
}

func (s *WakeupStore) Create(ctx context.Context, userID, name, prompt string, intervalMinutes int64) (WakeupTask, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	encName, err := s.db.Cipher.Encrypt(name)
	if err != nil {
		return WakeupTask{}, fmt.Errorf("create wakeup task: encrypt: %w", err)
	}
	encPrompt, err := s.db.Cipher.Encrypt(prompt)
	if err != nil {
		return WakeupTask{}, fmt.Errorf("create wakeup task: encrypt: %w", err)
	}

	res, err := s.db.WriteDB().ExecContext(ctx,
		`INSERT INTO wakeup_tasks (user_id, name, prompt, interval_minutes, enabled) VALUES (?, ?, ?, ?, 1)`,
		userID, encName, encPrompt, intervalMinutes)
	if err != nil {
		return WakeupTask{}, fmt.Errorf("create wakeup task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return WakeupTask{}, err
	}
	return WakeupTask{ID: id, UserID: userID, Name: name, Prompt: prompt, IntervalMinutes: intervalMinutes, Enabled: true}, nil
}

// List returns all enabled wakeup tasks, regardless of due-ness. Due
// tasks are selected and re-armed by ClaimDue, not from this list.
func (s *WakeupStore) List(ctx context.Context) ([]WakeupTask, error) {
	rows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT id, user_id, name, prompt, interval_minutes, enabled, last_run_at FROM wakeup_tasks WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("list wakeup tasks: %w", err)
	}
	defer rows.Close()

	var out []WakeupTask
	for rows.Next() {
		var w WakeupTask
		var enabled int
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.Prompt, &w.IntervalMinutes, &enabled, &w.LastRunAt); err != nil {
			return nil, err
		}
		w.Enabled = enabled == 1
		var decErr error
		if w.Name, decErr = s.db.Cipher.Decrypt(w.Name); decErr != nil {
			return nil, fmt.Errorf("list wakeup tasks: decrypt: %w", decErr)
		}
		if w.Prompt, decErr = s.db.Cipher.Decrypt(w.Prompt); decErr != nil {
			return nil, fmt.Errorf("list wakeup tasks: decrypt: %w", decErr)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SetEnabled enables or disables a wakeup task.
func (s *WakeupStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	val := 0
	if enabled {
		val = 1
	}
	if _, err := s.db.WriteDB().ExecContext(ctx, `UPDATE wakeup_tasks SET enabled = ? WHERE id = ?`, val, id); err != nil {
		return fmt.Errorf("set wakeup task enabled: %w", err)
	}
	return nil
}

// Delete removes a wakeup task permanently.
func (s *WakeupStore) Delete(ctx context.Context, id int64) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	if _, err := s.db.WriteDB().ExecContext(ctx, `DELETE FROM wakeup_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete wakeup task: %w", err)
	}
	return nil
}

// ClaimDue claims wakeup tasks that have never run, or whose last run
// plus max(1, interval)*60 is <= now, re-arming LastRunAt to now in the same
// transaction as the at-most-once guarantee for reminders/tasks.
func (s *WakeupStore) ClaimDue(ctx context.Context, now int64, limit int) ([]WakeupTask, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	tx, err := s.db.WriteDB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim due wakeups: begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_id, name, prompt, interval_minutes, enabled, last_run_at
		FROM wakeup_tasks
		WHERE enabled = 1 AND (last_run_at IS NULL OR last_run_at + MAX(1, interval_minutes) * 60 <= ?)
		LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due wakeups: select: %w", err)
	}
	var due []WakeupTask
	for rows.Next() {
		var w WakeupTask
		var enabled int
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.Prompt, &w.IntervalMinutes, &enabled, &w.LastRunAt); err != nil {
			rows.Close()
			return nil, err
		}
		w.Enabled = enabled == 1
		var decErr error
		if w.Name, decErr = s.db.Cipher.Decrypt(w.Name); decErr != nil {
			rows.Close()
			return nil, fmt.Errorf("claim due wakeups: decrypt: %w", decErr)
		}
		if w.Prompt, decErr = s.db.Cipher.Decrypt(w.Prompt); decErr != nil {
			rows.Close()
			return nil, fmt.Errorf("claim due wakeups: decrypt: %w", decErr)
		}
		due = append(due, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range due {
		if _, err := tx.ExecContext(ctx, `UPDATE wakeup_tasks SET last_run_at = ? WHERE id = ?`, now, due[i].ID); err != nil {
			return nil, fmt.Errorf("claim due wakeups: rearm: %w", err)
		}
		lastRun := now
		due[i].LastRunAt = &lastRun
	}

	return due, tx.Commit()
}
