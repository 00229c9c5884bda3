package store

import (
	"context"
	"fmt"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
)

// Reminder mirrors the reminders table. A reminder is open iff
// CompletedAt is nil; due iff open, unfired, and DueAt <= now.
type Reminder struct {
	ID          int64
	UserID      string
	Title       string
	DueAt       int64
	CreatedAt   int64
	CompletedAt *int64
	FiredAt     *int64
}

type ReminderStore struct {
	db *database.Client
}

func NewReminderStore(db *database.Client) *ReminderStore {
	return &ReminderStore{db: db}
}

// Create inserts a reminder, deduplicating against open, unfired
// reminders sharing (user_id, title) within a +/-2s window of due_at. A
// duplicate returns the existing row instead of inserting. title is
// encrypted at rest (see pkg/database.Cipher), so the dedup lookup
// narrows by the plaintext columns (user_id, due_at window) in SQL and
// compares title in Go after decrypting each candidate.
func (s *ReminderStore) Create(ctx context.Context, userID, title string, dueAt int64) (Reminder, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	rows, err := s.db.WriteDB().QueryContext(ctx, `
		SELECT id, user_id, title, due_at, created_at, completed_at, fired_at
		FROM reminders
		WHERE user_id = ? AND completed_at IS NULL AND fired_at IS NULL
		  AND due_at BETWEEN ? AND ?`,
		userID, dueAt-2, dueAt+2)
	if err != nil {
		return Reminder{}, fmt.Errorf("reminder dedup lookup: %w", err)
	}
	var candidates []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.DueAt, &r.CreatedAt, &r.CompletedAt, &r.FiredAt); err != nil {
			rows.Close()
			return Reminder{}, err
		}
		candidates = append(candidates, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Reminder{}, err
	}
	for _, r := range candidates {
		plain, err := s.db.Cipher.Decrypt(r.Title)
		if err != nil {
			return Reminder{}, fmt.Errorf("reminder dedup lookup: decrypt: %w", err)
		}
		if plain == title {
			r.Title = plain
			return r, nil
		}
	}

	encTitle, err := s.db.Cipher.Encrypt(title)
	if err != nil {
		return Reminder{}, fmt.Errorf("create reminder: encrypt: %w", err)
	}
	now := nowFunc()
	res, err := s.db.WriteDB().ExecContext(ctx,
		`INSERT INTO reminders (user_id, title, due_at, created_at) VALUES (?, ?, ?, ?)`,
		userID, encTitle, dueAt, now)
	if err != nil {
		return Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Reminder{}, err
	}
	return Reminder{ID: id, UserID: userID, Title: title, DueAt: dueAt, CreatedAt: now}, nil
}

// ListDue claims up to limit due, unfired reminders for userID within
// one transaction, marking FiredAt and CompletedAt to now — the
// at-most-once delivery guarantee.
func (s *ReminderStore) ListDue(ctx context.Context, userID string, now int64, limit int) ([]Reminder, error) {
	return s.claimDue(ctx, "user_id = ? AND", []any{userID}, now, limit)
}

// DueAllUsers claims due reminders across all users in one transaction.
func (s *ReminderStore) DueAllUsers(ctx context.Context, now int64, limit int) ([]Reminder, error) {
	return s.claimDue(ctx, "", nil, now, limit)
}

func (s *ReminderStore) claimDue(ctx context.Context, whereUser string, userArgs []any, now int64, limit int) ([]Reminder, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	tx, err := s.db.WriteDB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: begin tx: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		SELECT id, user_id, title, due_at, created_at, completed_at, fired_at
		FROM reminders
		WHERE %s completed_at IS NULL AND fired_at IS NULL AND due_at <= ?
		ORDER BY due_at ASC LIMIT ?`, whereUser)
	args := append(append([]any{}, userArgs...), now, limit)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: select: %w", err)
	}
	var due []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.DueAt, &r.CreatedAt, &r.CompletedAt, &r.FiredAt); err != nil {
			rows.Close()
			return nil, err
		}
		if r.Title, err = s.db.Cipher.Decrypt(r.Title); err != nil {
			rows.Close()
			return nil, fmt.Errorf("claim due reminders: decrypt: %w", err)
		}
		due = append(due, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range due {
		if _, err := tx.ExecContext(ctx,
			`UPDATE reminders SET fired_at = ?, completed_at = ? WHERE id = ?`, now, now, due[i].ID); err != nil {
			return nil, fmt.Errorf("claim due reminders: mark fired: %w", err)
		}
		firedAt := now
		due[i].FiredAt = &firedAt
		due[i].CompletedAt = &firedAt
	}

	return due, tx.Commit()
}

// List returns every open (uncompleted) reminder for userID, soonest due
// first, regardless of whether it is already due.
func (s *ReminderStore) List(ctx context.Context, userID string) ([]Reminder, error) {
	rows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT id, user_id, title, due_at, created_at, completed_at, fired_at
		FROM reminders WHERE user_id = ? AND completed_at IS NULL ORDER BY due_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.DueAt, &r.CreatedAt, &r.CompletedAt, &r.FiredAt); err != nil {
			return nil, err
		}
		var err error
		if r.Title, err = s.db.Cipher.Decrypt(r.Title); err != nil {
			return nil, fmt.Errorf("list reminders: decrypt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Complete marks a reminder completed without having fired it.
func (s *ReminderStore) Complete(ctx context.Context, id int64) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	if _, err := s.db.WriteDB().ExecContext(ctx,
		`UPDATE reminders SET completed_at = ? WHERE id = ?`, nowFunc(), id); err != nil {
		return fmt.Errorf("complete reminder: %w", err)
	}
	return nil
}

// Delete removes a reminder permanently.
func (s *ReminderStore) Delete(ctx context.Context, id int64) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	if _, err := s.db.WriteDB().ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}

// Snooze pushes a reminder's due_at forward and clears any fired_at so
// it is re-delivered at the new time.
func (s *ReminderStore) Snooze(ctx context.Context, id, newDueAt int64) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	if _, err := s.db.WriteDB().ExecContext(ctx,
		`UPDATE reminders SET due_at = ?, fired_at = NULL WHERE id = ?`, newDueAt, id); err != nil {
		return fmt.Errorf("snooze reminder: %w", err)
	}
	return nil
}

// Clear deletes every open reminder for userID, returning the count removed.
func (s *ReminderStore) Clear(ctx context.Context, userID string) (int64, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	res, err := s.db.WriteDB().ExecContext(ctx,
		`DELETE FROM reminders WHERE user_id = ? AND completed_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear reminders: %w", err)
	}
	return res.RowsAffected()
}

// PeekDue returns due, unfired reminders for userID without marking
// them, used to build the DUE REMINDERS prompt block.
func (s *ReminderStore) PeekDue(ctx context.Context, userID string, now int64, limit int) ([]Reminder, error) {
	rows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT id, user_id, title, due_at, created_at, completed_at, fired_at
		FROM reminders
		WHERE user_id = ? AND completed_at IS NULL AND fired_at IS NULL AND due_at <= ?
		ORDER BY due_at ASC LIMIT ?`, userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("peek due reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.DueAt, &r.CreatedAt, &r.CompletedAt, &r.FiredAt); err != nil {
			return nil, err
		}
		var err error
		if r.Title, err = s.db.Cipher.Decrypt(r.Title); err != nil {
			return nil, fmt.Errorf("peek due reminders: decrypt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
