package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
)

// TodoItem mirrors the todo_items table. Items materialized from a plan
// step carry a "PlanStepRef: plan_step:{plan_id}:{i}" marker in Notes to
// prevent duplicate materialization.
type TodoItem struct {
	ID          int64
	UserID      string
	Title       string
	Notes       string
	CompletedAt *int64
	CreatedAt   int64
	UpdatedAt   int64
}

type TodoStore struct {
	db *database.Client
}

func NewTodoStore(db *database.Client) *TodoStore {
	return &TodoStore{db: db}
}

func planStepRefMarker(ref string) string {
	return "PlanStepRef: " + ref
}

// CreateFromPlanStep materializes a todo item for a plan step,
// idempotently: if a todo with the same PlanStepRef marker already
// exists for userID, it is returned unchanged instead of duplicated.
// notes is encrypted at rest, so the LIKE substring match that used to
// find the marker in SQL can no longer run there — ciphertext has no
// substring relationship to plaintext under AEAD. Instead every todo
// item for userID (completed ones included) is fetched, notes decrypted, and the marker
// checked in Go via HasPlanStepRef.
func (s *TodoStore) CreateFromPlanStep(ctx context.Context, userID, title, stepRef string) (TodoItem, error) {
	marker := planStepRefMarker(stepRef)

	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	rows, err := s.db.WriteDB().QueryContext(ctx, `
		SELECT id, user_id, title, notes, completed_at, created_at, updated_at
		FROM todo_items WHERE user_id = ?`, userID)
	if err != nil {
		return TodoItem{}, fmt.Errorf("todo dedup lookup: %w", err)
	}
	var candidates []TodoItem
	for rows.Next() {
		var t TodoItem
		var notes sql.NullString
		var completedAt sql.NullInt64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &notes, &completedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			rows.Close()
			return TodoItem{}, err
		}
		t.Notes = notes.String
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Int64
		}
		candidates = append(candidates, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return TodoItem{}, err
	}
	for _, t := range candidates {
		plainTitle, err := s.db.Cipher.Decrypt(t.Title)
		if err != nil {
			return TodoItem{}, fmt.Errorf("todo dedup lookup: decrypt: %w", err)
		}
		plainNotes, err := s.db.Cipher.Decrypt(t.Notes)
		if err != nil {
			return TodoItem{}, fmt.Errorf("todo dedup lookup: decrypt: %w", err)
		}
		if HasPlanStepRef(plainNotes, stepRef) {
			t.Title = plainTitle
			t.Notes = plainNotes
			return t, nil
		}
	}

	encTitle, err := s.db.Cipher.Encrypt(title)
	if err != nil {
		return TodoItem{}, fmt.Errorf("create todo item: encrypt: %w", err)
	}
	encMarker, err := s.db.Cipher.Encrypt(marker)
	if err != nil {
		return TodoItem{}, fmt.Errorf("create todo item: encrypt: %w", err)
	}

	now := nowFunc()
	res, err := s.db.WriteDB().ExecContext(ctx,
		`INSERT INTO todo_items (user_id, title, notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, encTitle, encMarker, now, now)
	if err != nil {
		return TodoItem{}, fmt.Errorf("create todo item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TodoItem{}, err
	}
	return TodoItem{ID: id, UserID: userID, Title: title, Notes: marker, CreatedAt: now, UpdatedAt: now}, nil
}

// Create inserts a plain todo item not tied to a plan step.
func (s *TodoStore) Create(ctx context.Context, userID, title, notes string) (TodoItem, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	encTitle, err := s.db.Cipher.Encrypt(title)
	if err != nil {
		return TodoItem{}, fmt.Errorf("create todo item: encrypt: %w", err)
	}
	var encNotes any
	if notes != "" {
		enc, err := s.db.Cipher.Encrypt(notes)
		if err != nil {
			return TodoItem{}, fmt.Errorf("create todo item: encrypt: %w", err)
		}
		encNotes = enc
	}

	now := nowFunc()
	res, err := s.db.WriteDB().ExecContext(ctx,
		`INSERT INTO todo_items (user_id, title, notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, encTitle, encNotes, now, now)
	if err != nil {
		return TodoItem{}, fmt.Errorf("create todo item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TodoItem{}, err
	}
	return TodoItem{ID: id, UserID: userID, Title: title, Notes: notes, CreatedAt: now, UpdatedAt: now}, nil
}

// Complete marks a todo item as completed.
func (s *TodoStore) Complete(ctx context.Context, id int64) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	now := nowFunc()
	_, err := s.db.WriteDB().ExecContext(ctx, `UPDATE todo_items SET completed_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("complete todo item: %w", err)
	}
	return nil
}

// Reopen clears a todo item's completed_at.
func (s *TodoStore) Reopen(ctx context.Context, id int64) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	_, err := s.db.WriteDB().ExecContext(ctx,
		`UPDATE todo_items SET completed_at = NULL, updated_at = ? WHERE id = ?`, nowFunc(), id)
	if err != nil {
		return fmt.Errorf("reopen todo item: %w", err)
	}
	return nil
}

// Delete removes a todo item permanently.
func (s *TodoStore) Delete(ctx context.Context, id int64) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	if _, err := s.db.WriteDB().ExecContext(ctx, `DELETE FROM todo_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete todo item: %w", err)
	}
	return nil
}

// ListOpen returns open (incomplete) todo items for userID.
func (s *TodoStore) ListOpen(ctx context.Context, userID string) ([]TodoItem, error) {
	rows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT id, user_id, title, notes, completed_at, created_at, updated_at
		FROM todo_items WHERE user_id = ? AND completed_at IS NULL ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list open todos: %w", err)
	}
	defer rows.Close()

	var out []TodoItem
	for rows.Next() {
		var t TodoItem
		var notes sql.NullString
		var completedAt sql.NullInt64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &notes, &completedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Notes = notes.String
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Int64
		}
		var decErr error
		if t.Title, decErr = s.db.Cipher.Decrypt(t.Title); decErr != nil {
			return nil, fmt.Errorf("list open todos: decrypt: %w", decErr)
		}
		if t.Notes, decErr = s.db.Cipher.Decrypt(t.Notes); decErr != nil {
			return nil, fmt.Errorf("list open todos: decrypt: %w", decErr)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// HasPlanStepRef reports whether notes carries a PlanStepRef marker for
// stepRef, used by callers that materialize todos outside CreateFromPlanStep.
func HasPlanStepRef(notes, stepRef string) bool {
	return strings.Contains(notes, planStepRefMarker(stepRef))
}
