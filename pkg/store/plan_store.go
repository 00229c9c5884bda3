package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
)

// Plan mirrors the plans table. StepsJSON is the raw JSON array of step
// objects, or empty if the plan has no steps.
type Plan struct {
	ID        int64
	UserID    string
	Title     string
	Goal      string
	StepsJSON string
	Status    string
	CreatedAt int64
	UpdatedAt int64
}

// PlanStepDependency mirrors one plan_step_dependencies row.
type PlanStepDependency struct {
	PlanID       int64
	UserID       string
	StepRef      string
	DependsOnRef string
}

type PlanStore struct {
	db *database.Client
}

func NewPlanStore(db *database.Client) *PlanStore {
	return &PlanStore{db: db}
}

// Create inserts a plan and synchronously derives its step dependency
// rows from steps.
func (s *PlanStore) Create(ctx context.Context, userID, title, goal string, steps []any, status string) (Plan, error) {
	if status == "" {
		status = "draft"
	}
	var stepsJSON string
	if len(steps) > 0 {
		data, err := json.Marshal(steps)
		if err != nil {
			return Plan{}, fmt.Errorf("marshal plan steps: %w", err)
		}
		stepsJSON = string(data)
	}

	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	encTitle, err := s.db.Cipher.Encrypt(title)
	if err != nil {
		return Plan{}, fmt.Errorf("create plan: encrypt: %w", err)
	}
	encGoal, err := s.db.Cipher.Encrypt(goal)
	if err != nil {
		return Plan{}, fmt.Errorf("create plan: encrypt: %w", err)
	}
	var encSteps any
	if stepsJSON != "" {
		enc, err := s.db.Cipher.Encrypt(stepsJSON)
		if err != nil {
			return Plan{}, fmt.Errorf("create plan: encrypt: %w", err)
		}
		encSteps = enc
	}

	now := nowFunc()
	res, err := s.db.WriteDB().ExecContext(ctx,
		`INSERT INTO plans (user_id, title, goal, steps_json, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, encTitle, encGoal, encSteps, status, now, now)
	if err != nil {
		return Plan{}, fmt.Errorf("create plan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Plan{}, err
	}

	if err := s.syncStepDependencies(ctx, id, userID, stepsJSON); err != nil {
		return Plan{}, err
	}

	return Plan{ID: id, UserID: userID, Title: title, Goal: goal, StepsJSON: stepsJSON, Status: status, CreatedAt: now, UpdatedAt: now}, nil
}

// UpdateSteps rewrites a plan's steps and re-synchronizes its step
// dependency rows (delete then insert-or-ignore).
func (s *PlanStore) UpdateSteps(ctx context.Context, planID int64, userID string, steps []any) error {
	var stepsJSON string
	if len(steps) > 0 {
		data, err := json.Marshal(steps)
		if err != nil {
			return fmt.Errorf("marshal plan steps: %w", err)
		}
		stepsJSON = string(data)
	}

	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	var encSteps any
	if stepsJSON != "" {
		enc, err := s.db.Cipher.Encrypt(stepsJSON)
		if err != nil {
			return fmt.Errorf("update plan steps: encrypt: %w", err)
		}
		encSteps = enc
	}

	now := nowFunc()
	if _, err := s.db.WriteDB().ExecContext(ctx,
		`UPDATE plans SET steps_json = ?, updated_at = ? WHERE id = ?`, encSteps, now, planID); err != nil {
		return fmt.Errorf("update plan steps: %w", err)
	}

	return s.syncStepDependencies(ctx, planID, userID, stepsJSON)
}

func (s *PlanStore) syncStepDependencies(ctx context.Context, planID int64, userID, stepsJSON string) error {
	if _, err := s.db.WriteDB().ExecContext(ctx, `DELETE FROM plan_step_dependencies WHERE plan_id = ?`, planID); err != nil {
		return fmt.Errorf("sync plan step deps: delete: %w", err)
	}

	deps, err := resolvePlanStepDependencies(planID, stepsJSON)
	if err != nil {
		return err
	}
	now := nowFunc()
	for _, dep := range deps {
		_, err := s.db.WriteDB().ExecContext(ctx, `
			INSERT OR IGNORE INTO plan_step_dependencies (plan_id, user_id, step_ref, depends_on_ref, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			planID, userID, dep.StepRef, dep.DependsOnRef, now, now)
		if err != nil {
			return fmt.Errorf("sync plan step deps: insert: %w", err)
		}
	}
	return nil
}

// ListStepDependencies returns the dependency rows for a plan.
func (s *PlanStore) ListStepDependencies(ctx context.Context, planID int64) ([]PlanStepDependency, error) {
	rows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT plan_id, user_id, step_ref, depends_on_ref FROM plan_step_dependencies
		WHERE plan_id = ? ORDER BY step_ref, depends_on_ref`, planID)
	if err != nil {
		return nil, fmt.Errorf("list plan step deps: %w", err)
	}
	defer rows.Close()

	var out []PlanStepDependency
	for rows.Next() {
		var d PlanStepDependency
		if err := rows.Scan(&d.PlanID, &d.UserID, &d.StepRef, &d.DependsOnRef); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Get returns one plan by id.
func (s *PlanStore) Get(ctx context.Context, planID int64) (Plan, error) {
	var p Plan
	var stepsJSON sql.NullString
	err := s.db.ReadDB().QueryRowContext(ctx, `
		SELECT id, user_id, title, goal, steps_json, status, created_at, updated_at FROM plans WHERE id = ?`, planID).
		Scan(&p.ID, &p.UserID, &p.Title, &p.Goal, &stepsJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Plan{}, fmt.Errorf("get plan: %w", err)
	}
	if p.Title, err = s.db.Cipher.Decrypt(p.Title); err != nil {
		return Plan{}, fmt.Errorf("get plan: decrypt: %w", err)
	}
	if p.Goal, err = s.db.Cipher.Decrypt(p.Goal); err != nil {
		return Plan{}, fmt.Errorf("get plan: decrypt: %w", err)
	}
	if p.StepsJSON, err = s.db.Cipher.Decrypt(stepsJSON.String); err != nil {
		return Plan{}, fmt.Errorf("get plan: decrypt: %w", err)
	}
	return p, nil
}

// ListByUser returns up to limit plans for userID, newest first.
func (s *PlanStore) ListByUser(ctx context.Context, userID string, limit int) ([]Plan, error) {
	rows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT id, user_id, title, goal, steps_json, status, created_at, updated_at
		FROM plans WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		var p Plan
		var stepsJSON sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Goal, &stepsJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		var decErr error
		if p.Title, decErr = s.db.Cipher.Decrypt(p.Title); decErr != nil {
			return nil, fmt.Errorf("list plans: decrypt: %w", decErr)
		}
		if p.Goal, decErr = s.db.Cipher.Decrypt(p.Goal); decErr != nil {
			return nil, fmt.Errorf("list plans: decrypt: %w", decErr)
		}
		if p.StepsJSON, decErr = s.db.Cipher.Decrypt(stepsJSON.String); decErr != nil {
			return nil, fmt.Errorf("list plans: decrypt: %w", decErr)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a plan and its step dependency rows.
func (s *PlanStore) Delete(ctx context.Context, planID int64) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	if _, err := s.db.WriteDB().ExecContext(ctx, `DELETE FROM plan_step_dependencies WHERE plan_id = ?`, planID); err != nil {
		return fmt.Errorf("delete plan: step deps: %w", err)
	}
	if _, err := s.db.WriteDB().ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, planID); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
