package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanStore_Create_SyncsStepDependencies(t *testing.T) {
	s := NewPlanStore(newTestDB(t))
	ctx := context.Background()

	steps := []any{
		map[string]any{"title": "gather requirements"},
		map[string]any{"title": "write design doc", "depends_on": []any{0.0}},
	}

	plan, err := s.Create(ctx, "u1", "ship feature", "ship the new feature", steps, "")
	require.NoError(t, err)
	assert.Equal(t, "draft", plan.Status)

	deps, err := s.ListStepDependencies(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "plan_step:"+itoa(plan.ID)+":1", deps[0].StepRef)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestPlanStore_UpdateSteps_ResyncsDependencies(t *testing.T) {
	s := NewPlanStore(newTestDB(t))
	ctx := context.Background()

	plan, err := s.Create(ctx, "u1", "plan", "goal", nil, "")
	require.NoError(t, err)

	newSteps := []any{
		map[string]any{"title": "a"},
		map[string]any{"title": "b", "depends_on": []any{0.0}},
	}
	require.NoError(t, s.UpdateSteps(ctx, plan.ID, "u1", newSteps))

	deps, err := s.ListStepDependencies(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
}

func TestPlanStore_GetAndListByUser(t *testing.T) {
	s := NewPlanStore(newTestDB(t))
	ctx := context.Background()

	p1, err := s.Create(ctx, "u1", "plan one", "goal one", nil, "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "u1", "plan two", "goal two", nil, "active")
	require.NoError(t, err)

	got, err := s.Get(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan one", got.Title)

	list, err := s.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
