package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodoStore_CreateFromPlanStep_IsIdempotent(t *testing.T) {
	s := NewTodoStore(newTestDB(t))
	ctx := context.Background()

	t1, err := s.CreateFromPlanStep(ctx, "u1", "write design doc", "plan_step:1:0")
	require.NoError(t, err)

	t2, err := s.CreateFromPlanStep(ctx, "u1", "write design doc", "plan_step:1:0")
	require.NoError(t, err)

	assert.Equal(t, t1.ID, t2.ID, "materializing the same plan step twice must not duplicate the todo")
}

func TestTodoStore_Create_ListOpen_Complete(t *testing.T) {
	s := NewTodoStore(newTestDB(t))
	ctx := context.Background()

	item, err := s.Create(ctx, "u1", "buy milk", "")
	require.NoError(t, err)

	open, err := s.ListOpen(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, s.Complete(ctx, item.ID))

	openAfter, err := s.ListOpen(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, openAfter)
}

func TestHasPlanStepRef(t *testing.T) {
	assert.True(t, HasPlanStepRef("PlanStepRef: plan_step:1:0", "plan_step:1:0"))
	assert.False(t, HasPlanStepRef("some other notes", "plan_step:1:0"))
}
