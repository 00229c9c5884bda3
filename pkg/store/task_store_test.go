package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStore_ClaimDue_OneShotDisablesAfterFiring(t *testing.T) {
	s := NewTaskStore(newTestDB(t))
	ctx := context.Background()

	_, err := s.Create(ctx, "u1", "send report", "generate and send the weekly report", 1000, nil)
	require.NoError(t, err)

	due, err := s.ClaimDue(ctx, 1000, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	again, err := s.ClaimDue(ctx, 1000, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "one-shot task must be disabled after firing")
}

func TestTaskStore_ClaimDue_RecurringRearms(t *testing.T) {
	s := NewTaskStore(newTestDB(t))
	ctx := context.Background()

	interval := int64(5)
	_, err := s.Create(ctx, "u1", "check backups", "verify nightly backups completed", 1000, &interval)
	require.NoError(t, err)

	due, err := s.ClaimDue(ctx, 1000, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	notYetDue, err := s.ClaimDue(ctx, 1000+60, 10)
	require.NoError(t, err)
	assert.Empty(t, notYetDue, "recurring task rearmed to now+5m should not fire at now+60s")

	nowDue, err := s.ClaimDue(ctx, 1000+5*60, 10)
	require.NoError(t, err)
	assert.Len(t, nowDue, 1, "recurring task should fire again once its new run_at is reached")
}
