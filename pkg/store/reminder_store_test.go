package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderStore_Create_DedupsWithinTwoSecondWindow(t *testing.T) {
	s := NewReminderStore(newTestDB(t))
	ctx := context.Background()

	r1, err := s.Create(ctx, "u1", "take pills", 1000)
	require.NoError(t, err)

	r2, err := s.Create(ctx, "u1", "take pills", 1001)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID, "should dedup within +/-2s window")

	r3, err := s.Create(ctx, "u1", "take pills", 1010)
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r3.ID, "outside window must create a new reminder")
}

func TestReminderStore_ListDue_ClaimsAtMostOnce(t *testing.T) {
	s := NewReminderStore(newTestDB(t))
	ctx := context.Background()

	_, err := s.Create(ctx, "u1", "call mom", 1000)
	require.NoError(t, err)

	due, err := s.ListDue(ctx, "u1", 1000, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.NotNil(t, due[0].FiredAt)

	dueAgain, err := s.ListDue(ctx, "u1", 1000, 10)
	require.NoError(t, err)
	assert.Empty(t, dueAgain, "already-fired reminder must not be claimed twice")
}

func TestReminderStore_PeekDue_DoesNotMark(t *testing.T) {
	s := NewReminderStore(newTestDB(t))
	ctx := context.Background()

	_, err := s.Create(ctx, "u1", "water plants", 1000)
	require.NoError(t, err)

	peeked, err := s.PeekDue(ctx, "u1", 1000, 10)
	require.NoError(t, err)
	require.Len(t, peeked, 1)
	assert.Nil(t, peeked[0].FiredAt)

	due, err := s.ListDue(ctx, "u1", 1000, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1, "peek must not have consumed the reminder")
}

func TestReminderStore_DueAllUsers_SpansUsers(t *testing.T) {
	s := NewReminderStore(newTestDB(t))
	ctx := context.Background()

	_, err := s.Create(ctx, "u1", "a", 1000)
	require.NoError(t, err)
	_, err = s.Create(ctx, "u2", "b", 1000)
	require.NoError(t, err)

	due, err := s.DueAllUsers(ctx, 1000, 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}
