package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
)

func TestLooksLikeSearchIntent(t *testing.T) {
	assert.True(t, looksLikeSearchIntent("what is the latest news on this"))
	assert.True(t, looksLikeSearchIntent("Search for butterfly species"))
	assert.False(t, looksLikeSearchIntent("what's my todo list"))
}

func TestIsAutonomyTick(t *testing.T) {
	assert.True(t, isAutonomyTick("this is an AUTONOMOUS heartbeat check"))
	assert.False(t, isAutonomyTick("heartbeat only"))
	assert.False(t, isAutonomyTick("autonomous only"))
}

func TestShouldRunSemanticArm(t *testing.T) {
	assert.False(t, shouldRunSemanticArm("hi"))
	assert.False(t, shouldRunSemanticArm("hello there"))
	assert.True(t, shouldRunSemanticArm("what did we discuss about the trip plans"))
	assert.True(t, shouldRunSemanticArm("recall what I said"))
}

func TestFilterSensitiveLines_DropsMatches(t *testing.T) {
	lines := []string{
		"[user] my api key is 123",
		"[assistant] sure, here's the weather",
		"[user] Authorization header: Bearer xyz",
	}
	out := filterSensitiveLines(lines)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "weather")
}

func TestBuildMemoryContext_IncludesHistoryAndSemantic(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	o := NewOrchestrator(deps)
	ctx := context.Background()

	_, err := o.messages.Append(ctx, "u1", "user", "earlier I said I like hiking trips", 100)
	require.NoError(t, err)
	_, err = o.messages.Append(ctx, "u1", "assistant", "noted", 101)
	require.NoError(t, err)

	lines := o.buildMemoryContext(ctx, "u1", "recall what I said about hiking")
	assert.NotEmpty(t, lines)
}

func TestDueRemindersBlock_EmptyWhenNoneDue(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	o := NewOrchestrator(deps)
	block := o.dueRemindersBlock(context.Background(), "u1", 1000)
	assert.Empty(t, block)
}

func TestDueRemindersBlock_ListsDueReminderTitles(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	o := NewOrchestrator(deps)
	ctx := context.Background()

	_, err := o.reminders.Create(ctx, "u1", "Feed cats", 900)
	require.NoError(t, err)

	block := o.dueRemindersBlock(ctx, "u1", 1000)
	assert.Contains(t, block, "DUE REMINDERS")
	assert.Contains(t, block, "Feed cats")

	// peek must not mark it fired
	due, err := o.reminders.PeekDue(ctx, "u1", 1000, 5)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}
