package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_GenerateText(t *testing.T) {
	m := NewMockProvider()
	out, err := m.GenerateText(context.Background(), "hello", "sys")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
}

func TestMockProvider_GenerateWithTools_ScriptedCallThenText(t *testing.T) {
	m := NewMockProvider()
	m.ToolCalls = []ToolCall{{ID: "1", Name: "search_internet", Arguments: `{"query":"go"}`}}

	first, err := m.GenerateWithTools(context.Background(), "p", "s", nil)
	require.NoError(t, err)
	require.Len(t, first.ToolCalls, 1)
	assert.Equal(t, "search_internet", first.ToolCalls[0].Name)

	second, err := m.GenerateWithTools(context.Background(), "p", "s", nil)
	require.NoError(t, err)
	assert.Empty(t, second.ToolCalls)
	assert.NotEmpty(t, second.Text)
}

func TestMockProvider_ChatStream_TerminatesWithMessageEnd(t *testing.T) {
	m := NewMockProvider()
	events, err := m.ChatStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)

	var last ChatEvent
	for ev := range events {
		last = ev
	}
	assert.Equal(t, ChatEventMessageEnd, last.EventType)
}

func TestMockProvider_Embed_OneVectorPerInput(t *testing.T) {
	m := NewMockProvider()
	vecs, err := m.Embed(context.Background(), []string{"a", "b", "c"}, "")
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}
