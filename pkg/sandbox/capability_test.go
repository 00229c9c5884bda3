package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRecognizedCapability(t *testing.T) {
	assert.True(t, IsRecognizedCapability("coding.generate"))
	assert.True(t, IsRecognizedCapability("search.internet"))
	assert.True(t, IsRecognizedCapability("kv.sqlite.todo.create"))
	assert.True(t, IsRecognizedCapability("kv.sqlite.wakeup.list"))
	assert.False(t, IsRecognizedCapability("kv.sqlite.todo"))
	assert.False(t, IsRecognizedCapability("filesystem.write"))
}

func TestCapabilityDispatcher_DispatchesExactName(t *testing.T) {
	d := NewCapabilityDispatcher()
	called := false
	d.Register("search.internet", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		called = true
		return map[string]any{"status": "ok"}, nil
	})

	result, err := d.Dispatch(context.Background(), "search.internet", map[string]any{"query": "go"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "ok", result["status"])
}

func TestCapabilityDispatcher_DispatchesKvSqliteEntityPrefix(t *testing.T) {
	d := NewCapabilityDispatcher()
	var gotOp string
	d.Register("kv.sqlite.todo", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		gotOp, _ = args["action"].(string)
		return map[string]any{"status": "ok"}, nil
	})

	_, err := d.Dispatch(context.Background(), "kv.sqlite.todo.create", map[string]any{"action": "create"})
	require.NoError(t, err)
	assert.Equal(t, "create", gotOp)
}

func TestCapabilityDispatcher_RejectsUnrecognizedName(t *testing.T) {
	d := NewCapabilityDispatcher()
	_, err := d.Dispatch(context.Background(), "filesystem.write", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_args")
}

func TestCapabilityDispatcher_RejectsRecognizedNameWithoutHandler(t *testing.T) {
	d := NewCapabilityDispatcher()
	_, err := d.Dispatch(context.Background(), "http.request", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_args")
}
