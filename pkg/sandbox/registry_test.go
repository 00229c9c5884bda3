package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name        string
	configureErr error
	executeErr  error
	executeOut  string
	lastParams  map[string]any
	configured  int
}

func (f *fakeTool) Name() string             { return f.name }
func (f *fakeTool) Description() string      { return "fake tool" }
func (f *fakeTool) ParametersSchema() string { return "{}" }
func (f *fakeTool) Configure(cfg map[string]any) error {
	f.configured++
	return f.configureErr
}
func (f *fakeTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	f.lastParams = params
	if f.executeErr != nil {
		return "", f.executeErr
	}
	return f.executeOut, nil
}

func TestRegistry_RegisterTool_RejectsDuplicateNames(t *testing.T) {
	r := NewRegistry(NewPolicy(Settings{NativeOverride: map[string]bool{"dup": true}}), nil)
	t1 := &fakeTool{name: "dup", executeOut: "first"}
	t2 := &fakeTool{name: "dup", executeOut: "second"}

	r.RegisterTool(t1)
	r.RegisterTool(t2)

	result, err := r.ExecuteTool(context.Background(), "dup", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", result.Content)
}

func TestRegistry_RegisterTool_FailsSilentlyOnConfigureError(t *testing.T) {
	r := NewRegistry(NewPolicy(Settings{}), nil)
	bad := &fakeTool{name: "bad", configureErr: assert.AnError}
	r.RegisterTool(bad)

	_, err := r.ExecuteTool(context.Background(), "bad", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_ConfigureAll_PropagatesErrors(t *testing.T) {
	r := NewRegistry(NewPolicy(Settings{}), nil)
	good := &fakeTool{name: "good"}
	r.RegisterTool(good)

	bad := &fakeTool{name: "good"}
	_ = bad

	good.configureErr = assert.AnError
	err := r.ConfigureAll(NewPolicy(Settings{}))
	require.Error(t, err)
}

func TestRegistry_ExecuteTool_WritesAuditEntries(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	r := NewRegistry(NewPolicy(Settings{NativeOverride: map[string]bool{"echo": true}}), NewAuditLogger(auditPath))

	tool := &fakeTool{name: "echo", executeOut: "hello"}
	r.RegisterTool(tool)

	_, err := r.ExecuteTool(context.Background(), "echo", map[string]any{"x": 1})
	require.NoError(t, err)

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "sandbox_decision")
	assert.Contains(t, lines[1], `"status":"ok"`)
}

func TestRegistry_ExecuteTool_AuditsErrorStatus(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	r := NewRegistry(NewPolicy(Settings{NativeOverride: map[string]bool{"boom": true}}), NewAuditLogger(auditPath))

	tool := &fakeTool{name: "boom", executeErr: assert.AnError}
	r.RegisterTool(tool)

	result, err := r.ExecuteTool(context.Background(), "boom", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"error"`)
}

func TestRegistry_ListTools(t *testing.T) {
	r := NewRegistry(NewPolicy(Settings{}), nil)
	r.RegisterTool(&fakeTool{name: "a"})
	r.RegisterTool(&fakeTool{name: "b"})

	defs := r.ListTools()
	assert.Len(t, defs, 2)
}
