package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/sandbox"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/store"
)

func newTestDB(t *testing.T) *database.Client {
	t.Helper()
	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "butterfly.db"))
	c, err := database.NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestDeps(t *testing.T, provider llm.Provider) Deps {
	t.Helper()
	db := newTestDB(t)
	// fakeTool never implements WasmBacked, so it must be explicitly
	// native-overridden or ExecuteTool's runtime gate (pkg/sandbox's
	// registry.go) rejects it before Execute ever runs. All fakeTool
	// names used across this package's tests are listed here.
	registry := sandbox.NewRegistry(sandbox.NewPolicy(sandbox.Settings{
		NativeOverride: map[string]bool{
			"echo":            true,
			"flaky":           true,
			"boom":            true,
			"search_internet": true,
		},
	}), nil)
	return Deps{
		Settings:  Settings{AgentName: "butterfly", Instructions: "be helpful"},
		Provider:  provider,
		Messages:  store.NewMessageStore(db),
		Reminders: store.NewReminderStore(db),
		Registry:  registry,
	}
}

type fakeTool struct {
	name   string
	output string
	err    error
}

func (f *fakeTool) Name() string             { return f.name }
func (f *fakeTool) Description() string      { return "fake" }
func (f *fakeTool) ParametersSchema() string { return "{}" }
func (f *fakeTool) Configure(map[string]any) error { return nil }
func (f *fakeTool) Execute(context.Context, map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}
