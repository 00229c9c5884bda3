package api

import (
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/agent"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/config"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/sandbox"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/store"
)

const testToken = "test-process-token"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *database.Client {
	t.Helper()
	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "butterfly.db"))
	c, err := database.NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestServer(t *testing.T) (*Server, *database.Client) {
	t.Helper()
	return newTestServerWithToken(t, testToken)
}

func newTestServerWithToken(t *testing.T, token string) (*Server, *database.Client) {
	t.Helper()
	db := newTestDB(t)
	registry := sandbox.NewRegistry(sandbox.NewPolicy(sandbox.Settings{DefaultDeny: true}), nil)
	orch := agent.NewOrchestrator(agent.Deps{
		Settings:  agent.Settings{AgentName: "butterfly"},
		Provider:  &llm.MockProvider{},
		Messages:  store.NewMessageStore(db),
		Reminders: store.NewReminderStore(db),
		Registry:  registry,
	})

	cfg := &config.Config{HTTP: config.HTTPConfig{AuthToken: token}, Raw: map[string]any{}}
	s := New(cfg, t.TempDir(), orch, db, func(cfg *config.Config) (*agent.Orchestrator, error) {
		return orch, nil
	})
	return s, db
}
