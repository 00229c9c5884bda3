package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/sandbox"
)

func TestComposeSystemPrompt_IncludesIdentityAndGovernance(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	o := NewOrchestrator(deps)
	o.heartbeatMD = "tick tick"
	o.promptMD = "be nice"

	prompt := o.composeSystemPrompt(true, []sandbox.ToolDefinition{{Name: "echo"}})

	assert.Contains(t, prompt, "butterfly")
	assert.Contains(t, prompt, "context-role message")
	assert.Contains(t, prompt, "tick tick")
	assert.Contains(t, prompt, "be nice")
	assert.Contains(t, prompt, "Respond helpfully")
	assert.Contains(t, prompt, "Allowed tools: echo")
}

func TestComposeSystemPrompt_NoToolsListsNone(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	o := NewOrchestrator(deps)
	prompt := o.composeSystemPrompt(false, nil)
	assert.Contains(t, prompt, "Allowed tools: none")
}

func TestAssignedTools_FiltersByAllowlist(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	o := NewOrchestrator(deps)
	o.registry.RegisterTool(&fakeTool{name: "a"})
	o.registry.RegisterTool(&fakeTool{name: "b"})
	o.settings.AllowedTools = []string{"a"}

	tools := o.assignedTools()
	assert.Len(t, tools, 1)
	assert.Equal(t, "a", tools[0].Name)
}

func TestAssignedTools_EmptyAllowlistReturnsAll(t *testing.T) {
	deps := newTestDeps(t, llm.NewMockProvider())
	o := NewOrchestrator(deps)
	o.registry.RegisterTool(&fakeTool{name: "a"})
	o.registry.RegisterTool(&fakeTool{name: "b"})

	assert.Len(t, o.assignedTools(), 2)
}
