package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/sandbox"
)

// governanceBlock is the fixed governance + response-style block
// appended to every composed system prompt, matching the teacher's
// practice of a constant "format instructions" block appended after
// the per-agent instructions (pkg/agent/prompt/instructions.go,
// reactFormatInstructions).
const governanceBlock = "Respond helpfully and safely. Never fabricate tool results. " +
	"When a tool call fails, say so plainly instead of guessing. " +
	"Keep responses focused and avoid unnecessary repetition."

// composeSystemPrompt builds the system prompt for one turn: agent
// name + instructions, a context-in-memory marker when context is
// loaded, the current epoch seconds, heartbeat markdown, prompt
// markdown, the governance block, and the enumerated tool list —
// generalizing PromptBuilder.BuildReActMessages' system-message
// composition (composed instructions + format instructions + focus)
// into this daemon's single turn shape.
func (o *Orchestrator) composeSystemPrompt(contextLoaded bool, tools []sandbox.ToolDefinition) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s.\n\n%s\n\n", o.settings.AgentName, o.settings.Instructions)

	if contextLoaded {
		sb.WriteString("A context document for this session is available as a prior context-role message.\n\n")
	}

	fmt.Fprintf(&sb, "Current time (epoch seconds): %d\n\n", time.Now().Unix())

	if heartbeat := o.currentHeartbeatMD(); heartbeat != "" {
		sb.WriteString("## Heartbeat\n\n")
		sb.WriteString(heartbeat)
		sb.WriteString("\n\n")
	}

	if prompt := o.currentPromptMD(); prompt != "" {
		sb.WriteString("## Prompt\n\n")
		sb.WriteString(prompt)
		sb.WriteString("\n\n")
	}

	sb.WriteString(governanceBlock)
	sb.WriteString("\n\n")

	sb.WriteString(formatAllowedTools(tools))

	return sb.String()
}

// formatAllowedTools renders the final enumerated list of allowed tool
// names the system prompt must carry, regardless of whether the turn
// ends up using the bounded tool loop.
func formatAllowedTools(tools []sandbox.ToolDefinition) string {
	if len(tools) == 0 {
		return "Allowed tools: none."
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return "Allowed tools: " + strings.Join(names, ", ")
}

// assignedTools filters the registry's tool list down to the names the
// agent's configuration allows, the way the bounded tool loop's
// "not_found" handling implies a closed per-agent tool set rather than
// every registered tool being callable by every agent.
func (o *Orchestrator) assignedTools() []sandbox.ToolDefinition {
	if o.registry == nil {
		return nil
	}
	all := o.registry.ListTools()
	if len(o.settings.AllowedTools) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(o.settings.AllowedTools))
	for _, n := range o.settings.AllowedTools {
		allowed[n] = true
	}
	var out []sandbox.ToolDefinition
	for _, t := range all {
		if allowed[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

func isToolAssigned(tools []sandbox.ToolDefinition, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}
