package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/sandbox"
)

// skippableErrorMarkers are substrings of a tool error that the loop
// treats as transient/missing-resource rather than fatal, per spec.md
// §4.5's "Known transient/skippable errors" list (MCP not configured,
// missing GitHub PAT, WASM allocation/execute failures). The literal
// substrings below match what pkg/sandbox actually emits: an
// mcp.*/github.*/zapier.* capability call is recognized but has no
// registered host handler (pkg/sandbox/capability.go's Dispatch), and a
// guest module failing to instantiate or execute always produces a
// "wasm tool ... failed" error (pkg/sandbox/wasmhost.go).
var skippableErrorMarkers = []string{
	"has no registered handler",
	"wasm tool instantiate failed",
	"wasm tool execute failed",
	"wasm tool marshal input failed",
	"wasm tool input too large",
}

func isSkippableToolError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, marker := range skippableErrorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// runToolLoop executes the bounded 20-iteration tool loop: each
// iteration calls GenerateWithTools with the current composed prompt,
// executes at most the first returned tool call, appends an
// OBSERVATION block, and continues — generalizing
// ReActController.Run's per-iteration LLM-call/parse/execute/observe
// cycle into pkg/llm.Provider's single GenerateWithTools call shape
// (no separate ReAct text parsing needed: tool calls are structured).
func (o *Orchestrator) runToolLoop(ctx context.Context, userID, system, initialPrompt string, tools []sandbox.ToolDefinition) (string, error) {
	llmTools := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		llmTools[i] = llm.ToolDefinition{Name: t.Name, Description: t.Description, ParametersSchema: t.ParametersSchema}
	}

	prompt := initialPrompt
	lastText := ""

	for i := 0; i < MaxToolIterations; i++ {
		result, err := o.provider.GenerateWithTools(ctx, prompt, system, llmTools)
		if err != nil {
			return lastText, fmt.Errorf("tool loop iteration %d: %w", i, err)
		}

		if len(result.ToolCalls) == 0 {
			return result.Text, nil
		}
		if result.Text != "" {
			lastText = result.Text
		}

		call := result.ToolCalls[0]
		observation, fatal := o.executeToolCall(ctx, userID, tools, call)
		if fatal != nil {
			return lastText, fatal
		}

		prompt = prompt + "\n\nASSISTANT TOOL CALL: " + call.Name +
			"\nOBSERVATION: " + observation
	}

	return lastText, nil
}

// executeToolCall runs one tool call, applying the not-found, user_id-
// injection, skippable-error, and redaction rules from spec.md §4.5. It
// returns the JSON observation text and a non-nil error only for fatal
// (non-skippable) failures, which abort the loop.
func (o *Orchestrator) executeToolCall(ctx context.Context, userID string, assigned []sandbox.ToolDefinition, call llm.ToolCall) (string, error) {
	args := map[string]any{}
	if call.Arguments != "" {
		_ = json.Unmarshal([]byte(call.Arguments), &args)
	}
	if _, ok := args["user_id"]; !ok {
		args["user_id"] = userID
	}

	redactedArgs := o.masker.MaskToolResult(toJSON(args))

	if !isToolAssigned(assigned, call.Name) {
		o.emit(userID, call.Name, "not_found", map[string]any{"args": redactedArgs})
		return toJSON(map[string]any{"status": "not_found", "tool": call.Name}), nil
	}

	result, err := o.registry.ExecuteTool(ctx, call.Name, args)
	if err != nil {
		if isSkippableToolError(err) {
			o.emit(userID, call.Name, "skipped", map[string]any{"args": redactedArgs, "error": o.masker.MaskToolResult(err.Error())})
			return toJSON(map[string]any{"status": "skipped", "tool": call.Name, "error": err.Error()}), nil
		}
		o.emit(userID, call.Name, "error", map[string]any{"args": redactedArgs, "error": o.masker.MaskToolResult(err.Error())})
		return "", fmt.Errorf("tool %q: %w", call.Name, err)
	}

	status := "ok"
	if result.IsError {
		status = "skipped"
	}
	redactedContent := o.masker.MaskToolResult(result.Content)
	o.emit(userID, call.Name, status, map[string]any{"args": redactedArgs, "result": redactedContent})

	if result.IsError && isSkippableToolError(fmt.Errorf("%s", result.Content)) {
		return toJSON(map[string]any{"status": "skipped", "tool": call.Name, "error": result.Content}), nil
	}

	return toJSON(map[string]any{"status": status, "tool": call.Name, "result": result.Content}), nil
}

func toJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
