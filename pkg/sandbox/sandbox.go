// Package sandbox implements the tool registry and sandbox runtime (C3):
// tool registration and configuration, a native-vs-WASM runtime policy,
// a wazero-backed guest execution host with a capability-call
// back-channel, and append-only JSONL auditing of every sandbox
// decision and tool call.
package sandbox

import "context"

// Tool is something the registry can execute, either natively or
// inside the WASM host.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() string

	// Configure applies (or reapplies) configuration. Returning an error
	// during Register means the tool is not added; during ConfigureAll
	// the error propagates to the caller.
	Configure(config map[string]any) error

	// Execute runs the tool against params (a JSON object) and returns a
	// JSON response string.
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// WasmBacked is implemented by tools that actually execute inside the
// WASM host (WasmTool). Registry uses it to tell a tool's genuine
// runtime apart from the policy's requested one, so the security audit
// can detect a real mismatch instead of re-deriving its finding from
// the same override map Policy.Plan already consulted.
type WasmBacked interface {
	WasmBacked() bool
}

// ToolDefinition is what's presented to an LLM provider's tool list.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string
}

// Runtime identifies where a tool call executes.
type Runtime string

const (
	RuntimeNative Runtime = "native"
	RuntimeWasm   Runtime = "wasm"
)

// SandboxPlan is the per-call runtime decision computed by Policy.
type SandboxPlan struct {
	Runtime    Runtime
	ToolConfig map[string]any
	Reason     string
}

// ToolResult is the outcome of one ExecuteTool call.
type ToolResult struct {
	Name    string
	Content string
	IsError bool
}
