package sandbox

import (
	"context"
	"fmt"
	"sync"
)

// Registry owns the set of registered tools and the policy/audit
// machinery used to run them. Generalizes the teacher's
// pkg/mcp.ToolExecutor + pkg/agent.ToolExecutor split into a single
// registry that owns both native and WASM dispatch.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	policy *Policy
	audit  *AuditLogger
}

// NewRegistry creates an empty registry with the given policy and
// audit logger. auditLogger may be nil to disable auditing.
func NewRegistry(policy *Policy, auditLogger *AuditLogger) *Registry {
	if auditLogger == nil {
		auditLogger = NewAuditLogger("")
	}
	return &Registry{
		tools:  make(map[string]Tool),
		policy: policy,
		audit:  auditLogger,
	}
}

// RegisterTool configures the tool against the registry's current
// policy config and adds it. Configuration failure or a duplicate name
// makes registration fail silently: the tool is not added, and no
// error is surfaced to the caller (matching the spec's "fails
// silently" registration contract).
func (r *Registry) RegisterTool(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return
	}
	cfg := r.policy.Settings().ToolConfig[name]
	if err := tool.Configure(cfg); err != nil {
		return
	}
	r.tools[name] = tool
}

// ConfigureAll replaces the registry's policy and re-runs Configure on
// every registered tool. The first configuration error aborts and is
// returned; tools configured before the failing one keep their new
// config.
func (r *Registry) ConfigureAll(policy *Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.policy = policy
	for name, tool := range r.tools {
		cfg := policy.Settings().ToolConfig[name]
		if err := tool.Configure(cfg); err != nil {
			return fmt.Errorf("configure tool %q: %w", name, err)
		}
	}
	return nil
}

// Policy returns the registry's current policy, letting callers read its
// settings (the security-audit handler does) or compute plans for
// registered tools without duplicating the registry's tool list.
func (r *Registry) Policy() *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// IsWasmBacked reports whether the named tool actually executes inside
// the WASM host, independent of what Policy.Plan would assign it. An
// unregistered name reports false. Used by the security audit to find
// a tool that genuinely runs native without an explicit override,
// rather than re-deriving the same decision Plan already made.
func (r *Registry) IsWasmBacked(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return false
	}
	backed, ok := tool.(WasmBacked)
	return ok && backed.WasmBacked()
}

// ListTools returns tool definitions for every registered tool.
func (r *Registry) ListTools() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, ToolDefinition{
			Name:             tool.Name(),
			Description:      tool.Description(),
			ParametersSchema: tool.ParametersSchema(),
		})
	}
	return out
}

// ExecuteTool computes a sandbox plan, audits the decision, dispatches
// to the named tool, and audits completion status. Dispatch is gated on
// the plan actually matching the tool's real backing (spec.md §4.3:
// "dispatch to the native handler or to the WASM runtime") rather than
// always running whatever is registered: a tool whose genuine backing
// (WasmBacked) disagrees with plan.Runtime fails closed instead of
// silently executing under the wrong runtime.
func (r *Registry) ExecuteTool(ctx context.Context, name string, params map[string]any) (*ToolResult, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	policy := r.policy
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("sandbox: tool %q is not registered", name)
	}

	plan := policy.Plan(name)
	r.audit.Decision(name, plan)

	actualRuntime := RuntimeNative
	if backed, ok := tool.(WasmBacked); ok && backed.WasmBacked() {
		actualRuntime = RuntimeWasm
	}
	if actualRuntime != plan.Runtime {
		err := fmt.Errorf("sandbox: tool %q is %s-backed but policy plans %s execution (%s)",
			name, actualRuntime, plan.Runtime, plan.Reason)
		r.audit.Completion(name, "error")
		return &ToolResult{Name: name, Content: err.Error(), IsError: true}, nil
	}

	content, err := tool.Execute(ctx, params)
	status := "ok"
	isError := false
	if err != nil {
		status = "error"
		isError = true
		content = err.Error()
	}
	r.audit.Completion(name, status)

	return &ToolResult{Name: name, Content: content, IsError: isError}, nil
}
