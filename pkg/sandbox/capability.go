package sandbox

import (
	"context"
	"fmt"
	"strings"
)

// CapabilityHandler executes one recognized capability call and
// returns its JSON-serializable response.
type CapabilityHandler func(ctx context.Context, args map[string]any) (map[string]any, error)

// exactCapabilities is the closed set of non-templated capability
// names a WASM guest may request, grounded in wasm-tool/src/lib.rs's
// capability_call sites: coding.generate, http.request,
// mcp.list_tools, mcp.call, search.internet, and the github/zapier
// list_tools/call_tool pairs.
var exactCapabilities = map[string]bool{
	"coding.generate":   true,
	"http.request":      true,
	"mcp.list_tools":    true,
	"mcp.call":          true,
	"search.internet":   true,
	"github.list_tools": true,
	"github.call_tool":  true,
	"zapier.list_tools": true,
	"zapier.call_tool":  true,
}

// kvSqlitePrefix is the templated family kv.sqlite.<entity>.<op>,
// covering todo/tasks/reminders/planning/wakeup entity operations.
const kvSqlitePrefix = "kv.sqlite."

// IsRecognizedCapability reports whether name belongs to the closed
// set of capability names the host will dispatch.
func IsRecognizedCapability(name string) bool {
	if exactCapabilities[name] {
		return true
	}
	if !strings.HasPrefix(name, kvSqlitePrefix) {
		return false
	}
	rest := strings.TrimPrefix(name, kvSqlitePrefix)
	parts := strings.Split(rest, ".")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// CapabilityDispatcher maps capability names to host-side handlers and
// rejects anything outside the recognized set with invalid_args.
type CapabilityDispatcher struct {
	handlers map[string]CapabilityHandler
}

// NewCapabilityDispatcher returns an empty dispatcher; register
// handlers with Register.
func NewCapabilityDispatcher() *CapabilityDispatcher {
	return &CapabilityDispatcher{handlers: make(map[string]CapabilityHandler)}
}

// Register installs the handler for an exact capability name or a
// kv.sqlite.<entity> prefix (registered as "kv.sqlite.<entity>",
// dispatched for every <op> under that entity).
func (d *CapabilityDispatcher) Register(name string, handler CapabilityHandler) {
	d.handlers[name] = handler
}

// Dispatch resolves and invokes the handler for a capability call. An
// unrecognized capability name fails with invalid_args; a recognized
// name with no registered handler fails the same way (the host simply
// doesn't implement that capability yet).
func (d *CapabilityDispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if !IsRecognizedCapability(name) {
		return nil, fmt.Errorf("invalid_args: unrecognized capability %q", name)
	}

	if handler, ok := d.handlers[name]; ok {
		return handler(ctx, args)
	}

	if strings.HasPrefix(name, kvSqlitePrefix) {
		parts := strings.SplitN(strings.TrimPrefix(name, kvSqlitePrefix), ".", 2)
		if len(parts) == 2 {
			if handler, ok := d.handlers[kvSqlitePrefix+parts[0]]; ok {
				return handler(ctx, args)
			}
		}
	}

	return nil, fmt.Errorf("invalid_args: capability %q has no registered handler", name)
}
