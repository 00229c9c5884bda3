package sandbox

import "strings"

// Settings is the sandbox-wide configuration snapshot: a set of tools
// explicitly opted out of WASM, and the global network allowlist used
// by native tools implementing their own domain checks (e.g.
// search_internet).
type Settings struct {
	// NativeOverride lists built-in tool names explicitly configured to
	// run native instead of the wasm default.
	NativeOverride map[string]bool

	// NetworkAllow is the global domain allowlist. Empty with
	// DefaultDeny true denies every domain; empty with DefaultDeny
	// false allows every domain.
	NetworkAllow []string
	DefaultDeny  bool

	// ToolConfig is the per-tool configuration blob passed through to
	// Configure and attached to the computed SandboxPlan.
	ToolConfig map[string]map[string]any
}

// Policy computes a SandboxPlan for a named tool from the current
// Settings snapshot. The zero value is a no-overrides, wasm-everything
// policy.
type Policy struct {
	settings Settings
}

// NewPolicy builds a Policy from a Settings snapshot.
func NewPolicy(settings Settings) *Policy {
	if settings.NativeOverride == nil {
		settings.NativeOverride = map[string]bool{}
	}
	return &Policy{settings: settings}
}

// Settings returns the policy's current configuration snapshot.
func (p *Policy) Settings() Settings {
	return p.settings
}

// Plan computes the sandbox plan for toolName. The default for every
// tool, built-in or unknown, is wasm; only an explicit NativeOverride
// entry resolves to native.
func (p *Policy) Plan(toolName string) SandboxPlan {
	cfg := p.settings.ToolConfig[toolName]
	if p.settings.NativeOverride[toolName] {
		return SandboxPlan{
			Runtime:    RuntimeNative,
			ToolConfig: cfg,
			Reason:     "explicit native override configured for " + toolName,
		}
	}
	return SandboxPlan{
		Runtime:    RuntimeWasm,
		ToolConfig: cfg,
		Reason:     "default wasm sandbox plan",
	}
}

// IsDomainAllowed reports whether domain passes the allowlist: allowed
// if the allowlist contains "*", matches exactly, or a "*.suffix"
// entry matches; an empty allowlist allows everything unless
// defaultDeny is true.
func IsDomainAllowed(domain string, allowlist []string, defaultDeny bool) bool {
	for _, entry := range allowlist {
		if entry == "*" {
			return true
		}
	}
	if len(allowlist) == 0 {
		return !defaultDeny
	}
	for _, entry := range allowlist {
		if entry == domain {
			return true
		}
		if suffix, ok := strings.CutPrefix(entry, "*."); ok {
			if strings.HasSuffix(domain, "."+suffix) {
				return true
			}
		}
	}
	return false
}
