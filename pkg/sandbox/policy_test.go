package sandbox

import "testing"

func TestPolicy_Plan_DefaultsToWasm(t *testing.T) {
	p := NewPolicy(Settings{})
	plan := p.Plan("anything")
	if plan.Runtime != RuntimeWasm {
		t.Fatalf("expected wasm default, got %s", plan.Runtime)
	}
}

func TestPolicy_Plan_UnknownToolResolvesWasm(t *testing.T) {
	p := NewPolicy(Settings{NativeOverride: map[string]bool{"todo": true}})
	plan := p.Plan("unknown_tool")
	if plan.Runtime != RuntimeWasm {
		t.Fatalf("expected wasm for unknown tool, got %s", plan.Runtime)
	}
}

func TestPolicy_Plan_ExplicitOverrideResolvesNative(t *testing.T) {
	p := NewPolicy(Settings{NativeOverride: map[string]bool{"search_internet": true}})
	plan := p.Plan("search_internet")
	if plan.Runtime != RuntimeNative {
		t.Fatalf("expected native override, got %s", plan.Runtime)
	}
}

func TestIsDomainAllowed_Wildcard(t *testing.T) {
	if !IsDomainAllowed("example.com", []string{"*"}, true) {
		t.Fatal("wildcard entry should allow any domain")
	}
}

func TestIsDomainAllowed_ExactMatch(t *testing.T) {
	if !IsDomainAllowed("api.openai.com", []string{"api.openai.com"}, true) {
		t.Fatal("exact match should be allowed")
	}
	if IsDomainAllowed("evil.com", []string{"api.openai.com"}, true) {
		t.Fatal("non-matching domain should be denied")
	}
}

func TestIsDomainAllowed_SuffixMatch(t *testing.T) {
	if !IsDomainAllowed("sub.example.com", []string{"*.example.com"}, true) {
		t.Fatal("suffix wildcard should match subdomain")
	}
	if IsDomainAllowed("example.com", []string{"*.example.com"}, true) {
		t.Fatal("suffix wildcard must not match bare domain")
	}
}

func TestIsDomainAllowed_EmptyAllowlistRespectsDefaultDeny(t *testing.T) {
	if IsDomainAllowed("example.com", nil, true) {
		t.Fatal("empty allowlist with default_deny=true must deny")
	}
	if !IsDomainAllowed("example.com", nil, false) {
		t.Fatal("empty allowlist with default_deny=false must allow")
	}
}
