package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
)

// handleDoctor handles POST /doctor: a small set of liveness/consistency
// diagnostics beyond the bare /health check — database connectivity and
// the count of registered tools.
func (s *Server) handleDoctor(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}

	if dbHealth, err := database.Health(reqCtx, s.db); err != nil {
		checks["database"] = gin.H{"status": "unhealthy", "error": err.Error()}
	} else {
		checks["database"] = gin.H{"status": dbHealth.Status, "response_time_ms": dbHealth.ResponseTime.Milliseconds()}
	}

	tools := s.current().Registry().ListTools()
	checks["sandbox"] = gin.H{"status": "healthy", "registered_tools": len(tools)}

	c.JSON(http.StatusOK, gin.H{"checks": checks})
}

// securityFinding is one security-audit result, matching the spec's
// fail/warn finding vocabulary (tool_runtime_invariant,
// network_default_deny).
type securityFinding struct {
	Check    string `json:"check"`
	Severity string `json:"severity"` // "fail" or "warn"
	Detail   string `json:"detail"`
}

// handleSecurityAudit handles POST /security_audit: runs the
// security-policy findings spec.md §4.1 names — every registered
// built-in tool must actually execute inside the WASM host unless
// explicitly opted native (tool_runtime_invariant, fail if violated),
// and the global network allowlist should default-deny
// (network_default_deny, warn if not).
//
// tool_runtime_invariant is checked against Registry.IsWasmBacked, the
// tool's genuine runtime, rather than Policy.Plan's Runtime: Plan only
// ever reports RuntimeNative when NativeOverride already says so, so
// comparing Plan's own output back against NativeOverride could never
// fail. A tool that is not actually WASM-backed and carries no override
// is the real invariant violation.
func (s *Server) handleSecurityAudit(c *gin.Context) {
	registry := s.current().Registry()
	policy := registry.Policy()

	settings := policy.Settings()
	var findings []securityFinding
	for _, tool := range registry.ListTools() {
		if !registry.IsWasmBacked(tool.Name) && !settings.NativeOverride[tool.Name] {
			findings = append(findings, securityFinding{
				Check:    "tool_runtime_invariant",
				Severity: "fail",
				Detail:   "tool " + tool.Name + " resolved to non-wasm runtime without explicit override",
			})
		}
	}

	if !settings.DefaultDeny {
		findings = append(findings, securityFinding{
			Check:    "network_default_deny",
			Severity: "warn",
			Detail:   "global sandbox network policy does not default-deny",
		})
	}

	c.JSON(http.StatusOK, gin.H{"findings": findings})
}
