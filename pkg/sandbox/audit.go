package sandbox

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// AuditLogger appends one JSON object per line to Path, opening the
// file with append+create on every write rather than holding a
// long-lived handle. Write failures are logged and swallowed — an
// audit outage must never abort a tool call.
type AuditLogger struct {
	Path string
}

// NewAuditLogger returns an AuditLogger writing to path. An empty path
// disables auditing (writes are no-ops).
func NewAuditLogger(path string) *AuditLogger {
	return &AuditLogger{Path: path}
}

func (a *AuditLogger) write(record map[string]any) {
	if a == nil || a.Path == "" {
		return
	}
	record["timestamp"] = time.Now().Unix()
	line, err := json.Marshal(record)
	if err != nil {
		slog.Warn("sandbox audit: marshal failed", "error", err)
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Warn("sandbox audit: open failed", "path", a.Path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		slog.Warn("sandbox audit: write failed", "path", a.Path, "error", err)
	}
}

// Decision records a sandbox_decision entry.
func (a *AuditLogger) Decision(tool string, plan SandboxPlan) {
	a.write(map[string]any{
		"type":    "sandbox_decision",
		"tool":    tool,
		"runtime": string(plan.Runtime),
		"reason":  plan.Reason,
	})
}

// Completion records a tool-call completion entry.
func (a *AuditLogger) Completion(tool, status string) {
	a.write(map[string]any{
		"tool":   tool,
		"status": status,
	})
}
