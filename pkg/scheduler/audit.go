package scheduler

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// AuditLogger appends one JSON line per job execution to a configured
// path, generalizing pkg/sandbox.AuditLogger's append+create,
// swallow-on-failure write discipline to per-job scheduler audit logs
// (spec.md §4.6: "Each execution appends one audit record to the
// wakeup/tasks audit log").
type AuditLogger struct {
	Path string
}

// NewAuditLogger creates a logger writing to path. An empty path makes
// every write a no-op, used when a job's audit log is disabled.
func NewAuditLogger(path string) *AuditLogger {
	return &AuditLogger{Path: path}
}

// Record appends one audit line for a job's execution outcome.
func (a *AuditLogger) Record(job, status string, detail map[string]any) {
	if a == nil || a.Path == "" {
		return
	}
	record := map[string]any{
		"job":       job,
		"status":    status,
		"timestamp": time.Now().Unix(),
	}
	for k, v := range detail {
		record[k] = v
	}

	data, err := json.Marshal(record)
	if err != nil {
		slog.Warn("scheduler audit marshal failed", "job", job, "error", err)
		return
	}
	data = append(data, '\n')

	f, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Warn("scheduler audit open failed", "job", job, "path", a.Path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		slog.Warn("scheduler audit write failed", "job", job, "path", a.Path, "error", err)
	}
}
