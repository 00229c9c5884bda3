package scheduler

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_RecordAppendsJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	a := NewAuditLogger(path)

	a.Record("wakeup", "ok", map[string]any{"wakeup_id": int64(3)})
	a.Record("wakeup", "error", map[string]any{"error": "boom"})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "wakeup", first["job"])
	assert.Equal(t, "ok", first["status"])
	assert.Contains(t, first, "timestamp")
}

func TestAuditLogger_EmptyPathIsNoOp(t *testing.T) {
	a := NewAuditLogger("")
	assert.NotPanics(t, func() { a.Record("job", "ok", nil) })
}

func TestAuditLogger_NilLoggerIsNoOp(t *testing.T) {
	var a *AuditLogger
	assert.NotPanics(t, func() { a.Record("job", "ok", nil) })
}
