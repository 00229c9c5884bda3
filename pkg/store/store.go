// Package store implements the encrypted persistence contracts (C2):
// append-only chat history with FTS and vector search, reminders, tasks,
// wakeup tasks, plans with step dependencies, and todo items, all backed
// by the single SQLite database opened in pkg/database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"
)

// nowFunc is overridable in tests to pin "now" deterministically.
var nowFunc = func() int64 { return time.Now().Unix() }

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// sanitizeFTSQuery reduces a free-text query to alnum tokens and quotes
// each one, matching spec's "sanitize to alnum tokens, quote" rule so
// FTS5 query syntax characters in user input can never break the MATCH.
func sanitizeFTSQuery(query string) string {
	tokens := tokenPattern.FindAllString(query, -1)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " ")
}

// isBusyOrLocked reports whether err looks like a SQLite busy/locked
// condition worth retrying.
func isBusyOrLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// isSQLLogicError reports whether err looks like SQLite's generic "SQL
// logic error", the signal the spec uses to trigger an FTS repair.
func isSQLLogicError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "sql logic error")
}

// withRetry retries fn up to 6 attempts total with exponential backoff
// on busy/locked errors, the contract clear_history uses for lock
// contention against the shared write connection.
func withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 6
	backoff := 10 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyOrLocked(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

var errNotFound = errors.New("store: not found")

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
