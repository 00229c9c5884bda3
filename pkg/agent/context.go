package agent

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/config"
)

// refreshContext fetches the primary context markdown if the debounce
// window has elapsed and no refresh is already in flight. Successful
// refreshes overwrite the in-memory copy and emit a context UI event;
// failures emit an error event and leave contextLoaded false so the
// caller may proceed without context.
//
// The non-reentrant guard mirrors the teacher's pattern of a bool flag
// under the same mutex as the state it protects (pkg/queue.Worker's
// running flag), rather than a separate atomic — the whole refresh
// happens while contextMu is held except for the actual network call.
func (o *Orchestrator) refreshContext(ctx context.Context, userID string) {
	o.contextMu.Lock()
	if o.refreshInFlight || time.Since(o.lastRefresh) < ContextRefreshDebounce {
		o.contextMu.Unlock()
		return
	}
	o.refreshInFlight = true
	o.contextMu.Unlock()

	content, err := o.source.FetchContext(ctx)

	o.contextMu.Lock()
	o.refreshInFlight = false
	o.lastRefresh = time.Now()
	if err != nil {
		o.contextMu.Unlock()
		o.emit(userID, "context", "error", map[string]any{"error": err.Error()})
		return
	}
	o.contextContent = content
	o.contextMu.Unlock()

	o.emit(userID, "context", "ok", map[string]any{"bytes": len(content)})
}

// ensureContextInMemory compares the current context markdown's MD5
// against the stored marker and, if changed, inserts it as a context-
// role message. Returns whether context is loaded (non-empty) so
// process_text can decide whether to proceed without it.
func (o *Orchestrator) ensureContextInMemory(ctx context.Context, userID string) bool {
	o.refreshContext(ctx, userID)

	o.contextMu.Lock()
	content := o.contextContent
	prevHash := o.contextHash
	o.contextMu.Unlock()

	if content == "" {
		return false
	}

	hash := md5Hex(content)
	if hash == prevHash {
		return true
	}

	if o.messages != nil {
		_, _ = o.messages.Append(ctx, userID, "context", content, time.Now().Unix())
	}

	o.contextMu.Lock()
	o.contextHash = hash
	o.contextMu.Unlock()

	return true
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// truncateContextDoc caps the context doc injected for autonomy ticks
// and system-user turns at the configured limit.
func truncateContextDoc(doc string) string {
	const limit = config.ContextDocTruncateLimit
	if len(doc) <= limit {
		return doc
	}
	return doc[:limit]
}

// preloadBudget bounds the synchronous portion of PreloadBoot, per
// spec.md §5: "preload quick-paths use a 2 s budget before deferring to
// a background task that publishes a later phase:"deferred" UI event."
const preloadBudget = 2 * time.Second

// PreloadBoot warms the context/heartbeat/prompt material for userID.
// It tries to finish within preloadBudget; if the context source hasn't
// responded by then, it returns immediately and finishes the refresh on
// a detached goroutine, emitting a "deferred" phase UI event when that
// background refresh completes.
func (o *Orchestrator) PreloadBoot(userID string) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.ensureContextInMemory(context.Background(), userID)
	}()

	select {
	case <-done:
		return
	case <-time.After(preloadBudget):
	}

	go func() {
		<-done
		o.emit(userID, "preload", "ok", map[string]any{"phase": "deferred"})
	}()
}
