package agent

import (
	"log/slog"
	"sync"
)

// LifecycleEvent enumerates the brain manager's fixed event set.
type LifecycleEvent string

const (
	LifecycleStart             LifecycleEvent = "Start"
	LifecycleTick              LifecycleEvent = "Tick"
	LifecycleUserMessage       LifecycleEvent = "UserMessage"
	LifecycleAssistantResponse LifecycleEvent = "AssistantResponse"
)

// Plugin reacts to a lifecycle event. Plugin failures are logged and
// swallowed — a misbehaving plugin must never abort a turn.
type Plugin func(event LifecycleEvent, userID, text string) error

// BrainManager fans lifecycle events out to subscribed plugins, firing
// Start once on the orchestrator's first turn and Tick/UserMessage/
// AssistantResponse on every subsequent turn or scheduler tick.
// Generalizes the teacher's plugin-registry pattern (pkg/mcp server
// registry: name-keyed map, best-effort dispatch) applied to lifecycle
// events instead of MCP tool servers.
type BrainManager struct {
	mu       sync.Mutex
	plugins  map[string]Plugin
	started  bool
}

// NewBrainManager creates an empty lifecycle manager.
func NewBrainManager() *BrainManager {
	return &BrainManager{plugins: make(map[string]Plugin)}
}

// Subscribe registers a named plugin. A duplicate name replaces the
// previous registration.
func (b *BrainManager) Subscribe(name string, plugin Plugin) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plugins[name] = plugin
}

// Unsubscribe removes a named plugin.
func (b *BrainManager) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.plugins, name)
}

// Fire dispatches event to every subscribed plugin, swallowing and
// logging individual plugin failures so one bad plugin never blocks
// the others or the caller.
func (b *BrainManager) Fire(event LifecycleEvent, userID, text string) {
	b.mu.Lock()
	plugins := make(map[string]Plugin, len(b.plugins))
	for name, p := range b.plugins {
		plugins[name] = p
	}
	b.mu.Unlock()

	for name, plugin := range plugins {
		if err := plugin(event, userID, text); err != nil {
			slog.Warn("brain plugin failed", "plugin", name, "event", event, "error", err)
		}
	}
}

// EnsureStarted fires Start exactly once across this manager's
// lifetime; subsequent calls are no-ops.
func (b *BrainManager) EnsureStarted() {
	b.mu.Lock()
	alreadyStarted := b.started
	b.started = true
	b.mu.Unlock()

	if !alreadyStarted {
		b.Fire(LifecycleStart, "", "")
	}
}
