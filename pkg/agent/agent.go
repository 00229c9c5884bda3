// Package agent implements the C5 agent orchestrator: system prompt
// composition, memory/reminder context assembly, the bounded tool
// loop, and the brain lifecycle event fan-out.
//
// Generalizes the teacher's pkg/agent (Agent interface, ExecutionResult)
// and pkg/agent/controller/react.go (the ReAct iteration loop) into a
// single Orchestrator: one strategy (bounded tool loop), one kind of
// turn (process_text), driven by pkg/llm.Provider instead of the
// teacher's per-stage ExecutionContext/ConversationMessage machinery.
package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/config"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/events"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/masking"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/sandbox"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/store"
)

// MaxToolIterations bounds the tool loop (spec: 20 iterations).
const MaxToolIterations = 20

// ContextRefreshDebounce gates remote context-markdown fetches.
const ContextRefreshDebounce = config.DefaultContextRefreshDebounce * time.Second

// ContextSource fetches the primary context markdown from wherever the
// agent's configuration points it at (a file, an HTTP source, a static
// string in tests). Kept as a narrow interface so Orchestrator never
// needs to know the transport, the same separation the teacher draws
// between pkg/agent (strategy) and pkg/mcp (transport).
type ContextSource interface {
	FetchContext(ctx context.Context) (string, error)
}

// StaticContextSource returns a fixed string, used for tests and for
// agents configured with no external context source.
type StaticContextSource string

func (s StaticContextSource) FetchContext(context.Context) (string, error) {
	return string(s), nil
}

// PromptSource fetches the heartbeat/prompt markdown an orchestrator
// composes into every system prompt (pkg/agent/prompt.go), re-read on
// each scheduler wakeup tick so edited configuration takes effect
// without a process restart.
type PromptSource interface {
	FetchHeartbeatMD(ctx context.Context) (string, error)
	FetchPromptMD(ctx context.Context) (string, error)
}

// StaticPromptSource returns fixed heartbeat/prompt strings, used for
// tests and agents with no reloadable source configured.
type StaticPromptSource struct {
	Heartbeat string
	Prompt    string
}

func (s StaticPromptSource) FetchHeartbeatMD(context.Context) (string, error) { return s.Heartbeat, nil }
func (s StaticPromptSource) FetchPromptMD(context.Context) (string, error)    { return s.Prompt, nil }

// ConfigPromptSource re-reads agent.heartbeat_markdown/agent.prompt_markdown
// from a live *config.Config on every call, so a wakeup-tick reload
// observes edits made since the orchestrator was built (e.g. via
// /reload_config rewriting the on-disk config before the next tick).
type ConfigPromptSource struct {
	Cfg *config.Config
}

func (s ConfigPromptSource) FetchHeartbeatMD(context.Context) (string, error) {
	return s.Cfg.GetString("agent.heartbeat_markdown", ""), nil
}

func (s ConfigPromptSource) FetchPromptMD(context.Context) (string, error) {
	return s.Cfg.GetString("agent.prompt_markdown", ""), nil
}

// Settings configures one agent handle: its identity, prompt material,
// and the tool names it is allowed to call. Resolved from config.Config
// the way the teacher's pkg/config resolves ScheduleSettings — a small
// typed view over the raw dotted-path tree.
type Settings struct {
	AgentName    string
	Instructions string
	HeartbeatMD  string
	PromptMD     string
	AllowedTools []string
	MemoryModel  string // embedding model name for the semantic search arm

	// SummarizationThreshold is the assistant-message count (per spec.md
	// §3 Lifecycles) past which persistTurn fires an async summarization
	// into the memories table. 0 disables summarization.
	SummarizationThreshold int
	// RetentionDays implements the optional per-user retention policy
	// from spec.md §3; 0 disables it.
	RetentionDays int
}

// SettingsFromConfig resolves agent identity/prompt settings from the
// recognized dotted-path options (agent.name, agent.instructions,
// agent.heartbeat_markdown, agent.prompt_markdown, agent.allowed_tools,
// agent.memory_model), mirroring pkg/config.ScheduleSettings' resolution
// style.
func SettingsFromConfig(c *config.Config) Settings {
	tools := c.GetString("agent.allowed_tools", "")
	return Settings{
		AgentName:              c.GetString("agent.name", "butterfly"),
		Instructions:           c.GetString("agent.instructions", defaultInstructions),
		HeartbeatMD:            c.GetString("agent.heartbeat_markdown", ""),
		PromptMD:               c.GetString("agent.prompt_markdown", ""),
		AllowedTools:           splitCSV(tools),
		MemoryModel:            c.GetString("agent.memory_model", "text-embedding"),
		SummarizationThreshold: c.GetInt("agent.summarization_threshold", 20),
		RetentionDays:          c.GetInt("agent.retention_days", 0),
	}
}

const defaultInstructions = "You are Butterfly, a locally-run personal assistant. " +
	"Be concise, truthful, and use tools only when they help answer the user."

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Orchestrator is the C5 agent handle. One Orchestrator is built per
// loaded configuration (see pkg/api's /reload_config); the current
// handle is swapped atomically by the caller, matching spec.md §5's
// reader-writer snapshot requirement for "the current agent handle".
type Orchestrator struct {
	settings Settings
	provider llm.Provider
	messages *store.MessageStore
	reminders *store.ReminderStore
	registry *sandbox.Registry
	masker   *masking.Service
	bus      *events.Bus
	source   ContextSource
	brain    *BrainManager

	contextMu       sync.Mutex
	contextContent  string
	contextHash     string
	lastRefresh     time.Time
	refreshInFlight bool

	promptSource PromptSource
	promptMu     sync.RWMutex
	heartbeatMD  string
	promptMD     string
}

// Deps bundles an Orchestrator's collaborators, avoiding an
// nine-argument constructor.
type Deps struct {
	Settings     Settings
	Provider     llm.Provider
	Messages     *store.MessageStore
	Reminders    *store.ReminderStore
	Registry     *sandbox.Registry
	Masker       *masking.Service
	Bus          *events.Bus
	Source       ContextSource
	PromptSource PromptSource
}

// NewOrchestrator wires an agent handle from its dependencies. A nil
// Masker or Bus is replaced with a working default so callers (tests,
// minimal configs) don't need to construct them explicitly.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Masker == nil {
		deps.Masker = masking.NewService()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if deps.Source == nil {
		deps.Source = StaticContextSource("")
	}
	if deps.PromptSource == nil {
		deps.PromptSource = StaticPromptSource{Heartbeat: deps.Settings.HeartbeatMD, Prompt: deps.Settings.PromptMD}
	}
	o := &Orchestrator{
		settings:     deps.Settings,
		provider:     deps.Provider,
		messages:     deps.Messages,
		reminders:    deps.Reminders,
		registry:     deps.Registry,
		masker:       deps.Masker,
		bus:          deps.Bus,
		source:       deps.Source,
		promptSource: deps.PromptSource,
		heartbeatMD:  deps.Settings.HeartbeatMD,
		promptMD:     deps.Settings.PromptMD,
	}
	o.brain = NewBrainManager()
	return o
}

// ReloadPromptMaterial re-fetches heartbeat/prompt markdown from the
// configured PromptSource and publishes the refreshed copy for the next
// composed system prompt, emitting a "prompt_material" UI event on both
// success and failure. Driven once per tick by the wakeup scheduler job
// (spec.md §4.6: "Reloads heartbeat and prompt markdown from their
// configured sources, publishes to the orchestrator, emits UI events").
func (o *Orchestrator) ReloadPromptMaterial(ctx context.Context) error {
	heartbeat, err := o.promptSource.FetchHeartbeatMD(ctx)
	if err != nil {
		o.emit("system", "prompt_material", "error", map[string]any{"error": err.Error()})
		return err
	}
	prompt, err := o.promptSource.FetchPromptMD(ctx)
	if err != nil {
		o.emit("system", "prompt_material", "error", map[string]any{"error": err.Error()})
		return err
	}

	o.promptMu.Lock()
	o.heartbeatMD = heartbeat
	o.promptMD = prompt
	o.promptMu.Unlock()

	o.emit("system", "prompt_material", "ok", map[string]any{
		"heartbeat_bytes": len(heartbeat),
		"prompt_bytes":    len(prompt),
	})
	return nil
}

func (o *Orchestrator) currentHeartbeatMD() string {
	o.promptMu.RLock()
	defer o.promptMu.RUnlock()
	return o.heartbeatMD
}

func (o *Orchestrator) currentPromptMD() string {
	o.promptMu.RLock()
	defer o.promptMu.RUnlock()
	return o.promptMD
}

// Bus exposes the orchestrator's UI event bus for the HTTP layer's SSE
// endpoints to subscribe to.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

// Brain exposes the lifecycle manager so callers (the scheduler) can
// register plugins and fire ticks.
func (o *Orchestrator) Brain() *BrainManager { return o.brain }

// Registry exposes the sandbox registry so the HTTP layer's
// /security_audit and /doctor handlers can inspect registered tools and
// their computed plans without the orchestrator reimplementing that
// logic.
func (o *Orchestrator) Registry() *sandbox.Registry { return o.registry }

// Messages exposes the message store for the HTTP layer's /chat_history,
// /clear_user_history, and /memory_search handlers.
func (o *Orchestrator) Messages() *store.MessageStore { return o.messages }

// Reminders exposes the reminder store for the HTTP layer's reminder
// SSE stream.
func (o *Orchestrator) Reminders() *store.ReminderStore { return o.reminders }

func (o *Orchestrator) emit(userID, tool, status string, payload map[string]any) {
	o.bus.Publish(events.Event{
		EventType: "tool",
		UserID:    userID,
		Tool:      tool,
		Status:    status,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	})
}
