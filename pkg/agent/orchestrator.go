package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
)

// ProcessText runs one full turn of the pipeline described in
// spec.md §4.5: autonomy-tick detection, context-in-memory sync,
// search-intent short-circuit, memory/reminder context assembly, the
// bounded tool loop (or a plain generation when the agent has no
// assigned tools), and message persistence.
func (o *Orchestrator) ProcessText(ctx context.Context, userID, query string) (string, error) {
	o.brain.EnsureStarted()

	autonomyTick := isAutonomyTick(query)
	if autonomyTick {
		o.brain.Fire(LifecycleTick, userID, query)
	} else {
		o.brain.Fire(LifecycleUserMessage, userID, query)
	}

	contextLoaded := o.ensureContextInMemory(ctx, userID)

	tools := o.assignedTools()

	if looksLikeSearchIntent(query) && isToolAssigned(tools, "search_internet") {
		result, err := o.registry.ExecuteTool(ctx, "search_internet", map[string]any{"user_id": userID, "query": query})
		if err != nil {
			return "", fmt.Errorf("search_internet: %w", err)
		}
		o.emit(userID, "search_internet", "ok", map[string]any{"query": query})
		if !autonomyTick {
			o.persistTurn(ctx, userID, query, result.Content)
		}
		o.brain.Fire(LifecycleAssistantResponse, userID, result.Content)
		return result.Content, nil
	}

	memoryLines := o.buildMemoryContext(ctx, userID, query)

	now := time.Now().Unix()
	var promptParts []string
	if len(memoryLines) > 0 {
		promptParts = append(promptParts, "MEMORY:\n"+strings.Join(memoryLines, "\n"))
	}
	if block := o.dueRemindersBlock(ctx, userID, now); block != "" {
		promptParts = append(promptParts, block)
	}
	if autonomyTick || userID == "system" {
		o.contextMu.Lock()
		doc := o.contextContent
		o.contextMu.Unlock()
		if doc != "" {
			promptParts = append(promptParts, "CONTEXT DOCUMENT:\n"+truncateContextDoc(doc))
		}
	}
	promptParts = append(promptParts, "USER: "+query)

	prompt := strings.Join(promptParts, "\n\n")
	system := o.composeSystemPrompt(contextLoaded, tools)

	var (
		answer string
		err    error
	)
	if len(tools) > 0 {
		answer, err = o.runToolLoop(ctx, userID, system, prompt, tools)
	} else {
		answer, err = o.provider.GenerateText(ctx, prompt, system)
	}
	if err != nil {
		return answer, err
	}

	if !autonomyTick {
		o.persistTurn(ctx, userID, query, answer)
	}
	o.brain.Fire(LifecycleAssistantResponse, userID, answer)

	return answer, nil
}

// ProcessTextStream is the streaming variant used by /process_text_stream.
// It skips the bounded tool loop (the spec's chat_stream path applies
// only when the agent has no assigned tools) and forwards
// pkg/llm.Provider's ChatStream events to the caller.
func (o *Orchestrator) ProcessTextStream(ctx context.Context, userID, query string) (<-chan llm.ChatEvent, error) {
	autonomyTick := isAutonomyTick(query)
	contextLoaded := o.ensureContextInMemory(ctx, userID)
	tools := o.assignedTools()
	system := o.composeSystemPrompt(contextLoaded, tools)

	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: query},
	}

	stream, err := o.provider.ChatStream(ctx, messages, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.ChatEvent, 4)
	go func() {
		defer close(out)
		var full strings.Builder
		for ev := range stream {
			out <- ev
			if ev.EventType == llm.ChatEventContent {
				full.WriteString(ev.Delta)
			}
		}
		if !autonomyTick {
			o.persistTurn(ctx, userID, query, full.String())
		}
		o.brain.Fire(LifecycleAssistantResponse, userID, full.String())
	}()
	return out, nil
}

func (o *Orchestrator) persistTurn(ctx context.Context, userID, query, answer string) {
	if o.messages == nil {
		return
	}
	now := time.Now().Unix()
	_, _ = o.messages.Append(ctx, userID, "user", query, now)
	assistantID, err := o.messages.Append(ctx, userID, "assistant", answer, now)
	if err != nil {
		return
	}

	go o.writeVectorAsync(userID, "assistant", answer, now, assistantID)
	go o.maybeSummarize(userID)
	go o.applyRetention(userID)
}

// applyRetention runs the optional per-user retention policy from
// spec.md §3 after every turn; DeleteOlderThan is a no-op when
// RetentionDays is unset.
func (o *Orchestrator) applyRetention(userID string) {
	if o.settings.RetentionDays <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = o.messages.DeleteOlderThan(ctx, userID, o.settings.RetentionDays, time.Now().Unix())
}

// writeVectorAsync is the "may trigger an async embedding write
// (fire-and-forget)" lifecycle behavior from spec.md §3. It runs
// detached from the request context so a client disconnect never
// cancels the write, and swallows its own errors the way C6 jobs
// swallow theirs to keep the caller's turn unaffected.
func (o *Orchestrator) writeVectorAsync(userID, role, content string, timestamp, messageID int64) {
	if o.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	vectors, err := o.provider.Embed(ctx, []string{content}, o.settings.MemoryModel)
	if err != nil || len(vectors) == 0 {
		return
	}
	_ = o.messages.WriteVector(ctx, messageID, userID, role, content, timestamp, vectors[0])
}

// maybeSummarize implements the "async summarization when the
// assistant-message count exceeds a threshold" lifecycle behavior from
// spec.md §3: once the per-user assistant count crosses a multiple of
// SummarizationThreshold, fold the recent history into one memories row.
func (o *Orchestrator) maybeSummarize(userID string) {
	if o.settings.SummarizationThreshold <= 0 || o.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := o.messages.CountAssistantMessages(ctx, userID)
	if err != nil || count == 0 || count%int64(o.settings.SummarizationThreshold) != 0 {
		return
	}

	history, err := o.messages.GetHistory(ctx, userID, o.settings.SummarizationThreshold)
	if err != nil || len(history) == 0 {
		return
	}
	var sb strings.Builder
	for _, m := range history {
		fmt.Fprintf(&sb, "[%s] %s\n", m.Role, m.Content)
	}

	summary, err := o.provider.GenerateText(ctx,
		"Summarize the durable facts, preferences, and commitments from this conversation in 2-3 sentences:\n\n"+sb.String(),
		"You distill conversation history into compact long-term memory notes.")
	if err != nil || strings.TrimSpace(summary) == "" {
		return
	}
	_, _ = o.messages.InsertMemory(ctx, userID, summary, "", 0, time.Now().Unix())
}
