package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/store"
)

// searchIntentKeywords trigger the search-command heuristic in step 3
// of the turn pipeline.
var searchIntentKeywords = []string{
	"search", "latest", "current", "today", "breaking", "news", "headline", "up to date", "what's new",
}

// semanticTriggerKeywords force the semantic search arm to run even for
// a query that would otherwise be judged too short/greeting-like.
var semanticTriggerKeywords = []string{
	"remember", "recall", "earlier", "before", "last time", "previously",
}

var greetingPhrases = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "thanks", "thank you", "bye",
}

// sensitiveMemoryKeywords mark memory lines to drop before they're fed
// back into a prompt, per spec.md §4.5 step 5.
var sensitiveMemoryKeywords = []string{
	"api key", "authorization header", "bearer ", "secret", "password",
}

func looksLikeSearchIntent(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range searchIntentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isAutonomyTick(query string) bool {
	lower := strings.ToLower(query)
	return strings.Contains(lower, "autonomous") && strings.Contains(lower, "heartbeat")
}

func shouldRunSemanticArm(query string) bool {
	lower := strings.ToLower(query)
	tokens := strings.Fields(lower)
	for _, kw := range semanticTriggerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if len(tokens) < 3 || len(query) < 12 {
		return false
	}
	trimmed := strings.TrimRight(strings.TrimSpace(lower), "!.? ")
	for _, g := range greetingPhrases {
		if trimmed == g {
			return false
		}
	}
	return true
}

// buildMemoryContext races get_history(12) and, conditionally,
// search(5), merging both into a flat, filtered list of memory lines.
// "Racing" here means running both arms concurrently and waiting for
// both — there's no early-cancellation benefit since both results are
// needed — rather than a literal select-first-wins race.
func (o *Orchestrator) buildMemoryContext(ctx context.Context, userID, query string) []string {
	if o.messages == nil {
		return nil
	}

	var (
		wg                sync.WaitGroup
		history           []store.Message
		semantic          []store.SearchResult
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if rows, err := o.messages.GetHistory(ctx, userID, 12); err == nil {
			history = rows
		}
	}()

	runSemantic := shouldRunSemanticArm(query)
	if runSemantic {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rows, err := o.messages.Search(ctx, userID, query, 5); err == nil {
				semantic = rows
			}
		}()
	}

	wg.Wait()

	lines := make([]string, 0, len(history)+len(semantic))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("[%s] %s", m.Role, m.Content))
	}
	for _, s := range semantic {
		lines = append(lines, fmt.Sprintf("[memory:%s] %s", s.Source, s.Content))
	}

	return filterSensitiveLines(lines)
}

func filterSensitiveLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		lower := strings.ToLower(line)
		sensitive := false
		for _, kw := range sensitiveMemoryKeywords {
			if strings.Contains(lower, kw) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			out = append(out, line)
		}
	}
	return out
}

// dueRemindersBlock builds the "DUE REMINDERS" prompt block from a
// non-marking peek (limit 5), per spec.md §4.5 step 5 and the open
// question that peek and claim must never both run in the same tick.
func (o *Orchestrator) dueRemindersBlock(ctx context.Context, userID string, now int64) string {
	if o.reminders == nil {
		return ""
	}
	due, err := o.reminders.PeekDue(ctx, userID, now, 5)
	if err != nil || len(due) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("DUE REMINDERS:\n")
	for _, r := range due {
		fmt.Fprintf(&sb, "- %s\n", r.Title)
	}
	return sb.String()
}
