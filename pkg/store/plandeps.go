package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// buildStepAliasMap indexes every step by its canonical step_ref under
// several aliases: its zero-based index, "step N+1" phrasing (and
// "step N", unless an earlier step already holds it as its one-based alias),
// an id/ref/key/code/step_id field, and normalized title/name/
// description/text/step field text (both verbatim and with punctuation
// collapsed to single spaces).
func buildStepAliasMap(planID int64, steps []any) map[string]string {
	aliases := make(map[string]string)
	for index, raw := range steps {
		step, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		originRef := fmt.Sprintf("plan_step:%d:%d", planID, index)
		aliases[strconv.Itoa(index)] = originRef
		if _, taken := aliases[fmt.Sprintf("step %d", index)]; !taken {
			aliases[fmt.Sprintf("step %d", index)] = originRef
		}
		aliases[fmt.Sprintf("step %d", index+1)] = originRef

		for _, key := range []string{"id", "ref", "key", "code", "step_id"} {
			if s, ok := step[key].(string); ok {
				normalized := strings.ToLower(strings.TrimSpace(s))
				if normalized != "" {
					aliases[normalized] = originRef
				}
			}
		}

		for _, key := range []string{"title", "name", "description", "text", "step"} {
			s, ok := step[key].(string)
			if !ok {
				continue
			}
			normalized := strings.ToLower(strings.TrimSpace(s))
			if normalized == "" {
				continue
			}
			aliases[normalized] = originRef
			if compact := compactWords(normalized); compact != "" {
				aliases[compact] = originRef
			}
		}
	}
	return aliases
}

func compactWords(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' || r == '\t' || r == '\n' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func resolveAlias(aliases map[string]string, normalized string) (string, bool) {
	if mapped, ok := aliases[normalized]; ok {
		return mapped, true
	}
	if len(normalized) < 4 {
		return "", false
	}
	var best string
	bestLen := -1
	for key, value := range aliases {
		if strings.Contains(key, normalized) || strings.Contains(normalized, key) {
			if len(key) > bestLen {
				best, bestLen = value, len(key)
			}
		}
	}
	return best, bestLen >= 0
}

var depMarkers = []string{"depends on:", "dependencies:", "blocked by:", "requires:", "dependency refs:", "dependency_refs:"}

var refPrefixes = []string{"plan_step:", "todo:", "task:", "reminder:", "plan:"}

func hasRefPrefix(s string) bool {
	for _, p := range refPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func pushRef(out *[]string, planID int64, aliases map[string]string, value any) {
	switch v := value.(type) {
	case []any:
		for _, entry := range v {
			pushRef(out, planID, aliases, entry)
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return
		}
		normalized := strings.ToLower(trimmed)
		switch {
		case hasRefPrefix(normalized):
			*out = append(*out, normalized)
		default:
			if mapped, ok := resolveAlias(aliases, normalized); ok {
				*out = append(*out, mapped)
			} else if strings.ContainsAny(trimmed, ",|;") {
				for _, token := range strings.FieldsFunc(trimmed, func(r rune) bool { return r == ',' || r == '|' || r == ';' }) {
					pushRef(out, planID, aliases, token)
				}
			} else if idx, err := strconv.Atoi(trimmed); err == nil {
				*out = append(*out, fmt.Sprintf("plan_step:%d:%d", planID, idx))
			} else {
				*out = append(*out, normalized)
			}
		}
	case float64:
		*out = append(*out, fmt.Sprintf("plan_step:%d:%d", planID, int(v)))
	case map[string]any:
		if originRef, ok := v["origin_ref"]; ok {
			pushRef(out, planID, aliases, originRef)
		} else if id, ok := v["id"]; ok {
			pushRef(out, planID, aliases, id)
		} else if stepIndex, ok := firstPresent(v, "step_index", "index", "step"); ok {
			pushRef(out, planID, aliases, stepIndex)
		}
	}
}

func firstPresent(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func pushRefsFromText(out *[]string, planID int64, aliases map[string]string, text string) {
	lower := strings.ToLower(text)
	for _, marker := range depMarkers {
		start := strings.Index(lower, marker)
		if start < 0 {
			continue
		}
		raw := text[start+len(marker):]
		line := raw
		if nl := strings.Index(raw, "\n"); nl >= 0 {
			line = raw[:nl]
		}
		for _, token := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == '|' || r == ';' }) {
			pushRef(out, planID, aliases, token)
		}
	}
}

var depKeys = []string{
	"dependency_refs", "dependencyRefs", "depends_on", "dependsOn", "dependencies",
	"blocked_by", "blockedBy", "requires", "prerequisite", "prerequisites", "after",
}

// parseStepDependencyRefs resolves the canonicalized depends_on_ref list
// for one step object, using both explicit dependency-like fields and
// free-text markers in title/description/text/step.
func parseStepDependencyRefs(planID int64, step map[string]any, aliases map[string]string) []string {
	var refs []string
	for _, key := range depKeys {
		if value, ok := step[key]; ok {
			pushRef(&refs, planID, aliases, value)
		}
	}
	for _, key := range []string{"title", "description", "text", "step"} {
		if s, ok := step[key].(string); ok {
			pushRefsFromText(&refs, planID, aliases, s)
		}
	}
	sort.Strings(refs)
	refs = dedupStrings(refs)
	return refs
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// stepDependency is one resolved (step_ref, depends_on_ref) pair ready
// for insert-or-ignore.
type stepDependency struct {
	StepRef      string
	DependsOnRef string
}

// resolvePlanStepDependencies parses a plan's steps_json blob into the
// full set of step dependency rows to synchronize.
func resolvePlanStepDependencies(planID int64, stepsJSON string) ([]stepDependency, error) {
	if stepsJSON == "" {
		return nil, nil
	}
	var steps []any
	if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return nil, fmt.Errorf("parse steps_json: %w", err)
	}
	if len(steps) == 0 {
		return nil, nil
	}

	aliases := buildStepAliasMap(planID, steps)
	var deps []stepDependency
	for index, raw := range steps {
		step, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		stepRef := fmt.Sprintf("plan_step:%d:%d", planID, index)
		for _, dep := range parseStepDependencyRefs(planID, step, aliases) {
			deps = append(deps, stepDependency{StepRef: stepRef, DependsOnRef: dep})
		}
	}
	return deps, nil
}

// DetectCycle reports whether the given step dependencies contain a
// cycle, returning the first cyclic ref chain found. Useful for a
// diagnostics pass over a plan before it is handed to an executor.
func DetectCycle(deps []stepDependency) (cyclePath []string, found bool) {
	graph := make(map[string][]string)
	for _, d := range deps {
		graph[d.StepRef] = append(graph[d.StepRef], d.DependsOnRef)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var path []string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		path = append(path, node)
		for _, next := range graph[node] {
			switch color[next] {
			case gray:
				path = append(path, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[node] = black
		path = path[:len(path)-1]
		return false
	}

	for node := range graph {
		if color[node] == white {
			path = nil
			if visit(node) {
				return path, true
			}
		}
	}
	return nil, false
}
