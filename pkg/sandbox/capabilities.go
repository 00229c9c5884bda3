package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/store"
)

// maxCapabilityHTTPResponseBytes bounds how much of an http.request
// response body a guest gets back, mirroring maxWasmInputBytes on the
// other side of the capability_call round trip.
const maxCapabilityHTTPResponseBytes = 1 << 20

// StoreCapabilities bundles the C2 stores behind the kv.sqlite.<entity>
// capability family, grounded in wasm-tool/src/lib.rs's execute_todo,
// execute_tasks, execute_reminders, execute_wakeup, and execute_planning
// dispatch functions.
type StoreCapabilities struct {
	Todo      *store.TodoStore
	Tasks     *store.TaskStore
	Reminders *store.ReminderStore
	Wakeups   *store.WakeupStore
	Plans     *store.PlanStore
}

// Register installs every kv.sqlite.<entity> handler, plus http.request
// and (if provider is non-nil) coding.generate, on dispatcher.
func (c StoreCapabilities) Register(dispatcher *CapabilityDispatcher, provider llm.Provider, policy *Policy) {
	dispatcher.Register("kv.sqlite.todo", c.handleTodo)
	dispatcher.Register("kv.sqlite.tasks", c.handleTasks)
	dispatcher.Register("kv.sqlite.reminders", c.handleReminders)
	dispatcher.Register("kv.sqlite.wakeup", c.handleWakeup)
	dispatcher.Register("kv.sqlite.planning", c.handlePlanning)
	dispatcher.Register("http.request", handleHTTPRequest(policy))
	if provider != nil {
		dispatcher.Register("coding.generate", handleCodingGenerate(provider))
	}
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func argInt64(args map[string]any, key string) (int64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func normalizeAction(action string, aliases map[string]string) string {
	if canonical, ok := aliases[action]; ok {
		return canonical
	}
	return action
}

var todoActionAliases = map[string]string{
	"add": "create", "new": "create",
	"create_list": "create_many", "add_many": "create_many",
	"bulk_create": "create_many", "create_items": "create_many",
}

func todoItemResult(item store.TodoItem) map[string]any {
	out := map[string]any{
		"id": item.ID, "user_id": item.UserID, "title": item.Title,
		"notes": item.Notes, "created_at": item.CreatedAt, "updated_at": item.UpdatedAt,
		"completed": item.CompletedAt != nil,
	}
	if item.CompletedAt != nil {
		out["completed_at"] = *item.CompletedAt
	}
	return out
}

// handleTodo backs kv.sqlite.todo, mirroring execute_todo's
// create/create_many/list/complete/reopen/delete ops (reorder is not
// supported: todo_items carries no ordinal column).
func (c StoreCapabilities) handleTodo(ctx context.Context, args map[string]any) (map[string]any, error) {
	userID := argString(args, "user_id")
	switch normalizeAction(argString(args, "action"), todoActionAliases) {
	case "create":
		title := argString(args, "title")
		if title == "" {
			return nil, fmt.Errorf("invalid_args: title is required")
		}
		item, err := c.Todo.Create(ctx, userID, title, argString(args, "notes"))
		if err != nil {
			return nil, err
		}
		return todoItemResult(item), nil
	case "create_many":
		rawItems, ok := args["items"].([]any)
		if !ok || len(rawItems) == 0 {
			return nil, fmt.Errorf("invalid_args: items must be a non-empty array")
		}
		created := make([]map[string]any, 0, len(rawItems))
		for _, raw := range rawItems {
			m, _ := raw.(map[string]any)
			title := argString(m, "title")
			if title == "" {
				return nil, fmt.Errorf("invalid_args: each item requires a title")
			}
			item, err := c.Todo.Create(ctx, userID, title, argString(m, "notes"))
			if err != nil {
				return nil, err
			}
			created = append(created, todoItemResult(item))
		}
		return map[string]any{"created": created}, nil
	case "list":
		items, err := c.Todo.ListOpen(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			out = append(out, todoItemResult(item))
		}
		return map[string]any{"items": out}, nil
	case "complete":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Todo.Complete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "completed"}, nil
	case "reopen":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Todo.Reopen(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "reopened"}, nil
	case "delete":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Todo.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "deleted"}, nil
	case "reorder":
		return nil, fmt.Errorf("invalid_args: todo reorder is not supported")
	default:
		return nil, fmt.Errorf("invalid_args: unrecognized todo action")
	}
}

func taskResult(t store.ScheduledTask) map[string]any {
	out := map[string]any{
		"id": t.ID, "user_id": t.UserID, "name": t.Name, "prompt": t.Prompt,
		"run_at": t.RunAt, "enabled": t.Enabled,
	}
	if t.IntervalMinutes != nil {
		out["interval_minutes"] = *t.IntervalMinutes
	}
	return out
}

// handleTasks backs kv.sqlite.tasks, mirroring execute_tasks's
// schedule/list/enable/disable/delete ops (cancel aliases to disable).
func (c StoreCapabilities) handleTasks(ctx context.Context, args map[string]any) (map[string]any, error) {
	userID := argString(args, "user_id")
	switch normalizeAction(argString(args, "action"), map[string]string{"cancel": "disable"}) {
	case "schedule":
		name, prompt := argString(args, "name"), argString(args, "prompt")
		runAt, ok := argInt64(args, "run_at")
		if name == "" || prompt == "" || !ok {
			return nil, fmt.Errorf("invalid_args: name, prompt, and run_at are required")
		}
		var interval *int64
		if v, ok := argInt64(args, "interval_minutes"); ok {
			interval = &v
		}
		t, err := c.Tasks.Create(ctx, userID, name, prompt, runAt, interval)
		if err != nil {
			return nil, err
		}
		return taskResult(t), nil
	case "list":
		tasks, err := c.Tasks.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, taskResult(t))
		}
		return map[string]any{"tasks": out}, nil
	case "enable":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Tasks.SetEnabled(ctx, id, true); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "enabled"}, nil
	case "disable":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Tasks.SetEnabled(ctx, id, false); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "disabled"}, nil
	case "delete":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Tasks.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "deleted"}, nil
	default:
		return nil, fmt.Errorf("invalid_args: unrecognized tasks action")
	}
}

var reminderActionAliases = map[string]string{
	"set": "create", "add": "create", "remind": "create", "schedule": "create", "create_reminder": "create",
	"show": "list", "list_reminders": "list",
	"done": "complete", "finish": "complete",
	"remove": "delete", "erase": "delete",
	"clear_all": "clear", "clear_reminders": "clear",
}

func reminderResult(r store.Reminder) map[string]any {
	out := map[string]any{
		"id": r.ID, "user_id": r.UserID, "title": r.Title, "due_at": r.DueAt,
		"completed": r.CompletedAt != nil, "fired": r.FiredAt != nil,
	}
	return out
}

// handleReminders backs kv.sqlite.reminders, mirroring execute_reminders's
// create/list/complete/delete/snooze/clear ops and alias table.
func (c StoreCapabilities) handleReminders(ctx context.Context, args map[string]any) (map[string]any, error) {
	userID := argString(args, "user_id")
	switch normalizeAction(argString(args, "action"), reminderActionAliases) {
	case "create":
		title := argString(args, "title")
		if title == "" {
			return nil, fmt.Errorf("invalid_args: title is required")
		}
		dueAt, ok := argInt64(args, "due_at")
		if !ok {
			delay, hasDelay := argInt64(args, "delay_seconds")
			if !hasDelay {
				delay, hasDelay = argInt64(args, "in_seconds")
			}
			if !hasDelay {
				return nil, fmt.Errorf("invalid_args: due_at or delay_seconds is required")
			}
			dueAt = time.Now().Unix() + delay
		}
		r, err := c.Reminders.Create(ctx, userID, title, dueAt)
		if err != nil {
			return nil, err
		}
		return reminderResult(r), nil
	case "list":
		reminders, err := c.Reminders.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(reminders))
		for _, r := range reminders {
			out = append(out, reminderResult(r))
		}
		return map[string]any{"reminders": out}, nil
	case "complete":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Reminders.Complete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "completed"}, nil
	case "delete":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Reminders.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "deleted"}, nil
	case "snooze":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		newDueAt, ok := argInt64(args, "due_at")
		if !ok {
			delay, hasDelay := argInt64(args, "delay_seconds")
			if !hasDelay {
				delay, hasDelay = argInt64(args, "in_seconds")
			}
			if !hasDelay {
				return nil, fmt.Errorf("invalid_args: due_at or delay_seconds is required")
			}
			newDueAt = time.Now().Unix() + delay
		}
		if err := c.Reminders.Snooze(ctx, id, newDueAt); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "due_at": newDueAt, "status": "snoozed"}, nil
	case "clear":
		n, err := c.Reminders.Clear(ctx, userID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"cleared": n}, nil
	default:
		return nil, fmt.Errorf("invalid_args: unrecognized reminders action")
	}
}

func wakeupResult(w store.WakeupTask) map[string]any {
	return map[string]any{
		"id": w.ID, "user_id": w.UserID, "name": w.Name, "prompt": w.Prompt,
		"interval_minutes": w.IntervalMinutes, "enabled": w.Enabled,
	}
}

// handleWakeup backs kv.sqlite.wakeup, mirroring execute_wakeup's
// create/list/enable/disable/delete ops.
func (c StoreCapabilities) handleWakeup(ctx context.Context, args map[string]any) (map[string]any, error) {
	userID := argString(args, "user_id")
	switch argString(args, "action") {
	case "create":
		name, prompt := argString(args, "name"), argString(args, "prompt")
		interval, ok := argInt64(args, "interval_minutes")
		if name == "" || prompt == "" || !ok {
			return nil, fmt.Errorf("invalid_args: name, prompt, and interval_minutes are required")
		}
		w, err := c.Wakeups.Create(ctx, userID, name, prompt, interval)
		if err != nil {
			return nil, err
		}
		return wakeupResult(w), nil
	case "list":
		all, err := c.Wakeups.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(all))
		for _, w := range all {
			if w.UserID == userID {
				out = append(out, wakeupResult(w))
			}
		}
		return map[string]any{"wakeups": out}, nil
	case "enable":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Wakeups.SetEnabled(ctx, id, true); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "enabled"}, nil
	case "disable":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Wakeups.SetEnabled(ctx, id, false); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "disabled"}, nil
	case "delete":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Wakeups.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "deleted"}, nil
	default:
		return nil, fmt.Errorf("invalid_args: unrecognized wakeup action")
	}
}

func planResult(p store.Plan) map[string]any {
	return map[string]any{
		"id": p.ID, "user_id": p.UserID, "title": p.Title, "goal": p.Goal,
		"steps_json": p.StepsJSON, "status": p.Status,
	}
}

const defaultPlanningListLimit = 50

// handlePlanning backs kv.sqlite.planning, mirroring execute_planning's
// create/list/get/update/delete ops.
func (c StoreCapabilities) handlePlanning(ctx context.Context, args map[string]any) (map[string]any, error) {
	userID := argString(args, "user_id")
	switch argString(args, "action") {
	case "create":
		title, goal := argString(args, "title"), argString(args, "goal")
		if title == "" || goal == "" {
			return nil, fmt.Errorf("invalid_args: title and goal are required")
		}
		steps, _ := args["steps"].([]any)
		p, err := c.Plans.Create(ctx, userID, title, goal, steps, argString(args, "status"))
		if err != nil {
			return nil, err
		}
		return planResult(p), nil
	case "list":
		limit := defaultPlanningListLimit
		if v, ok := argInt64(args, "limit"); ok && v > 0 {
			limit = int(v)
		}
		plans, err := c.Plans.ListByUser(ctx, userID, limit)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(plans))
		for _, p := range plans {
			out = append(out, planResult(p))
		}
		return map[string]any{"plans": out}, nil
	case "get":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		p, err := c.Plans.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return planResult(p), nil
	case "update":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		steps, _ := args["steps"].([]any)
		if err := c.Plans.UpdateSteps(ctx, id, userID, steps); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "updated"}, nil
	case "delete":
		id, ok := argInt64(args, "id")
		if !ok {
			return nil, fmt.Errorf("invalid_args: id is required")
		}
		if err := c.Plans.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "status": "deleted"}, nil
	default:
		return nil, fmt.Errorf("invalid_args: unrecognized planning action")
	}
}

// handleHTTPRequest backs http.request, mirroring execute_http_call:
// only method is strictly required by the guest, but a request needs a
// url to go anywhere. The target host is checked against the same
// network policy search_internet enforces before any request is sent.
func handleHTTPRequest(policy *Policy) CapabilityHandler {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		method := argString(args, "method")
		if method == "" {
			return nil, fmt.Errorf("invalid_args: method is required")
		}
		target := argString(args, "url")
		if target == "" {
			return nil, fmt.Errorf("invalid_args: url is required")
		}
		parsed, err := url.Parse(target)
		if err != nil || parsed.Hostname() == "" {
			return nil, fmt.Errorf("invalid_args: url is not valid")
		}

		settings := policy.Settings()
		if !IsDomainAllowed(parsed.Hostname(), settings.NetworkAllow, settings.DefaultDeny) {
			return nil, fmt.Errorf("network policy denies host %q", parsed.Hostname())
		}

		var body io.Reader
		if b := argString(args, "body"); b != "" {
			body = strings.NewReader(b)
		}
		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, body)
		if err != nil {
			return nil, fmt.Errorf("invalid_args: %w", err)
		}
		if headers, ok := args["headers"].(map[string]any); ok {
			for k, v := range headers {
				if s, ok := v.(string); ok {
					req.Header.Set(k, s)
				}
			}
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxCapabilityHTTPResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("http request failed: reading response: %w", err)
		}

		return map[string]any{"status": resp.StatusCode, "body": string(data)}, nil
	}
}

// handleCodingGenerate backs coding.generate, mirroring execute_coding's
// single required "prompt" field, delegating to the active C4 provider.
func handleCodingGenerate(provider llm.Provider) CapabilityHandler {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		prompt := argString(args, "prompt")
		if prompt == "" {
			return nil, fmt.Errorf("invalid_args: prompt is required")
		}
		text, err := provider.GenerateText(ctx, prompt, argString(args, "system"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": text}, nil
	}
}
