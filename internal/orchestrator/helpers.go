package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

func isContextCancellationErr(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ctx != nil && ctx.Err() != nil
}

func contextErrOr(ctx context.Context, fallback error) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return fallback
}

func summarizeForLog(s string) string {
	normalized := strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
	if normalized == "" {
		return "-"
	}
	const maxRunes = 220
	runes := []rune(normalized)
	if len(runes) <= maxRunes {
		return normalized
	}
	return string(runes[:maxRunes]) + "...(truncated)"
}

func formatToolStart(name string, rawArgs string) string {
	args := parseJSONObject(rawArgs)
	switch name {
	case "tap", "scan_for_element", "swipe", "scroll":
		return fmt.Sprintf("* %s %s", title(name), quoteOrDash(getString(args, "intent", "")))
	case "swipe_coords":
		return fmt.Sprintf("* Swipe (%d,%d) -> (%d,%d)",
			getInt(args, "start_x", 0), getInt(args, "start_y", 0), getInt(args, "end_x", 0), getInt(args, "end_y", 0))
	case "type_text":
		return fmt.Sprintf("* Type %s into %s", quoteOrDash(getString(args, "text", "")), quoteOrDash(getString(args, "intent", "")))
	case "clear_text":
		return "* Clear text"
	case "open_app":
		return fmt.Sprintf("* Open app %s", quoteOrDash(getString(args, "app_name", "")))
	case "wait":
		return fmt.Sprintf("* Wait %ds", getInt(args, "seconds", 1))
	case "go_back":
		return "* Back"
	case "answer":
		return fmt.Sprintf("* Answer %s", quoteOrDash(short(getString(args, "text", ""), 80)))
	case "finish_task":
		return fmt.Sprintf("* Finish success=%t", getBool(args, "success"))
	case "update_todos":
		return fmt.Sprintf("* Todos (%d items)", len(getArray(args, "todos")))
	case "createItem", "fetchItem":
		return fmt.Sprintf("* %s %s", title(name), quoteOrDash(getString(args, "key", "")))
	default:
		return fmt.Sprintf("* %s args=%s", title(name), summarizeForLog(rawArgs))
	}
}

func summarizeToolResult(name string, rawResult string) string {
	result := parseJSONObject(rawResult)
	if len(result) == 0 {
		return summarizeForLog(rawResult)
	}
	if errText := getString(result, "error", ""); errText != "" {
		return summarizeForLog(errText)
	}
	switch name {
	case "update_todos":
		return formatTodoSummary(result)
	case "createItem":
		return fmt.Sprintf("stored %s", getString(result, "key", "-"))
	case "fetchItem":
		return fmt.Sprintf("%s: %d bytes", getString(result, "key", "-"), len(getString(result, "text", "")))
	case "finish_task":
		return summarizeForLog(getString(result, "reason", "finished"))
	case "answer":
		return "answer recorded"
	case "go_back":
		return "ok"
	}
	steps := getInt(result, "steps", 0)
	if getBool(result, "success") {
		detail := getString(result, "summary", "done")
		if data := getString(result, "data", ""); data != "" {
			detail = "data: " + data
		}
		return fmt.Sprintf("ok in %d step(s): %s", steps, summarizeForLog(detail))
	}
	reason := getString(result, "reason", "failed")
	if kind := getString(result, "error_kind", ""); kind != "" {
		reason = kind + ": " + reason
	}
	return fmt.Sprintf("failed after %d step(s): %s", steps, summarizeForLog(reason))
}

func formatTodoSummary(result map[string]any) string {
	items := getArray(result, "todos")
	headline := fmt.Sprintf("todo updated (%d items)", len(items))
	lines := []string{headline}
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		content := strings.TrimSpace(getString(item, "content", ""))
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s", todoStatusMarker(getString(item, "status", "")), content))
	}
	return strings.Join(lines, "\n")
}

func parseJSONObject(s string) map[string]any {
	var out map[string]any
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func getString(m map[string]any, key, fallback string) string {
	if m == nil {
		return fallback
	}
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return fallback
		}
		return val
	default:
		return fallback
	}
}

func getBool(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func getArray(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	out, _ := m[key].([]any)
	return out
}

func getInt(m map[string]any, key string, fallback int) int {
	if m == nil {
		return fallback
	}
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return fallback
		}
		return n
	default:
		return fallback
	}
}

func quoteOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return strconv.Quote(summarizeForLog(s))
}

func title(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Tool"
	}
	runes := []rune(strings.ReplaceAll(s, "_", " "))
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}

func short(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "..."
}

func todoStatusMarker(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed":
		return "[x]"
	case "in_progress":
		return "[~]"
	default:
		return "[ ]"
	}
}
