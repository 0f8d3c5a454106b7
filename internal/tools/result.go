package tools

import (
	"encoding/json"
	"fmt"

	"droidpilot/internal/chat"
	"droidpilot/internal/faults"
)

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"marshal result: %s"}`, err.Error())
	}
	return string(data)
}

// FailureResult is the tool result for a failed call.
func FailureResult(err error) string {
	out := map[string]any{"success": false, "error": err.Error()}
	if kind := faults.KindOf(err); kind != faults.KindUnknown && kind != faults.KindNone {
		out["kind"] = string(kind)
	}
	return mustJSON(out)
}

// decodeArgs unmarshals a JSON object, treating empty input as {}.
func decodeArgs(name string, raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return faults.Validation("arguments", "%s: %v", name, err)
	}
	return nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func toolDef(name, description string, params map[string]any) chat.ToolDef {
	return chat.ToolDef{
		Type:     "function",
		Function: chat.ToolFunction{Name: name, Description: description, Parameters: params},
	}
}
