package tools

import (
	"context"
	"encoding/json"

	"droidpilot/internal/chat"
	"droidpilot/internal/faults"
	"droidpilot/internal/session"
	"droidpilot/internal/todo"
)

// SessionFunc returns the active session, or nil when none is running.
type SessionFunc func() *session.Session

func activeSession(fn SessionFunc) (*session.Session, error) {
	if fn == nil {
		return nil, faults.Orchestration("no session context")
	}
	s := fn()
	if s == nil {
		return nil, faults.Orchestration("no active session")
	}
	return s, nil
}

const todoDescription = `Replace the current todo list with the provided list. Use it for goals that take
three or more distinct steps, or that move data between apps. Keep exactly the items that still matter,
mark one item in_progress while you work on it and completed as soon as it is done.
Skip it for trivial single-step goals.`

// UpdateTodosTool replaces the session's todo list.
type UpdateTodosTool struct {
	session SessionFunc
}

func NewUpdateTodosTool(fn SessionFunc) *UpdateTodosTool {
	return &UpdateTodosTool{session: fn}
}

func (t *UpdateTodosTool) Name() string {
	return "update_todos"
}

func (t *UpdateTodosTool) Definition() chat.ToolDef {
	return toolDef(t.Name(), todoDescription, objectSchema(map[string]any{
		"todos": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"id":       map[string]any{"type": "string"},
					"content":  map[string]any{"type": "string", "minLength": 1},
					"status":   map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
					"priority": map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
				},
				"required": []string{"content", "status", "priority", "id"},
			},
		},
	}, "todos"))
}

func (t *UpdateTodosTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	sess, err := activeSession(t.session)
	if err != nil {
		return "", err
	}
	var in struct {
		Todos *[]todo.Item `json:"todos"`
	}
	if err := decodeArgs(t.Name(), args, &in); err != nil {
		return "", err
	}
	if in.Todos == nil {
		return "", faults.Validation("todos", "is required")
	}
	res, err := sess.Todos.Update(*in.Todos)
	if err != nil {
		return "", err
	}
	return mustJSON(res), nil
}
