package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"droidpilot/internal/chat"
	"droidpilot/internal/device"
	"droidpilot/internal/faults"
)

// GoBackTool presses the system back button directly.
type GoBackTool struct {
	dev device.Device
}

func NewGoBackTool(dev device.Device) *GoBackTool {
	return &GoBackTool{dev: dev}
}

func (t *GoBackTool) Name() string {
	return "go_back"
}

func (t *GoBackTool) Definition() chat.ToolDef {
	return toolDef(t.Name(), "Navigate back to the previous screen.", objectSchema(nil))
}

func (t *GoBackTool) Execute(ctx context.Context, _ json.RawMessage) (string, error) {
	if t.dev == nil {
		return "", faults.Orchestration("no device attached")
	}
	if err := t.dev.NavigateBack(ctx); err != nil {
		return "", fmt.Errorf("navigate back: %w", err)
	}
	return mustJSON(map[string]any{"success": true}), nil
}

// AnswerTool records the textual answer and hands it to the device server.
type AnswerTool struct {
	dev     device.Device
	session SessionFunc
}

func NewAnswerTool(dev device.Device, fn SessionFunc) *AnswerTool {
	return &AnswerTool{dev: dev, session: fn}
}

func (t *AnswerTool) Name() string {
	return "answer"
}

func (t *AnswerTool) Definition() chat.ToolDef {
	return toolDef(t.Name(),
		"Give the final textual answer when the goal asks a question. This is not a UI action.",
		objectSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "The answer"},
		}, "text"))
}

func (t *AnswerTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	sess, err := activeSession(t.session)
	if err != nil {
		return "", err
	}
	var in struct {
		Text *string `json:"text"`
	}
	if err := decodeArgs(t.Name(), args, &in); err != nil {
		return "", err
	}
	if in.Text == nil {
		return "", faults.Validation("text", "is required")
	}
	sess.SetAnswer(*in.Text)
	if t.dev != nil {
		if err := t.dev.Dispatch(ctx, map[string]any{"action_type": "answer", "text": *in.Text}); err != nil {
			return "", fmt.Errorf("deliver answer: %w", err)
		}
	}
	return mustJSON(map[string]any{"success": true, "answer": *in.Text}), nil
}

// FinishFunc finalizes the running session.
type FinishFunc func(ctx context.Context, success bool, reason string) error

// FinishTaskTool ends the session. The finisher is attached by the
// orchestrator that owns the session.
type FinishTaskTool struct {
	finish FinishFunc
}

func NewFinishTaskTool(fn FinishFunc) *FinishTaskTool {
	return &FinishTaskTool{finish: fn}
}

func (t *FinishTaskTool) SetFinisher(fn FinishFunc) {
	t.finish = fn
}

func (t *FinishTaskTool) Name() string {
	return "finish_task"
}

func (t *FinishTaskTool) Definition() chat.ToolDef {
	return toolDef(t.Name(),
		"Declare the goal finished. success=true when it was achieved, false when it cannot be.",
		objectSchema(map[string]any{
			"success": map[string]any{"type": "boolean"},
			"reason":  map[string]any{"type": "string", "description": "Short explanation"},
		}, "success"))
}

func (t *FinishTaskTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if t.finish == nil {
		return "", faults.Orchestration("finish_task has no session to finalize")
	}
	var in struct {
		Success *bool  `json:"success"`
		Reason  string `json:"reason"`
	}
	if err := decodeArgs(t.Name(), args, &in); err != nil {
		return "", err
	}
	if in.Success == nil {
		return "", faults.Validation("success", "is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		if *in.Success {
			reason = "Planner declared the goal complete"
		} else {
			reason = "Planner declared the goal infeasible"
		}
	}
	if err := t.finish(ctx, *in.Success, reason); err != nil {
		return "", err
	}
	return mustJSON(map[string]any{"success": true, "task_success": *in.Success, "reason": reason}), nil
}
