package tools

import (
	"context"
	"encoding/json"
	"strconv"

	"droidpilot/internal/chat"
	"droidpilot/internal/device"
	"droidpilot/internal/faults"
)

// Delegation is one planner intent handed to an executor run.
type Delegation struct {
	CallID string
	Tool   string
	Intent string
	Query  string
	Args   map[string]any
}

// DelegateFunc runs a delegation to completion and returns its structured
// completion record as the tool result.
type DelegateFunc func(ctx context.Context, d Delegation) (string, error)

// IntentTool is a semantic planner tool resolved by the executor.
type IntentTool struct {
	name        string
	description string
	props       map[string]any
	required    []string
	numeric     []string
	delegate    DelegateFunc
}

func (t *IntentTool) SetDelegate(fn DelegateFunc) {
	t.delegate = fn
}

func (t *IntentTool) Name() string {
	return t.name
}

func (t *IntentTool) Delegated() bool {
	return true
}

func (t *IntentTool) Definition() chat.ToolDef {
	return toolDef(t.name, t.description, objectSchema(t.props, t.required...))
}

func (t *IntentTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	if t.delegate == nil {
		return "", faults.Orchestration("%s: no executor attached", t.name)
	}
	args := map[string]any{}
	if err := decodeArgs(t.name, raw, &args); err != nil {
		return "", err
	}
	for _, key := range t.required {
		if argText(args, key) == "" {
			return "", faults.Validation(key, "is required for %s", t.name)
		}
	}
	for _, key := range t.numeric {
		if _, ok := args[key]; !ok {
			continue
		}
		if _, err := strconv.ParseFloat(argText(args, key), 64); err != nil {
			return "", faults.Validation(key, "must be a number, got %q", argText(args, key))
		}
	}
	d := Delegation{
		CallID: CallIDFrom(ctx),
		Tool:   t.name,
		Intent: argText(args, "intent"),
		Query:  Query(t.name, args),
		Args:   args,
	}
	if d.Intent == "" {
		d.Intent = d.Query
	}
	return t.delegate(ctx, d)
}

func intentProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// IntentTools returns the delegated planner tool surface.
func IntentTools(fn DelegateFunc) []*IntentTool {
	return []*IntentTool{
		{
			name: "tap",
			description: "Tap a UI element described semantically. Give enough context for the executor; " +
				"never pass coordinates. Examples: \"login button\", \"the blue continue button at the bottom\".",
			props:    map[string]any{"intent": intentProp("Short description of the element to tap")},
			required: []string{"intent"},
		},
		{
			name: "scan_for_element",
			description: "Find an element, item or text that may be off screen. The executor scrolls to look for it. " +
				"Prefer this over scroll when you know what you are looking for.",
			props:    map[string]any{"intent": intentProp("What to find")},
			required: []string{"intent"},
		},
		{
			name:        "swipe",
			description: "Perform a swipe gesture by direction or purpose, e.g. \"swipe left on the Do taxes reminder to delete it\".",
			props:       map[string]any{"intent": intentProp("Direction or purpose of the swipe")},
			required:    []string{"intent"},
		},
		{
			name:        "swipe_coords",
			description: "Swipe between explicit start and end coordinates on the screenshot you were shown.",
			props: map[string]any{
				"start_x": map[string]any{"type": "number"},
				"start_y": map[string]any{"type": "number"},
				"end_x":   map[string]any{"type": "number"},
				"end_y":   map[string]any{"type": "number"},
				"intent":  intentProp("Optional purpose of the swipe"),
			},
			required: []string{"start_x", "start_y", "end_x", "end_y"},
			numeric:  []string{"start_x", "start_y", "end_x", "end_y"},
		},
		{
			name: "scroll",
			description: "Scroll with a stated purpose, e.g. \"scroll down and find all expenses\". " +
				"To reveal content above, scroll up. Prefer scan_for_element when looking for a known item.",
			props:    map[string]any{"intent": intentProp("Direction and purpose of the scroll")},
			required: []string{"intent"},
		},
		{
			name:        "wait",
			description: "Wait while the UI transitions or loads.",
			props:       map[string]any{"seconds": map[string]any{"type": "integer", "minimum": 1}},
			numeric:     []string{"seconds"},
		},
		{
			name:        "open_app",
			description: "Open an installed app by name, e.g. \"Settings\", \"Gmail\".",
			props:       map[string]any{"app_name": intentProp("App name")},
			required:    []string{"app_name"},
		},
		{
			name:        "clear_text",
			description: "Clear the text in the currently focused input field.",
			props:       map[string]any{},
		},
		{
			name:        "type_text",
			description: "Type text into a field described semantically, e.g. text=\"hello\", intent=\"search bar\".",
			props: map[string]any{
				"text":   map[string]any{"type": "string", "description": "Exact text to enter"},
				"intent": intentProp("The input field"),
			},
			required: []string{"text", "intent"},
		},
	}
}

// DelegatedNames lists the names returned by IntentTools.
func DelegatedNames() []string {
	ts := IntentTools(nil)
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.name)
	}
	return out
}

// PlannerSet is the full planner tool surface plus handles to the tools the
// orchestrator must wire after construction.
type PlannerSet struct {
	Registry *Registry
	Finish   *FinishTaskTool
	Intents  []*IntentTool
}

// SetDelegate attaches fn to every delegated tool.
func (p *PlannerSet) SetDelegate(fn DelegateFunc) {
	for _, t := range p.Intents {
		t.SetDelegate(fn)
	}
}

// NewPlannerSet builds every planner tool against the given collaborators.
func NewPlannerSet(dev device.Device, sess SessionFunc) *PlannerSet {
	finish := NewFinishTaskTool(nil)
	intents := IntentTools(nil)
	reg := NewRegistry(
		NewGoBackTool(dev),
		NewAnswerTool(dev, sess),
		finish,
		NewUpdateTodosTool(sess),
		NewCreateItemTool(sess),
		NewFetchItemTool(sess),
	)
	for _, t := range intents {
		reg.Register(t)
	}
	return &PlannerSet{Registry: reg, Finish: finish, Intents: intents}
}
