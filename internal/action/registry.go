package action

import (
	"encoding/json"
	"sort"
	"strings"

	"droidpilot/internal/chat"
	"droidpilot/internal/coords"
	"droidpilot/internal/faults"
)

type builder func(a args, tr coords.Transform) (Action, error)

type spec struct {
	description string
	properties  map[string]any
	required    []string
	build       builder
}

// Registry maps executor tool names to action builders. It is fixed at
// construction; coordinates are validated through the transform.
type Registry struct {
	transform coords.Transform
	specs     map[string]spec
}

func NewRegistry(tr coords.Transform) *Registry {
	return &Registry{transform: tr, specs: builtinSpecs()}
}

// Transform returns the coordinate transform used by Build.
func (r *Registry) Transform() coords.Transform {
	return r.transform
}

// Build validates raw tool arguments and returns the action descriptor.
// Unknown names yield a LookupError, malformed arguments a ValidationError.
func (r *Registry) Build(name string, raw json.RawMessage) (Action, error) {
	s, ok := r.specs[strings.TrimSpace(name)]
	if !ok {
		return nil, faults.Lookup(name)
	}
	a, err := parseArgs(raw)
	if err != nil {
		return nil, err
	}
	return s.build(a, r.transform)
}

func (r *Registry) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions is the executor tool surface, sorted by name.
func (r *Registry) Definitions() []chat.ToolDef {
	out := make([]chat.ToolDef, 0, len(r.specs))
	for _, name := range r.Names() {
		s := r.specs[name]
		params := map[string]any{
			"type":       "object",
			"properties": s.properties,
		}
		if len(s.required) > 0 {
			params["required"] = s.required
		}
		out = append(out, chat.ToolDef{
			Type: "function",
			Function: chat.ToolFunction{
				Name:        name,
				Description: s.description,
				Parameters:  params,
			},
		})
	}
	return out
}

var (
	intProp       = map[string]any{"type": "integer"}
	directionProp = map[string]any{"type": "string", "enum": []string{"up", "down", "left", "right"}}
)

func pointSpec(desc string, mk func(Point) Action) spec {
	return spec{
		description: desc,
		properties:  map[string]any{"x": intProp, "y": intProp},
		required:    []string{"x", "y"},
		build: func(a args, tr coords.Transform) (Action, error) {
			p, err := a.point(tr, "x", "y")
			if err != nil {
				return nil, err
			}
			return mk(p), nil
		},
	}
}

func directionSpec(desc string, mk func(Direction, *Point) Action) spec {
	return spec{
		description: desc,
		properties:  map[string]any{"direction": directionProp, "x": intProp, "y": intProp},
		required:    []string{"direction"},
		build: func(a args, tr coords.Transform) (Action, error) {
			dir, err := a.direction("direction")
			if err != nil {
				return nil, err
			}
			from, err := a.optionalPoint(tr, "x", "y")
			if err != nil {
				return nil, err
			}
			return mk(dir, from), nil
		},
	}
}

func noArgSpec(desc string, act Action) spec {
	return spec{
		description: desc,
		properties:  map[string]any{},
		build:       func(args, coords.Transform) (Action, error) { return act, nil },
	}
}

func builtinSpecs() map[string]spec {
	return map[string]spec{
		"click": pointSpec("Tap the screen at (x, y) in screenshot coordinates.",
			func(p Point) Action { return Click{At: p} }),
		"double_tap": pointSpec("Double tap at (x, y). Useful to zoom into maps or images.",
			func(p Point) Action { return DoubleTap{At: p} }),
		"long_press": pointSpec("Long press at (x, y).",
			func(p Point) Action { return LongPress{At: p} }),
		"scroll": directionSpec("Scroll the content in a direction, optionally from (x, y). To scroll a tiny bit, swipe the opposite way instead.",
			func(d Direction, p *Point) Action { return Scroll{Direction: d, From: p} }),
		"swipe": directionSpec("Swipe the finger in a direction, optionally starting at (x, y).",
			func(d Direction, p *Point) Action { return Swipe{Direction: d, From: p} }),
		"swipe_coords": {
			description: "Swipe from (start_x, start_y) to (end_x, end_y) in screenshot coordinates.",
			properties: map[string]any{
				"start_x": intProp, "start_y": intProp, "end_x": intProp, "end_y": intProp,
			},
			required: []string{"start_x", "start_y", "end_x", "end_y"},
			build: func(a args, tr coords.Transform) (Action, error) {
				from, err := a.point(tr, "start_x", "start_y")
				if err != nil {
					return nil, err
				}
				to, err := a.point(tr, "end_x", "end_y")
				if err != nil {
					return nil, err
				}
				return SwipeCoords{From: from, To: to}, nil
			},
		},
		"input_text": {
			description: "Type text into the focused field. Optionally tap (x, y) first and clear the field.",
			properties: map[string]any{
				"text":       map[string]any{"type": "string"},
				"x":          intProp,
				"y":          intProp,
				"clear_text": map[string]any{"type": "boolean"},
			},
			required: []string{"text"},
			build: func(a args, tr coords.Transform) (Action, error) {
				text, err := a.requiredString("text", true)
				if err != nil {
					return nil, err
				}
				at, err := a.optionalPoint(tr, "x", "y")
				if err != nil {
					return nil, err
				}
				clear, err := a.optionalBool("clear_text")
				if err != nil {
					return nil, err
				}
				return InputText{Text: text, At: at, Clear: clear}, nil
			},
		},
		"keyboard_enter": noArgSpec("Press the enter key.", KeyboardEnter{}),
		"navigate_back":  noArgSpec("Press the system back button.", NavigateBack{}),
		"navigate_home":  noArgSpec("Go to the home screen.", NavigateHome{}),
		"wait":           noArgSpec("Wait for the screen to settle.", Wait{}),
		"open_app": {
			description: "Open an app by its name.",
			properties:  map[string]any{"app_name": map[string]any{"type": "string"}},
			required:    []string{"app_name"},
			build: func(a args, _ coords.Transform) (Action, error) {
				name, err := a.requiredString("app_name", false)
				if err != nil {
					return nil, err
				}
				return OpenApp{AppName: name}, nil
			},
		},
		"report": {
			description: "Finish this instruction. Summarize what was done and observed. Set success=false when the instruction could not be carried out.",
			properties: map[string]any{
				"notes":   map[string]any{"type": "string"},
				"success": map[string]any{"type": "boolean"},
			},
			required: []string{"notes"},
			build: func(a args, _ coords.Transform) (Action, error) {
				notes, err := a.optionalString("notes")
				if err != nil {
					return nil, err
				}
				ok, err := a.boolOr("success", true)
				if err != nil {
					return nil, err
				}
				return Report{Success: ok, Notes: notes}, nil
			},
		},
		"extracted_data": {
			description: "Finish this instruction by returning data read from the screen in a structured form.",
			properties:  map[string]any{"data": map[string]any{"type": "string"}},
			required:    []string{"data"},
			build: func(a args, _ coords.Transform) (Action, error) {
				data, err := a.requiredString("data", true)
				if err != nil {
					return nil, err
				}
				return ExtractedData{Data: data}, nil
			},
		},
	}
}
