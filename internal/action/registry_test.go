package action

import (
	"encoding/json"
	"testing"

	"droidpilot/internal/coords"
	"droidpilot/internal/faults"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	tr, err := coords.New(1080, 2400, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	return NewRegistry(tr)
}

func TestBuildScalesCoordinates(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Build("click", json.RawMessage(`{"x":100,"y":200}`))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	click, ok := a.(Click)
	if !ok {
		t.Fatalf("action=%T, want Click", a)
	}
	if click.At != (Point{X: 250, Y: 500}) {
		t.Fatalf("click at %+v, want {250 500}", click.At)
	}
}

func TestBuildErrors(t *testing.T) {
	r := newTestRegistry(t)
	tests := []struct {
		name string
		tool string
		args string
		want faults.Kind
	}{
		{name: "unknown tool", tool: "fly", args: `{}`, want: faults.KindLookup},
		{name: "non numeric", tool: "click", args: `{"x":"left","y":3}`, want: faults.KindValidation},
		{name: "missing y", tool: "long_press", args: `{"x":3}`, want: faults.KindValidation},
		{name: "out of range", tool: "click", args: `{"x":5000,"y":3}`, want: faults.KindValidation},
		{name: "bad direction", tool: "scroll", args: `{"direction":"sideways"}`, want: faults.KindValidation},
		{name: "half point", tool: "swipe", args: `{"direction":"up","x":10}`, want: faults.KindValidation},
		{name: "empty text", tool: "input_text", args: `{"text":"  "}`, want: faults.KindValidation},
		{name: "not an object", tool: "click", args: `[1,2]`, want: faults.KindValidation},
		{name: "missing app", tool: "open_app", args: `{}`, want: faults.KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Build(tc.tool, json.RawMessage(tc.args))
			if got := faults.KindOf(err); got != tc.want {
				t.Fatalf("kind=%q (err=%v), want %q", got, err, tc.want)
			}
		})
	}
}

func TestBuildAcceptsNumericStrings(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Build("double_tap", json.RawMessage(`{"x":"40","y":" 80 "}`))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.(DoubleTap).At != (Point{X: 100, Y: 200}) {
		t.Fatalf("at=%+v", a.(DoubleTap).At)
	}
}

func TestWireMap(t *testing.T) {
	r := newTestRegistry(t)
	tests := []struct {
		tool string
		args string
		want map[string]any
	}{
		{tool: "swipe_coords", args: `{"start_x":40,"start_y":400,"end_x":320,"end_y":400}`,
			want: map[string]any{"action_type": "swipe", "x": 100, "y": 1000, "end_x": 800, "end_y": 1000}},
		{tool: "scroll", args: `{"direction":"DOWN"}`,
			want: map[string]any{"action_type": "scroll", "direction": "down"}},
		{tool: "input_text", args: `{"text":" hi ","clear_text":true}`,
			want: map[string]any{"action_type": "input_text", "text": " hi ", "clear_text": true}},
		{tool: "open_app", args: `{"app_name":"Settings"}`,
			want: map[string]any{"action_type": "open_app", "app_name": "Settings"}},
		{tool: "report", args: `{"notes":"done","success":false}`,
			want: map[string]any{"action_type": "status", "goal_status": "infeasible", "text": "done"}},
		{tool: "navigate_home", args: ``,
			want: map[string]any{"action_type": "navigate_home"}},
	}
	for _, tc := range tests {
		t.Run(tc.tool, func(t *testing.T) {
			a, err := r.Build(tc.tool, json.RawMessage(tc.args))
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			got := WireMap(a)
			if len(got) != len(tc.want) {
				t.Fatalf("wire=%v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("wire[%s]=%v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestReportArguments(t *testing.T) {
	r := newTestRegistry(t)
	tests := []struct {
		args    string
		success bool
		notes   string
		wantErr bool
	}{
		{args: `{"notes":"ok"}`, success: true, notes: "ok"},
		{args: `{"notes":"ok","success":null}`, success: true, notes: "ok"},
		{args: `{"notes":"blocked","success":false}`, success: false, notes: "blocked"},
		{args: `{"notes":"ok","success":"false"}`, success: false, notes: "ok"},
		{args: `{"notes":42,"success":true}`, wantErr: true},
		{args: `{"notes":"ok","success":"maybe"}`, wantErr: true},
	}
	for _, tt := range tests {
		act, err := r.Build("report", json.RawMessage(tt.args))
		if tt.wantErr {
			if faults.KindOf(err) != faults.KindValidation {
				t.Fatalf("Build(%s) err=%v, want validation", tt.args, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Build(%s): %v", tt.args, err)
		}
		rep := act.(Report)
		if rep.Success != tt.success || rep.Notes != tt.notes {
			t.Fatalf("Build(%s) = %+v", tt.args, rep)
		}
	}
}

func TestTerminalActions(t *testing.T) {
	r := newTestRegistry(t)
	rep, err := r.Build("report", json.RawMessage(`{"notes":"ok"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !IsTerminal(rep) || !rep.(Report).Success {
		t.Fatalf("report should be terminal and default to success: %+v", rep)
	}
	data, _ := r.Build("extracted_data", json.RawMessage(`{"data":"{\"total\":3}"}`))
	if !IsTerminal(data) {
		t.Fatal("extracted_data should be terminal")
	}
	click, _ := r.Build("click", json.RawMessage(`{"x":1,"y":1}`))
	if IsTerminal(click) {
		t.Fatal("click should not be terminal")
	}
}

func TestDefinitionsCoverNames(t *testing.T) {
	r := newTestRegistry(t)
	defs := r.Definitions()
	names := r.Names()
	if len(defs) != len(names) {
		t.Fatalf("defs=%d names=%d", len(defs), len(names))
	}
	for i, d := range defs {
		if d.Function.Name != names[i] {
			t.Fatalf("def[%d]=%q, want %q", i, d.Function.Name, names[i])
		}
	}
	for _, want := range []string{"click", "double_tap", "input_text", "report", "extracted_data", "swipe_coords", "wait"} {
		if !r.Has(want) {
			t.Fatalf("registry missing %q", want)
		}
	}
}
