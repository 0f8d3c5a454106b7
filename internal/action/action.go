// Package action defines the closed set of device actions and the registry that
// builds them from executor tool calls.
package action

import "fmt"

// Direction of a scroll or swipe.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	}
	return false
}

// Action is a validated device action. The set of implementations is closed:
// only this package can add variants.
type Action interface {
	// Type is the wire action_type understood by the device server.
	Type() string
	isAction()
}

// Point is a device-space coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Click struct{ At Point }
type DoubleTap struct{ At Point }
type LongPress struct{ At Point }

// Scroll moves the content; From is optional and defaults to screen center.
type Scroll struct {
	Direction Direction
	From      *Point
}

// Swipe moves the finger in a named direction.
type Swipe struct {
	Direction Direction
	From      *Point
}

// SwipeCoords is a drag between explicit device coordinates.
type SwipeCoords struct {
	From Point
	To   Point
}

// InputText types Text, optionally focusing At and clearing the field first.
type InputText struct {
	Text  string
	At    *Point
	Clear bool
}

type KeyboardEnter struct{}
type NavigateBack struct{}
type NavigateHome struct{}

type OpenApp struct{ AppName string }

type Wait struct{}

// Report terminates an executor run with a status and notes.
type Report struct {
	Success bool
	Notes   string
}

// ExtractedData terminates an executor run carrying a data payload.
type ExtractedData struct {
	Data string
}

func (Click) Type() string         { return "click" }
func (DoubleTap) Type() string     { return "double_tap" }
func (LongPress) Type() string     { return "long_press" }
func (Scroll) Type() string        { return "scroll" }
func (Swipe) Type() string         { return "swipe" }
func (SwipeCoords) Type() string   { return "swipe" }
func (InputText) Type() string     { return "input_text" }
func (KeyboardEnter) Type() string { return "keyboard_enter" }
func (NavigateBack) Type() string  { return "navigate_back" }
func (NavigateHome) Type() string  { return "navigate_home" }
func (OpenApp) Type() string       { return "open_app" }
func (Wait) Type() string          { return "wait" }
func (Report) Type() string        { return "status" }
func (ExtractedData) Type() string { return "answer" }

func (Click) isAction()         {}
func (DoubleTap) isAction()     {}
func (LongPress) isAction()     {}
func (Scroll) isAction()        {}
func (Swipe) isAction()         {}
func (SwipeCoords) isAction()   {}
func (InputText) isAction()     {}
func (KeyboardEnter) isAction() {}
func (NavigateBack) isAction()  {}
func (NavigateHome) isAction()  {}
func (OpenApp) isAction()       {}
func (Wait) isAction()          {}
func (Report) isAction()        {}
func (ExtractedData) isAction() {}

// IsTerminal reports whether a ends the executor run instead of touching the device.
func IsTerminal(a Action) bool {
	switch a.(type) {
	case Report, ExtractedData:
		return true
	default:
		return false
	}
}

// WireMap renders a as the JSON action body accepted by the device server.
func WireMap(a Action) map[string]any {
	m := map[string]any{"action_type": a.Type()}
	switch v := a.(type) {
	case Click:
		putPoint(m, &v.At)
	case DoubleTap:
		putPoint(m, &v.At)
	case LongPress:
		putPoint(m, &v.At)
	case Scroll:
		m["direction"] = string(v.Direction)
		putPoint(m, v.From)
	case Swipe:
		m["direction"] = string(v.Direction)
		putPoint(m, v.From)
	case SwipeCoords:
		putPoint(m, &v.From)
		m["end_x"] = v.To.X
		m["end_y"] = v.To.Y
	case InputText:
		m["text"] = v.Text
		putPoint(m, v.At)
		if v.Clear {
			m["clear_text"] = true
		}
	case OpenApp:
		m["app_name"] = v.AppName
	case Report:
		status := "complete"
		if !v.Success {
			status = "infeasible"
		}
		m["goal_status"] = status
		m["text"] = v.Notes
	case ExtractedData:
		m["text"] = v.Data
	case KeyboardEnter, NavigateBack, NavigateHome, Wait:
	default:
		panic(fmt.Sprintf("action: unhandled variant %T", a))
	}
	return m
}

// Describe is a one-line human summary used in logs and traces.
func Describe(a Action) string {
	switch v := a.(type) {
	case Click:
		return fmt.Sprintf("click(%d,%d)", v.At.X, v.At.Y)
	case DoubleTap:
		return fmt.Sprintf("double_tap(%d,%d)", v.At.X, v.At.Y)
	case LongPress:
		return fmt.Sprintf("long_press(%d,%d)", v.At.X, v.At.Y)
	case Scroll:
		return "scroll " + string(v.Direction)
	case Swipe:
		return "swipe " + string(v.Direction)
	case SwipeCoords:
		return fmt.Sprintf("swipe (%d,%d)->(%d,%d)", v.From.X, v.From.Y, v.To.X, v.To.Y)
	case InputText:
		return fmt.Sprintf("input_text %q", v.Text)
	case OpenApp:
		return "open_app " + v.AppName
	case Report:
		return fmt.Sprintf("report success=%t", v.Success)
	case ExtractedData:
		return "extracted_data"
	default:
		return a.Type()
	}
}

func putPoint(m map[string]any, p *Point) {
	if p == nil {
		return
	}
	m["x"] = p.X
	m["y"] = p.Y
}
