package action

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"droidpilot/internal/coords"
	"droidpilot/internal/faults"
)

type args map[string]json.RawMessage

func parseArgs(raw json.RawMessage) (args, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return args{}, nil
	}
	var a args
	if err := json.Unmarshal(trimmed, &a); err != nil {
		return nil, faults.Validation("", "arguments must be a JSON object: %v", err)
	}
	if a == nil {
		a = args{}
	}
	return a, nil
}

// number accepts JSON numbers and numeric strings ("120", "120.5").
func (a args) number(key string) (float64, bool, error) {
	raw, ok := a[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return 0, false, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return f, true, nil
		}
	}
	return 0, true, faults.Validation(key, "%s is not a number", string(raw))
}

func (a args) point(tr coords.Transform, xKey, yKey string) (Point, error) {
	x, okX, err := a.number(xKey)
	if err != nil {
		return Point{}, err
	}
	y, okY, err := a.number(yKey)
	if err != nil {
		return Point{}, err
	}
	if !okX {
		return Point{}, faults.Validation(xKey, "is required")
	}
	if !okY {
		return Point{}, faults.Validation(yKey, "is required")
	}
	dx, dy, err := tr.ToDevice(x, y)
	if err != nil {
		return Point{}, err
	}
	return Point{X: dx, Y: dy}, nil
}

// optionalPoint returns nil when neither coordinate is given; one without the
// other is rejected.
func (a args) optionalPoint(tr coords.Transform, xKey, yKey string) (*Point, error) {
	_, okX, errX := a.number(xKey)
	_, okY, errY := a.number(yKey)
	if errX != nil {
		return nil, errX
	}
	if errY != nil {
		return nil, errY
	}
	if !okX && !okY {
		return nil, nil
	}
	p, err := a.point(tr, xKey, yKey)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (a args) optionalString(key string) (string, error) {
	raw, ok := a[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", faults.Validation(key, "must be a string")
	}
	return s, nil
}

// requiredString rejects missing or blank values. verbatim keeps surrounding
// whitespace, which matters for typed text.
func (a args) requiredString(key string, verbatim bool) (string, error) {
	s, err := a.optionalString(key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", faults.Validation(key, "is required")
	}
	if verbatim {
		return s, nil
	}
	return strings.TrimSpace(s), nil
}

func (a args) optionalBool(key string) (bool, error) {
	return a.boolOr(key, false)
}

// boolOr returns def when key is missing or null. Strings such as "true" are
// accepted.
func (a args) boolOr(key string, def bool) (bool, error) {
	raw, ok := a[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return def, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return v, nil
		}
	}
	return false, faults.Validation(key, "%s is not a boolean", string(raw))
}

func (a args) direction(key string) (Direction, error) {
	s, err := a.requiredString(key, false)
	if err != nil {
		return "", err
	}
	d := Direction(strings.ToLower(s))
	if !d.Valid() {
		return "", faults.Validation(key, "must be one of up, down, left, right, got %q", s)
	}
	return d, nil
}
