package tools

import (
	"context"
	"encoding/json"
	"sort"

	"droidpilot/internal/chat"
	"droidpilot/internal/faults"
)

type Registry struct {
	tools map[string]Tool
}

func NewRegistry(ts ...Tool) *Registry {
	m := make(map[string]Tool, len(ts))
	for _, t := range ts {
		m[t.Name()] = t
	}
	return &Registry{tools: m}
}

// Register adds or replaces t.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Definitions() []chat.ToolDef {
	out := make([]chat.ToolDef, 0, len(r.tools))
	for _, name := range r.Names() {
		out = append(out, r.tools[name].Definition())
	}
	return out
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// IsDelegated reports whether name runs through an executor.
func (r *Registry) IsDelegated(name string) bool {
	t, ok := r.tools[name]
	if !ok {
		return false
	}
	d, ok := t.(Delegated)
	return ok && d.Delegated()
}

// Execute runs name; an unknown name is a faults.LookupError.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", faults.Lookup(name)
	}
	return t.Execute(ctx, args)
}
