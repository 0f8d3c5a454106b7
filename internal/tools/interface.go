package tools

import (
	"context"
	"encoding/json"

	"droidpilot/internal/chat"
)

// Tool is one planner-level tool.
type Tool interface {
	Name() string
	Definition() chat.ToolDef
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Delegated marks tools whose work is carried out by an executor run rather
// than inline by the planner loop.
type Delegated interface {
	Delegated() bool
}

type callIDKey struct{}

// WithCallID attaches the id of the tool call being executed.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallIDFrom returns the id set by WithCallID, or "".
func CallIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}
