package tools

import (
	"context"
	"encoding/json"

	"droidpilot/internal/chat"
)

// CreateItemTool stores a payload in the session scratchpad.
type CreateItemTool struct {
	session SessionFunc
}

func NewCreateItemTool(fn SessionFunc) *CreateItemTool {
	return &CreateItemTool{session: fn}
}

func (t *CreateItemTool) Name() string {
	return "createItem"
}

func (t *CreateItemTool) Definition() chat.ToolDef {
	return toolDef(t.Name(),
		"Store data in the scratchpad under a key (PAD-1, PAD-2, ...) with a title. Use it for extracted data you need in a later step or another app.",
		objectSchema(map[string]any{
			"key":   map[string]any{"type": "string", "description": "Sequential key such as PAD-1, PAD-2"},
			"title": map[string]any{"type": "string", "description": "What the data is, e.g. 'Recipe Pasta Details'"},
			"text":  map[string]any{"type": "string", "description": "Plain text or a JSON string; stored exactly as given"},
		}, "key", "title", "text"))
}

func (t *CreateItemTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	sess, err := activeSession(t.session)
	if err != nil {
		return "", err
	}
	var in struct {
		Key   string `json:"key"`
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := decodeArgs(t.Name(), args, &in); err != nil {
		return "", err
	}
	return mustJSON(sess.Pad.Create(in.Key, in.Title, in.Text)), nil
}

// FetchItemTool reads a scratchpad entry. A missing key is reported in the
// result, never as an error.
type FetchItemTool struct {
	session SessionFunc
}

func NewFetchItemTool(fn SessionFunc) *FetchItemTool {
	return &FetchItemTool{session: fn}
}

func (t *FetchItemTool) Name() string {
	return "fetchItem"
}

func (t *FetchItemTool) Definition() chat.ToolDef {
	return toolDef(t.Name(), "Retrieve data from the scratchpad by key.",
		objectSchema(map[string]any{
			"key": map[string]any{"type": "string", "description": "Key to read, e.g. PAD-1"},
		}, "key"))
}

func (t *FetchItemTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	sess, err := activeSession(t.session)
	if err != nil {
		return "", err
	}
	var in struct {
		Key string `json:"key"`
	}
	if err := decodeArgs(t.Name(), args, &in); err != nil {
		return "", err
	}
	return mustJSON(sess.Pad.Fetch(in.Key)), nil
}
