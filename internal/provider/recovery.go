package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"droidpilot/internal/chat"
)

var (
	toolCallBlockPattern = regexp.MustCompile(`(?is)<tool_call>\s*(.*?)\s*</tool_call>`)
	functionCallPattern  = regexp.MustCompile(`(?is)<function=([a-zA-Z0-9_\-]+)>\s*(.*?)\s*</function>`)
	parameterPattern     = regexp.MustCompile(`(?is)<parameter=([a-zA-Z0-9_\-]+)>\s*(.*?)\s*</parameter>`)
)

// Decide calls p and, when the engine wrote its tool calls into the content
// as markup instead of structured calls, recovers them.
func Decide(ctx context.Context, p Provider, req ChatRequest) (ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.CurrentModel()
	}
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return ChatResponse{}, err
	}
	if len(resp.ToolCalls) == 0 {
		if recovered, cleaned := RecoverToolCalls(resp.Content, req.Tools); len(recovered) > 0 {
			resp.ToolCalls = recovered
			resp.Content = cleaned
		}
	}
	return resp, nil
}

// RecoverToolCalls extracts tool calls written as
//
//	<tool_call>{"name":"tap","arguments":{"intent":"OK button"}}</tool_call>
//	<tool_call><function=tap><parameter=intent>OK button</parameter></function></tool_call>
//
// Only names present in defs are accepted; names are matched case-insensitively
// and returned in their declared form. Unparsed blocks stay in the content.
func RecoverToolCalls(content string, defs []chat.ToolDef) ([]chat.ToolCall, string) {
	if strings.TrimSpace(content) == "" || len(defs) == 0 {
		return nil, content
	}
	allowed := map[string]string{}
	for _, d := range defs {
		name := strings.TrimSpace(d.Function.Name)
		if name != "" {
			allowed[strings.ToLower(name)] = name
		}
	}
	if len(allowed) == 0 {
		return nil, content
	}

	matches := toolCallBlockPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil, content
	}

	calls := make([]chat.ToolCall, 0, len(matches))
	var cleaned strings.Builder
	last := 0
	for i, m := range matches {
		if len(m) < 4 {
			continue
		}
		start, end := m[0], m[1]
		cleaned.WriteString(content[last:start])
		last = end
		inner := strings.TrimSpace(content[m[2]:m[3]])
		call, ok := parseJSONStyleToolCall(inner, allowed, i+1)
		if !ok {
			call, ok = parseTaggedToolCall(inner, allowed, i+1)
		}
		if !ok {
			cleaned.WriteString(content[start:end])
			continue
		}
		calls = append(calls, call)
	}
	cleaned.WriteString(content[last:])
	return calls, strings.TrimSpace(cleaned.String())
}

func recoveredCall(name, args string, seq int) chat.ToolCall {
	return chat.ToolCall{
		ID:       fmt.Sprintf("recovered_call_%d", seq),
		Type:     "function",
		Function: chat.ToolCallFunction{Name: name, Arguments: args},
	}
}

func parseJSONStyleToolCall(inner string, allowed map[string]string, seq int) (chat.ToolCall, bool) {
	var payload struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(inner), &payload); err != nil {
		return chat.ToolCall{}, false
	}
	name, ok := allowed[strings.ToLower(strings.TrimSpace(payload.Name))]
	if !ok {
		return chat.ToolCall{}, false
	}
	args := "{}"
	raw := bytes.TrimSpace(payload.Arguments)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if raw[0] != '{' {
			return chat.ToolCall{}, false
		}
		var tmp map[string]any
		if err := json.Unmarshal(raw, &tmp); err != nil {
			return chat.ToolCall{}, false
		}
		b, _ := json.Marshal(tmp)
		args = string(b)
	}
	return recoveredCall(name, args, seq), true
}

func parseTaggedToolCall(inner string, allowed map[string]string, seq int) (chat.ToolCall, bool) {
	m := functionCallPattern.FindStringSubmatch(inner)
	if len(m) != 3 {
		return chat.ToolCall{}, false
	}
	name, ok := allowed[strings.ToLower(strings.TrimSpace(m[1]))]
	if !ok {
		return chat.ToolCall{}, false
	}
	params := map[string]any{}
	for _, pm := range parameterPattern.FindAllStringSubmatch(m[2], -1) {
		key := strings.TrimSpace(pm[1])
		if key == "" {
			continue
		}
		params[key] = strings.TrimSpace(pm[2])
	}
	args, err := json.Marshal(params)
	if err != nil {
		return chat.ToolCall{}, false
	}
	return recoveredCall(name, string(args), seq), true
}
