package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"droidpilot/internal/chat"

	openai "github.com/sashabaranov/go-openai"
)

func TestConvertMessages(t *testing.T) {
	messages := []chat.Message{
		{Role: "system", Content: "You are the planner"},
		chat.UserWithImage("Goal: open settings", "data:image/png;base64,AAAA"),
		{Role: "assistant", ToolCalls: []chat.ToolCall{
			{ID: "call_1", Type: "function", Function: chat.ToolCallFunction{Name: "tap", Arguments: `{"intent":"Settings"}`}},
		}},
		{Role: "tool", Name: "tap", ToolCallID: "call_1", Content: `{"success":true}`},
	}

	converted := convertMessages(messages)
	if len(converted) != 4 {
		t.Fatalf("convertMessages len=%d, want 4", len(converted))
	}
	if converted[0].Role != "system" || converted[0].Content != "You are the planner" {
		t.Fatalf("msg[0] unexpected: %+v", converted[0])
	}
	parts := converted[1].MultiContent
	if converted[1].Content != "" || len(parts) != 2 {
		t.Fatalf("msg[1] should be multimodal: %+v", converted[1])
	}
	if parts[0].Type != openai.ChatMessagePartTypeText || parts[0].Text != "Goal: open settings" {
		t.Fatalf("text part unexpected: %+v", parts[0])
	}
	if parts[1].Type != openai.ChatMessagePartTypeImageURL || parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/png;base64,AAAA" {
		t.Fatalf("image part unexpected: %+v", parts[1])
	}
	if len(converted[2].ToolCalls) != 1 || converted[2].ToolCalls[0].Function.Name != "tap" {
		t.Fatalf("msg[2] tool calls unexpected: %+v", converted[2])
	}
	if converted[3].ToolCallID != "call_1" {
		t.Fatalf("msg[3] ToolCallID=%q, want call_1", converted[3].ToolCallID)
	}
}

func TestConvertTools(t *testing.T) {
	tools := []chat.ToolDef{{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        "tap",
			Description: "Tap an element",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"intent": map[string]any{"type": "string"}},
			},
		},
	}}
	converted := convertTools(tools)
	if len(converted) != 1 || converted[0].Function.Name != "tap" {
		t.Fatalf("convertTools unexpected: %+v", converted)
	}
}

func TestAssembleToolCalls(t *testing.T) {
	byIdx := map[int]*toolCallAccumulator{
		0: {id: "call_abc", typ: "function", name: "click"},
		2: {name: "report"},
	}
	byIdx[0].args.WriteString(`{"x":1,"y":2}`)

	calls := assembleToolCalls(byIdx)
	if len(calls) != 2 {
		t.Fatalf("assembleToolCalls len=%d, want 2", len(calls))
	}
	if calls[0].ID != "call_abc" || calls[0].Function.Arguments != `{"x":1,"y":2}` {
		t.Fatalf("call[0] unexpected: %+v", calls[0])
	}
	if calls[1].ID != "call_2" || calls[1].Type != "function" {
		t.Fatalf("call[1] unexpected: %+v", calls[1])
	}
	if assembleToolCalls(map[int]*toolCallAccumulator{}) != nil {
		t.Fatal("empty should return nil")
	}
}

func TestOpenAIProviderSetModel(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o"}
	if err := p.SetModel("gpt-4o-mini"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}
	if p.CurrentModel() != "gpt-4o-mini" {
		t.Fatalf("CurrentModel()=%q", p.CurrentModel())
	}
	if err := p.SetModel(" "); err == nil {
		t.Fatal("SetModel empty should error")
	}
}

func sseChunk(w http.ResponseWriter, payload string) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func TestChatRetriesThenStreams(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, `{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Opening settings."}}]}`)
		sseChunk(w, `{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"tap","arguments":"{\"intent\":"}}]}}]}`)
		sseChunk(w, `{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Settings\"}"}}]},"finish_reason":"tool_calls"}]}`)
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "m", MaxRetries: 2})
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []chat.Message{{Role: "user", Content: "go"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("server calls=%d, want 2", calls.Load())
	}
	if resp.Content != "Opening settings." || resp.FinishReason != "tool_calls" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Arguments != `{"intent":"Settings"}` {
		t.Fatalf("tool calls=%+v", resp.ToolCalls)
	}
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "m", MaxRetries: 3})
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("server calls=%d, want 1", calls.Load())
	}
}
