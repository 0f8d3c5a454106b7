package provider

import (
	"context"

	"droidpilot/internal/chat"
)

// ChatRequest is one decision request: the context so far plus the tools the
// engine may call.
type ChatRequest struct {
	Model       string
	Messages    []chat.Message
	Tools       []chat.ToolDef
	Temperature *float64
	MaxTokens   int
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
	TotalTokens      int
}

// ChatResponse is a normalized decision: free text, reasoning and the ordered
// tool calls.
type ChatResponse struct {
	Content      string
	Reasoning    string
	ToolCalls    []chat.ToolCall
	FinishReason string
	Usage        Usage
}

// Thinking returns the reasoning text if present, else the content.
func (r ChatResponse) Thinking() string {
	if r.Reasoning != "" {
		return r.Reasoning
	}
	return r.Content
}

// Provider is a reasoning-engine backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	CurrentModel() string
}
