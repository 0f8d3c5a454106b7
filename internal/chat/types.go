package chat

// ToolFunction describes an OpenAI-compatible function tool definition.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDef describes one function tool exposed to the reasoning engine.
type ToolDef struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolCallFunction is the function payload of a tool call.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one normalized decision: {id, name, arguments}.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ContentPart is a part of a multimodal message.
type ContentPart interface {
	isContentPart()
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (t TextContent) isContentPart() {}

type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

func (i ImageContent) isContentPart() {}

type ImageURL struct {
	URL    string `json:"url"`              // data URL
	Detail string `json:"detail,omitempty"` // "low", "high", or "auto"
}

// Message is an OpenAI-compatible chat message.
type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content,omitempty"`
	MultiContent []ContentPart `json:"-"` // takes precedence over Content
	Reasoning    string        `json:"reasoning,omitempty"`
	Name         string        `json:"name,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
}

// UserWithImage builds a user message carrying text and one screenshot.
func UserWithImage(text, imageURL string) Message {
	if imageURL == "" {
		return Message{Role: "user", Content: text}
	}
	return Message{
		Role: "user",
		MultiContent: []ContentPart{
			TextContent{Type: "text", Text: text},
			ImageContent{Type: "image_url", ImageURL: ImageURL{URL: imageURL, Detail: "high"}},
		},
	}
}

// ToolResult builds the tool message answering call.
func ToolResult(call ToolCall, content string) Message {
	return Message{
		Role:       "tool",
		Name:       call.Function.Name,
		ToolCallID: call.ID,
		Content:    content,
	}
}

// TextOf flattens a message to its text parts.
func TextOf(m Message) string {
	if len(m.MultiContent) == 0 {
		return m.Content
	}
	out := ""
	for _, p := range m.MultiContent {
		if t, ok := p.(TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += t.Text
		}
	}
	return out
}
