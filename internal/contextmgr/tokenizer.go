package contextmgr

import (
	"strings"
	"sync"
	"unicode"

	"droidpilot/internal/chat"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	defaultEncoding = "cl100k_base"

	// per-message framing and per-call framing, as billed by OpenAI-style APIs
	messageOverhead  = 4
	toolCallOverhead = 8

	// 截图按 detail 固定计价
	// Screenshots are charged a flat cost by detail level.
	screenshotTokens    = 765
	screenshotLowTokens = 85
)

// o200kPrefixes are the model families encoded with o200k_base. Anything else,
// including the Qwen-VL and UI-TARS style models the executor usually runs,
// is counted with cl100k_base.
var o200kPrefixes = []string{"gpt-4o", "chatgpt-4o", "gpt-4.1", "gpt-5", "o1", "o3", "o4"}

// Tokenizer 估算规划器上下文的 token 数
// Tokenizer sizes the planner's context: text through tiktoken when the BPE
// tables load, a rune-class estimate when they don't.
type Tokenizer struct {
	mu       sync.Mutex
	encoder  *tiktoken.Tiktoken
	encoding string
}

var (
	defaultTokenizer     *Tokenizer
	defaultTokenizerOnce sync.Once
)

// DefaultTokenizer is shared by trails built without a model name.
func DefaultTokenizer() *Tokenizer {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer = NewTokenizer(defaultEncoding)
	})
	return defaultTokenizer
}

// NewTokenizer loads encoding. Without network access the BPE tables may be
// missing; the tokenizer then estimates.
func NewTokenizer(encoding string) *Tokenizer {
	t := &Tokenizer{encoding: encoding}
	if enc, err := tiktoken.GetEncoding(encoding); err == nil {
		t.encoder = enc
	}
	return t
}

// NewTokenizerForModel picks the encoding for the planner model.
func NewTokenizerForModel(model string) *Tokenizer {
	return NewTokenizer(encodingFor(model))
}

// Count sums the cost of messages, screenshots included.
func (t *Tokenizer) Count(messages []chat.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.countMessage(msg)
	}
	return total
}

func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.encoder == nil {
		return estimateTokens(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// IsPrecise reports whether tiktoken is doing the counting.
func (t *Tokenizer) IsPrecise() bool {
	return t.encoder != nil
}

func (t *Tokenizer) Encoding() string {
	return t.encoding
}

func (t *Tokenizer) countMessage(msg chat.Message) int {
	n := messageOverhead + t.CountText(msg.Role) + t.CountText(msg.Content) + t.CountText(msg.Reasoning)
	for _, part := range msg.MultiContent {
		switch p := part.(type) {
		case chat.TextContent:
			n += t.CountText(p.Text)
		case chat.ImageContent:
			n += screenshotCost(p.ImageURL.Detail)
		}
	}
	if msg.Name != "" {
		n += t.CountText(msg.Name) + 1
	}
	for _, tc := range msg.ToolCalls {
		n += toolCallOverhead + t.CountText(tc.Function.Name) + t.CountText(tc.Function.Arguments)
	}
	return n
}

func screenshotCost(detail string) int {
	if detail == "low" {
		return screenshotLowTokens
	}
	return screenshotTokens
}

// estimateTokens 粗略估算：表意文字约 1.5 token/字，其余约 4 字符/token
// estimateTokens charges ideographic and syllabic scripts about 1.5 tokens a
// rune and everything else about a quarter token a rune. Localized app labels
// make the first class common in scratchpad text.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	wide, narrow := 0, 0
	for _, r := range text {
		if isWide(r) {
			wide++
		} else {
			narrow++
		}
	}
	return max(1, int(float64(wide)*1.5+float64(narrow)*0.25))
}

func isWide(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hangul, unicode.Hiragana, unicode.Katakana) ||
		(r >= 0x3000 && r <= 0x303F) || // CJK punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // fullwidth forms
}

func encodingFor(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range o200kPrefixes {
		if strings.HasPrefix(m, p) {
			return "o200k_base"
		}
	}
	return defaultEncoding
}
