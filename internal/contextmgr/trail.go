package contextmgr

import (
	"fmt"
	"sync"

	"droidpilot/internal/chat"
)

// Exchange is one planner decision and the results answering its tool calls.
// Exchanges are trimmed as a unit so no tool result outlives its call.
type Exchange struct {
	Assistant chat.Message
	Results   []chat.Message
}

func (e Exchange) messages() []chat.Message {
	out := make([]chat.Message, 0, 1+len(e.Results))
	out = append(out, e.Assistant)
	return append(out, e.Results...)
}

// Trail is the planner's rolling tool-call/result history, bounded by a token
// limit. The oldest exchanges go first; the newest is always kept.
type Trail struct {
	mu        sync.Mutex
	tok       *Tokenizer
	limit     int
	exchanges []Exchange
	dropped   int
}

// NewTrail returns a trail; limit <= 0 disables trimming.
func NewTrail(tok *Tokenizer, limit int) *Trail {
	if tok == nil {
		tok = DefaultTokenizer()
	}
	return &Trail{tok: tok, limit: limit}
}

// Append adds an exchange. Tool results are kept verbatim; only Trim removes
// anything, and then whole exchanges.
func (t *Trail) Append(ex Exchange) {
	ex.Results = append([]chat.Message(nil), ex.Results...)
	t.mu.Lock()
	t.exchanges = append(t.exchanges, ex)
	t.mu.Unlock()
}

// Messages flattens the trail. When exchanges were trimmed, a short note
// leads the list.
func (t *Trail) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messagesLocked()
}

func (t *Trail) messagesLocked() []chat.Message {
	var out []chat.Message
	if t.dropped > 0 {
		out = append(out, chat.Message{
			Role:    "user",
			Content: fmt.Sprintf("[%d earlier planner steps omitted to fit the context budget]", t.dropped),
		})
	}
	for _, ex := range t.exchanges {
		out = append(out, ex.messages()...)
	}
	return out
}

// Trim drops the oldest exchanges until the trail plus reserved tokens fits
// the limit. It returns how many exchanges were dropped by this call.
func (t *Trail) Trim(reserved int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit <= 0 {
		return 0
	}
	n := 0
	for len(t.exchanges) > 1 && t.tok.Count(t.messagesLocked())+reserved > t.limit {
		t.exchanges = t.exchanges[1:]
		t.dropped++
		n++
	}
	return n
}

// Tokens counts the trail as it would be sent.
func (t *Trail) Tokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tok.Count(t.messagesLocked())
}

func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.exchanges)
}

func (t *Trail) Reset() {
	t.mu.Lock()
	t.exchanges = nil
	t.dropped = 0
	t.mu.Unlock()
}

// Tokenizer returns the counter the trail trims with.
func (t *Trail) Tokenizer() *Tokenizer {
	return t.tok
}
