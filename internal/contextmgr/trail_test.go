package contextmgr

import (
	"fmt"
	"strings"
	"testing"

	"droidpilot/internal/chat"
)

func exchange(i int, result string) Exchange {
	call := chat.ToolCall{ID: fmt.Sprintf("call_%d", i), Type: "function", Function: chat.ToolCallFunction{Name: "tap", Arguments: `{"intent":"button"}`}}
	return Exchange{
		Assistant: chat.Message{Role: "assistant", Content: fmt.Sprintf("step %d", i), ToolCalls: []chat.ToolCall{call}},
		Results:   []chat.Message{chat.ToolResult(call, result)},
	}
}

func TestTrailTrimDropsOldestFirst(t *testing.T) {
	tok := estimating()
	tr := NewTrail(tok, 120)
	for i := 1; i <= 6; i++ {
		tr.Append(exchange(i, strings.Repeat("x", 80)))
	}
	dropped := tr.Trim(0)
	if dropped == 0 {
		t.Fatal("expected exchanges to be dropped")
	}
	if tr.Tokens() > 120 && tr.Len() > 1 {
		t.Fatalf("trail still over budget: %d tokens, %d exchanges", tr.Tokens(), tr.Len())
	}
	msgs := tr.Messages()
	if !strings.Contains(msgs[0].Content, "earlier planner steps omitted") {
		t.Fatalf("first message=%q", msgs[0].Content)
	}
	last := msgs[len(msgs)-1]
	if last.ToolCallID != "call_6" {
		t.Fatalf("newest exchange lost, last=%+v", last)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Role == "tool" && msgs[i-1].Role != "assistant" && msgs[i-1].Role != "tool" {
			t.Fatalf("orphan tool result at %d", i)
		}
	}
}

func TestTrailKeepsNewestEvenOverBudget(t *testing.T) {
	tr := NewTrail(estimating(), 1)
	tr.Append(exchange(1, "ok"))
	tr.Append(exchange(2, "ok"))
	tr.Trim(0)
	if tr.Len() != 1 {
		t.Fatalf("Len()=%d, want 1", tr.Len())
	}
}

func TestTrailNoLimit(t *testing.T) {
	tr := NewTrail(estimating(), 0)
	for i := 0; i < 10; i++ {
		tr.Append(exchange(i, "ok"))
	}
	if tr.Trim(1_000_000) != 0 || tr.Len() != 10 {
		t.Fatalf("limit 0 must not trim, Len()=%d", tr.Len())
	}
	tr.Reset()
	if tr.Len() != 0 || len(tr.Messages()) != 0 {
		t.Fatal("Reset should empty the trail")
	}
}

func TestTrailKeepsResultsVerbatim(t *testing.T) {
	tr := NewTrail(estimating(), 0)
	payload := `{"success":true,"text":"` + strings.Repeat("x", 5000) + `"}`
	tr.Append(exchange(1, payload))
	msgs := tr.Messages()
	if got := msgs[len(msgs)-1].Content; got != payload {
		t.Fatalf("tool result changed: len=%d want %d", len(got), len(payload))
	}
}
