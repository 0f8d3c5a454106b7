package orchestrator

import (
	"droidpilot/internal/chat"
	"droidpilot/internal/faults"
	"droidpilot/internal/tools"
)

// responseBuilder collects exactly one tool message per issued call. Results
// are slotted by call position, so calls sharing an id still get their own
// result. Finish answers every slot still empty, so it is deferred by whoever
// owns the turn.
type responseBuilder struct {
	calls    []chat.ToolCall
	results  []string
	resolved []bool
	failed   []bool
	finished bool
}

func newResponseBuilder(calls []chat.ToolCall) *responseBuilder {
	return &responseBuilder{
		calls:    calls,
		results:  make([]string, len(calls)),
		resolved: make([]bool, len(calls)),
		failed:   make([]bool, len(calls)),
	}
}

func (b *responseBuilder) valid(i int) bool {
	return i >= 0 && i < len(b.calls)
}

// Resolve records the result of call i. Later results for the same call are
// ignored.
func (b *responseBuilder) Resolve(i int, result string) {
	if !b.valid(i) || b.resolved[i] {
		return
	}
	b.results[i] = result
	b.resolved[i] = true
}

// Fail records err as the result of call i.
func (b *responseBuilder) Fail(i int, err error) {
	if !b.valid(i) || b.resolved[i] {
		return
	}
	b.results[i] = tools.FailureResult(err)
	b.resolved[i] = true
	b.failed[i] = true
}

func (b *responseBuilder) Resolved(i int) bool {
	return b.valid(i) && b.resolved[i]
}

func (b *responseBuilder) Failed(i int) bool {
	return b.valid(i) && b.failed[i]
}

// AllFailed reports whether there were calls and every one failed.
func (b *responseBuilder) AllFailed() bool {
	if len(b.calls) == 0 {
		return false
	}
	for i := range b.calls {
		if !b.failed[i] {
			return false
		}
	}
	return true
}

// Finish fails every unresolved call.
func (b *responseBuilder) Finish() {
	if b.finished {
		return
	}
	b.finished = true
	for i, call := range b.calls {
		if !b.resolved[i] {
			b.Fail(i, faults.Orchestration("tool call %s (%s) was not handled", call.ID, call.Function.Name))
		}
	}
}

// Messages returns one tool message per call, in call order.
func (b *responseBuilder) Messages() []chat.Message {
	out := make([]chat.Message, 0, len(b.calls))
	for i, call := range b.calls {
		out = append(out, chat.ToolResult(call, b.results[i]))
	}
	return out
}

// Result returns the recorded result of call i.
func (b *responseBuilder) Result(i int) string {
	if !b.valid(i) {
		return ""
	}
	return b.results[i]
}
