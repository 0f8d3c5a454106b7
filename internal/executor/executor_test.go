package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"droidpilot/internal/chat"
	"droidpilot/internal/device/devicetest"
	"droidpilot/internal/faults"
	"droidpilot/internal/provider"
	"droidpilot/internal/supervisor"
	"droidpilot/internal/trace"
)

type scriptedProvider struct {
	responses []provider.ChatResponse
	requests  []provider.ChatRequest
	fallback  *provider.ChatResponse
}

func (p *scriptedProvider) Chat(_ context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		if p.fallback != nil {
			return *p.fallback, nil
		}
		return provider.ChatResponse{}, errors.New("no scripted response")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) CurrentModel() string { return "executor-test" }

func toolCall(id, name, args string) chat.ToolCall {
	return chat.ToolCall{ID: id, Type: "function", Function: chat.ToolCallFunction{Name: name, Arguments: args}}
}

func calls(tcs ...chat.ToolCall) provider.ChatResponse {
	return provider.ChatResponse{ToolCalls: tcs}
}

func newTestExecutor(t *testing.T, prov provider.Provider, dev *devicetest.Fake, maxSteps int) (*Executor, *trace.Recorder) {
	t.Helper()
	rec, err := trace.StartRun(t.TempDir(), trace.RunInfo{Goal: "test", Width: dev.Width, Height: dev.Height, Scale: 0.5})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	e := New(Options{
		Provider:   prov,
		Supervisor: supervisor.New(dev, supervisor.Options{}),
		Recorder:   rec,
		MaxSteps:   maxSteps,
		Scale:      0.5,
	})
	return e, rec
}

func TestRunTapThenReport(t *testing.T) {
	dev := devicetest.New(1000, 2000)
	prov := &scriptedProvider{responses: []provider.ChatResponse{
		calls(toolCall("e1", "click", `{"x":100,"y":200}`)),
		calls(toolCall("e2", "report", `{"success":true,"notes":"tapped Settings"}`)),
	}}
	e, rec := newTestExecutor(t, prov, dev, 10)

	res := e.Run(context.Background(), Request{CallID: "call_1", Tool: "tap", Query: "Locate and tap on the Settings icon", PlannerStep: 1})
	if !res.Success || res.Steps != 2 || res.Summary != "tapped Settings" {
		t.Fatalf("result=%+v", res)
	}
	if !strings.Contains(res.JSON(), `"success":true`) {
		t.Fatalf("json=%s", res.JSON())
	}
	if got := dev.ActionTypes(); len(got) != 1 || got[0] != "click" {
		t.Fatalf("dispatched=%v", got)
	}
	if dev.Dispatched[0]["x"] != 200 || dev.Dispatched[0]["y"] != 400 {
		t.Fatalf("click not mapped to device space: %v", dev.Dispatched[0])
	}

	first := prov.requests[0]
	if len(first.Messages) != 2 || first.Messages[0].Role != "system" {
		t.Fatalf("first request should hold only system prompt and query, got %d messages", len(first.Messages))
	}
	if chat.TextOf(first.Messages[1]) != "Locate and tap on the Settings icon" {
		t.Fatalf("query=%q", chat.TextOf(first.Messages[1]))
	}
	second := prov.requests[1]
	images := 0
	for _, m := range second.Messages {
		if len(m.MultiContent) > 0 {
			images++
		}
	}
	if images != 1 {
		t.Fatalf("second request carries %d screenshots, want 1", images)
	}

	run, err := trace.Load(rec.Dir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	steps := run.ExecutorSteps()
	if len(steps) != 2 {
		t.Fatalf("logged %d steps, want 2", len(steps))
	}
	if steps[0].ScreenshotPath == "" || steps[1].ScreenshotPath != "" {
		t.Fatalf("screenshots: %q %q", steps[0].ScreenshotPath, steps[1].ScreenshotPath)
	}
	if steps[0].Dimensions.ScaledWidth != 500 || steps[0].PlannerToolCallID != "call_1" {
		t.Fatalf("step0=%+v", steps[0])
	}
}

func TestRunStopsExactlyAtCap(t *testing.T) {
	dev := devicetest.New(100, 100)
	wait := calls(toolCall("w", "wait", `{}`))
	prov := &scriptedProvider{fallback: &wait}
	e, _ := newTestExecutor(t, prov, dev, 3)

	res := e.Run(context.Background(), Request{CallID: "c", Tool: "wait", Query: "Wait"})
	if res.Success || res.Kind != string(faults.KindBudgetExhausted) || res.Steps != 3 {
		t.Fatalf("result=%+v", res)
	}
	if len(prov.requests) != 3 || len(dev.Dispatched) != 3 {
		t.Fatalf("requests=%d dispatched=%d, want 3", len(prov.requests), len(dev.Dispatched))
	}
}

func TestValidationErrorIsFedBack(t *testing.T) {
	dev := devicetest.New(100, 100)
	prov := &scriptedProvider{responses: []provider.ChatResponse{
		calls(toolCall("e1", "click", `{"x":9999,"y":10}`)),
		calls(toolCall("e2", "fly", `{}`)),
		calls(toolCall("e3", "report", `{"success":false,"notes":"button missing"}`)),
	}}
	e, _ := newTestExecutor(t, prov, dev, 10)

	res := e.Run(context.Background(), Request{CallID: "c", Tool: "tap", Query: "tap it"})
	if res.Success || res.Reason != "button missing" || res.Steps != 3 {
		t.Fatalf("result=%+v", res)
	}
	if len(dev.Dispatched) != 0 {
		t.Fatalf("invalid calls reached the device: %v", dev.ActionTypes())
	}
	msgs := prov.requests[1].Messages
	last := msgs[len(msgs)-2]
	if last.Role != "tool" || !strings.Contains(last.Content, `"kind":"validation"`) {
		t.Fatalf("validation error not returned as tool result: %+v", last)
	}
}

func TestOnlyOneDispatchPerDecision(t *testing.T) {
	dev := devicetest.New(100, 100)
	prov := &scriptedProvider{responses: []provider.ChatResponse{
		calls(
			toolCall("e1", "click", `{"x":10,"y":10}`),
			toolCall("e2", "click", `{"x":20,"y":20}`),
			toolCall("e3", "report", `{"success":true}`),
		),
	}}
	e, _ := newTestExecutor(t, prov, dev, 10)

	res := e.Run(context.Background(), Request{CallID: "c", Tool: "tap", Query: "tap twice"})
	if !res.Success || len(dev.Dispatched) != 1 {
		t.Fatalf("result=%+v dispatched=%d", res, len(dev.Dispatched))
	}
}

func TestTransientFailureEscalates(t *testing.T) {
	dev := devicetest.New(100, 100)
	dev.DispatchErrs = []error{
		faults.Transient("dispatch", errors.New("refused")),
		faults.Transient("dispatch", errors.New("refused")),
	}
	prov := &scriptedProvider{responses: []provider.ChatResponse{
		calls(toolCall("e1", "click", `{"x":10,"y":10}`)),
	}}
	e, rec := newTestExecutor(t, prov, dev, 10)

	res := e.Run(context.Background(), Request{CallID: "c", Tool: "tap", Query: "tap"})
	if res.Success || res.Kind != string(faults.KindTransientDevice) || res.Steps != 1 {
		t.Fatalf("result=%+v", res)
	}
	if len(prov.requests) != 1 {
		t.Fatalf("loop continued after escalation: %d requests", len(prov.requests))
	}
	run, _ := trace.Load(rec.Dir())
	if steps := run.ExecutorSteps(); len(steps) != 1 || steps[0].Status != trace.StepFailed {
		t.Fatalf("steps=%+v", steps)
	}
}

func TestTransientRecoveredByReconnect(t *testing.T) {
	dev := devicetest.New(100, 100)
	dev.DispatchErrs = []error{faults.Transient("dispatch", errors.New("refused"))}
	prov := &scriptedProvider{responses: []provider.ChatResponse{
		calls(toolCall("e1", "click", `{"x":10,"y":10}`)),
		calls(toolCall("e2", "report", `{"success":true}`)),
	}}
	e, rec := newTestExecutor(t, prov, dev, 10)

	res := e.Run(context.Background(), Request{CallID: "c", Tool: "tap", Query: "tap"})
	if !res.Success {
		t.Fatalf("result=%+v", res)
	}
	if dev.Reconnects != 1 || len(dev.Dispatched) != 2 {
		t.Fatalf("reconnects=%d dispatched=%d", dev.Reconnects, len(dev.Dispatched))
	}
	run, _ := trace.Load(rec.Dir())
	steps := run.ExecutorSteps()
	if len(steps) != 2 {
		t.Fatalf("logged %d steps, want 2", len(steps))
	}
	if steps[0].Status != trace.StepSuccess || steps[0].Note != reconnectedNote {
		t.Fatalf("step0 status=%q note=%q", steps[0].Status, steps[0].Note)
	}
}

func TestNoToolCallsFinishesWithText(t *testing.T) {
	dev := devicetest.New(100, 100)
	prov := &scriptedProvider{responses: []provider.ChatResponse{{Content: "Already on the Settings screen."}}}
	e, _ := newTestExecutor(t, prov, dev, 10)

	res := e.Run(context.Background(), Request{CallID: "c", Tool: "tap", Query: "tap"})
	if !res.Success || res.Summary != "Already on the Settings screen." {
		t.Fatalf("result=%+v", res)
	}
}

func TestExtractedData(t *testing.T) {
	dev := devicetest.New(100, 100)
	prov := &scriptedProvider{responses: []provider.ChatResponse{
		calls(toolCall("e1", "extracted_data", `{"data":"{\"total\":42}"}`)),
	}}
	e, _ := newTestExecutor(t, prov, dev, 10)

	res := e.Run(context.Background(), Request{CallID: "c", Tool: "scan_for_element", Query: "read total"})
	if !res.Success || res.Data != `{"total":42}` {
		t.Fatalf("result=%+v", res)
	}
}

func TestProviderErrorBecomesFailure(t *testing.T) {
	dev := devicetest.New(100, 100)
	e, _ := newTestExecutor(t, &scriptedProvider{}, dev, 10)
	res := e.Run(context.Background(), Request{CallID: "c", Tool: "tap", Query: "tap"})
	if res.Success || !strings.Contains(res.Reason, "no scripted response") {
		t.Fatalf("result=%+v", res)
	}
}

func TestCancelledContext(t *testing.T) {
	dev := devicetest.New(100, 100)
	e, _ := newTestExecutor(t, &scriptedProvider{}, dev, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Run(ctx, Request{CallID: "c", Tool: "tap", Query: "tap"})
	if res.Success || res.Steps != 0 {
		t.Fatalf("result=%+v", res)
	}
}
