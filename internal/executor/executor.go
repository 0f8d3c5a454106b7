// Package executor resolves one planner intent into concrete device actions.
// Every run starts from an empty conversation and sees only its own query.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"droidpilot/internal/action"
	"droidpilot/internal/chat"
	"droidpilot/internal/coords"
	"droidpilot/internal/defaults"
	"droidpilot/internal/faults"
	"droidpilot/internal/logging"
	"droidpilot/internal/provider"
	"droidpilot/internal/supervisor"
	"droidpilot/internal/trace"
)

const (
	DefaultMaxSteps = 10
	DefaultScale    = 0.4

	skippedResult   = "skipped: observe first"
	reconnectedNote = "reconnected after transient device error"
)

// Request is one delegated planner call.
type Request struct {
	CallID      string
	Tool        string
	Query       string
	PlannerStep int
}

// Result is the completion record returned to the planner as the tool result.
type Result struct {
	Success bool   `json:"success"`
	Summary string `json:"summary,omitempty"`
	Data    string `json:"data,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Steps   int    `json:"steps"`
	Kind    string `json:"error_kind,omitempty"`
}

// JSON encodes r for a tool message.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"reason":%q}`, err.Error())
	}
	return string(data)
}

type Options struct {
	Provider   provider.Provider
	Model      string
	Supervisor *supervisor.Supervisor
	Recorder   *trace.Recorder
	MaxSteps   int
	Scale      float64
	Logger     *slog.Logger
}

type Executor struct {
	provider provider.Provider
	model    string
	sup      *supervisor.Supervisor
	recorder *trace.Recorder
	maxSteps int
	scale    float64
	logger   *slog.Logger
	now      func() time.Time
}

func New(opts Options) *Executor {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Scale <= 0 || opts.Scale > 1 {
		opts.Scale = DefaultScale
	}
	return &Executor{
		provider: opts.Provider,
		model:    opts.Model,
		sup:      opts.Supervisor,
		recorder: opts.Recorder,
		maxSteps: opts.MaxSteps,
		scale:    opts.Scale,
		logger:   logging.OrDiscard(opts.Logger),
		now:      time.Now,
	}
}

// SetRecorder points subsequent runs at a new trace.
func (e *Executor) SetRecorder(r *trace.Recorder) {
	e.recorder = r
}

func (e *Executor) MaxSteps() int {
	return e.maxSteps
}

func (e *Executor) Model() string {
	if e.model != "" {
		return e.model
	}
	if e.provider != nil {
		return e.provider.CurrentModel()
	}
	return ""
}

// Run drives the observe/decide/act loop until the engine signals completion,
// the step cap is reached or a device failure escalates. Errors never leave
// Run; they are folded into the Result.
func (e *Executor) Run(ctx context.Context, req Request) Result {
	sessionID := e.recorder.StartExecutorSession(req.PlannerStep, req.CallID, req.Query)
	log := e.logger.With("call_id", req.CallID, "tool", req.Tool)
	log.Info("executor run started", "query", trace.Truncate(req.Query, 120))

	if e.provider == nil {
		return failure(faults.Orchestration("executor has no reasoning engine"), 0)
	}

	messages := []chat.Message{{Role: "system", Content: defaults.ExecutorSystemPrompt}}
	for step := 1; step <= e.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return failure(err, step-1)
		}
		rec := trace.ExecutorStep{
			StepNumber:        step,
			Timestamp:         e.now().Format(time.RFC3339Nano),
			Query:             req.Query,
			PlannerToolCallID: req.CallID,
			Status:            trace.StepInProgress,
		}

		obs, observed, err := e.sup.Observe(ctx)
		if err != nil {
			e.logStep(sessionID, rec, failed(err), nil)
			log.Warn("observe failed", "step", step, "err", err)
			return failure(err, step)
		}
		if observed.Reconnected {
			rec.Note = reconnectedNote
		}
		tr, err := coords.New(obs.Width, obs.Height, e.scale)
		if err != nil {
			e.logStep(sessionID, rec, failed(err), nil)
			return failure(err, step)
		}
		sw, sh := tr.ScaledSize()
		rec.Dimensions = trace.Dimensions{Width: obs.Width, Height: obs.Height, ScaledWidth: sw, ScaledHeight: sh}
		url, err := coords.DataURL(tr.ScaleImage(obs.Screenshot))
		if err != nil {
			e.logStep(sessionID, rec, failed(err), nil)
			return failure(err, step)
		}

		text := defaults.ExecutorTurnPrompt
		if step == 1 {
			text = req.Query
		}
		messages = append(dropImages(messages), chat.UserWithImage(text, url))

		registry := action.NewRegistry(tr)
		resp, err := provider.Decide(ctx, e.provider, provider.ChatRequest{
			Model:    e.model,
			Messages: messages,
			Tools:    registry.Definitions(),
		})
		if err != nil {
			e.logStep(sessionID, rec, failed(err), nil)
			log.Warn("executor decision failed", "step", step, "err", err)
			return failure(fmt.Errorf("executor decide: %w", err), step)
		}
		rec.Thinking = resp.Thinking()
		rec.ToolCalls = resp.ToolCalls
		messages = append(messages, chat.Message{Role: "assistant", Content: resp.Content, Reasoning: resp.Reasoning, ToolCalls: resp.ToolCalls})

		if len(resp.ToolCalls) == 0 {
			rec.Status = trace.StepSuccess
			e.logStep(sessionID, rec, nil, nil)
			summary := strings.TrimSpace(resp.Content)
			if summary == "" {
				summary = "executor finished without further actions"
			}
			return Result{Success: true, Summary: summary, Steps: step}
		}

		it := e.handleCalls(ctx, log, registry, resp.ToolCalls)
		rec.ToolResults = it.results
		if it.reconnected {
			rec.Note = reconnectedNote
		}
		for i, res := range it.results {
			messages = append(messages, chat.ToolResult(resp.ToolCalls[i], res.Result))
		}

		switch {
		case it.escalated != nil:
			e.logStep(sessionID, rec, failed(it.escalated), nil)
			return failure(it.escalated, step)
		case it.done != nil:
			rec.Status = trace.StepSuccess
			if !it.done.Success {
				rec.Status = trace.StepFailed
			}
			e.logStep(sessionID, rec, nil, shotIf(it.dispatched, obs.Screenshot))
			it.done.Steps = step
			log.Info("executor run finished", "success", it.done.Success, "steps", step)
			return *it.done
		default:
			rec.Status = trace.StepSuccess
			e.logStep(sessionID, rec, nil, shotIf(it.dispatched, obs.Screenshot))
		}
	}

	err := faults.Budget(e.maxSteps)
	log.Warn("executor step budget exhausted", "limit", e.maxSteps)
	return failure(err, e.maxSteps)
}

type iteration struct {
	results     []trace.ToolResult
	dispatched  bool
	reconnected bool
	done        *Result
	escalated   error
}

// handleCalls answers every call of one decision. At most one device action is
// dispatched; later non-terminal calls are skipped until the next observation.
func (e *Executor) handleCalls(ctx context.Context, log *slog.Logger, registry *action.Registry, calls []chat.ToolCall) iteration {
	var it iteration
	for _, call := range calls {
		res := trace.ToolResult{ToolCallID: call.ID, Name: call.Function.Name}
		if it.done != nil || it.escalated != nil {
			res.Result = "skipped: run already finished"
			it.results = append(it.results, res)
			continue
		}

		a, err := registry.Build(call.Function.Name, json.RawMessage(call.Function.Arguments))
		if err != nil {
			res.Result = errorResult(err)
			it.results = append(it.results, res)
			log.Debug("executor call rejected", "tool", call.Function.Name, "err", err)
			continue
		}
		if action.IsTerminal(a) {
			r := terminalResult(a)
			it.done = &r
			res.Success = true
			res.Result = action.Describe(a)
			it.results = append(it.results, res)
			continue
		}
		if it.dispatched {
			res.Result = skippedResult
			it.results = append(it.results, res)
			continue
		}

		out, err := e.sup.Dispatch(ctx, a)
		if out.Reconnected {
			it.reconnected = true
		}
		switch supervisor.Classify(err) {
		case supervisor.Proceed:
			it.dispatched = true
			res.Success = true
			res.Result = "ok: " + action.Describe(a)
		case supervisor.Correct:
			res.Result = errorResult(err)
		default:
			it.escalated = err
			res.Result = errorResult(err)
		}
		it.results = append(it.results, res)
	}
	return it
}

func terminalResult(a action.Action) Result {
	switch v := a.(type) {
	case action.Report:
		r := Result{Success: v.Success, Summary: v.Notes}
		if !v.Success {
			r.Reason = v.Notes
		}
		return r
	case action.ExtractedData:
		return Result{Success: true, Data: v.Data, Summary: "data extracted"}
	}
	return Result{Success: false, Reason: "unknown termination signal"}
}

func failure(err error, steps int) Result {
	r := Result{Success: false, Reason: err.Error(), Steps: steps}
	if kind := faults.KindOf(err); kind != faults.KindNone && kind != faults.KindUnknown {
		r.Kind = string(kind)
	}
	return r
}

func errorResult(err error) string {
	out := map[string]any{"success": false, "error": err.Error()}
	if kind := faults.KindOf(err); kind != faults.KindUnknown {
		out["kind"] = string(kind)
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func failed(err error) *string {
	msg := err.Error()
	return &msg
}

// shotIf keeps the screenshot only for steps that reached the device.
func shotIf(ok bool, img image.Image) image.Image {
	if ok {
		return img
	}
	return nil
}

func (e *Executor) logStep(sessionID string, rec trace.ExecutorStep, errMsg *string, shot image.Image) {
	if errMsg != nil {
		rec.Status = trace.StepFailed
		rec.ErrorMessage = *errMsg
	}
	if err := e.recorder.LogExecutorStep(sessionID, rec, shot); err != nil {
		e.logger.Warn("trace executor step", "session", sessionID, "err", err)
	}
}

// dropImages returns a copy of messages in which earlier screenshots are
// replaced by their text, so only the newest observation is sent as an image.
func dropImages(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages), len(messages)+4)
	for i, m := range messages {
		if len(m.MultiContent) > 0 {
			m = chat.Message{Role: m.Role, Content: chat.TextOf(m) + "\n[earlier screenshot omitted]"}
		}
		out[i] = m
	}
	return out
}
