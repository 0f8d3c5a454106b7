package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"

	"droidpilot/internal/chat"
	"droidpilot/internal/contextmgr"
	"droidpilot/internal/coords"
	"droidpilot/internal/defaults"
	"droidpilot/internal/faults"
	"droidpilot/internal/provider"
	"droidpilot/internal/session"
	"droidpilot/internal/tools"
	"droidpilot/internal/trace"
)

// Step runs one planner turn: observe, decide, then handle every issued tool
// call in order. goal starts the session on the first turn and is ignored
// afterwards. done reports that the session reached a terminal status.
func (o *Orchestrator) Step(ctx context.Context, goal string) (done bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess == nil {
		if strings.TrimSpace(goal) == "" {
			return false, faults.Orchestration("no goal to start a session with")
		}
		if err := o.startSession(strings.TrimSpace(goal)); err != nil {
			return false, err
		}
	}
	sess := o.sess
	if sess.Status().Terminal() {
		return true, faults.Orchestration("session %s already finalized (%s)", sess.ID, sess.Status())
	}
	if o.provider == nil {
		return false, faults.Orchestration("planner has no reasoning engine")
	}
	if o.sup == nil {
		return false, faults.Orchestration("planner has no device")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	n := sess.NextPlannerStep()
	sess.SetPhase(session.PhasePlanning)
	log := o.logger.With("session", sess.ID, "step", n)

	userInput := ""
	if n == 1 {
		userInput = sess.Goal
	}

	obs, _, err := o.sup.Observe(ctx)
	if err != nil {
		err = fmt.Errorf("observe: %w", err)
		o.abortStep(n, userInput, err)
		return false, err
	}
	tr, err := coords.New(obs.Width, obs.Height, o.scale)
	if err != nil {
		o.abortStep(n, userInput, err)
		return false, err
	}
	if n == 1 {
		sess.Width, sess.Height = obs.Width, obs.Height
		o.recorder.SetScreen(obs.Width, obs.Height, o.scale)
		if _, err := o.recorder.SaveScreenshot("step_000_initial.png", obs.Screenshot); err != nil {
			log.Warn("save initial screenshot", "err", err)
		}
	}
	o.lastShot = obs.Screenshot
	if o.out != nil {
		renderStepHeader(o.out, n, obs.Width, obs.Height)
	}
	url, err := coords.DataURL(tr.ScaleImage(obs.Screenshot))
	if err != nil {
		o.abortStep(n, userInput, err)
		return false, err
	}
	if err := o.recorder.StartPlannerStep(n, userInput, obs.Screenshot); err != nil {
		log.Warn("trace planner step", "err", err)
	}

	system := chat.Message{Role: "system", Content: defaults.PlannerSystemPrompt + "\nGOAL\n" + sess.Goal}
	turn := chat.UserWithImage(o.turnText(n), url)
	reserved := o.trail.Tokenizer().Count([]chat.Message{system, turn})
	if dropped := o.trail.Trim(reserved); dropped > 0 {
		log.Debug("trimmed planner trail", "dropped", dropped, "tokens", o.trail.Tokens())
	}
	messages := append([]chat.Message{system}, o.trail.Messages()...)
	messages = append(messages, turn)

	resp, err := provider.Decide(ctx, o.provider, provider.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Tools:    o.tools.Registry.Definitions(),
	})
	if err != nil {
		o.failStep(n, err)
		if isContextCancellationErr(ctx, err) {
			return false, contextErrOr(ctx, err)
		}
		return false, fmt.Errorf("planner decide: %w", err)
	}
	if resp.Reasoning != "" && o.out != nil {
		renderThinkingBlock(o.out, resp.Reasoning)
	}
	if resp.Content != "" && o.out != nil {
		renderAssistantBlock(o.out, resp.Content, len(resp.ToolCalls) == 0)
	}

	assistant := chat.Message{Role: "assistant", Content: resp.Content, Reasoning: resp.Reasoning, ToolCalls: resp.ToolCalls}
	sess.SetPhase(session.PhaseDispatching)
	rb := o.executeToolCalls(ctx, resp.ToolCalls)
	o.trail.Append(contextmgr.Exchange{Assistant: assistant, Results: rb.Messages()})

	status := trace.StepSuccess
	if rb.AllFailed() {
		status = trace.StepFailed
	}
	if err := o.recorder.EndPlannerStep(n, resp.Thinking(), resp.ToolCalls, sess.Todos.Read(), status, ""); err != nil {
		log.Warn("trace planner step", "err", err)
	}
	o.recordPlannerStep(n, resp.ToolCalls, status)
	o.persist(ctx)

	if sess.Status().Terminal() {
		// finish_task ended the session during this turn
		o.closeTrace(nil)
		return true, nil
	}
	sess.SetPhase(session.PhasePlanning)
	return false, nil
}

// turnText is the user text of a planner turn: the goal cue on the first turn,
// a screen cue afterwards, followed by the todo and scratchpad reminders.
func (o *Orchestrator) turnText(step int) string {
	var b strings.Builder
	if step == 1 {
		b.WriteString("Here is the current screen. Start working on the goal.")
	} else {
		b.WriteString("Here is the current screen after your last tool calls. Decide the next step.")
	}
	for _, reminder := range []string{o.sess.Todos.Reminder(), o.sess.Pad.Reminder()} {
		if reminder != "" {
			b.WriteString("\n\n")
			b.WriteString(reminder)
		}
	}
	return b.String()
}

// executeToolCalls handles calls strictly in emission order. The deferred
// Finish guarantees one result per call whatever happens below.
func (o *Orchestrator) executeToolCalls(ctx context.Context, calls []chat.ToolCall) (rb *responseBuilder) {
	rb = newResponseBuilder(calls)
	defer rb.Finish()

	for i, call := range calls {
		name := call.Function.Name
		startSummary := formatToolStart(name, call.Function.Arguments)
		if o.out != nil {
			renderToolStart(o.out, startSummary)
		}
		if o.onToolEvent != nil {
			o.onToolEvent(name, startSummary, false)
		}

		var err error
		switch {
		case o.sess.Status().Terminal():
			err = faults.Orchestration("session already finalized; %s not run", name)
		case ctx.Err() != nil:
			err = ctx.Err()
		default:
			var result string
			result, err = o.runToolCall(ctx, call)
			if err == nil {
				rb.Resolve(i, result)
			}
		}
		if err != nil {
			rb.Fail(i, err)
			if o.out != nil {
				renderToolError(o.out, summarizeForLog(err.Error()))
			}
			o.logger.Debug("planner tool failed", "tool", name, "err", err)
		} else if o.out != nil {
			renderToolResult(o.out, summarizeToolResult(name, rb.Result(i)))
		}
		if o.onToolEvent != nil {
			o.onToolEvent(name, summarizeToolResult(name, rb.Result(i)), true)
		}
	}
	return rb
}

// runToolCall executes one call. A panic becomes an error so the call still
// gets its result.
func (o *Orchestrator) runToolCall(ctx context.Context, call chat.ToolCall) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("planner tool panicked", "tool", call.Function.Name, "panic", r, "stack", string(debug.Stack()))
			err = faults.Orchestration("%s panicked: %v", call.Function.Name, r)
		}
	}()
	args := json.RawMessage(call.Function.Arguments)
	return o.tools.Registry.Execute(tools.WithCallID(ctx, call.ID), call.Function.Name, args)
}

// abortStep records planner step n as failed before it could observe.
func (o *Orchestrator) abortStep(n int, userInput string, err error) {
	if err := o.recorder.StartPlannerStep(n, userInput, nil); err != nil {
		o.logger.Warn("trace planner step", "err", err)
	}
	o.failStep(n, err)
}

// failStep closes planner step n as failed.
func (o *Orchestrator) failStep(n int, err error) {
	if err := o.recorder.EndPlannerStep(n, "", nil, o.sess.Todos.Read(), trace.StepFailed, err.Error()); err != nil {
		o.logger.Warn("trace planner step", "err", err)
	}
	o.recordPlannerStep(n, nil, trace.StepFailed)
}
