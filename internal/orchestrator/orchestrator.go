// Package orchestrator runs the planner loop: it owns the session, turns each
// planner decision into control calls or executor runs, and finalizes the
// trace exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"

	"droidpilot/internal/contextmgr"
	"droidpilot/internal/device"
	"droidpilot/internal/executor"
	"droidpilot/internal/faults"
	"droidpilot/internal/logging"
	"droidpilot/internal/provider"
	"droidpilot/internal/session"
	"droidpilot/internal/storage"
	"droidpilot/internal/supervisor"
	"droidpilot/internal/tools"
	"droidpilot/internal/trace"
)

type Orchestrator struct {
	// mu serializes Step, Reset and finalization; there is never more than one
	// decision turn in flight.
	mu sync.Mutex

	provider    provider.Provider
	model       string
	exec        *executor.Executor
	dev         device.Device
	sup         *supervisor.Supervisor
	store       storage.Store
	mirror      *storage.RedisMirror
	traceDir    string
	taskName    string
	scale       float64
	maxSteps    int
	logger      *slog.Logger
	baseLogger  *slog.Logger
	logOut      io.Writer
	runLog      io.Closer
	out         io.Writer
	onToolEvent ToolEventFunc

	tools    *tools.PlannerSet
	trail    *contextmgr.Trail
	sess     *session.Session
	recorder *trace.Recorder
	lastShot image.Image
}

func New(opts Options) *Orchestrator {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.ContextTokenLimit <= 0 {
		opts.ContextTokenLimit = DefaultContextTokenLimit
	}
	if opts.Scale <= 0 || opts.Scale > 1 {
		opts.Scale = executor.DefaultScale
	}
	if opts.Supervisor == nil && opts.Device != nil {
		opts.Supervisor = supervisor.New(opts.Device, supervisor.Options{Logger: opts.Logger})
	}
	model := opts.PlannerModel
	if model == "" && opts.Planner != nil {
		model = opts.Planner.CurrentModel()
	}
	o := &Orchestrator{
		provider:    opts.Planner,
		model:       model,
		exec:        opts.Executor,
		dev:         opts.Device,
		sup:         opts.Supervisor,
		store:       opts.Store,
		mirror:      opts.Mirror,
		traceDir:    opts.TraceDir,
		taskName:    opts.TaskName,
		scale:       opts.Scale,
		maxSteps:    opts.MaxSteps,
		logger:      logging.OrDiscard(opts.Logger),
		baseLogger:  logging.OrDiscard(opts.Logger),
		logOut:      opts.LogOutput,
		out:         opts.Out,
		onToolEvent: opts.OnToolEvent,
		trail:       contextmgr.NewTrail(contextmgr.NewTokenizerForModel(model), opts.ContextTokenLimit),
	}
	o.tools = tools.NewPlannerSet(opts.Device, o.Session)
	o.tools.SetDelegate(o.delegate)
	o.tools.Finish.SetFinisher(o.finishTask)
	return o
}

// Session returns the current session, or nil before the first turn and after
// Reset.
func (o *Orchestrator) Session() *session.Session {
	return o.sess
}

// TraceDir is the run directory of the current session.
func (o *Orchestrator) TraceDir() string {
	return o.recorder.Dir()
}

func (o *Orchestrator) CurrentModel() string {
	return o.model
}

// ToolNames lists the planner tool surface.
func (o *Orchestrator) ToolNames() []string {
	return o.tools.Registry.Names()
}

// RunGoal steps the planner until the session is terminal or the step limit
// is reached. Reaching the limit finalizes the session as timed out.
func (o *Orchestrator) RunGoal(ctx context.Context, goal string) (Outcome, error) {
	for {
		if sess := o.Session(); sess != nil && sess.PlannerSteps() >= o.maxSteps {
			break
		}
		done, err := o.Step(ctx, goal)
		if err != nil {
			status := session.StatusFailed
			if isContextCancellationErr(ctx, err) {
				err = contextErrOr(ctx, err)
				// 用户中断视为重置，不算失败
				// An interrupted goal is a reset, not a failure.
				if errors.Is(err, context.Canceled) {
					status = session.StatusReset
				}
			}
			// no-op when the session already ended
			o.finalizeLocked(status, false, err.Error(), err)
			return o.outcome(), err
		}
		if done {
			return o.outcome(), nil
		}
	}
	limitErr := faults.Budget(o.maxSteps)
	o.logger.Warn("planner step limit reached", "limit", o.maxSteps)
	o.finalizeLocked(session.StatusTimeout, false, "planner step limit reached", limitErr)
	return o.outcome(), nil
}

// Reset finalizes any in-progress session with status reset, clears its todo
// list and scratchpad, and resets the device. The next Step starts a new
// session.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != nil {
		if !o.sess.Status().Terminal() {
			o.finalize(session.StatusReset, false, "session reset", nil)
		}
		o.sess.ClearState()
	}
	o.closeRunLog()
	o.sess = nil
	o.recorder = nil
	o.lastShot = nil
	o.trail.Reset()
	if o.exec != nil {
		o.exec.SetRecorder(nil)
	}
	if o.dev == nil {
		return nil
	}
	if err := o.dev.Reset(ctx, true); err != nil {
		return fmt.Errorf("reset device: %w", err)
	}
	return nil
}

// Close finalizes a session left in progress.
func (o *Orchestrator) Close() {
	o.finalizeLocked(session.StatusFailed, false, "agent closed before the goal finished", nil)
}

func (o *Orchestrator) outcome() Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return Outcome{}
	}
	return Outcome{
		SessionID:     o.sess.ID,
		Status:        o.sess.Status(),
		Success:       o.sess.Success(),
		Reason:        o.sess.Reason(),
		Answer:        o.sess.Answer(),
		PlannerSteps:  o.sess.PlannerSteps(),
		ExecutorSteps: o.sess.ExecutorSteps(),
		TraceDir:      o.recorder.Dir(),
	}
}

// startSession creates the session, its trace run and its store row.
func (o *Orchestrator) startSession(goal string) error {
	execModel := ""
	if o.exec != nil {
		execModel = o.exec.Model()
	}
	sess := session.New(goal, session.Models{Planner: o.model, Executor: execModel})
	sess.Scale = o.scale
	rec, err := trace.StartRun(o.traceDir, trace.RunInfo{
		Goal:      goal,
		TaskName:  o.taskName,
		AgentName: "droidpilot",
		Models:    trace.ModelConfig{PlannerModel: o.model, ExecutorModel: execModel},
		Scale:     o.scale,
	})
	if err != nil {
		return fmt.Errorf("start trace: %w", err)
	}
	o.sess = sess
	o.recorder = rec
	// 会话期间日志同时写入 logs.txt / session logs also go to the run's logs.txt
	if runLog, closer, err := logging.RunLogger(o.logOut, rec.LogPath()); err != nil {
		o.logger.Warn("open run log", "err", err)
	} else {
		o.logger, o.runLog = runLog, closer
	}
	if o.exec != nil {
		o.exec.SetRecorder(rec)
	}
	o.trail.Reset()
	if o.store != nil {
		if err := o.store.CreateSession(o.sessionMeta()); err != nil {
			o.logger.Warn("store session", "session", sess.ID, "err", err)
		}
	}
	o.logger.Info("session started", "session", sess.ID, "trace", rec.Dir())
	return nil
}

// finishTask is the finish_task finisher. It runs inside Step with the lock
// held; the trace is closed once the turn's step record is written.
func (o *Orchestrator) finishTask(_ context.Context, success bool, reason string) error {
	status := session.StatusCompleted
	if !success {
		status = session.StatusFailed
	}
	if o.sess == nil || !o.sess.Finish(status, success, reason) {
		return faults.Orchestration("session already finalized")
	}
	return nil
}

func (o *Orchestrator) finalizeLocked(status session.Status, success bool, reason string, cause error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finalize(status, success, reason, cause)
}

// finalize moves the session to status and closes the trace. Only the first
// call has any effect. Callers hold o.mu.
func (o *Orchestrator) finalize(status session.Status, success bool, reason string, cause error) bool {
	if o.sess == nil || !o.sess.Finish(status, success, reason) {
		return false
	}
	o.closeTrace(cause)
	return true
}

// closeTrace writes the final artifacts of a terminal session.
func (o *Orchestrator) closeTrace(cause error) {
	if o.recorder.Ended() {
		return
	}
	sess := o.sess
	if _, err := o.recorder.SaveScreenshot("step_final.png", o.lastShot); err != nil {
		o.logger.Warn("save final screenshot", "err", err)
	}
	if err := o.recorder.End(string(sess.Status()), sess.Success(), sess.Reason(), cause); err != nil {
		o.logger.Warn("finalize trace", "session", sess.ID, "err", err)
	}
	o.persist(context.Background())
	o.logger.Info("session finalized", "session", sess.ID, "status", sess.Status(), "success", sess.Success(), "reason", sess.Reason())
	o.closeRunLog()
}

func (o *Orchestrator) closeRunLog() {
	if o.runLog != nil {
		_ = o.runLog.Close()
		o.runLog = nil
	}
	o.logger = o.baseLogger
}

func (o *Orchestrator) delegate(ctx context.Context, d tools.Delegation) (string, error) {
	sess := o.sess
	if sess == nil {
		return "", faults.Orchestration("no active session for %s", d.Tool)
	}
	if o.exec == nil {
		return "", faults.Orchestration("no executor attached")
	}
	sess.BeginSubloop(d.CallID)
	res := o.exec.Run(ctx, executor.Request{
		CallID:      d.CallID,
		Tool:        d.Tool,
		Query:       d.Query,
		PlannerStep: sess.PlannerSteps(),
	})
	sess.EndSubloop(res.Steps)

	status := trace.StepSuccess
	if !res.Success {
		status = trace.StepFailed
	}
	if o.store != nil {
		if err := o.store.AppendStep(sess.ID, storage.StepRecord{
			Tier:   storage.TierExecutor,
			Number: sess.ExecutorSteps(),
			Tools:  []string{d.Tool},
			Status: status,
		}); err != nil {
			o.logger.Warn("store executor step", "err", err)
		}
	}
	return res.JSON(), nil
}
