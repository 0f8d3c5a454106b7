package orchestrator

import (
	"context"
	"time"

	"droidpilot/internal/chat"
	"droidpilot/internal/storage"
)

// sessionMeta 将当前会话状态转换为存储层的元数据。
// sessionMeta converts the live session into its storage row.
func (o *Orchestrator) sessionMeta() storage.SessionMeta {
	sess := o.sess
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return storage.SessionMeta{
		ID:            sess.ID,
		Goal:          sess.Goal,
		Status:        string(sess.Status()),
		Success:       sess.Success(),
		Reason:        sess.Reason(),
		PlannerModel:  sess.Models.Planner,
		ExecutorModel: sess.Models.Executor,
		TraceDir:      o.recorder.Dir(),
		PlannerSteps:  sess.PlannerSteps(),
		ExecutorSteps: sess.ExecutorSteps(),
		CreatedAt:     sess.StartedAt.Format(time.RFC3339Nano),
		UpdatedAt:     now,
	}
}

func (o *Orchestrator) snapshot() storage.Snapshot {
	snap := storage.Snapshot{Session: o.sessionMeta()}
	for _, it := range o.sess.Todos.Read() {
		snap.Todos = append(snap.Todos, storage.TodoItem{
			ID:       it.ID,
			Content:  it.Content,
			Status:   string(it.Status),
			Priority: string(it.Priority),
		})
	}
	for _, e := range o.sess.Pad.Snapshot() {
		snap.Scratchpad = append(snap.Scratchpad, storage.PadEntry{Key: e.Key, Title: e.Title, Text: e.Text, IsJSON: e.IsJSON})
	}
	return snap
}

// persist 在每个 planner 步骤之后同步会话、待办和草稿板。
// persist writes the session row, todos and scratchpad after a planner step,
// then mirrors the snapshot to redis. Failures are logged, never returned.
func (o *Orchestrator) persist(ctx context.Context) {
	if o.sess == nil || (o.store == nil && o.mirror == nil) {
		return
	}
	snap := o.snapshot()
	if o.store != nil {
		if err := o.store.SaveSession(snap.Session); err != nil {
			o.logger.Warn("store session", "session", o.sess.ID, "err", err)
		}
		if err := o.store.ReplaceTodos(o.sess.ID, snap.Todos); err != nil {
			o.logger.Warn("store todos", "session", o.sess.ID, "err", err)
		}
		if err := o.store.ReplaceScratchpad(o.sess.ID, snap.Scratchpad); err != nil {
			o.logger.Warn("store scratchpad", "session", o.sess.ID, "err", err)
		}
	}
	if err := o.mirror.Publish(ctx, o.sess.ID, snap); err != nil {
		o.logger.Warn("mirror snapshot", "session", o.sess.ID, "err", err)
	}
}

func (o *Orchestrator) recordPlannerStep(n int, calls []chat.ToolCall, status string) {
	if o.store == nil {
		return
	}
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Function.Name)
	}
	if err := o.store.AppendStep(o.sess.ID, storage.StepRecord{
		Tier:   storage.TierPlanner,
		Number: n,
		Tools:  names,
		Status: status,
	}); err != nil {
		o.logger.Warn("store planner step", "err", err)
	}
}
