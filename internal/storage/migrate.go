package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"droidpilot/internal/chat"
	"droidpilot/internal/trace"
)

// ImportRuns 将未入库的 trace 目录导入 SQLite
// ImportRuns indexes trace run directories that have no session row yet, for
// example runs recorded while the store was unavailable. It returns the number
// of imported runs.
func ImportRuns(traceDir string, store Store) (int, error) {
	traceDir = strings.TrimSpace(traceDir)
	if traceDir == "" || store == nil {
		return 0, nil
	}
	entries, err := os.ReadDir(traceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read trace dir: %w", err)
	}

	existing, err := store.ListSessions()
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, meta := range existing {
		if meta.TraceDir != "" {
			known[filepath.Clean(meta.TraceDir)] = struct{}{}
		}
	}

	imported := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(traceDir, e.Name())
		if _, ok := known[filepath.Clean(dir)]; ok {
			continue
		}
		run, err := trace.Load(dir)
		if err != nil {
			// 非 run 目录 / Not a run directory
			continue
		}
		meta := sessionFromRun(run)
		if _, err := store.LoadSession(meta.ID); err == nil {
			continue
		}
		if err := store.CreateSession(meta); err != nil {
			fmt.Fprintf(os.Stderr, "import run %s failed: %v\n", e.Name(), err)
			continue
		}
		for _, step := range run.Planner {
			_ = store.AppendStep(meta.ID, StepRecord{
				Tier:      TierPlanner,
				Number:    step.StepNumber,
				Tools:     toolNames(step.ToolCalls),
				Status:    step.Status,
				CreatedAt: step.Timestamp,
			})
		}
		imported++
	}
	return imported, nil
}

func sessionFromRun(run *trace.Run) SessionMeta {
	m := run.Metadata
	status := m.FinalStatus
	if status == "" {
		status = "in_progress"
	}
	updated := m.EndTime
	if updated == "" {
		updated = m.StartTime
	}
	id := m.RunID
	if id == "" {
		id = filepath.Base(run.Dir)
	}
	return SessionMeta{
		ID:            id,
		Goal:          m.Goal,
		Status:        status,
		Success:       m.Success != nil && *m.Success,
		Reason:        m.SuccessReason,
		PlannerModel:  m.ModelConfig.PlannerModel,
		ExecutorModel: m.ModelConfig.ExecutorModel,
		TraceDir:      run.Dir,
		PlannerSteps:  m.TotalPlannerSteps,
		ExecutorSteps: m.TotalExecutorSteps,
		CreatedAt:     m.StartTime,
		UpdatedAt:     updated,
	}
}

func toolNames(calls []chat.ToolCall) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Function.Name)
	}
	return out
}
