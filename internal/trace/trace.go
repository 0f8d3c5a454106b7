// Package trace records an append-only run directory for one goal: step
// records, screenshots and the derived summary artifacts.
package trace

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"droidpilot/internal/chat"
	"droidpilot/internal/coords"
	"droidpilot/internal/todo"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const (
	metadataFile  = "metadata.json"
	plannerFile   = "planner_steps.json"
	executorFile  = "executor_sessions.json"
	successFile   = "success.json"
	summaryFile   = "summary.txt"
	timelineFile  = "timeline.md"
	logFile       = "logs.txt"
	screenshotDir = "screenshots"

	// InitialShot and FinalShot are the fixed screenshot names around a run.
	InitialShot = "step_000_initial.png"
	FinalShot   = "step_final.png"
)

// Step statuses used in planner and executor records.
const (
	StepInProgress = "in_progress"
	StepSuccess    = "success"
	StepFailed     = "failed"
)

type ModelConfig struct {
	PlannerModel  string `json:"planner_model"`
	ExecutorModel string `json:"executor_model"`
}

// Metadata is metadata.json.
type Metadata struct {
	RunID              string      `json:"run_id"`
	StartTime          string      `json:"start_time"`
	EndTime            string      `json:"end_time,omitempty"`
	Goal               string      `json:"goal"`
	TaskName           string      `json:"task_name,omitempty"`
	ModelConfig        ModelConfig `json:"model_config"`
	ScaleFactor        float64     `json:"scale_factor"`
	LogicalScreenSize  [2]int      `json:"logical_screen_size"`
	TotalPlannerSteps  int         `json:"total_planner_steps"`
	TotalExecutorSteps int         `json:"total_executor_steps"`
	FinalStatus        string      `json:"final_status,omitempty"`
	ErrorDetails       string      `json:"error_details,omitempty"`
	Success            *bool       `json:"success"`
	SuccessReason      string      `json:"success_reason,omitempty"`
	AgentName          string      `json:"agent_name,omitempty"`
}

type PlannerStep struct {
	StepNumber     int             `json:"step_number"`
	Timestamp      string          `json:"timestamp"`
	UserInput      string          `json:"user_input,omitempty"`
	Thinking       string          `json:"thinking"`
	ToolCalls      []chat.ToolCall `json:"tool_calls"`
	TodoListState  []todo.Item     `json:"todo_list_state"`
	ScreenshotPath string          `json:"screenshot_path,omitempty"`
	Status         string          `json:"status"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// ToolResult is one tool result produced inside an executor step.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Result     string `json:"result"`
}

type Dimensions struct {
	Width        int `json:"width"`
	Height       int `json:"height"`
	ScaledWidth  int `json:"scaled_width"`
	ScaledHeight int `json:"scaled_height"`
}

type ExecutorStep struct {
	StepNumber        int             `json:"step_number"`
	Timestamp         string          `json:"timestamp"`
	Query             string          `json:"query"`
	Thinking          string          `json:"thinking"`
	ToolCalls         []chat.ToolCall `json:"tool_calls"`
	ToolResults       []ToolResult    `json:"tool_results"`
	ScreenshotPath    string          `json:"screenshot_path,omitempty"`
	Dimensions        Dimensions      `json:"dimensions"`
	Status            string          `json:"status"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Note              string          `json:"note,omitempty"`
	PlannerToolCallID string          `json:"planner_tool_call_id"`
}

// ExecutorSession groups the steps of one delegated intent.
type ExecutorSession struct {
	ID                string         `json:"id"`
	PlannerStep       int            `json:"planner_step"`
	PlannerToolCallID string         `json:"planner_tool_call_id"`
	Query             string         `json:"query"`
	Steps             []ExecutorStep `json:"steps"`
}

// Success is success.json.
type Success struct {
	Success         bool    `json:"success"`
	Reason          string  `json:"reason"`
	DurationSeconds float64 `json:"duration_seconds"`
	TotalSteps      int     `json:"total_steps"`
	TaskName        string  `json:"task_name,omitempty"`
	TimestampStart  string  `json:"timestamp_start"`
	TimestampEnd    string  `json:"timestamp_end"`
	AgentName       string  `json:"agent_name,omitempty"`
	FinalStatus     string  `json:"final_status"`
}

// RunInfo describes a run at creation time.
type RunInfo struct {
	Goal      string
	TaskName  string
	AgentName string
	Models    ModelConfig
	Width     int
	Height    int
	Scale     float64
}

// Recorder writes one run directory. A nil *Recorder accepts every call and
// does nothing.
type Recorder struct {
	mu       sync.Mutex
	dir      string
	meta     Metadata
	planner  []PlannerStep
	sessions []*ExecutorSession
	byID     map[string]*ExecutorSession
	ended    bool
	now      func() time.Time
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// RunDirName returns "<task>_<YYYYmmdd_HHMMSS>" or "run_<YYYYmmdd_HHMMSS>_<uuid8>".
func RunDirName(taskName string, at time.Time) string {
	ts := at.Format("20060102_150405")
	task := strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(taskName), "_"), "_")
	if task != "" {
		return task + "_" + ts
	}
	return fmt.Sprintf("run_%s_%s", ts, uuid.NewString()[:8])
}

// claimRunDir creates baseDir/name, adding a short uuid suffix when a run
// started in the same second already owns that name.
func claimRunDir(baseDir, name string) (string, string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create trace dir: %w", err)
	}
	candidate := name
	for {
		dir := filepath.Join(baseDir, candidate)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return candidate, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("create run dir: %w", err)
		}
		candidate = name + "_" + uuid.NewString()[:8]
	}
}

// StartRun creates the run directory under baseDir and writes the initial
// metadata.
func StartRun(baseDir string, info RunInfo) (*Recorder, error) {
	now := time.Now()
	name, dir, err := claimRunDir(baseDir, RunDirName(info.TaskName, now))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, screenshotDir), 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, logFile), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	_ = f.Close()

	r := &Recorder{
		dir:  dir,
		byID: map[string]*ExecutorSession{},
		now:  time.Now,
		meta: Metadata{
			RunID:             name,
			StartTime:         formatTime(now),
			Goal:              info.Goal,
			TaskName:          strings.TrimSpace(info.TaskName),
			AgentName:         info.AgentName,
			ModelConfig:       info.Models,
			ScaleFactor:       info.Scale,
			LogicalScreenSize: [2]int{info.Width, info.Height},
		},
	}
	if err := r.saveMetadata(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir is the run directory. Empty for a nil recorder.
func (r *Recorder) Dir() string {
	if r == nil {
		return ""
	}
	return r.dir
}

// LogPath is the run's logs.txt.
func (r *Recorder) LogPath() string {
	if r == nil {
		return ""
	}
	return filepath.Join(r.dir, logFile)
}

func (r *Recorder) SetModels(m ModelConfig) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta.ModelConfig = m
	_ = r.saveMetadata()
}

// SetScreen records the logical screen size and scale factor.
func (r *Recorder) SetScreen(width, height int, scale float64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta.LogicalScreenSize = [2]int{width, height}
	r.meta.ScaleFactor = scale
	_ = r.saveMetadata()
}

// SaveScreenshot writes img under screenshots/ and returns the path relative to
// the run directory. A nil image is skipped.
func (r *Recorder) SaveScreenshot(name string, img image.Image) (string, error) {
	if r == nil || img == nil {
		return "", nil
	}
	data, err := coords.EncodePNG(img)
	if err != nil {
		return "", err
	}
	rel := filepath.ToSlash(filepath.Join(screenshotDir, name))
	if err := os.WriteFile(filepath.Join(r.dir, screenshotDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return rel, nil
}

// StartPlannerStep opens a planner step record so a crash mid-turn still
// leaves it on disk.
func (r *Recorder) StartPlannerStep(number int, userInput string, shot image.Image) error {
	if r == nil {
		return nil
	}
	rel, err := r.SaveScreenshot(fmt.Sprintf("step_%03d_planner.png", number), shot)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return nil
	}
	r.planner = append(r.planner, PlannerStep{
		StepNumber:     number,
		Timestamp:      formatTime(r.now()),
		UserInput:      userInput,
		ToolCalls:      []chat.ToolCall{},
		TodoListState:  []todo.Item{},
		ScreenshotPath: rel,
		Status:         StepInProgress,
	})
	r.meta.TotalPlannerSteps = len(r.planner)
	return r.saveStepFiles()
}

// EndPlannerStep completes the record opened by StartPlannerStep.
func (r *Recorder) EndPlannerStep(number int, thinking string, calls []chat.ToolCall, todos []todo.Item, status, errMsg string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return nil
	}
	idx := -1
	for i := len(r.planner) - 1; i >= 0; i-- {
		if r.planner[i].StepNumber == number {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("planner step %d was never started", number)
	}
	step := &r.planner[idx]
	step.Thinking = thinking
	if calls != nil {
		step.ToolCalls = append([]chat.ToolCall(nil), calls...)
	}
	if todos != nil {
		step.TodoListState = append([]todo.Item(nil), todos...)
	}
	step.Status = status
	step.ErrorMessage = errMsg
	return r.saveStepFiles()
}

// StartExecutorSession registers a delegated intent and returns its
// "exec_session_%03d" id.
func (r *Recorder) StartExecutorSession(plannerStep int, plannerCallID, query string) string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("exec_session_%03d", len(r.sessions))
	s := &ExecutorSession{
		ID:                id,
		PlannerStep:       plannerStep,
		PlannerToolCallID: plannerCallID,
		Query:             query,
		Steps:             []ExecutorStep{},
	}
	r.sessions = append(r.sessions, s)
	r.byID[id] = s
	if !r.ended {
		_ = r.saveStepFiles()
	}
	return id
}

// LogExecutorStep appends one executor iteration. shot is saved only when
// non-nil.
func (r *Recorder) LogExecutorStep(sessionID string, step ExecutorStep, shot image.Image) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	ended := r.ended
	global := r.meta.TotalExecutorSteps + 1
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown executor session: %s", sessionID)
	}
	if ended {
		return nil
	}

	rel, err := r.SaveScreenshot(fmt.Sprintf("step_%03d_executor.png", global), shot)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if step.Timestamp == "" {
		step.Timestamp = formatTime(r.now())
	}
	if step.PlannerToolCallID == "" {
		step.PlannerToolCallID = s.PlannerToolCallID
	}
	if step.Query == "" {
		step.Query = s.Query
	}
	if step.ToolCalls == nil {
		step.ToolCalls = []chat.ToolCall{}
	}
	if step.ToolResults == nil {
		step.ToolResults = []ToolResult{}
	}
	step.ScreenshotPath = rel
	s.Steps = append(s.Steps, step)
	r.meta.TotalExecutorSteps++
	return r.saveStepFiles()
}

// End finalizes the run. Only the first call has any effect.
func (r *Recorder) End(status string, success bool, reason string, cause error) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return nil
	}
	r.ended = true

	end := r.now()
	r.meta.EndTime = formatTime(end)
	r.meta.FinalStatus = status
	r.meta.Success = &success
	switch {
	case strings.TrimSpace(reason) != "":
		r.meta.SuccessReason = reason
	case success:
		r.meta.SuccessReason = "Task completed successfully"
	default:
		r.meta.SuccessReason = "Task failed"
	}
	if cause != nil {
		r.meta.ErrorDetails = cause.Error()
	}

	if err := r.saveStepFiles(); err != nil {
		return err
	}
	if err := r.saveSuccess(end); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(r.dir, summaryFile), []byte(renderSummary(r.meta, r.planner, r.sessions))); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(r.dir, timelineFile), []byte(renderTimeline(r.dir, r.meta, r.planner, r.sessions)))
}

// Ended reports whether End already ran.
func (r *Recorder) Ended() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// Metadata returns a copy of the current metadata.
func (r *Recorder) Metadata() Metadata {
	if r == nil {
		return Metadata{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta
}

func (r *Recorder) saveStepFiles() error {
	if err := r.saveMetadata(); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(r.dir, plannerFile), r.planner); err != nil {
		return err
	}
	return writeJSON(filepath.Join(r.dir, executorFile), sessionMap(r.sessions))
}

func (r *Recorder) saveMetadata() error {
	return writeJSON(filepath.Join(r.dir, metadataFile), r.meta)
}

func (r *Recorder) saveSuccess(end time.Time) error {
	start, err := time.Parse(time.RFC3339Nano, r.meta.StartTime)
	if err != nil {
		start = end
	}
	dur := end.Sub(start).Seconds()
	out := Success{
		Success:         r.meta.Success != nil && *r.meta.Success,
		Reason:          r.meta.SuccessReason,
		DurationSeconds: float64(int64(dur*100+0.5)) / 100,
		TotalSteps:      r.meta.TotalPlannerSteps + r.meta.TotalExecutorSteps,
		TaskName:        r.meta.TaskName,
		TimestampStart:  r.meta.StartTime,
		TimestampEnd:    r.meta.EndTime,
		AgentName:       r.meta.AgentName,
		FinalStatus:     r.meta.FinalStatus,
	}
	return writeJSON(filepath.Join(r.dir, successFile), out)
}

func sessionMap(sessions []*ExecutorSession) map[string]*ExecutorSession {
	out := make(map[string]*ExecutorSession, len(sessions))
	for _, s := range sessions {
		out[s.ID] = s
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSON(path string, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// writeFileAtomic replaces path via a temp file so readers never see a
// half-written artifact.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
