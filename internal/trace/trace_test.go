package trace

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"droidpilot/internal/chat"
	"droidpilot/internal/todo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func call(id, name, args string) chat.ToolCall {
	return chat.ToolCall{ID: id, Type: "function", Function: chat.ToolCallFunction{Name: name, Arguments: args}}
}

func startTestRun(t *testing.T, task string) *Recorder {
	t.Helper()
	r, err := StartRun(t.TempDir(), RunInfo{
		Goal:     "Turn on wifi",
		TaskName: task,
		Models:   ModelConfig{PlannerModel: "planner-m", ExecutorModel: "executor-m"},
		Width:    1080,
		Height:   2400,
		Scale:    0.4,
	})
	require.NoError(t, err)
	return r
}

func TestRunDirName(t *testing.T) {
	r := startTestRun(t, "wifi task")
	assert.True(t, strings.HasPrefix(filepath.Base(r.Dir()), "wifi_task_"), r.Dir())

	r2 := startTestRun(t, "")
	parts := strings.Split(filepath.Base(r2.Dir()), "_")
	require.Len(t, parts, 4)
	assert.Equal(t, "run", parts[0])
	assert.Len(t, parts[3], 8)

	_, err := os.Stat(filepath.Join(r2.Dir(), "screenshots"))
	assert.NoError(t, err)
	_, err = os.Stat(r2.LogPath())
	assert.NoError(t, err)
}

func TestSameSecondRunsGetDistinctDirs(t *testing.T) {
	base := t.TempDir()
	info := RunInfo{Goal: "Turn on wifi", TaskName: "wifi"}
	first, err := StartRun(base, info)
	require.NoError(t, err)
	second, err := StartRun(base, info)
	require.NoError(t, err)
	assert.NotEqual(t, first.Dir(), second.Dir())

	require.NoError(t, os.Mkdir(filepath.Join(base, "wifi_20250101_120000"), 0o755))
	name, dir, err := claimRunDir(base, "wifi_20250101_120000")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "wifi_20250101_120000_"), name)
	assert.Len(t, strings.TrimPrefix(name, "wifi_20250101_120000_"), 8)
	assert.Equal(t, filepath.Join(base, name), dir)
	assert.DirExists(t, dir)
}

func TestStepFilesWrittenBeforeEnd(t *testing.T) {
	r := startTestRun(t, "")
	require.NoError(t, r.StartPlannerStep(1, "Turn on wifi", testImage()))
	require.NoError(t, r.EndPlannerStep(1, "open settings first",
		[]chat.ToolCall{call("c1", "tap", `{"intent":"Settings icon"}`)},
		[]todo.Item{{ID: "1", Content: "open settings", Status: todo.StatusPending, Priority: todo.PriorityHigh}},
		StepSuccess, ""))

	sid := r.StartExecutorSession(1, "c1", "Locate and tap on the Settings icon")
	assert.Equal(t, "exec_session_000", sid)
	require.NoError(t, r.LogExecutorStep(sid, ExecutorStep{StepNumber: 1, Status: StepSuccess}, nil))
	require.NoError(t, r.LogExecutorStep(sid, ExecutorStep{StepNumber: 2, Status: StepSuccess}, testImage()))

	run, err := Load(r.Dir())
	require.NoError(t, err)
	assert.False(t, run.Finalized())
	assert.Equal(t, 1, run.Metadata.TotalPlannerSteps)
	assert.Equal(t, 2, run.Metadata.TotalExecutorSteps)
	require.Len(t, run.Planner, 1)
	assert.Equal(t, "screenshots/step_001_planner.png", run.Planner[0].ScreenshotPath)
	require.Len(t, run.Sessions, 1)
	assert.Equal(t, "c1", run.Sessions[0].PlannerToolCallID)
	steps := run.Sessions[0].Steps
	require.Len(t, steps, 2)
	assert.Empty(t, steps[0].ScreenshotPath)
	assert.Equal(t, "screenshots/step_002_executor.png", steps[1].ScreenshotPath)
	assert.Equal(t, "c1", steps[1].PlannerToolCallID)
	assert.Equal(t, "Locate and tap on the Settings icon", steps[1].Query)

	for _, name := range []string{"summary.txt", "timeline.md", "success.json"} {
		_, err := os.Stat(filepath.Join(r.Dir(), name))
		assert.Truef(t, os.IsNotExist(err), "%s written before End", name)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	r := startTestRun(t, "demo")
	require.NoError(t, r.StartPlannerStep(1, "Turn on wifi", nil))
	require.NoError(t, r.EndPlannerStep(1, "", []chat.ToolCall{
		call("c1", "update_todos", `{"todos":[]}`),
		call("c2", "finish_task", `{"success":true,"intent":"done"}`),
	}, nil, StepSuccess, ""))

	require.NoError(t, r.End("completed", true, "wifi is on", nil))
	require.NoError(t, r.End("failed", false, "second call", errors.New("ignored")))
	assert.True(t, r.Ended())

	run, err := Load(r.Dir())
	require.NoError(t, err)
	require.True(t, run.Finalized())
	assert.Equal(t, "completed", run.Metadata.FinalStatus)
	assert.True(t, *run.Metadata.Success)
	require.NotNil(t, run.Success)
	assert.True(t, run.Success.Success)
	assert.Equal(t, "wifi is on", run.Success.Reason)
	assert.Equal(t, 1, run.Success.TotalSteps)

	assert.Contains(t, run.Summary, "Status: completed")
	assert.Contains(t, run.Timeline, `finish_task(success=true)`)
	assert.NotContains(t, run.Timeline, "update_todos")
	assert.Contains(t, run.Timeline, "Task Validation: PASSED")
}

func TestFailedRunStillProducesTrace(t *testing.T) {
	r := startTestRun(t, "")
	require.NoError(t, r.End("timeout", false, "", errors.New("planner step limit reached")))
	run, err := Load(r.Dir())
	require.NoError(t, err)
	assert.False(t, *run.Metadata.Success)
	assert.Equal(t, "Task failed", run.Metadata.SuccessReason)
	assert.Equal(t, "planner step limit reached", run.Metadata.ErrorDetails)
	assert.Contains(t, run.Timeline, "Task Validation: FAILED")
	assert.Equal(t, "timeout", run.Success.FinalStatus)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NoError(t, r.StartPlannerStep(1, "x", testImage()))
	assert.NoError(t, r.EndPlannerStep(1, "", nil, nil, StepSuccess, ""))
	assert.Equal(t, "", r.StartExecutorSession(1, "c", "q"))
	assert.NoError(t, r.LogExecutorStep("", ExecutorStep{}, nil))
	assert.NoError(t, r.End("completed", true, "", nil))
	r.SetScreen(1, 1, 1)
	r.SetModels(ModelConfig{})
	assert.Equal(t, "", r.Dir())
}

func TestLogExecutorStepUnknownSession(t *testing.T) {
	r := startTestRun(t, "")
	assert.Error(t, r.LogExecutorStep("exec_session_009", ExecutorStep{}, nil))
}

func TestFormatCall(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{args: ``, want: `tap()`},
		{args: `{"intent":"Settings"}`, want: `tap()`},
		{args: `{"intent":"x","text":"hi","clear":true,"n":3}`, want: `tap(clear=true, n=3, text="hi")`},
		{args: `{"items":[1,2]}`, want: `tap(items=[1,2])`},
		{args: `not json`, want: `tap(text="not json")`},
	}
	for _, tc := range tests {
		if got := FormatCall(call("c", "tap", tc.args)); got != tc.want {
			t.Fatalf("FormatCall(%s)=%q, want %q", tc.args, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	got := Truncate(strings.Repeat("a", 20), 10)
	assert.Equal(t, "aaaaaaa...", got)
}
