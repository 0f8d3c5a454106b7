package tui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"droidpilot/internal/chat"
	"droidpilot/internal/todo"
	"droidpilot/internal/trace"

	tea "github.com/charmbracelet/bubbletea"
)

func sampleRun() *trace.Run {
	ok := true
	return &trace.Run{
		Dir: "/tmp/run",
		Metadata: trace.Metadata{
			RunID:              "run-1",
			Goal:               "Turn on wifi",
			FinalStatus:        "completed",
			Success:            &ok,
			SuccessReason:      "wifi enabled",
			ModelConfig:        trace.ModelConfig{PlannerModel: "gpt-4o", ExecutorModel: "gpt-4o-mini"},
			ScaleFactor:        0.4,
			LogicalScreenSize:  [2]int{1080, 2400},
			TotalPlannerSteps:  2,
			TotalExecutorSteps: 1,
		},
		Planner: []trace.PlannerStep{
			{
				StepNumber: 1,
				UserInput:  "Turn on wifi",
				Thinking:   "Open settings first.",
				Status:     trace.StepSuccess,
				ToolCalls: []chat.ToolCall{{ID: "c1", Function: chat.ToolCallFunction{
					Name: "open_app", Arguments: `{"app_name":"Settings"}`,
				}}},
				TodoListState: []todo.Item{{ID: "1", Content: "open settings", Status: todo.StatusCompleted}},
			},
			{StepNumber: 2, Status: trace.StepFailed, ErrorMessage: "observe: device offline"},
		},
		Sessions: []trace.ExecutorSession{{
			ID: "exec_001", PlannerStep: 1, PlannerToolCallID: "c1", Query: "Open the Settings app",
			Steps: []trace.ExecutorStep{{
				StepNumber: 1,
				Status:     trace.StepSuccess,
				ToolCalls: []chat.ToolCall{{ID: "e1", Function: chat.ToolCallFunction{
					Name: "open_app", Arguments: `{"app_name":"Settings"}`,
				}}},
				ToolResults: []trace.ToolResult{{ToolCallID: "e1", Name: "open_app", Success: true, Result: "launched"}},
			}},
		}},
		Timeline: "# Wifi\n\n**Goal:** Turn on wifi\n",
	}
}

func sized(t *testing.T, app App) App {
	t.Helper()
	m, _ := app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m.(App)
}

func TestAppUpdate_PanelNavigation(t *testing.T) {
	app := sized(t, NewApp(sampleRun()))

	m, _ := app.Update(tea.KeyMsg{Type: tea.KeyTab})
	updated := m.(App)
	if updated.activePanel != PanelExecutor {
		t.Fatalf("expected executor panel, got %v", updated.activePanel)
	}
	m, _ = updated.Update(tea.KeyMsg{Type: tea.KeyTab})
	m, _ = m.(App).Update(tea.KeyMsg{Type: tea.KeyTab})
	updated = m.(App)
	if updated.activePanel != PanelPlanner {
		t.Fatalf("expected wrap to planner, got %v", updated.activePanel)
	}
	m, _ = updated.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if got := m.(App).activePanel; got != PanelTimeline {
		t.Fatalf("expected timeline panel, got %v", got)
	}
}

func TestAppUpdate_Quit(t *testing.T) {
	app := sized(t, NewApp(sampleRun()))
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestAppView_ShowsRunMetadata(t *testing.T) {
	app := sized(t, NewApp(sampleRun()))
	view := app.View()
	for _, want := range []string{"Planner", "Executor", "Timeline", "Turn on wifi", "gpt-4o-mini", "run-1"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q", want)
		}
	}
	if got := NewApp(nil).View(); got != "Initializing..." {
		t.Fatalf("unsized view = %q", got)
	}
}

func TestAppUpdate_ReloadAndErrors(t *testing.T) {
	app := sized(t, NewApp(&trace.Run{}))

	m, _ := app.Update(LoadErrorMsg{Err: errors.New("boom")})
	updated := m.(App)
	if updated.lastError != "boom" {
		t.Fatalf("unexpected last error: %q", updated.lastError)
	}

	m, _ = updated.Update(RunLoadedMsg{Run: sampleRun()})
	updated = m.(App)
	if updated.lastError != "" {
		t.Fatalf("reload should clear the error")
	}
	if !strings.Contains(updated.views[PanelPlanner].View(), "Step 1") {
		t.Fatalf("planner panel not refreshed: %q", updated.views[PanelPlanner].View())
	}
}

func TestLoadRunCommand(t *testing.T) {
	dir := t.TempDir()
	meta := `{"run_id":"r9","goal":"check mail","scale_factor":0.4,"logical_screen_size":[100,200],"success":null}`
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}
	msg := loadRun(dir)()
	loaded, ok := msg.(RunLoadedMsg)
	if !ok {
		t.Fatalf("expected RunLoadedMsg, got %T", msg)
	}
	if loaded.Run.Metadata.Goal != "check mail" {
		t.Fatalf("unexpected goal %q", loaded.Run.Metadata.Goal)
	}

	if _, ok := loadRun(filepath.Join(dir, "missing"))().(LoadErrorMsg); !ok {
		t.Fatal("expected LoadErrorMsg for a missing run")
	}
}
