package orchestrator

import (
	"io"
	"log/slog"

	"droidpilot/internal/device"
	"droidpilot/internal/executor"
	"droidpilot/internal/provider"
	"droidpilot/internal/session"
	"droidpilot/internal/storage"
	"droidpilot/internal/supervisor"
)

// ToolEventFunc 工具执行事件回调（用于前端 REPL/TUI）
// ToolEventFunc is the tool execution event callback for frontends.
// done=false 表示工具开始，done=true 表示工具结束。
type ToolEventFunc = func(name, summary string, done bool)

const (
	ansiReset  = "\x1b[0m"
	ansiCyan   = "\x1b[36m"
	ansiYellow = "\x1b[33m"
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"
	ansiBold   = "\x1b[1m"
)

const (
	DefaultMaxSteps          = 60
	DefaultContextTokenLimit = 48000
)

type Options struct {
	Planner      provider.Provider
	PlannerModel string
	Executor     *executor.Executor
	Device       device.Device
	Supervisor   *supervisor.Supervisor

	Store  storage.Store
	Mirror *storage.RedisMirror

	TraceDir string
	TaskName string
	Scale    float64

	MaxSteps          int
	ContextTokenLimit int

	Logger      *slog.Logger
	// LogOutput also receives the per-run logger's records next to the run's
	// logs.txt. Nil writes logs.txt only.
	LogOutput   io.Writer
	Out         io.Writer
	OnToolEvent ToolEventFunc
}

// Outcome summarizes a finished goal.
type Outcome struct {
	SessionID     string
	Status        session.Status
	Success       bool
	Reason        string
	Answer        string
	PlannerSteps  int
	ExecutorSteps int
	TraceDir      string
}
