// Package bootstrap wires the agent's collaborators from a loaded config.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"droidpilot/internal/config"
	"droidpilot/internal/device"
	"droidpilot/internal/executor"
	"droidpilot/internal/logging"
	"droidpilot/internal/orchestrator"
	"droidpilot/internal/provider"
	"droidpilot/internal/storage"
	"droidpilot/internal/supervisor"
)

// Options 是与 UI 相关的构建参数
// Options carries the UI-facing parts of a build.
type Options struct {
	TaskName string
	// Out receives the planner's rendered turns.
	Out io.Writer
	// LogOutput receives log records; nil discards them outside logs.txt.
	LogOutput io.Writer
}

// BuildResult 与 UI 无关的构建结果，供 main 构造 REPL
// BuildResult is UI-agnostic; main uses it to run goals
type BuildResult struct {
	Orch          *orchestrator.Orchestrator
	Store         *storage.SQLiteStore
	Mirror        *storage.RedisMirror
	Device        *device.HTTPDevice
	Logger        *slog.Logger
	PlannerModel  string
	ExecutorModel string
	TraceDir      string
	ToolNames     []string
}

// Build 按依赖顺序初始化并返回 BuildResult；调用方负责 defer result.Close()
// Build initializes in dependency order; the caller must defer result.Close()
func Build(ctx context.Context, cfg config.Config, opts Options) (*BuildResult, error) {
	logger := logging.New(opts.LogOutput)

	dev, err := newDevice(cfg.Device, logger)
	if err != nil {
		return nil, fmt.Errorf("init device: %w", err)
	}
	if err := dev.Health(ctx); err != nil {
		logger.Warn("device not reachable yet", "url", cfg.Device.BaseURL, "err", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if imported, err := storage.ImportRuns(cfg.Storage.TraceDir, store); err != nil {
		logger.Warn("import runs", "err", err)
	} else if imported > 0 {
		logger.Info("imported runs", "count", imported)
	}
	mirror := openMirror(ctx, cfg.Storage, logger)

	sup := supervisor.New(dev, supervisor.Options{
		Backoff: time.Duration(cfg.Runtime.ReconnectBackoffMS) * time.Millisecond,
		Logger:  logger,
	})
	execCfg := cfg.ExecutorModel()
	exec := executor.New(executor.Options{
		Provider:   provider.NewOpenAIProvider(openAIConfig(execCfg, logger)),
		Model:      execCfg.Model,
		Supervisor: sup,
		MaxSteps:   cfg.Runtime.MaxExecutorSteps,
		Scale:      cfg.Device.ScaleFactor,
		Logger:     logger,
	})

	orch := orchestrator.New(orchestrator.Options{
		Planner:           provider.NewOpenAIProvider(openAIConfig(cfg.Planner, logger)),
		PlannerModel:      cfg.Planner.Model,
		Executor:          exec,
		Device:            dev,
		Supervisor:        sup,
		Store:             store,
		Mirror:            mirror,
		TraceDir:          cfg.Storage.TraceDir,
		TaskName:          opts.TaskName,
		Scale:             cfg.Device.ScaleFactor,
		MaxSteps:          cfg.Runtime.MaxPlannerSteps,
		ContextTokenLimit: cfg.Runtime.ContextTokenLimit,
		Logger:            logger,
		LogOutput:         opts.LogOutput,
		Out:               opts.Out,
	})

	return &BuildResult{
		Orch:          orch,
		Store:         store,
		Mirror:        mirror,
		Device:        dev,
		Logger:        logger,
		PlannerModel:  cfg.Planner.Model,
		ExecutorModel: execCfg.Model,
		TraceDir:      cfg.Storage.TraceDir,
		ToolNames:     orch.ToolNames(),
	}, nil
}

// Close finalizes an unfinished session and releases the store, the mirror
// and the device connection.
func (r *BuildResult) Close() {
	if r == nil {
		return
	}
	if r.Orch != nil {
		r.Orch.Close()
	}
	if err := r.Mirror.Close(); err != nil {
		r.Logger.Warn("close redis mirror", "err", err)
	}
	if r.Store != nil {
		_ = r.Store.Close()
	}
	if r.Device != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Device.Close(ctx); err != nil {
			r.Logger.Debug("close device", "err", err)
		}
	}
}
