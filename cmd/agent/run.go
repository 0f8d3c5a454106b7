package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"droidpilot/internal/bootstrap"
	"droidpilot/internal/config"
	"droidpilot/internal/orchestrator"

	"github.com/chzyer/readline"
)

// agentRuntime is a built agent plus the config the REPL reports.
type agentRuntime struct {
	cfg config.Config
	*bootstrap.BuildResult
}

// runGoal runs one goal to its end. Ctrl-C cancels the goal, not the process,
// and the session ends as reset.
func (rt *agentRuntime) runGoal(goal string, out io.Writer) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	outcome, err := rt.Orch.RunGoal(ctx, goal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "goal failed: %v\n", err)
	}
	printOutcome(out, outcome)
}

func runCommand(args []string, out io.Writer) error {
	fsFlags := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fsFlags.String("config", "", "Path to config JSON/JSONC/YAML")
	goal := fsFlags.String("goal", "", "Run a single goal and exit")
	taskName := fsFlags.String("task", "", "Task name used in run directory names")
	if err := fsFlags.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	res, err := bootstrap.Build(context.Background(), cfg, bootstrap.Options{
		TaskName:  *taskName,
		Out:       out,
		LogOutput: os.Stderr,
	})
	if err != nil {
		return err
	}
	defer res.Close()
	rt := &agentRuntime{cfg: cfg, BuildResult: res}

	if g := strings.TrimSpace(*goal); g != "" {
		rt.runGoal(g, out)
		return nil
	}
	return rt.repl(out)
}

func (rt *agentRuntime) repl(out io.Writer) error {
	inputReader, inputErr := newLineInput(filepath.Join(rt.cfg.Storage.BaseDir, "goals.history"))
	if inputErr != nil {
		fmt.Fprintf(os.Stderr, "line editor unavailable, fallback to basic input: %v\n", inputErr)
	}
	defer inputReader.Close()

	fmt.Fprintf(out, "droidpilot ready: device=%s planner=%s executor=%s\n",
		rt.cfg.Device.BaseURL, rt.PlannerModel, rt.ExecutorModel)
	fmt.Fprintf(out, "traces: %s\n", rt.TraceDir)
	printREPLCommands(out)

	ran := false
	for {
		line, err := inputReader.ReadLine("goal> ")
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				fmt.Fprintln(out)
				continue
			case errors.Is(err, io.EOF):
				fmt.Fprintln(os.Stderr, "\nexit")
				return nil
			default:
				return fmt.Errorf("read input failed: %w", err)
			}
		}
		action, goal := parseREPLLine(line)
		switch action {
		case replSkip:
			continue
		case replExit:
			return nil
		case replHelp:
			printREPLCommands(out)
			continue
		case replSessions:
			if err := listSessions(out, rt.Store); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			continue
		case replReset:
			rt.reset()
			ran = false
			continue
		}
		// every goal starts from a fresh session on the home screen
		if ran {
			rt.reset()
		}
		rt.runGoal(goal, out)
		ran = true
	}
}

func (rt *agentRuntime) reset() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Orch.Reset(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
	}
}

func printOutcome(out io.Writer, o orchestrator.Outcome) {
	if o.SessionID == "" {
		fmt.Fprintln(out, "no session was started")
		return
	}
	fmt.Fprintf(out, "\nsession %s: %s (success=%t)\n", o.SessionID, o.Status, o.Success)
	if o.Reason != "" {
		fmt.Fprintf(out, "reason: %s\n", o.Reason)
	}
	if o.Answer != "" {
		fmt.Fprintf(out, "answer: %s\n", o.Answer)
	}
	fmt.Fprintf(out, "steps: planner=%d executor=%d\n", o.PlannerSteps, o.ExecutorSteps)
	if o.TraceDir != "" {
		fmt.Fprintf(out, "trace: %s\n", o.TraceDir)
	}
}
