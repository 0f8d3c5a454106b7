package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"droidpilot/internal/config"
	"droidpilot/internal/logging"
	"droidpilot/internal/storage"
	"droidpilot/internal/trace"
	"droidpilot/internal/tui"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env failed: %v\n", err)
	}
	if err := dispatch(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func dispatch(args []string, out io.Writer) error {
	cmd, rest, err := splitCommand(args)
	if err != nil {
		return err
	}
	switch cmd {
	case "run":
		return runCommand(rest, out)
	case "show":
		if len(rest) != 1 {
			return errors.New("usage: agent show <run-dir>")
		}
		return showRun(out, rest[0], showWidth)
	case "view":
		if len(rest) != 1 {
			return errors.New("usage: agent view <run-dir>")
		}
		return tui.Run(rest[0])
	case "sessions":
		return sessionsCommand(rest, out)
	case "init":
		return initCommand(rest, out)
	case "help":
		fmt.Fprint(out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// splitCommand picks the subcommand. Bare flags or no arguments mean run.
func splitCommand(args []string) (string, []string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "run", args, nil
	}
	for _, known := range commands {
		if args[0] == known {
			return known, args[1:], nil
		}
	}
	return "", nil, fmt.Errorf("unknown command %q\n%s", args[0], usage)
}

// loadConfig loads config and applies its log level.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config failed: %w", err)
	}
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func showRun(out io.Writer, dir string, width int) error {
	run, err := trace.Load(dir)
	if err != nil {
		return fmt.Errorf("load run %s: %w", dir, err)
	}
	if strings.TrimSpace(run.Summary) == "" {
		fmt.Fprintf(out, "run %s has not finished (goal: %s, planner steps: %d)\n",
			run.Metadata.RunID, run.Metadata.Goal, len(run.Planner))
		return nil
	}
	fmt.Fprintln(out, strings.TrimRight(run.Summary, "\n"))
	if timeline := tui.RenderMarkdown(run.Timeline, width); timeline != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, timeline)
	}
	return nil
}

func sessionsCommand(args []string, out io.Writer) error {
	fsFlags := flag.NewFlagSet("sessions", flag.ContinueOnError)
	configPath := fsFlags.String("config", "", "Path to config JSON/JSONC/YAML")
	importRuns := fsFlags.Bool("import", false, "Import run directories missing from the database first")
	if err := fsFlags.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("init storage failed: %w", err)
	}
	defer store.Close()

	if *importRuns {
		n, err := storage.ImportRuns(cfg.Storage.TraceDir, store)
		if err != nil {
			return fmt.Errorf("import runs failed: %w", err)
		}
		fmt.Fprintf(out, "imported %d run(s) from %s\n", n, cfg.Storage.TraceDir)
	}
	return listSessions(out, store)
}

func listSessions(out io.Writer, store storage.Store) error {
	metas, err := store.ListSessions()
	if err != nil {
		return fmt.Errorf("list sessions failed: %w", err)
	}
	if len(metas) == 0 {
		fmt.Fprintln(out, "no sessions")
		return nil
	}
	for _, meta := range metas {
		fmt.Fprintf(out, "%s  status=%s  success=%t  steps=%d/%d  updated=%s  goal=%s\n",
			meta.ID, meta.Status, meta.Success, meta.PlannerSteps, meta.ExecutorSteps, meta.UpdatedAt,
			trace.Truncate(meta.Goal, 60))
	}
	return nil
}

func initCommand(args []string, out io.Writer) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	path, err := config.InitProjectConfigScaffold(dir)
	if err != nil {
		return fmt.Errorf("init config failed: %w", err)
	}
	fmt.Fprintf(out, "project config: %s\n", path)
	return nil
}
