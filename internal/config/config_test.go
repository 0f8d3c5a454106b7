package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points HOME at a temp dir, chdirs into a fresh work dir and blanks
// every env var Load reads.
func isolate(t *testing.T) (home, work string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"DROIDPILOT_CONFIG_PATH",
		"DROIDPILOT_PLANNER_BASE_URL", "DROIDPILOT_PLANNER_MODEL", "DROIDPILOT_PLANNER_API_KEY",
		"DROIDPILOT_EXECUTOR_BASE_URL", "DROIDPILOT_EXECUTOR_MODEL", "DROIDPILOT_EXECUTOR_API_KEY",
		"DROIDPILOT_DEVICE_URL", "DROIDPILOT_HOME", "DROIDPILOT_TRACE_DIR", "DROIDPILOT_REDIS_URL",
		"DROIDPILOT_LOG_LEVEL", "DROIDPILOT_MAX_PLANNER_STEPS", "DROIDPILOT_MAX_EXECUTOR_STEPS",
		"DROIDPILOT_SCALE_FACTOR", "OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
	}
	work = t.TempDir()
	oldwd, _ := os.Getwd()
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	return home, work
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	home, _ := isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runtime.MaxPlannerSteps != 60 || cfg.Runtime.MaxExecutorSteps != 10 {
		t.Fatalf("runtime=%+v", cfg.Runtime)
	}
	if cfg.Device.ScaleFactor != 0.4 || cfg.Device.BaseURL != DefaultDeviceURL {
		t.Fatalf("device=%+v", cfg.Device)
	}
	wantBase := filepath.Join(home, ".droidpilot")
	if cfg.Storage.BaseDir != wantBase || cfg.Storage.TraceDir != filepath.Join(wantBase, "runs") {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
	if cfg.DBPath() != filepath.Join(wantBase, "droidpilot.db") {
		t.Fatalf("db=%q", cfg.DBPath())
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log=%q", cfg.Log.Level)
	}
}

func TestLoadJSONCAndPrecedence(t *testing.T) {
	home, _ := isolate(t)

	writeFile(t, filepath.Join(home, ".droidpilot", "config.json"), `{
  // global
  "planner": {"model": "global-model", "api_key": "global-key"},
  "device": {"wait_to_stabilize": true, "scale_factor": 0.5}
}`)
	writeFile(t, "droidpilot.config.json", `{
  "planner": {"model": "project-model"},
  /* block */
  "device": {"base_url": "http://10.0.0.2:5000/"},
  "runtime": {"max_executor_steps": 4}
}`)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Planner.Model != "project-model" || cfg.Planner.APIKey != "global-key" {
		t.Fatalf("planner=%+v", cfg.Planner)
	}
	if !cfg.Device.WaitToStabilize || cfg.Device.ScaleFactor != 0.5 {
		t.Fatalf("device=%+v", cfg.Device)
	}
	if cfg.Device.BaseURL != "http://10.0.0.2:5000" {
		t.Fatalf("base url=%q", cfg.Device.BaseURL)
	}
	if cfg.Runtime.MaxExecutorSteps != 4 || cfg.Runtime.MaxPlannerSteps != 60 {
		t.Fatalf("runtime=%+v", cfg.Runtime)
	}
}

func TestLoadYAMLProjectConfig(t *testing.T) {
	isolate(t)
	writeFile(t, filepath.Join(".droidpilot", "config.yaml"), `
planner:
  model: yaml-model
executor:
  model: small-model
storage:
  redis_url: redis://localhost:6379/2
log:
  level: DEBUG
`)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Planner.Model != "yaml-model" || cfg.Executor.Model != "small-model" {
		t.Fatalf("models=%q/%q", cfg.Planner.Model, cfg.Executor.Model)
	}
	if cfg.Storage.RedisURL != "redis://localhost:6379/2" || cfg.Log.Level != "debug" {
		t.Fatalf("storage=%+v log=%+v", cfg.Storage, cfg.Log)
	}
}

func TestExecutorFallsBackToPlanner(t *testing.T) {
	cfg := Default()
	cfg.Planner.APIKey = "k"
	cfg.Executor.Model = "exec-model"
	exec := cfg.ExecutorModel()
	if exec.Model != "exec-model" || exec.APIKey != "k" || exec.BaseURL != cfg.Planner.BaseURL {
		t.Fatalf("executor=%+v", exec)
	}
	if exec.TimeoutMS != cfg.Planner.TimeoutMS {
		t.Fatalf("timeout=%d", exec.TimeoutMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	_, work := isolate(t)
	writeFile(t, "droidpilot.config.json", `{"planner":{"model":"file-model"}}`)
	t.Setenv("DROIDPILOT_PLANNER_MODEL", "env-model")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("DROIDPILOT_MAX_PLANNER_STEPS", "12")
	t.Setenv("DROIDPILOT_SCALE_FACTOR", "0.25")
	t.Setenv("DROIDPILOT_HOME", filepath.Join(work, "state"))

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Planner.Model != "env-model" || cfg.Planner.APIKey != "sk-env" {
		t.Fatalf("planner=%+v", cfg.Planner)
	}
	if cfg.Runtime.MaxPlannerSteps != 12 || cfg.Device.ScaleFactor != 0.25 {
		t.Fatalf("runtime=%+v device=%+v", cfg.Runtime, cfg.Device)
	}
	if !strings.HasSuffix(cfg.Storage.TraceDir, filepath.Join("state", "runs")) {
		t.Fatalf("trace dir=%q", cfg.Storage.TraceDir)
	}
}

func TestExplicitConfigPath(t *testing.T) {
	_, work := isolate(t)
	writeFile(t, "droidpilot.config.json", `{"planner":{"model":"project"}}`)
	other := filepath.Join(work, "custom.jsonc")
	writeFile(t, other, `{"planner":{"model":"explicit"}}`)

	cfg, err := Load(other)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Planner.Model != "explicit" {
		t.Fatalf("model=%q", cfg.Planner.Model)
	}

	t.Setenv("DROIDPILOT_CONFIG_PATH", "droidpilot.config.json")
	cfg, err = Load(other)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Planner.Model != "project" {
		t.Fatalf("env path ignored, model=%q", cfg.Planner.Model)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  [2]string
	}{
		{name: "scale", body: `{"device":{"scale_factor":1.5}}`},
		{name: "level", body: `{"log":{"level":"loud"}}`},
		{name: "json", body: `{"planner":`},
		{name: "env steps", body: `{}`, env: [2]string{"DROIDPILOT_MAX_EXECUTOR_STEPS", "zero"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			writeFile(t, "droidpilot.config.json", tc.body)
			if tc.env[0] != "" {
				t.Setenv(tc.env[0], tc.env[1])
			}
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestStripJSONCommentsKeepsStrings(t *testing.T) {
	in := `{"url":"http://x//y", // trailing
"a":"/* not a comment */"}`
	out := string(stripJSONComments([]byte(in)))
	if !strings.Contains(out, `"http://x//y"`) || !strings.Contains(out, `"/* not a comment */"`) {
		t.Fatalf("out=%s", out)
	}
	if strings.Contains(out, "trailing") {
		t.Fatalf("comment kept: %s", out)
	}
}

func TestInitProjectConfigScaffold(t *testing.T) {
	dir := t.TempDir()
	path, err := InitProjectConfigScaffold(dir)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, ".droidpilot", "config.json") {
		t.Fatalf("path=%q", path)
	}
	if err := os.WriteFile(path, []byte(`{"planner":{"model":"mine"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := InitProjectConfigScaffold(dir); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "mine") {
		t.Fatalf("existing config overwritten: %s", data)
	}
}
