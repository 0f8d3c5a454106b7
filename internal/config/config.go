package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

type ModelConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	Model      string `json:"model" yaml:"model"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	TimeoutMS  int    `json:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
}

type DeviceConfig struct {
	BaseURL         string  `json:"base_url" yaml:"base_url"`
	TimeoutMS       int     `json:"timeout_ms" yaml:"timeout_ms"`
	WaitToStabilize bool    `json:"wait_to_stabilize" yaml:"wait_to_stabilize"`
	ScaleFactor     float64 `json:"scale_factor" yaml:"scale_factor"`
	// Width/Height override the logical screen size reported by the device.
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

type RuntimeConfig struct {
	MaxPlannerSteps    int `json:"max_planner_steps" yaml:"max_planner_steps"`
	MaxExecutorSteps   int `json:"max_executor_steps" yaml:"max_executor_steps"`
	ContextTokenLimit  int `json:"context_token_limit" yaml:"context_token_limit"`
	ReconnectBackoffMS int `json:"reconnect_backoff_ms" yaml:"reconnect_backoff_ms"`
}

type StorageConfig struct {
	BaseDir         string `json:"base_dir" yaml:"base_dir"`
	TraceDir        string `json:"trace_dir" yaml:"trace_dir"`
	RedisURL        string `json:"redis_url" yaml:"redis_url"`
	RedisTTLSeconds int    `json:"redis_ttl_seconds" yaml:"redis_ttl_seconds"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

type Config struct {
	Planner  ModelConfig   `json:"planner" yaml:"planner"`
	Executor ModelConfig   `json:"executor" yaml:"executor"`
	Device   DeviceConfig  `json:"device" yaml:"device"`
	Runtime  RuntimeConfig `json:"runtime" yaml:"runtime"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Log      LogConfig     `json:"log" yaml:"log"`
}

type fileDeviceConfig struct {
	BaseURL         string  `json:"base_url" yaml:"base_url"`
	TimeoutMS       int     `json:"timeout_ms" yaml:"timeout_ms"`
	WaitToStabilize *bool   `json:"wait_to_stabilize" yaml:"wait_to_stabilize"`
	ScaleFactor     float64 `json:"scale_factor" yaml:"scale_factor"`
	Width           int     `json:"width" yaml:"width"`
	Height          int     `json:"height" yaml:"height"`
}

type fileConfig struct {
	Planner  *ModelConfig      `json:"planner" yaml:"planner"`
	Executor *ModelConfig      `json:"executor" yaml:"executor"`
	Device   *fileDeviceConfig `json:"device" yaml:"device"`
	Runtime  *RuntimeConfig    `json:"runtime" yaml:"runtime"`
	Storage  *StorageConfig    `json:"storage" yaml:"storage"`
	Log      *LogConfig        `json:"log" yaml:"log"`
}

func Default() Config {
	return Config{
		Planner: ModelConfig{
			BaseURL:    DefaultBaseURL,
			Model:      DefaultPlannerModel,
			TimeoutMS:  120000,
			MaxRetries: 2,
		},
		Device: DeviceConfig{
			BaseURL:     DefaultDeviceURL,
			TimeoutMS:   30000,
			ScaleFactor: DefaultScaleFactor,
		},
		Runtime: RuntimeConfig{
			MaxPlannerSteps:    DefaultMaxPlannerSteps,
			MaxExecutorSteps:   DefaultMaxExecutorSteps,
			ContextTokenLimit:  DefaultContextTokenLimit,
			ReconnectBackoffMS: DefaultReconnectBackoffMS,
		},
		Storage: StorageConfig{
			BaseDir:         "~/.droidpilot",
			RedisTTLSeconds: DefaultRedisTTLSeconds,
		},
		Log: LogConfig{Level: "info"},
	}
}

// ExecutorModel returns the executor settings with empty fields filled from
// the planner section.
func (c Config) ExecutorModel() ModelConfig {
	out := c.Executor
	if strings.TrimSpace(out.BaseURL) == "" {
		out.BaseURL = c.Planner.BaseURL
	}
	if strings.TrimSpace(out.Model) == "" {
		out.Model = c.Planner.Model
	}
	if strings.TrimSpace(out.APIKey) == "" {
		out.APIKey = c.Planner.APIKey
	}
	if out.TimeoutMS <= 0 {
		out.TimeoutMS = c.Planner.TimeoutMS
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = c.Planner.MaxRetries
	}
	return out
}

// DBPath is the sqlite database location.
func (c Config) DBPath() string {
	return filepath.Join(c.Storage.BaseDir, "droidpilot.db")
}

// Load builds the configuration: defaults, then the global file, then the
// project file (or path / DROIDPILOT_CONFIG_PATH), then DROIDPILOT_* env vars.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("DROIDPILOT_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".droidpilot")
	return []string{filepath.Join(dir, "config.json"), filepath.Join(dir, "config.yaml")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"droidpilot.config.json",
		"droidpilot.config.yaml",
		".droidpilot/config.json",
		".droidpilot/config.yaml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	var fileCfg fileConfig
	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(stripJSONComments(data), &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Planner != nil {
		cfg.Planner = mergeModel(cfg.Planner, *fc.Planner)
	}
	if fc.Executor != nil {
		cfg.Executor = mergeModel(cfg.Executor, *fc.Executor)
	}
	if fc.Device != nil {
		cfg.Device = mergeDevice(cfg.Device, *fc.Device)
	}
	if fc.Runtime != nil {
		cfg.Runtime = mergeRuntime(cfg.Runtime, *fc.Runtime)
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
	if fc.Log != nil && strings.TrimSpace(fc.Log.Level) != "" {
		cfg.Log.Level = fc.Log.Level
	}
}

func mergeModel(base ModelConfig, override ModelConfig) ModelConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	return base
}

func mergeDevice(base DeviceConfig, override fileDeviceConfig) DeviceConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.WaitToStabilize != nil {
		base.WaitToStabilize = *override.WaitToStabilize
	}
	if override.ScaleFactor != 0 {
		base.ScaleFactor = override.ScaleFactor
	}
	if override.Width > 0 {
		base.Width = override.Width
	}
	if override.Height > 0 {
		base.Height = override.Height
	}
	return base
}

func mergeRuntime(base RuntimeConfig, override RuntimeConfig) RuntimeConfig {
	if override.MaxPlannerSteps > 0 {
		base.MaxPlannerSteps = override.MaxPlannerSteps
	}
	if override.MaxExecutorSteps > 0 {
		base.MaxExecutorSteps = override.MaxExecutorSteps
	}
	if override.ContextTokenLimit > 0 {
		base.ContextTokenLimit = override.ContextTokenLimit
	}
	if override.ReconnectBackoffMS > 0 {
		base.ReconnectBackoffMS = override.ReconnectBackoffMS
	}
	return base
}

func mergeStorage(base StorageConfig, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.BaseDir) != "" {
		base.BaseDir = override.BaseDir
	}
	if strings.TrimSpace(override.TraceDir) != "" {
		base.TraceDir = override.TraceDir
	}
	if strings.TrimSpace(override.RedisURL) != "" {
		base.RedisURL = override.RedisURL
	}
	if override.RedisTTLSeconds > 0 {
		base.RedisTTLSeconds = override.RedisTTLSeconds
	}
	return base
}

func normalize(cfg *Config) error {
	cfg.Planner.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Planner.BaseURL), "/")
	cfg.Executor.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Executor.BaseURL), "/")
	cfg.Device.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Device.BaseURL), "/")
	if cfg.Planner.TimeoutMS <= 0 {
		cfg.Planner.TimeoutMS = 120000
	}
	if cfg.Planner.MaxRetries < 0 {
		cfg.Planner.MaxRetries = 0
	}

	if cfg.Device.ScaleFactor <= 0 || cfg.Device.ScaleFactor > 1 {
		return fmt.Errorf("device.scale_factor must be in (0, 1], got %v", cfg.Device.ScaleFactor)
	}
	if cfg.Device.Width < 0 || cfg.Device.Height < 0 {
		return fmt.Errorf("device.width/height must not be negative")
	}
	if cfg.Device.TimeoutMS <= 0 {
		cfg.Device.TimeoutMS = 30000
	}

	if cfg.Runtime.MaxPlannerSteps <= 0 {
		cfg.Runtime.MaxPlannerSteps = DefaultMaxPlannerSteps
	}
	if cfg.Runtime.MaxExecutorSteps <= 0 {
		cfg.Runtime.MaxExecutorSteps = DefaultMaxExecutorSteps
	}
	if cfg.Runtime.ContextTokenLimit <= 0 {
		cfg.Runtime.ContextTokenLimit = DefaultContextTokenLimit
	}
	if cfg.Runtime.ReconnectBackoffMS < 0 {
		cfg.Runtime.ReconnectBackoffMS = 0
	}

	if strings.TrimSpace(cfg.Storage.BaseDir) == "" {
		cfg.Storage.BaseDir = "~/.droidpilot"
	}
	base, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return fmt.Errorf("expand storage.base_dir: %w", err)
	}
	cfg.Storage.BaseDir = base
	if strings.TrimSpace(cfg.Storage.TraceDir) == "" {
		cfg.Storage.TraceDir = filepath.Join(base, "runs")
	} else if cfg.Storage.TraceDir, err = expandPath(cfg.Storage.TraceDir); err != nil {
		return fmt.Errorf("expand storage.trace_dir: %w", err)
	}
	cfg.Storage.RedisURL = strings.TrimSpace(cfg.Storage.RedisURL)
	if cfg.Storage.RedisTTLSeconds <= 0 {
		cfg.Storage.RedisTTLSeconds = DefaultRedisTTLSeconds
	}

	level := strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch level {
	case "":
		level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	cfg.Log.Level = level
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	str := map[string]*string{
		"DROIDPILOT_PLANNER_BASE_URL":  &cfg.Planner.BaseURL,
		"DROIDPILOT_PLANNER_MODEL":     &cfg.Planner.Model,
		"DROIDPILOT_PLANNER_API_KEY":   &cfg.Planner.APIKey,
		"DROIDPILOT_EXECUTOR_BASE_URL": &cfg.Executor.BaseURL,
		"DROIDPILOT_EXECUTOR_MODEL":    &cfg.Executor.Model,
		"DROIDPILOT_EXECUTOR_API_KEY":  &cfg.Executor.APIKey,
		"DROIDPILOT_DEVICE_URL":        &cfg.Device.BaseURL,
		"DROIDPILOT_HOME":              &cfg.Storage.BaseDir,
		"DROIDPILOT_TRACE_DIR":         &cfg.Storage.TraceDir,
		"DROIDPILOT_REDIS_URL":         &cfg.Storage.RedisURL,
		"DROIDPILOT_LOG_LEVEL":         &cfg.Log.Level,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	if cfg.Planner.APIKey == "" {
		cfg.Planner.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if v := strings.TrimSpace(os.Getenv("DROIDPILOT_HOME")); v != "" && os.Getenv("DROIDPILOT_TRACE_DIR") == "" {
		cfg.Storage.TraceDir = ""
	}

	ints := map[string]*int{
		"DROIDPILOT_MAX_PLANNER_STEPS":  &cfg.Runtime.MaxPlannerSteps,
		"DROIDPILOT_MAX_EXECUTOR_STEPS": &cfg.Runtime.MaxExecutorSteps,
	}
	for key, dst := range ints {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = n
	}
	if v := strings.TrimSpace(os.Getenv("DROIDPILOT_SCALE_FACTOR")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DROIDPILOT_SCALE_FACTOR: %q", v)
		}
		cfg.Device.ScaleFactor = f
	}

	return cfg, normalize(&cfg)
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
