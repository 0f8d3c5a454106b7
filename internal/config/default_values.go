package config

const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultPlannerModel = "gpt-4o"
	DefaultDeviceURL    = "http://localhost:5000"

	DefaultScaleFactor = 0.4

	DefaultMaxPlannerSteps    = 60
	DefaultMaxExecutorSteps   = 10
	DefaultContextTokenLimit  = 48000
	DefaultReconnectBackoffMS = 2000

	DefaultRedisTTLSeconds = 40 * 60
)
