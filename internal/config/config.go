// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration. Everything here is
// host-provided: the agent core consumes these knobs but does not own them.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Models  ModelsConfig  `mapstructure:"models" yaml:"models"`
	Bridge  BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// CaptureConfig controls screenshots and downsampling.
type CaptureConfig struct {
	// PixelBudget bounds downsampledWidth*downsampledHeight, keeping per-call
	// model image cost independent of the physical display resolution.
	PixelBudget int `mapstructure:"pixel_budget" yaml:"pixel_budget"`
	// MaxRetries bounds capture attempts before CaptureUnavailable turns fatal.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// SaveDir, when set, persists each downsampled frame as <uuid>.png so
	// event screenshot references survive the session.
	SaveDir string `mapstructure:"save_dir" yaml:"save_dir"`
	// Monitors selects which displays to capture; empty means all.
	Monitors []int `mapstructure:"monitors" yaml:"monitors"`
}

// ReplanPolicy decides what happens to accumulated history on a Replan
// decision.
type ReplanPolicy string

const (
	// ReplanKeep retains the full history window.
	ReplanKeep ReplanPolicy = "keep"
	// ReplanTrim keeps only the most recent ReplanKeepEntries entries.
	ReplanTrim ReplanPolicy = "trim"
	// ReplanClear discards all history.
	ReplanClear ReplanPolicy = "clear"
)

// AgentConfig holds the per-task hard caps and loop behavior.
type AgentConfig struct {
	MaxIterations     int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxElapsed        time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed"`
	MaxCostTokens     int           `mapstructure:"max_cost_tokens" yaml:"max_cost_tokens"`
	HistoryWindow     int           `mapstructure:"history_window" yaml:"history_window"`
	WaitDuration      time.Duration `mapstructure:"wait_duration" yaml:"wait_duration"`
	ReplanPolicy      ReplanPolicy  `mapstructure:"replan_policy" yaml:"replan_policy"`
	ReplanKeepEntries int           `mapstructure:"replan_keep_entries" yaml:"replan_keep_entries"`
	EventBuffer       int           `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// ModelProvider names a client implementation.
type ModelProvider string

const (
	ProviderGemini ModelProvider = "gemini"
	ProviderOpenAI ModelProvider = "openai"
	ProviderBridge ModelProvider = "bridge"
)

// ModelConfig configures one inference endpoint.
type ModelConfig struct {
	Provider    ModelProvider `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ModelsConfig wires model roles to endpoints. Mode "unified" uses a single
// client for planning and grounding; "split" routes a planner and an actor
// separately.
const (
	ModelsModeUnified = "unified"
	ModelsModeSplit   = "split"
)

type ModelsConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"` // "unified" or "split"
	// RetryAttempts is the ceiling for transient inference retries.
	RetryAttempts uint64 `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	// RequestsPerMinute rate-limits outbound inference calls per client.
	RequestsPerMinute float64     `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Planner           ModelConfig `mapstructure:"planner" yaml:"planner"`
	Actor             ModelConfig `mapstructure:"actor" yaml:"actor"`
	Unified           ModelConfig `mapstructure:"unified" yaml:"unified"`
}

// BridgeConfig configures the remote inference relay service.
type BridgeConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// MaxImageBytes rejects oversized inference payloads before decode.
	MaxImageBytes int64 `mapstructure:"max_image_bytes" yaml:"max_image_bytes"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "computer-use")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Capture --
	v.SetDefault("capture.pixel_budget", 1_000_000)
	v.SetDefault("capture.max_retries", 2)
	v.SetDefault("capture.save_dir", "")
	v.SetDefault("capture.monitors", []int{})

	// -- Agent --
	v.SetDefault("agent.max_iterations", 25)
	v.SetDefault("agent.max_elapsed", "10m")
	v.SetDefault("agent.max_cost_tokens", 500_000)
	v.SetDefault("agent.history_window", 10)
	v.SetDefault("agent.wait_duration", "5s")
	v.SetDefault("agent.replan_policy", string(ReplanKeep))
	v.SetDefault("agent.replan_keep_entries", 3)
	v.SetDefault("agent.event_buffer", 64)

	// -- Models --
	v.SetDefault("models.mode", "unified")
	v.SetDefault("models.retry_attempts", 3)
	v.SetDefault("models.requests_per_minute", 30.0)
	v.SetDefault("models.unified.provider", string(ProviderGemini))
	v.SetDefault("models.unified.model", "gemini-2.5-pro")
	v.SetDefault("models.unified.api_timeout", "60s")
	v.SetDefault("models.unified.temperature", 0.0)
	v.SetDefault("models.unified.max_tokens", 512)
	v.SetDefault("models.planner.provider", string(ProviderGemini))
	v.SetDefault("models.planner.model", "gemini-2.5-pro")
	v.SetDefault("models.planner.api_timeout", "60s")
	v.SetDefault("models.planner.temperature", 0.0)
	v.SetDefault("models.planner.max_tokens", 512)
	v.SetDefault("models.actor.provider", string(ProviderOpenAI))
	v.SetDefault("models.actor.model", "ui-tars")
	v.SetDefault("models.actor.api_timeout", "60s")
	v.SetDefault("models.actor.temperature", 0.0)
	v.SetDefault("models.actor.max_tokens", 256)

	// -- Bridge --
	v.SetDefault("bridge.host", "127.0.0.1")
	v.SetDefault("bridge.port", 8765)
	v.SetDefault("bridge.read_timeout", "30s")
	v.SetDefault("bridge.write_timeout", "120s")
	v.SetDefault("bridge.max_image_bytes", 8*1024*1024)
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a Config from a prepared viper
// instance (file + env already merged in).
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("models.unified.api_key", "COMPUTERUSE_GEMINI_API_KEY")
	v.BindEnv("models.planner.api_key", "COMPUTERUSE_PLANNER_API_KEY")
	v.BindEnv("models.actor.api_key", "COMPUTERUSE_ACTOR_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Capture.PixelBudget <= 0 {
		return fmt.Errorf("capture.pixel_budget must be a positive integer")
	}
	if c.Capture.MaxRetries < 0 {
		return fmt.Errorf("capture.max_retries must not be negative")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be a positive integer")
	}
	if c.Agent.MaxElapsed <= 0 {
		return fmt.Errorf("agent.max_elapsed must be a positive duration")
	}
	if c.Agent.HistoryWindow <= 0 {
		return fmt.Errorf("agent.history_window must be a positive integer")
	}
	switch c.Agent.ReplanPolicy {
	case ReplanKeep, ReplanTrim, ReplanClear:
	default:
		return fmt.Errorf("agent.replan_policy must be one of keep, trim, clear")
	}
	if c.Agent.ReplanPolicy == ReplanTrim && c.Agent.ReplanKeepEntries < 0 {
		return fmt.Errorf("agent.replan_keep_entries must not be negative")
	}
	switch c.Models.Mode {
	case "unified", "split":
	default:
		return fmt.Errorf("models.mode must be unified or split")
	}
	if c.Bridge.Port <= 0 || c.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be a valid TCP port")
	}
	return nil
}
