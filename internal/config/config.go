package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Rubric      RubricConfig      `mapstructure:"rubric"`
	Producers   ProducersConfig   `mapstructure:"producers"`
	Judges      JudgesConfig      `mapstructure:"judges"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Store       StoreConfig       `mapstructure:"store"`
	Report      ReportConfig      `mapstructure:"report"`
	Server      ServerConfig      `mapstructure:"server"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string   `mapstructure:"level"`
	Format string   `mapstructure:"format"`
	File   string   `mapstructure:"file"`
	Redact []string `mapstructure:"redact"`
}

// RubricConfig selects the rubric document. An empty path uses the embedded default.
type RubricConfig struct {
	Path string `mapstructure:"path"`
}

// ProducersConfig configures the evidence stage.
type ProducersConfig struct {
	Enabled      []string `mapstructure:"enabled"`
	Timeout      string   `mapstructure:"timeout"`
	MaxAttempts  int      `mapstructure:"max_attempts"`
	BaseDelay    string   `mapstructure:"base_delay"`
	CloneDepth   int      `mapstructure:"clone_depth"`
	CloneTimeout string   `mapstructure:"clone_timeout"`
	Concepts     []string `mapstructure:"concepts"`
	MaxImages    int      `mapstructure:"max_images"`
}

// JudgesConfig configures the opinion stage.
type JudgesConfig struct {
	Provider     string `mapstructure:"provider"`
	Timeout      string `mapstructure:"timeout"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
	BaseDelay    string `mapstructure:"base_delay"`
	RateLimitRPM int    `mapstructure:"rate_limit_rpm"`
}

// LLMConfig configures the OpenAI-compatible endpoint used by judges and the
// vision inspector.
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	VisionModel string  `mapstructure:"vision_model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// StoreConfig configures verdict history persistence.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// ReportConfig configures report artifacts.
type ReportConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	WatchRubric    bool     `mapstructure:"watch_rubric"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxConcurrent  int      `mapstructure:"max_concurrent"`
}

// DiagnosticsConfig configures crash dumps written when an audit panics.
type DiagnosticsConfig struct {
	CrashDumpDir  string `mapstructure:"crash_dump_dir"`
	MaxCrashDumps int    `mapstructure:"max_crash_dumps"`
	IncludeEnv    bool   `mapstructure:"include_env"`
}

// TimeoutDuration returns the per-attempt producer timeout.
func (c ProducersConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, 2*time.Minute)
}

// BaseDelayDuration returns the producer retry base delay.
func (c ProducersConfig) BaseDelayDuration() time.Duration {
	return parseDurationOr(c.BaseDelay, time.Second)
}

// CloneTimeoutDuration returns the timeout for cloning a remote target.
func (c ProducersConfig) CloneTimeoutDuration() time.Duration {
	return parseDurationOr(c.CloneTimeout, 5*time.Minute)
}

// IsEnabled reports whether a producer is enabled. An empty list enables all.
func (c ProducersConfig) IsEnabled(name string) bool {
	if len(c.Enabled) == 0 {
		return true
	}
	for _, n := range c.Enabled {
		if n == name {
			return true
		}
	}
	return false
}

// TimeoutDuration returns the per-attempt judge timeout.
func (c JudgesConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, 3*time.Minute)
}

// BaseDelayDuration returns the judge retry base delay.
func (c JudgesConfig) BaseDelayDuration() time.Duration {
	return parseDurationOr(c.BaseDelay, 2*time.Second)
}

// HasFormat reports whether the report format is requested.
func (c ReportConfig) HasFormat(format string) bool {
	for _, f := range c.Formats {
		if f == format {
			return true
		}
	}
	return false
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
