package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "TRIBUNAL",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "TRIBUNAL",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (TRIBUNAL_*)
// 3. Project config (.tribunal/config.yaml in current directory)
// 4. User config (~/.config/tribunal/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// Provider keys are commonly exported without our prefix.
	_ = l.v.BindEnv("llm.api_key", l.envPrefix+"_LLM_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY")

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")

		// First found wins, so project config shadows user config.
		l.v.AddConfigPath(".tribunal")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "tribunal"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Rubric defaults (empty path = embedded rubric)
	l.v.SetDefault("rubric.path", "")

	// Evidence stage defaults
	l.v.SetDefault("producers.enabled", []string{"repo", "doc", "vision"})
	l.v.SetDefault("producers.timeout", "2m")
	l.v.SetDefault("producers.max_attempts", 2)
	l.v.SetDefault("producers.base_delay", "1s")
	l.v.SetDefault("producers.clone_depth", 50)
	l.v.SetDefault("producers.clone_timeout", "5m")
	l.v.SetDefault("producers.concepts", []string{
		"Dialectical Synthesis", "Fan-In", "Metacognition", "State Synchronization",
	})
	l.v.SetDefault("producers.max_images", 2)

	// Opinion stage defaults
	l.v.SetDefault("judges.provider", "openai")
	l.v.SetDefault("judges.timeout", "3m")
	l.v.SetDefault("judges.max_attempts", 2)
	l.v.SetDefault("judges.base_delay", "2s")
	l.v.SetDefault("judges.rate_limit_rpm", 30)

	// LLM defaults (OpenRouter speaks the OpenAI protocol)
	l.v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	l.v.SetDefault("llm.model", "openai/gpt-4o-mini")
	l.v.SetDefault("llm.vision_model", "google/gemini-2.0-flash-001")
	l.v.SetDefault("llm.temperature", 0.2)
	l.v.SetDefault("llm.max_tokens", 4096)

	// Store defaults (unified under .tribunal/)
	l.v.SetDefault("store.enabled", true)
	l.v.SetDefault("store.backend", "sqlite")
	l.v.SetDefault("store.path", ".tribunal/history.db")

	// Report defaults
	l.v.SetDefault("report.dir", ".tribunal/reports")
	l.v.SetDefault("report.formats", []string{"json", "markdown"})

	// Server defaults
	l.v.SetDefault("server.addr", "127.0.0.1:8089")
	l.v.SetDefault("server.watch_rubric", false)
	l.v.SetDefault("server.allowed_origins", []string{"http://localhost:*", "http://127.0.0.1:*"})
	l.v.SetDefault("server.max_concurrent", 2)

	// Diagnostics defaults
	l.v.SetDefault("diagnostics.crash_dump_dir", ".tribunal/crashdumps")
	l.v.SetDefault("diagnostics.max_crash_dumps", 10)
	l.v.SetDefault("diagnostics.include_env", false)
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}
