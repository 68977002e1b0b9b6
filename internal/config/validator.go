package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// KnownProducers lists the evidence producers that can be enabled.
var KnownProducers = []string{"repo", "doc", "vision"}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateProducers(&cfg.Producers)
	v.validateJudges(&cfg.Judges)
	v.validateLLM(&cfg.LLM, cfg.Judges.Provider)
	v.validateStore(&cfg.Store)
	v.validateReport(&cfg.Report)
	v.validateServer(&cfg.Server)
	v.validateDiagnostics(&cfg.Diagnostics)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
	for i, p := range cfg.Redact {
		if _, err := regexp.Compile(p); err != nil {
			v.addError(fmt.Sprintf("log.redact[%d]", i), p, "invalid pattern: "+err.Error())
		}
	}
}

func (v *Validator) validateProducers(cfg *ProducersConfig) {
	known := make(map[string]bool, len(KnownProducers))
	for _, p := range KnownProducers {
		known[p] = true
	}
	for _, p := range cfg.Enabled {
		if !known[p] {
			v.addError("producers.enabled", p, "unknown producer (want: "+strings.Join(KnownProducers, ", ")+")")
		}
	}

	v.validateDuration("producers.timeout", cfg.Timeout)
	v.validateDuration("producers.base_delay", cfg.BaseDelay)
	v.validateDuration("producers.clone_timeout", cfg.CloneTimeout)

	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 10 {
		v.addError("producers.max_attempts", cfg.MaxAttempts, "must be between 1 and 10")
	}
	if cfg.CloneDepth < 0 {
		v.addError("producers.clone_depth", cfg.CloneDepth, "must be non-negative")
	}
	if cfg.MaxImages < 0 {
		v.addError("producers.max_images", cfg.MaxImages, "must be non-negative")
	}
}

func (v *Validator) validateJudges(cfg *JudgesConfig) {
	validProviders := map[string]bool{
		"openai": true, "heuristic": true,
	}
	if !validProviders[cfg.Provider] {
		v.addError("judges.provider", cfg.Provider, "must be one of: openai, heuristic")
	}

	v.validateDuration("judges.timeout", cfg.Timeout)
	v.validateDuration("judges.base_delay", cfg.BaseDelay)

	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 10 {
		v.addError("judges.max_attempts", cfg.MaxAttempts, "must be between 1 and 10")
	}
	if cfg.RateLimitRPM < 0 {
		v.addError("judges.rate_limit_rpm", cfg.RateLimitRPM, "must be non-negative")
	}
}

func (v *Validator) validateLLM(cfg *LLMConfig, provider string) {
	if cfg.BaseURL != "" {
		if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			v.addError("llm.base_url", cfg.BaseURL, "must be an absolute URL")
		}
	}

	if provider == "openai" {
		if strings.TrimSpace(cfg.Model) == "" {
			v.addError("llm.model", cfg.Model, "model required for the openai provider")
		}
	}

	if cfg.MaxTokens < 0 || cfg.MaxTokens > 200000 {
		v.addError("llm.max_tokens", cfg.MaxTokens, "must be between 0 and 200000")
	}

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		v.addError("llm.temperature", cfg.Temperature, "must be between 0 and 2")
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	if cfg.Enabled && cfg.Path == "" {
		v.addError("store.path", cfg.Path, "path required when enabled")
	}
	switch cfg.Backend {
	case "", "sqlite", "json":
	default:
		v.addError("store.backend", cfg.Backend, "must be sqlite or json")
	}
}

func (v *Validator) validateReport(cfg *ReportConfig) {
	if cfg.Dir == "" {
		v.addError("report.dir", cfg.Dir, "directory required")
	} else if !isValidPath(cfg.Dir) {
		v.addError("report.dir", cfg.Dir, "invalid directory path")
	}

	validFormats := map[string]bool{"json": true, "markdown": true}
	for _, f := range cfg.Formats {
		if !validFormats[f] {
			v.addError("report.formats", f, "must be one of: json, markdown")
		}
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "address required")
	}
	if cfg.MaxConcurrent < 1 {
		v.addError("server.max_concurrent", cfg.MaxConcurrent, "must be at least 1")
	}
}

func (v *Validator) validateDiagnostics(cfg *DiagnosticsConfig) {
	if cfg.MaxCrashDumps < 0 {
		v.addError("diagnostics.max_crash_dumps", cfg.MaxCrashDumps, "must not be negative")
	}
	if cfg.CrashDumpDir != "" && !isValidPath(cfg.CrashDumpDir) {
		v.addError("diagnostics.crash_dump_dir", cfg.CrashDumpDir, "invalid directory path")
	}
}

func (v *Validator) validateDuration(field, value string) {
	if _, err := time.ParseDuration(value); err != nil {
		v.addError(field, value, "invalid duration format")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
// Failures are returned as a configuration DomainError wrapping the ValidationErrors.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		return core.ErrConfiguration("config", err.Error()).WithCause(err)
	}
	return nil
}
