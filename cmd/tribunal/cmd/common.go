package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/detective"
	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/llm"
	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/tribunal/internal/config"
	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/tribunal/internal/events"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
	"github.com/hugo-lorenzo-mato/tribunal/internal/rubric"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service/report"
	"github.com/hugo-lorenzo-mato/tribunal/internal/service/workflow"
	"github.com/hugo-lorenzo-mato/tribunal/internal/tui"
)

// loadConfig loads and validates the unified configuration using the global
// viper instance, so flag bindings take precedence.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger creates the logger from the log section. The returned closer
// releases the log file, if one is configured.
func newLogger(cfg *config.Config) (*logging.Logger, func(), error) {
	level := cfg.Log.Level
	if quiet {
		level = "error"
	}
	lc := logging.Config{Level: level, Format: cfg.Log.Format, Output: os.Stderr, Redact: cfg.Log.Redact}
	closer := func() {}
	if cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		lc.Output = f
		closer = func() { _ = f.Close() }
	}
	return logging.New(lc), closer, nil
}

// loadRubric loads the rubric at path, or the embedded default when empty.
func loadRubric(path string) (*core.Rubric, error) {
	if path == "" {
		return rubric.Default()
	}
	return rubric.Load(path)
}

// openStore opens the verdict history, or returns nil when it is disabled.
func openStore(cfg *config.Config) (core.VerdictStore, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	store, err := state.NewVerdictStoreWithOptions(cfg.Store.Path, state.StoreOptions{Backend: cfg.Store.Backend})
	if err != nil {
		return nil, fmt.Errorf("opening verdict store: %w", err)
	}
	return store, nil
}

// requireStore opens the history for commands that only read it.
func requireStore(cfg *config.Config) (core.VerdictStore, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, core.ErrConfiguration("store.enabled", "verdict history is disabled")
	}
	return store, nil
}

// outputRenderer resolves the output mode from --output, --quiet and the
// terminal, and a renderer matching it.
func outputRenderer() (tui.OutputMode, *tui.Renderer) {
	out := tui.Resolve(tui.Preferences{Output: output, Quiet: quiet, NoColor: noColor}, tui.Stdout())
	return out.Mode, tui.NewRenderer(out.Color, out.Width)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// AuditOptions are the per-invocation overrides of the configuration.
type AuditOptions struct {
	Offline   bool
	ReportDir string
}

// AuditDeps holds everything runners are assembled from. `run` builds one
// runner; `serve` builds one per submitted audit from the current rubric.
type AuditDeps struct {
	Config    *config.Config
	Logger    *logging.Logger
	Store     core.VerdictStore
	Bus       *events.EventBus
	Reports   *report.Writer
	Snapshots *detective.Materializer
	Producers []core.EvidenceProducer
	Providers *llm.Providers
	Crashes   *diagnostics.CrashDumpWriter

	producerRetry *service.RetryPolicy
	judgeRetry    *service.RetryPolicy
	judgeLimits   *service.RateLimiterRegistry
}

// InitAuditDeps wires producers, opinion providers, retry policies, the
// verdict store and the report writer from the configuration.
func InitAuditDeps(cfg *config.Config, logger *logging.Logger, opts AuditOptions) (*AuditDeps, error) {
	prompts, err := service.NewPromptRenderer()
	if err != nil {
		return nil, fmt.Errorf("creating prompt renderer: %w", err)
	}
	llmCfg := llm.ConfigFromSettings(cfg.LLM)

	providers, err := llm.NewProviders(llmCfg, cfg.Judges.Provider, opts.Offline, prompts, logger)
	if err != nil {
		return nil, err
	}

	var producers []core.EvidenceProducer
	if cfg.Producers.IsEnabled("repo") {
		producers = append(producers, detective.NewRepoInvestigator())
	}
	if cfg.Producers.IsEnabled("doc") {
		producers = append(producers, detective.NewDocAnalyst(detective.WithConcepts(cfg.Producers.Concepts...)))
	}
	if cfg.Producers.IsEnabled("vision") {
		var describer detective.ImageDescriber
		if !opts.Offline && llmCfg.APIKey != "" {
			d, err := llm.NewVisionDescriber(llmCfg, prompts,
				llm.WithVisionConcepts(cfg.Producers.Concepts...),
				llm.WithVisionLogger(logger))
			if err != nil {
				return nil, err
			}
			describer = d
		}
		producers = append(producers, detective.NewVisionInspector(describer, detective.WithMaxImages(cfg.Producers.MaxImages)))
	}

	reportCfg := report.Config{Dir: cfg.Report.Dir, Formats: cfg.Report.Formats}
	if opts.ReportDir != "" {
		reportCfg.Dir = opts.ReportDir
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	d := &AuditDeps{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Bus:     events.New(100),
		Reports: report.NewWriter(reportCfg),
		Snapshots: detective.NewMaterializer(
			detective.WithCloneDepth(cfg.Producers.CloneDepth),
			detective.WithCloneTimeout(cfg.Producers.CloneTimeoutDuration()),
			detective.WithMaterializerLogger(logger),
		),
		Producers: producers,
		Providers: providers,
		Crashes: diagnostics.NewCrashDumpWriter(
			cfg.Diagnostics.CrashDumpDir,
			cfg.Diagnostics.MaxCrashDumps,
			cfg.Diagnostics.IncludeEnv,
			logger,
		),
		producerRetry: service.NewRetryPolicy(
			service.WithMaxAttempts(cfg.Producers.MaxAttempts),
			service.WithBaseDelay(cfg.Producers.BaseDelayDuration()),
			service.WithTimeout(cfg.Producers.TimeoutDuration()),
			service.WithOnRetry(retryLogger(logger, "producer")),
		),
		judgeRetry: service.NewRetryPolicy(
			service.WithMaxAttempts(cfg.Judges.MaxAttempts),
			service.WithBaseDelay(cfg.Judges.BaseDelayDuration()),
			service.WithTimeout(cfg.Judges.TimeoutDuration()),
			service.WithOnRetry(retryLogger(logger, "judge")),
		),
	}
	// One bucket per backend, shared by every runner these deps build. The
	// heuristic judge never leaves the process.
	d.judgeLimits = service.NewRateLimiterRegistry(service.PerMinute(cfg.Judges.RateLimitRPM))
	d.judgeLimits.SetConfig(llm.ProviderHeuristic, service.RateLimiterConfig{})
	return d, nil
}

// NewRunner builds a runner for one audit under rb. It matches
// api.RunnerFactory.
func (d *AuditDeps) NewRunner(rb *core.Rubric) (*workflow.Runner, error) {
	b := workflow.NewRunnerBuilder().
		WithRubric(rb).
		WithProducers(d.Producers...).
		WithProvider(workflow.DefaultProvider, d.Providers.DefaultProvider()).
		WithProducerRetry(d.producerRetry).
		WithJudgeRetry(d.judgeRetry).
		WithJudgeLimiters(d.judgeLimits).
		WithSnapshots(d.Snapshots).
		WithReports(d.Reports).
		WithEventBus(d.Bus).
		WithMetrics(service.NewMetricsCollector()).
		WithLogger(d.Logger)
	for name, p := range d.Providers.ByName {
		b.WithProvider(name, p)
	}
	if d.Store != nil {
		b.WithStore(d.Store)
	}
	return b.Build()
}

// Close releases the store and the event bus.
func (d *AuditDeps) Close() {
	if err := state.CloseStore(d.Store); err != nil {
		d.Logger.Warn("closing verdict store", "error", err)
	}
	d.Bus.Close()
}

func retryLogger(logger *logging.Logger, kind string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		logger.Warn("retrying "+kind+" call", "attempt", attempt, "wait", wait.Round(time.Millisecond), "error", err)
	}
}
