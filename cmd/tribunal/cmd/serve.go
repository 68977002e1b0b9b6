package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/tribunal/internal/api"
	"github.com/hugo-lorenzo-mato/tribunal/internal/rubric"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the tribunal HTTP API.

Audits are submitted with POST /api/v1/audits and run in the background,
at most server.max_concurrent at a time. Past audits are read from the
verdict history and run events are streamed at /api/v1/events.

Examples:
  # Start with defaults (127.0.0.1:8089)
  tribunal serve

  # Reload the rubric whenever its file changes
  tribunal serve --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr    string
	serveWatch   bool
	serveOffline bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload the rubric file when it changes")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "use the heuristic judge and skip the vision model")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	rb, err := loadRubric(cfg.Rubric.Path)
	if err != nil {
		return err
	}

	deps, err := InitAuditDeps(cfg, logger, AuditOptions{Offline: serveOffline})
	if err != nil {
		return err
	}
	defer deps.Close()

	// Fail fast on wiring problems instead of on the first submission.
	if _, err := deps.NewRunner(rb); err != nil {
		return err
	}

	srvCfg := api.DefaultConfig()
	srvCfg.Addr = cfg.Server.Addr
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	}
	srvCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	srvCfg.MaxConcurrent = cfg.Server.MaxConcurrent

	opts := []api.ServerOption{
		api.WithEventBus(deps.Bus),
		api.WithCrashDumps(deps.Crashes),
		api.WithLogger(logger),
	}
	if deps.Store != nil {
		opts = append(opts, api.WithStore(deps.Store))
	}
	server := api.New(srvCfg, rb, deps.NewRunner, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps.Crashes.SetArgs(os.Args[1:])
	deps.Crashes.Track(ctx, deps.Bus)

	if serveWatch || cfg.Server.WatchRubric {
		if cfg.Rubric.Path == "" {
			logger.Warn("rubric watch requested but rubric.path is empty; using the embedded rubric")
		} else {
			watcher, err := api.NewRubricWatcher(cfg.Rubric.Path, rubric.Load, server.SetRubric, logger)
			if err != nil {
				return err
			}
			go watcher.Run(ctx)
			logger.Info("watching rubric", "path", cfg.Rubric.Path)
		}
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	logger.Info("server started", "addr", server.Addr(), "rubric", rb.Name)

	<-ctx.Done()
	logger.Info("shutting down server...")

	if err := server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
