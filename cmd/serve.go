package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tikun-labs/sefirot-cli/internal/jobs"
	"github.com/tikun-labs/sefirot-cli/internal/monitoring"
	"github.com/tikun-labs/sefirot-cli/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis job server",
	Long: "Serves the job API: submit scenarios, poll progress, fetch results, " +
		"and read health metrics over recent runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAnalysis(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		// Each job gets its own orchestrator so progress callbacks stay
		// scoped to the job.
		manager := jobs.NewManager(func(progress pipeline.ProgressFunc) (jobs.Runner, error) {
			return env.orchestrator(pipeline.WithProgress(progress))
		})

		collector := monitoring.NewCollector(env.Store)
		server := jobs.NewServer(manager,
			jobs.WithMetrics(collector, cfg.Monitoring.LookbackHours),
			jobs.WithMinScenarioLength(cfg.Server.MinScenarioLength),
		)

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
			zap.L().Info("health checks enabled",
				zap.Int("interval_secs", cfg.Monitoring.CheckIntervalSecs))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.Routes(),
		}

		// Graceful shutdown: stop taking jobs, wait out running ones up to
		// the grace period, then close the listener.
		go func() {
			<-ctx.Done()
			grace := time.Duration(cfg.Server.ShutdownGraceSecs) * time.Second
			zap.L().Info("shutting down server", zap.Duration("grace", grace))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			if err := manager.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("jobs did not finish before shutdown deadline", zap.Error(err))
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
