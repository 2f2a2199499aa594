package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/reelforge/reelforge/internal/api"
	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/metrics"
)

var serveDryRun bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status API and the scheduled poller",
	Long: `Serve exposes workflow state and Prometheus metrics over HTTP. With
the scheduler enabled it also polls for pending records on a cron
schedule and runs a workflow for each.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false,
		"use stub collaborators instead of external services")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(log, cfg.State.Dir, met, cfg.Server.AllowedOrigins).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfgFile != "" {
		err := config.Watch(cfgFile, func(fresh *config.Config, err error) {
			if err != nil {
				log.Warn("ignoring config reload", "error", err.Error())
				return
			}
			log.Info("config reloaded", "log_level", fresh.Log.Level)
		})
		if err != nil {
			log.Warn("config watch unavailable", "error", err.Error())
		}
	}

	var scheduler *cron.Cron
	if cfg.Scheduler.Enabled {
		orch := buildOrchestrator(cfg, log, met, serveDryRun)
		orch.Start(ctx)
		defer orch.Stop()

		wt, err := core.ParseWorkflowType(cfg.Workflow.DefaultType)
		if err != nil {
			return err
		}

		scheduler = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		_, err = scheduler.AddFunc(cfg.Scheduler.Cron, func() {
			runCtx, cancel := context.WithTimeout(ctx, cfg.Workflow.Timeout)
			defer cancel()
			if _, err := orch.ExecuteWorkflow(runCtx, wt); err != nil {
				log.Error("scheduled run failed", "error", err.Error())
			}
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		log.Info("scheduler started", "cron", cfg.Scheduler.Cron, "type", string(wt))
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err.Error())
	}
	log.Info("serve stopped")
	return nil
}
