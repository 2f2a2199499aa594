package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reelforge/reelforge/internal/adapters/record"
	"github.com/reelforge/reelforge/internal/adapters/stub"
	"github.com/reelforge/reelforge/internal/agents"
	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
	"github.com/reelforge/reelforge/internal/metrics"
	"github.com/reelforge/reelforge/internal/orchestrator"
)

var (
	runType   string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one workflow run",
	Long: `Run executes a single workflow of the given type and waits for it
to finish. The test type exercises data acquisition only; dry runs use
in-process stub collaborators throughout.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runType, "type", "t", "",
		"workflow type (standard, wow, test); defaults to workflow.default_type")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false,
		"use stub collaborators instead of external services")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	typeName := runType
	if typeName == "" {
		typeName = cfg.Workflow.DefaultType
	}
	wt, err := core.ParseWorkflowType(typeName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Workflow.Timeout)
	defer cancel()

	orch := buildOrchestrator(cfg, log, metrics.New(), runDryRun)
	orch.Start(ctx)
	defer orch.Stop()

	report, err := orch.ExecuteWorkflow(ctx, wt)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return errInterrupted
		}
		if report != nil {
			fmt.Fprintf(os.Stderr, "workflow %s failed at %s after %s\n",
				report.WorkflowID, report.FailedAt, report.Duration.Round(timeRound))
		}
		return err
	}

	fmt.Printf("workflow %s completed in %s (%d/%d phases)\n",
		report.WorkflowID, report.Duration.Round(timeRound),
		report.Summary.Completed, report.Summary.Total)
	return nil
}

// buildOrchestrator wires the bus, metrics, collaborators and the five
// agents into a ready-to-start orchestrator.
func buildOrchestrator(cfg *config.Config, log *logging.Logger, met *metrics.Metrics, dryRun bool) *orchestrator.Orchestrator {
	b := bus.New(log, 256)
	met.TrackBus(b.Delivered, b.Dropped)

	collab := buildCollaborators(cfg, log, dryRun)

	orch := orchestrator.New(b, log, cfg.State.Dir,
		orchestrator.WithMetrics(met),
		orchestrator.WithHistoryCap(cfg.State.HistoryCap))
	for _, a := range []orchestrator.AgentRunner{
		agents.NewDataAcquisition(b, log, collab),
		agents.NewContentGeneration(b, log, collab),
		agents.NewVideoProduction(b, log, collab),
		agents.NewPublishing(b, log, collab, agents.PublishTargets{
			YouTube:   cfg.Publish.YouTube,
			WordPress: cfg.Publish.WordPress,
			Instagram: cfg.Publish.Instagram,
		}),
		agents.NewMonitoring(b, log),
	} {
		if err := orch.Register(a); err != nil {
			log.Error("registering agent", "error", err.Error())
		}
	}
	return orch
}

// buildCollaborators starts from the stub bundle and swaps in real
// adapters where configuration provides them. Dry runs stay fully
// stubbed.
func buildCollaborators(cfg *config.Config, log *logging.Logger, dryRun bool) core.Collaborators {
	collab := stub.Collaborators()
	if dryRun {
		return collab
	}
	if cfg.Records.BaseURL != "" {
		collab.Records = record.New(cfg.Records.BaseURL, cfg.Records.APIKey,
			cfg.Records.Table, cfg.Records.Timeout, log)
	}
	return collab
}
