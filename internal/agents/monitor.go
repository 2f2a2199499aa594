package agents

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/reelforge/reelforge/internal/agent"
	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// Per-call collaborator cost guesses in USD, used for the run report's
// cost rollup. Advisory numbers, not billing data.
var costPerCall = map[core.Phase]float64{
	core.PhaseExtractCategory: 0.002,
	core.PhaseScrapeProducts:  0.01,
	core.PhaseGenerateImages:  0.04, // per image
	core.PhaseGenerateText:    0.02,
	core.PhaseGenerateVoice:   0.05,
	core.PhaseCreateVideo:     0.25,
	core.PhaseCreateWowVideo:  0.60,
}

// Monitoring is the cross-cutting agent: it consumes the whole ledger
// at finalize and produces the run report, a host resource snapshot
// and a cost estimate.
type Monitoring struct {
	*agent.Runtime
	log *logging.Logger
}

// NewMonitoring wires the agent and its sub-agents.
func NewMonitoring(b *bus.Bus, log *logging.Logger) *Monitoring {
	rt := agent.New(core.AgentMonitoring, b, log)
	a := &Monitoring{Runtime: rt, log: log.WithAgent(string(core.AgentMonitoring))}

	rt.RegisterSubAgent(&hostMetricsSub{})
	rt.Bind(a)
	return a
}

// ExecuteTask dispatches a phase to its handler.
func (a *Monitoring) ExecuteTask(ctx context.Context, task core.Task) (map[string]any, error) {
	switch task.Phase {
	case core.PhaseFinalize:
		return a.handleFinalize(ctx, task)
	default:
		return nil, errUnroutedPhase(a.ID(), task.Phase)
	}
}

// handleFinalize aggregates the ledger into the final report. The
// host snapshot is best-effort: a failing metrics probe must not fail
// a run that already produced and published a video.
func (a *Monitoring) handleFinalize(ctx context.Context, task core.Task) (map[string]any, error) {
	report := map[string]any{
		"workflow_id":     task.WorkflowID,
		"phases_recorded": len(task.Params),
		"estimated_cost":  a.estimateCost(task),
		"generated_at":    time.Now().Format(time.RFC3339),
	}

	urls := make(map[string]any)
	for _, phase := range []core.Phase{core.PhasePublishYouTube, core.PhasePublishWordPress, core.PhasePublishInstagram} {
		if url, ok := task.Upstream(phase, "url"); ok {
			urls[phase.String()] = url
		}
	}
	if len(urls) > 0 {
		report["published"] = urls
	}
	if count, ok := task.Upstream(core.PhaseValidateProducts, "count"); ok {
		report["product_count"] = count
	}

	host, err := a.Delegate(ctx, subHostMetrics, map[string]any{})
	if err != nil {
		a.log.Warn("host metrics unavailable", "error", err.Error())
	} else {
		report["host"] = host
	}

	return map[string]any{"report": report}, nil
}

// estimateCost sums the advisory per-call guesses for the phases that
// actually ran, scaling the image phase by its batch size.
func (a *Monitoring) estimateCost(task core.Task) float64 {
	var total float64
	for phaseName := range task.Params {
		phase := core.Phase(phaseName)
		cost, ok := costPerCall[phase]
		if !ok {
			continue
		}
		if phase == core.PhaseGenerateImages {
			if count, ok := task.Upstream(phase, "count"); ok {
				if n, ok := count.(int); ok {
					total += cost * float64(n)
					continue
				}
			}
		}
		total += cost
	}
	return total
}

// hostMetricsSub samples CPU and memory so the report can correlate
// slow renders with resource pressure.
type hostMetricsSub struct{}

func (s *hostMetricsSub) Name() string { return subHostMetrics }

func (s *hostMetricsSub) Execute(ctx context.Context, _ map[string]any) (map[string]any, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, core.ErrExternal("HOST_METRICS", "reading memory stats").WithCause(err)
	}

	out := map[string]any{
		"mem_total_mb":     vm.Total / (1 << 20),
		"mem_used_percent": vm.UsedPercent,
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		out["cpu_percent"] = percents[0]
	}
	return out, nil
}

// Ensure every domain agent satisfies the executor contract.
var (
	_ agent.Executor = (*DataAcquisition)(nil)
	_ agent.Executor = (*ContentGeneration)(nil)
	_ agent.Executor = (*VideoProduction)(nil)
	_ agent.Executor = (*Publishing)(nil)
	_ agent.Executor = (*Monitoring)(nil)
)
