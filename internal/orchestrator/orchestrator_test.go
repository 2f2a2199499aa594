package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/agents"
	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
	"github.com/reelforge/reelforge/internal/metrics"
	"github.com/reelforge/reelforge/internal/state"
	"github.com/reelforge/reelforge/internal/testutil"
)

func newTestOrchestrator(t *testing.T, collab core.Collaborators) (*Orchestrator, string) {
	t.Helper()
	log := logging.NewNop()
	b := bus.New(log, 256)
	dir := t.TempDir()

	orch := New(b, log, dir, WithMetrics(metrics.New()))
	for _, a := range []AgentRunner{
		agents.NewDataAcquisition(b, log, collab),
		agents.NewContentGeneration(b, log, collab),
		agents.NewVideoProduction(b, log, collab),
		agents.NewPublishing(b, log, collab, agents.AllPlatforms()),
		agents.NewMonitoring(b, log),
	} {
		require.NoError(t, orch.Register(a))
	}

	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return orch, dir
}

func TestStandardWorkflowRunsEndToEnd(t *testing.T) {
	orch, dir := newTestOrchestrator(t, testutil.Happy())

	report, err := orch.ExecuteWorkflow(context.Background(), core.WorkflowStandard)
	require.NoError(t, err)
	require.True(t, report.Success)
	assert.Equal(t, 16, report.Summary.Total)
	assert.Equal(t, 16, report.Summary.Completed)
	assert.Zero(t, report.Summary.Failed)

	// The ledger carries each phase's output forward.
	assert.Contains(t, report.Results["validate_video"]["video_path"], "standard")
	assert.Contains(t, report.Results, "publish_youtube")
	assert.Contains(t, report.Results, "finalize")

	// State survives the run on disk.
	ps, err := state.LoadState(dir, report.WorkflowID)
	require.NoError(t, err)
	require.NotNil(t, ps)
	assert.Equal(t, core.PhaseStatusCompleted, ps.Phases[core.PhaseFinalize].Status)
}

func TestWowWorkflowUsesWowTemplate(t *testing.T) {
	orch, _ := newTestOrchestrator(t, testutil.Happy())

	report, err := orch.ExecuteWorkflow(context.Background(), core.WorkflowWow)
	require.NoError(t, err)
	require.True(t, report.Success)
	assert.Contains(t, report.Results, "create_wow_video")
	assert.NotContains(t, report.Results, "create_video")
	assert.Contains(t, report.Results["validate_video"]["video_path"], "wow")
}

func TestTestWorkflowRunsShortPath(t *testing.T) {
	orch, _ := newTestOrchestrator(t, testutil.Happy())

	report, err := orch.ExecuteWorkflow(context.Background(), core.WorkflowTest)
	require.NoError(t, err)
	require.True(t, report.Success)
	assert.Equal(t, 4, report.Summary.Total)
	assert.NotContains(t, report.Results, "generate_images")
}

func TestFailedPhaseAbortsRun(t *testing.T) {
	collab := testutil.Happy()
	collab.Searcher = testutil.FailingSearcher{}
	orch, dir := newTestOrchestrator(t, collab)

	report, err := orch.ExecuteWorkflow(context.Background(), core.WorkflowStandard)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.False(t, report.Success)
	assert.Equal(t, core.PhaseScrapeProducts, report.FailedAt)
	assert.Equal(t, 1, report.Summary.Failed)

	// Downstream phases never started.
	assert.NotContains(t, report.Results, "validate_products")
	assert.NotContains(t, report.Results, "generate_images")

	// The failure is persisted.
	ps, loadErr := state.LoadState(dir, report.WorkflowID)
	require.NoError(t, loadErr)
	require.NotNil(t, ps)
	assert.Equal(t, core.PhaseStatusFailed, ps.Phases[core.PhaseScrapeProducts].Status)
	assert.NotContains(t, ps.Phases, core.PhaseGenerateImages)
}

func TestJunkProductsFailValidationPhase(t *testing.T) {
	collab := testutil.Happy()
	collab.Searcher = testutil.JunkSearcher{}
	orch, _ := newTestOrchestrator(t, collab)

	report, err := orch.ExecuteWorkflow(context.Background(), core.WorkflowStandard)
	require.Error(t, err)
	assert.Equal(t, core.PhaseValidateProducts, report.FailedAt)
	assert.ErrorIs(t, err, &core.DomainError{Category: core.ErrCatValidation, Code: core.CodeNoProducts})
}

func TestUnregisteredAgentGetsPlaceholder(t *testing.T) {
	log := logging.NewNop()
	b := bus.New(log, 64)
	orch := New(b, log, t.TempDir())
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	// No agents registered: every phase completes with a placeholder.
	report, err := orch.ExecuteWorkflow(context.Background(), core.WorkflowTest)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 4, report.Summary.Completed)
	assert.Equal(t, true, report.Results["fetch_title"]["skipped"])
}

func TestRegisterRejectsDuplicateAgent(t *testing.T) {
	log := logging.NewNop()
	b := bus.New(log, 64)
	orch := New(b, log, t.TempDir())

	a := agents.NewMonitoring(b, log)
	require.NoError(t, orch.Register(a))
	assert.Error(t, orch.Register(agents.NewMonitoring(b, log)))
}

func TestExecuteWorkflowRejectsUnknownType(t *testing.T) {
	log := logging.NewNop()
	orch := New(bus.New(log, 64), log, t.TempDir())

	_, err := orch.ExecuteWorkflow(context.Background(), core.WorkflowType("deluxe"))
	assert.Error(t, err)
}

func TestGetWorkflowStatusFromDisk(t *testing.T) {
	orch, _ := newTestOrchestrator(t, testutil.Happy())

	report, err := orch.ExecuteWorkflow(context.Background(), core.WorkflowTest)
	require.NoError(t, err)

	summary, ok, err := orch.GetWorkflowStatus(report.WorkflowID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.WorkflowID, summary.WorkflowID)
	assert.Equal(t, 4, summary.Completed)

	_, ok, err = orch.GetWorkflowStatus("workflow_unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelledContextStopsRun(t *testing.T) {
	orch, _ := newTestOrchestrator(t, testutil.Happy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := orch.ExecuteWorkflow(ctx, core.WorkflowStandard)
	require.Error(t, err)
	assert.False(t, report.Success)
	assert.Zero(t, report.Summary.Completed)
}

func TestOutOfOrderPlanFailsDependentPhase(t *testing.T) {
	log := logging.NewNop()
	orch := New(bus.New(log, 64), log, t.TempDir())

	mgr := orch.newStateManager("workflow_plan_test")
	defer mgr.Close()

	// scrape_products is scheduled before the fetch_title it depends on.
	plan := []core.PhaseSpec{
		{Name: core.PhaseScrapeProducts, Agent: core.AgentDataAcquisition, DependsOn: []core.Phase{core.PhaseFetchTitle}},
		{Name: core.PhaseFetchTitle, Agent: core.AgentDataAcquisition},
	}
	ledger := make(map[string]map[string]any)

	failedAt, err := orch.runPlan(context.Background(), log, mgr, plan, "workflow_plan_test", ledger)
	require.Error(t, err)
	assert.ErrorIs(t, err, &core.DomainError{Category: core.ErrCatDependency, Code: core.CodeDependencyNotMet})
	assert.Equal(t, core.PhaseScrapeProducts, failedAt)

	// The dependent phase is recorded as failed; nothing else ran.
	ps, ok := mgr.PhaseState(core.PhaseScrapeProducts)
	require.True(t, ok)
	assert.Equal(t, core.PhaseStatusFailed, ps.Status)
	assert.Empty(t, ledger)
}

func TestHistoryCapReachesStateManager(t *testing.T) {
	log := logging.NewNop()
	orch := New(bus.New(log, 64), log, t.TempDir(), WithHistoryCap(2))

	mgr := orch.newStateManager("workflow_cap_test")
	defer mgr.Close()

	for i := 0; i < 5; i++ {
		mgr.StartPhase(core.PhaseFetchTitle)
		mgr.CompletePhase(core.PhaseFetchTitle, map[string]any{"round": i})
	}
	assert.Len(t, mgr.History(), 2)
}

func TestEstimateDuration(t *testing.T) {
	log := logging.NewNop()
	orch := New(bus.New(log, 64), log, t.TempDir())

	std, err := orch.EstimateDuration(core.WorkflowStandard)
	require.NoError(t, err)
	assert.Greater(t, std, time.Duration(0))

	wow, err := orch.EstimateDuration(core.WorkflowWow)
	require.NoError(t, err)
	assert.Greater(t, wow, std)

	_, err = orch.EstimateDuration(core.WorkflowType("nope"))
	assert.Error(t, err)
}
