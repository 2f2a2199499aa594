package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkflowType(t *testing.T) {
	for _, valid := range []string{"standard", "wow", "test"} {
		wt, err := ParseWorkflowType(valid)
		require.NoError(t, err)
		assert.Equal(t, WorkflowType(valid), wt)
	}

	_, err := ParseWorkflowType("deluxe")
	assert.Error(t, err)
}

func TestPlanWorkflowStandard(t *testing.T) {
	plan, err := PlanWorkflow(WorkflowStandard)
	require.NoError(t, err)
	require.Len(t, plan, 16)
	require.NoError(t, ValidatePlan(plan))

	names := make(map[Phase]bool, len(plan))
	for _, spec := range plan {
		names[spec.Name] = true
	}
	assert.True(t, names[PhaseCreateVideo])
	assert.False(t, names[PhaseCreateWowVideo])

	assert.Equal(t, PhaseFetchTitle, plan[0].Name)
	assert.Equal(t, PhaseFinalize, plan[len(plan)-1].Name)
}

func TestPlanWorkflowWowSwapsRenderPhase(t *testing.T) {
	plan, err := PlanWorkflow(WorkflowWow)
	require.NoError(t, err)
	require.NoError(t, ValidatePlan(plan))

	var validateDeps []Phase
	sawWow := false
	for _, spec := range plan {
		if spec.Name == PhaseCreateWowVideo {
			sawWow = true
		}
		require.NotEqual(t, PhaseCreateVideo, spec.Name)
		if spec.Name == PhaseValidateVideo {
			validateDeps = spec.DependsOn
		}
	}
	assert.True(t, sawWow)
	assert.Equal(t, []Phase{PhaseCreateWowVideo}, validateDeps,
		"downstream dependencies must follow the swapped render phase")
}

func TestPlanWorkflowTestIsShortPath(t *testing.T) {
	plan, err := PlanWorkflow(WorkflowTest)
	require.NoError(t, err)
	require.Len(t, plan, 4)
	require.NoError(t, ValidatePlan(plan))
	assert.Equal(t, PhaseFinalize, plan[3].Name)
	assert.Equal(t, AgentMonitoring, plan[3].Agent)
}

func TestValidatePlanRejectsBadPlans(t *testing.T) {
	tests := []struct {
		name string
		plan []PhaseSpec
	}{
		{
			name: "duplicate phase",
			plan: []PhaseSpec{
				{Name: PhaseFetchTitle, Agent: AgentDataAcquisition},
				{Name: PhaseFetchTitle, Agent: AgentDataAcquisition},
			},
		},
		{
			name: "dependency declared later",
			plan: []PhaseSpec{
				{Name: PhaseScrapeProducts, Agent: AgentDataAcquisition, DependsOn: []Phase{PhaseFetchTitle}},
				{Name: PhaseFetchTitle, Agent: AgentDataAcquisition},
			},
		},
		{
			name: "missing agent",
			plan: []PhaseSpec{
				{Name: PhaseFetchTitle},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidatePlan(tt.plan))
		})
	}
}

func TestParallelGroups(t *testing.T) {
	plan, err := PlanWorkflow(WorkflowStandard)
	require.NoError(t, err)

	groups := ParallelGroups(plan)
	require.NotEmpty(t, groups)

	// The three publish phases share identical dependencies.
	found := false
	for _, g := range groups {
		if len(g) == 3 {
			assert.ElementsMatch(t, []Phase{PhasePublishYouTube, PhasePublishWordPress, PhasePublishInstagram}, g)
			found = true
		}
	}
	assert.True(t, found, "publish phases should form a parallel group")
}

func TestEstimateDurationDiscountsGroups(t *testing.T) {
	plan, err := PlanWorkflow(WorkflowStandard)
	require.NoError(t, err)

	var undiscounted time.Duration
	for _, spec := range plan {
		undiscounted += phaseEstimates[spec.Name]
	}

	est := EstimateDuration(plan)
	assert.Greater(t, est, time.Duration(0))
	assert.Less(t, est, undiscounted)
}

func TestEstimateWowCostsMoreThanStandard(t *testing.T) {
	std, err := PlanWorkflow(WorkflowStandard)
	require.NoError(t, err)
	wow, err := PlanWorkflow(WorkflowWow)
	require.NoError(t, err)

	assert.Greater(t, EstimateDuration(wow), EstimateDuration(std))
}

func TestNewWorkflowID(t *testing.T) {
	a := NewWorkflowID()
	b := NewWorkflowID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "workflow_")
}
