package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowType selects which phase plan a run executes.
type WorkflowType string

const (
	// WorkflowStandard renders the regular video template.
	WorkflowStandard WorkflowType = "standard"

	// WorkflowWow renders the high-production template instead.
	WorkflowWow WorkflowType = "wow"

	// WorkflowTest is a short path exercising data acquisition only.
	WorkflowTest WorkflowType = "test"
)

// ParseWorkflowType converts a string to a WorkflowType with validation.
func ParseWorkflowType(s string) (WorkflowType, error) {
	switch WorkflowType(s) {
	case WorkflowStandard, WorkflowWow, WorkflowTest:
		return WorkflowType(s), nil
	default:
		return "", fmt.Errorf("invalid workflow type: %s (want standard, wow or test)", s)
	}
}

// PhaseSpec declares one phase of a plan: the agent that owns it and
// the phases that must be completed before it may start.
type PhaseSpec struct {
	Name      Phase
	Agent     AgentID
	DependsOn []Phase
}

// NewWorkflowID allocates a fresh run identifier.
func NewWorkflowID() string {
	return fmt.Sprintf("workflow_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}

// PlanWorkflow returns the ordered phase list for a workflow type.
// The order is a topological order of the dependency graph by
// construction; the driver checks dependencies explicitly anyway.
func PlanWorkflow(wt WorkflowType) ([]PhaseSpec, error) {
	switch wt {
	case WorkflowStandard:
		return fullPlan(PhaseCreateVideo), nil
	case WorkflowWow:
		return fullPlan(PhaseCreateWowVideo), nil
	case WorkflowTest:
		return []PhaseSpec{
			{Name: PhaseFetchTitle, Agent: AgentDataAcquisition},
			{Name: PhaseScrapeProducts, Agent: AgentDataAcquisition, DependsOn: []Phase{PhaseFetchTitle}},
			{Name: PhaseValidateProducts, Agent: AgentDataAcquisition, DependsOn: []Phase{PhaseScrapeProducts}},
			{Name: PhaseFinalize, Agent: AgentMonitoring, DependsOn: []Phase{PhaseValidateProducts}},
		}, nil
	default:
		return nil, fmt.Errorf("no plan for workflow type %q", wt)
	}
}

// fullPlan builds the 16-phase production plan. The render phase name
// is the only difference between standard and wow runs; downstream
// dependencies follow whichever was chosen.
func fullPlan(render Phase) []PhaseSpec {
	return []PhaseSpec{
		{Name: PhaseFetchTitle, Agent: AgentDataAcquisition},
		{Name: PhaseExtractCategory, Agent: AgentDataAcquisition, DependsOn: []Phase{PhaseFetchTitle}},
		{Name: PhaseScrapeProducts, Agent: AgentDataAcquisition, DependsOn: []Phase{PhaseExtractCategory}},
		{Name: PhaseValidateProducts, Agent: AgentDataAcquisition, DependsOn: []Phase{PhaseScrapeProducts}},
		{Name: PhaseGenerateImages, Agent: AgentContent, DependsOn: []Phase{PhaseValidateProducts}},
		{Name: PhaseGenerateText, Agent: AgentContent, DependsOn: []Phase{PhaseValidateProducts}},
		{Name: PhaseGenerateVoice, Agent: AgentContent, DependsOn: []Phase{PhaseGenerateText}},
		{Name: PhaseValidateContent, Agent: AgentContent, DependsOn: []Phase{PhaseGenerateImages, PhaseGenerateText, PhaseGenerateVoice}},
		{Name: PhaseUploadAssets, Agent: AgentVideo, DependsOn: []Phase{PhaseValidateContent}},
		{Name: render, Agent: AgentVideo, DependsOn: []Phase{PhaseValidateContent}},
		{Name: PhaseValidateVideo, Agent: AgentVideo, DependsOn: []Phase{render}},
		{Name: PhasePublishYouTube, Agent: AgentPublishing, DependsOn: []Phase{PhaseValidateVideo, PhaseUploadAssets}},
		{Name: PhasePublishWordPress, Agent: AgentPublishing, DependsOn: []Phase{PhaseValidateVideo, PhaseUploadAssets}},
		{Name: PhasePublishInstagram, Agent: AgentPublishing, DependsOn: []Phase{PhaseValidateVideo, PhaseUploadAssets}},
		{Name: PhaseUpdateRecord, Agent: AgentPublishing, DependsOn: []Phase{PhasePublishYouTube, PhasePublishWordPress, PhasePublishInstagram}},
		{Name: PhaseFinalize, Agent: AgentMonitoring, DependsOn: []Phase{PhaseUpdateRecord}},
	}
}

// ValidatePlan checks that a plan is internally consistent: unique
// phase names, every dependency declared earlier in the list, and an
// owning agent on every phase. Called at orchestrator construction so
// a bad plan fails fast instead of mid-run.
func ValidatePlan(plan []PhaseSpec) error {
	seen := make(map[Phase]bool, len(plan))
	for _, spec := range plan {
		if spec.Agent == "" {
			return fmt.Errorf("phase %s has no owning agent", spec.Name)
		}
		if seen[spec.Name] {
			return fmt.Errorf("phase %s declared twice", spec.Name)
		}
		for _, dep := range spec.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("phase %s depends on %s which is not declared earlier", spec.Name, dep)
			}
		}
		seen[spec.Name] = true
	}
	return nil
}

// phaseEstimates holds advisory per-phase duration guesses. Used only
// for operator-facing ETA, never for scheduling.
var phaseEstimates = map[Phase]time.Duration{
	PhaseFetchTitle:       2 * time.Second,
	PhaseExtractCategory:  5 * time.Second,
	PhaseScrapeProducts:   45 * time.Second,
	PhaseValidateProducts: 3 * time.Second,
	PhaseGenerateImages:   90 * time.Second,
	PhaseGenerateText:     30 * time.Second,
	PhaseGenerateVoice:    40 * time.Second,
	PhaseValidateContent:  5 * time.Second,
	PhaseUploadAssets:     60 * time.Second,
	PhaseCreateVideo:      180 * time.Second,
	PhaseCreateWowVideo:   300 * time.Second,
	PhaseValidateVideo:    10 * time.Second,
	PhasePublishYouTube:   60 * time.Second,
	PhasePublishWordPress: 20 * time.Second,
	PhasePublishInstagram: 45 * time.Second,
	PhaseUpdateRecord:     3 * time.Second,
	PhaseFinalize:         5 * time.Second,
}

// parallelDiscount reflects that the publish group could overlap.
const parallelDiscount = 0.7

// EstimateDuration sums the per-phase guesses for a plan, discounting
// phases that belong to a parallel group.
func EstimateDuration(plan []PhaseSpec) time.Duration {
	groups := ParallelGroups(plan)
	grouped := make(map[Phase]bool)
	for _, g := range groups {
		for _, p := range g {
			grouped[p] = true
		}
	}

	var total time.Duration
	for _, spec := range plan {
		est := phaseEstimates[spec.Name]
		if grouped[spec.Name] {
			est = time.Duration(float64(est) * parallelDiscount)
		}
		total += est
	}
	return total
}

// ParallelGroups returns sets of phases whose dependency sets are
// identical and could therefore run concurrently. The driver still
// executes them sequentially; the grouping feeds the duration estimate
// only.
func ParallelGroups(plan []PhaseSpec) [][]Phase {
	byDeps := make(map[string][]Phase)
	order := make([]string, 0)
	for _, spec := range plan {
		if len(spec.DependsOn) == 0 {
			continue
		}
		key := ""
		for _, d := range spec.DependsOn {
			key += d.String() + "|"
		}
		if _, ok := byDeps[key]; !ok {
			order = append(order, key)
		}
		byDeps[key] = append(byDeps[key], spec.Name)
	}

	var groups [][]Phase
	for _, key := range order {
		if g := byDeps[key]; len(g) > 1 {
			groups = append(groups, g)
		}
	}
	return groups
}
