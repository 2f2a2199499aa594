package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

func TestFinalizeBuildsRunReport(t *testing.T) {
	a := NewMonitoring(newBus(t), logging.NewNop())

	ledger := map[string]map[string]any{
		"fetch_title":       {"title": "Top 5 Blenders"},
		"validate_products": {"count": 5},
		"generate_images":   {"count": 4},
		"publish_youtube":   {"url": "https://youtube.example.invalid/v/1"},
		"publish_wordpress": {"url": "https://wordpress.example.invalid/p/1"},
	}
	out, err := a.ExecuteTask(context.Background(), task(core.PhaseFinalize, ledger))
	require.NoError(t, err)

	report := out["report"].(map[string]any)
	assert.Equal(t, "workflow_test", report["workflow_id"])
	assert.Equal(t, 5, report["phases_recorded"])
	assert.Equal(t, 5, report["product_count"])

	published := report["published"].(map[string]any)
	assert.Len(t, published, 2)
	assert.Contains(t, published, "publish_youtube")
}

func TestEstimateCostScalesImagesByBatchSize(t *testing.T) {
	a := NewMonitoring(newBus(t), logging.NewNop())

	withFour := task(core.PhaseFinalize, map[string]map[string]any{
		"generate_images": {"count": 4},
	})
	withOne := task(core.PhaseFinalize, map[string]map[string]any{
		"generate_images": {"count": 1},
	})
	assert.InDelta(t, 0.16, a.estimateCost(withFour), 1e-9)
	assert.InDelta(t, 0.04, a.estimateCost(withOne), 1e-9)

	// Phases without a cost entry contribute nothing.
	free := task(core.PhaseFinalize, map[string]map[string]any{
		"fetch_title": {"title": "x"},
	})
	assert.Zero(t, a.estimateCost(free))
}
