package agents

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
	"github.com/reelforge/reelforge/internal/testutil"
)

func newBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New(logging.NewNop(), 64)
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func task(phase core.Phase, ledger map[string]map[string]any) core.Task {
	return core.Task{
		Phase:      phase,
		WorkflowID: "workflow_test",
		Params:     ledger,
		Requester:  core.AgentOrchestrator,
	}
}

// captureSearcher records the query it was asked for.
type captureSearcher struct {
	mu      sync.Mutex
	queries []string
}

func (c *captureSearcher) SearchAndScrape(_ context.Context, query string, n int) ([]core.Product, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	products := make([]core.Product, n)
	for i := range products {
		products[i] = core.Product{
			Title:      "item",
			Price:      10,
			Rating:     4,
			ProductURL: "https://example.invalid/p",
		}
	}
	return products, nil
}

func TestFetchTitleReturnsPendingRecord(t *testing.T) {
	a := NewDataAcquisition(newBus(t), logging.NewNop(), testutil.Happy())

	out, err := a.ExecuteTask(context.Background(), task(core.PhaseFetchTitle, nil))
	require.NoError(t, err)
	assert.Equal(t, "rec_stub_001", out["record_id"])
	assert.NotEmpty(t, out["title"])
}

func TestFetchTitleEmptyQueueFails(t *testing.T) {
	collab := testutil.Happy()
	collab.Records = testutil.EmptyQueueRecords{}
	a := NewDataAcquisition(newBus(t), logging.NewNop(), collab)

	_, err := a.ExecuteTask(context.Background(), task(core.PhaseFetchTitle, nil))
	require.Error(t, err)
	assert.Equal(t, core.ErrCatValidation, core.GetCategory(err))
}

func TestScrapeUsesCategoryWhenAvailable(t *testing.T) {
	collab := testutil.Happy()
	searcher := &captureSearcher{}
	collab.Searcher = searcher
	a := NewDataAcquisition(newBus(t), logging.NewNop(), collab)

	ledger := map[string]map[string]any{
		"fetch_title":      {"title": "Top 5 Gaming Mice"},
		"extract_category": {"category": "gaming mice"},
	}
	_, err := a.ExecuteTask(context.Background(), task(core.PhaseScrapeProducts, ledger))
	require.NoError(t, err)
	assert.Equal(t, []string{"gaming mice"}, searcher.queries)
}

func TestScrapeFallsBackToRawTitle(t *testing.T) {
	collab := testutil.Happy()
	searcher := &captureSearcher{}
	collab.Searcher = searcher
	a := NewDataAcquisition(newBus(t), logging.NewNop(), collab)

	ledger := map[string]map[string]any{
		"fetch_title": {"title": "Top 5 Gaming Mice"},
	}
	_, err := a.ExecuteTask(context.Background(), task(core.PhaseScrapeProducts, ledger))
	require.NoError(t, err)
	assert.Equal(t, []string{"Top 5 Gaming Mice"}, searcher.queries)
}

func TestScrapeFailurePropagates(t *testing.T) {
	collab := testutil.Happy()
	collab.Searcher = testutil.FailingSearcher{}
	a := NewDataAcquisition(newBus(t), logging.NewNop(), collab)

	ledger := map[string]map[string]any{
		"fetch_title": {"title": "Top 5 Gaming Mice"},
	}
	_, err := a.ExecuteTask(context.Background(), task(core.PhaseScrapeProducts, ledger))
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrBoom)
	assert.True(t, core.IsRetryable(err))
}

func TestValidateProductsFiltersAndCaps(t *testing.T) {
	a := NewDataAcquisition(newBus(t), logging.NewNop(), testutil.Happy())

	// Four of the ten fail a different field check each.
	products := []core.Product{
		{Title: "good 1", Price: 10, Rating: 4.5, ProductURL: "https://x/1"},
		{Title: "", Price: 10, Rating: 4.5, ProductURL: "https://x/2"},
		{Title: "good 2", Price: 0, Rating: 4.5, ProductURL: "https://x/3"},
		{Title: "good 3", Price: 10, Rating: 0, ProductURL: "https://x/4"},
		{Title: "good 4", Price: 10, Rating: 4.1, ProductURL: ""},
		{Title: "good 5", Price: 11, Rating: 4.2, ProductURL: "https://x/5"},
		{Title: "good 6", Price: 12, Rating: 4.3, ProductURL: "https://x/6"},
		{Title: "good 7", Price: 13, Rating: 4.4, ProductURL: "https://x/7"},
		{Title: "good 8", Price: 14, Rating: 4.5, ProductURL: "https://x/8"},
		{Title: "good 9", Price: 15, Rating: 4.6, ProductURL: "https://x/9"},
	}
	ledger := map[string]map[string]any{
		"scrape_products": {"products": products},
	}

	out, err := a.ExecuteTask(context.Background(), task(core.PhaseValidateProducts, ledger))
	require.NoError(t, err)
	assert.Equal(t, 5, out["count"])
	kept := out["products"].([]core.Product)
	require.Len(t, kept, 5)
	assert.Equal(t, "good 1", kept[0].Title)
}

func TestValidateProductsAllJunkFails(t *testing.T) {
	a := NewDataAcquisition(newBus(t), logging.NewNop(), testutil.Happy())

	ledger := map[string]map[string]any{
		"scrape_products": {"products": []core.Product{
			{Title: "", Price: 0},
			{Title: "x", Price: 0, Rating: 0},
		}},
	}
	_, err := a.ExecuteTask(context.Background(), task(core.PhaseValidateProducts, ledger))
	require.Error(t, err)
	assert.ErrorIs(t, err, &core.DomainError{Category: core.ErrCatValidation, Code: core.CodeNoProducts})
}

func TestUnroutedPhaseRejected(t *testing.T) {
	a := NewDataAcquisition(newBus(t), logging.NewNop(), testutil.Happy())

	_, err := a.ExecuteTask(context.Background(), task(core.PhaseCreateVideo, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, &core.DomainError{Category: core.ErrCatValidation, Code: core.CodeUnroutedPhase})
}

func TestHeuristicCategory(t *testing.T) {
	assert.Equal(t, "wireless headphones", heuristicCategory("Top 5 Wireless Headphones"))
	assert.Equal(t, "air fryers 2026", heuristicCategory("Best 5 Air Fryers of 2026"))
	// A title made only of framing words falls back to itself.
	assert.Equal(t, "Top 5", heuristicCategory("Top 5"))
}
